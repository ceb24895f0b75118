package host

import (
	"log/slog"
	"net"

	raft "github.com/ihavec/kirindb-raft-db"
	"github.com/ihavec/kirindb-raft-db/config"
	"github.com/ihavec/kirindb-raft-db/model"
)

// callbacks implements raft.Callbacks[*config.Node] by delegating sends to
// the host's transport.Sender, persistence to its storage.Store, and
// applied entries to its state machine.
type callbacks struct {
	raft.NopCallbacks[*config.Node]
	host *Host
}

func (c *callbacks) SendRequestVote(node *raft.Node[*config.Node], msg model.RequestVote) error {
	return c.host.sender.SendRequestVote(node, msg)
}

func (c *callbacks) SendAppendEntries(node *raft.Node[*config.Node], msg model.AppendEntries) error {
	return c.host.sender.SendAppendEntries(node, msg)
}

func (c *callbacks) ApplyLog(entry model.Entry) error {
	if entry.Type != model.Normal {
		return nil
	}
	return c.host.sm.Apply(entry.Payload)
}

func (c *callbacks) PersistVote(nodeID *raft.NodeID) error {
	if nodeID == nil {
		return c.host.store.ClearVote()
	}
	return c.host.store.SaveVote(uint32(*nodeID))
}

func (c *callbacks) PersistTerm(term uint64) error {
	return c.host.store.SaveTerm(term)
}

func (c *callbacks) LogOffer(entry model.Entry) error {
	return c.host.store.AppendEntry(entry)
}

func (c *callbacks) LogPop(entry model.Entry) error {
	return c.host.store.PopEntry(entry.Index)
}

func (c *callbacks) LogPoll(entry model.Entry) error {
	return c.host.store.PollEntries(entry.Index + 1)
}

// NewNodeData turns a membership entry's dial address into a *config.Node
// the host's transport.Sender can reach: the node isn't in cfg.Nodes (it
// was discovered dynamically, via ADD_NONVOTING_NODE/ADD_NODE), so nothing
// else ever builds one for it.
func (c *callbacks) NewNodeData(payload model.MembershipPayload) *config.Node {
	host, port, err := net.SplitHostPort(payload.Addr)
	if err != nil {
		c.host.log.Warn("membership: invalid node address", slog.Uint64("node_id", uint64(payload.NodeID)), slog.String("addr", payload.Addr), slog.Any("error", err))
	}
	return &config.Node{
		ID:      payload.NodeID,
		Address: host,
		Port:    port,
	}
}

func (c *callbacks) NodeHasSufficientLogs(node *raft.Node[*config.Node]) error {
	c.host.log.Info("node caught up", slog.Any("node_id", node.ID))
	return nil
}

func (c *callbacks) Log(message string) {
	c.host.log.Debug(message)
}

func (c *callbacks) MembershipEvent(node *raft.Node[*config.Node], kind raft.MembershipEventKind) {
	c.host.log.Info("membership event", slog.Any("node_id", node.ID), slog.String("kind", kind.String()))
}
