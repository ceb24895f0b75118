// Package rafttest is a deterministic, in-process test harness for the
// core engine: an in-memory Network stands in for sockets and Tick is
// driven explicitly by the test instead of a wall-clock ticker, so the
// scenario tests in the root package run instantly and repeatably. There
// is no teacher file this is grounded on directly — the originating
// sketch had no equivalent harness — so it follows the engine's own
// Callbacks contract and the corpus's general preference for hand-rolled
// fakes over a mocking framework (see the plain Callbacks struct below).
package rafttest

import (
	"fmt"
	"math/rand"
	"time"

	raft "github.com/ihavec/kirindb-raft-db"
	"github.com/ihavec/kirindb-raft-db/model"
)

type voteReq struct {
	to, from raft.NodeID
	msg      model.RequestVote
}

type voteResp struct {
	to, from raft.NodeID
	msg      model.RequestVoteResponse
}

type aeReq struct {
	to, from raft.NodeID
	msg      model.AppendEntries
}

type aeResp struct {
	to, from raft.NodeID
	msg      model.AppendEntriesResponse
}

// Network queues RPCs sent by Callbacks and delivers them on demand,
// optionally dropping traffic to/from partitioned nodes.
type Network struct {
	voteReqs  []voteReq
	voteResps []voteResp
	aeReqs    []aeReq
	aeResps   []aeResp

	partitioned map[raft.NodeID]bool
}

// NewNetwork creates an empty, fully connected Network.
func NewNetwork() *Network {
	return &Network{partitioned: map[raft.NodeID]bool{}}
}

// Partition drops all future traffic to or from id, simulating an isolated
// node, until Heal is called.
func (n *Network) Partition(id raft.NodeID) { n.partitioned[id] = true }

// Heal reconnects a previously partitioned node.
func (n *Network) Heal(id raft.NodeID) { delete(n.partitioned, id) }

func (n *Network) blocked(a, b raft.NodeID) bool {
	return n.partitioned[a] || n.partitioned[b]
}

// Callbacks implements raft.Callbacks[int] by queueing sends on a Network
// and recording persisted/applied state for assertions. C is int and
// unused; rafttest clusters don't need per-node host context.
type Callbacks struct {
	raft.NopCallbacks[int]

	ID  raft.NodeID
	Net *Network

	PersistedTerm uint64
	PersistedVote *raft.NodeID
	Applied       []model.Entry
	Logs          []string
	SufficientFor []raft.NodeID
	Membership    []string
}

// NewCallbacks creates a Callbacks for node id wired to net.
func NewCallbacks(id raft.NodeID, net *Network) *Callbacks {
	return &Callbacks{ID: id, Net: net}
}

func (c *Callbacks) SendRequestVote(node *raft.Node[int], msg model.RequestVote) error {
	c.Net.voteReqs = append(c.Net.voteReqs, voteReq{to: node.ID, from: c.ID, msg: msg})
	return nil
}

func (c *Callbacks) SendAppendEntries(node *raft.Node[int], msg model.AppendEntries) error {
	c.Net.aeReqs = append(c.Net.aeReqs, aeReq{to: node.ID, from: c.ID, msg: msg})
	return nil
}

func (c *Callbacks) ApplyLog(entry model.Entry) error {
	c.Applied = append(c.Applied, entry)
	return nil
}

func (c *Callbacks) PersistVote(nodeID *raft.NodeID) error {
	c.PersistedVote = nodeID
	return nil
}

func (c *Callbacks) PersistTerm(term uint64) error {
	c.PersistedTerm = term
	return nil
}

func (c *Callbacks) LogOffer(model.Entry) error { return nil }
func (c *Callbacks) LogPop(model.Entry) error   { return nil }

// NewNodeData stands in for a real dial address: rafttest clusters route
// everything through Network by NodeID and never read a node's user data,
// so the int returned is simply the node's id, which lets tests check that
// the core took UData from this callback.
func (c *Callbacks) NewNodeData(payload model.MembershipPayload) int {
	return int(payload.NodeID)
}

func (c *Callbacks) NodeHasSufficientLogs(node *raft.Node[int]) error {
	c.SufficientFor = append(c.SufficientFor, node.ID)
	return nil
}

func (c *Callbacks) Log(message string) {
	c.Logs = append(c.Logs, message)
}

func (c *Callbacks) MembershipEvent(node *raft.Node[int], kind raft.MembershipEventKind) {
	c.Membership = append(c.Membership, fmt.Sprintf("%s:%d", kind, node.ID))
}

// Cluster is a fixed set of in-memory raft servers sharing one Network.
type Cluster struct {
	Net     *Network
	Servers map[raft.NodeID]*raft.Server[int]
	CBs     map[raft.NodeID]*Callbacks
	order   []raft.NodeID
}

// NewCluster builds a Cluster of len(ids) voting members, all started as
// followers at term 0 with an empty log, each other's peer already in its
// node table (as a bootstrap cluster would be configured).
func NewCluster(ids []uint32) *Cluster {
	return NewClusterWithRand(ids, func(id uint32) *rand.Rand {
		return rand.New(rand.NewSource(int64(id)))
	})
}

// NewClusterWithRand is NewCluster with control over each node's election
// timeout jitter source, for tests that need to engineer a specific timing
// (e.g. two nodes timing out in the same tick to force a split vote).
func NewClusterWithRand(ids []uint32, randFor func(uint32) *rand.Rand) *Cluster {
	net := NewNetwork()
	cl := &Cluster{Net: net, Servers: map[raft.NodeID]*raft.Server[int]{}, CBs: map[raft.NodeID]*Callbacks{}}
	for _, id := range ids {
		nid := raft.NodeID(id)
		cl.order = append(cl.order, nid)
		cb := NewCallbacks(nid, net)
		cl.CBs[nid] = cb
		cl.Servers[nid] = raft.NewServer[int](raft.Config{
			SelfID:          id,
			ElectionTimeout: 100 * time.Millisecond,
			RequestTimeout:  20 * time.Millisecond,
			Rand:            randFor(id),
		}, cb)
	}
	for _, id := range ids {
		for _, member := range ids {
			// Every server's table includes itself (as selfNode() requires)
			// as well as every peer, the way a bootstrap host would add the
			// full configured membership including its own entry.
			if _, err := cl.Servers[raft.NodeID(id)].AddNode(raft.NodeID(member), true, 0); err != nil {
				panic(err)
			}
		}
	}
	return cl
}

// Tick advances every server's clock by d, then drains the network until
// quiescent.
func (cl *Cluster) Tick(d time.Duration) error {
	for _, id := range cl.order {
		if err := cl.Servers[id].Tick(d); err != nil {
			return fmt.Errorf("rafttest: tick %d: %w", id, err)
		}
	}
	return cl.Drain()
}

// Drain delivers every queued message, including the responses and
// follow-on messages those deliveries themselves enqueue, up to a bounded
// number of rounds (guards against a test bug producing an infinite loop,
// since a correctly behaving engine always quiesces quickly).
func (cl *Cluster) Drain() error {
	const maxRounds = 64
	for round := 0; round < maxRounds; round++ {
		if cl.Net.empty() {
			return nil
		}
		if err := cl.deliverOneRound(); err != nil {
			return err
		}
	}
	return fmt.Errorf("rafttest: network did not quiesce after %d rounds", maxRounds)
}

func (n *Network) empty() bool {
	return len(n.voteReqs) == 0 && len(n.voteResps) == 0 && len(n.aeReqs) == 0 && len(n.aeResps) == 0
}

func (cl *Cluster) deliverOneRound() error {
	net := cl.Net

	voteReqs := net.voteReqs
	net.voteReqs = nil
	for _, r := range voteReqs {
		if net.blocked(r.to, r.from) {
			continue
		}
		resp, err := cl.Servers[r.to].RecvRequestVote(r.from, r.msg)
		if err != nil {
			return err
		}
		net.voteResps = append(net.voteResps, voteResp{to: r.from, from: r.to, msg: resp})
	}

	aeReqs := net.aeReqs
	net.aeReqs = nil
	for _, r := range aeReqs {
		if net.blocked(r.to, r.from) {
			continue
		}
		resp, err := cl.Servers[r.to].RecvAppendEntries(r.from, r.msg)
		if err != nil {
			return err
		}
		net.aeResps = append(net.aeResps, aeResp{to: r.from, from: r.to, msg: resp})
	}

	voteResps := net.voteResps
	net.voteResps = nil
	for _, r := range voteResps {
		if net.blocked(r.to, r.from) {
			continue
		}
		if err := cl.Servers[r.to].RecvRequestVoteResponse(r.from, r.msg); err != nil {
			return err
		}
	}

	aeResps := net.aeResps
	net.aeResps = nil
	for _, r := range aeResps {
		if net.blocked(r.to, r.from) {
			continue
		}
		if err := cl.Servers[r.to].RecvAppendEntriesResponse(r.from, r.msg); err != nil {
			return err
		}
	}

	return nil
}

// Leader returns the one server currently believing itself Leader, if any.
func (cl *Cluster) Leader() (*raft.Server[int], bool) {
	for _, id := range cl.order {
		if cl.Servers[id].Role() == raft.Leader {
			return cl.Servers[id], true
		}
	}
	return nil, false
}

// ElectLeader ticks the cluster in 30ms steps (under a third of the 100ms
// election timeout) until a leader emerges or maxTicks is exhausted.
func (cl *Cluster) ElectLeader(maxTicks int) (*raft.Server[int], error) {
	for i := 0; i < maxTicks; i++ {
		if err := cl.Tick(30 * time.Millisecond); err != nil {
			return nil, err
		}
		if s, ok := cl.Leader(); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("rafttest: no leader elected after %d ticks", maxTicks)
}
