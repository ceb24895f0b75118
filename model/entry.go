// Package model holds the wire-format-agnostic message and log entry types
// shared between the raft core, the transport layer, and the durable store.
// Values here are plain structs with msgpack tags; nothing in this package
// depends on rpcx, pebble, or any other transport/storage concern, so the
// core can depend on it without dragging those in.
package model

// EntryType discriminates the kind of a LogEntry. Only Normal entries carry
// a user payload destined for the state machine; the other four drive
// membership changes and are interpreted by the core itself.
type EntryType uint8

const (
	// Normal is an ordinary client command, opaque to the core.
	Normal EntryType = iota
	// AddNonvotingNode adds a node to the table as non-voting and active.
	// Takes effect when the entry is offered to the log (see raft.Callbacks.LogOffer).
	AddNonvotingNode
	// AddNode promotes a node to voting. Takes effect when the entry is applied.
	AddNode
	// DemoteNode demotes a voting node to non-voting. Takes effect when applied.
	DemoteNode
	// RemoveNode detaches a node from the table entirely. Takes effect when applied.
	RemoveNode
)

// String renders the EntryType for logging.
func (t EntryType) String() string {
	switch t {
	case Normal:
		return "normal"
	case AddNonvotingNode:
		return "add-nonvoting-node"
	case AddNode:
		return "add-node"
	case DemoteNode:
		return "demote-node"
	case RemoveNode:
		return "remove-node"
	default:
		return "unknown"
	}
}

// IsMembership reports whether the entry type is a configuration change
// rather than an ordinary command.
func (t EntryType) IsMembership() bool {
	return t != Normal
}

// IsVotingChange reports whether the entry type changes the voting
// configuration (as opposed to ADD_NONVOTING_NODE, which does not).
func (t EntryType) IsVotingChange() bool {
	switch t {
	case AddNode, DemoteNode, RemoveNode:
		return true
	default:
		return false
	}
}

// Entry is a single replicated log entry. Index is 1-based and gap-free
// within a server's log. ID is an opaque tag chosen by the submitter for
// client-side deduplication; it carries no consensus meaning.
type Entry struct {
	Index   uint64    `msgpack:"index"`
	Term    uint64    `msgpack:"term"`
	ID      uint32    `msgpack:"id"`
	Type    EntryType `msgpack:"type"`
	Payload []byte    `msgpack:"payload"`
}

// MembershipPayload is the Entry.Payload encoding for any non-Normal entry
// type. Addr is a host-interpreted connection string (e.g. "host:port" for
// the reference rpcx transport); the core never parses it.
type MembershipPayload struct {
	NodeID uint32 `msgpack:"node_id"`
	Addr   string `msgpack:"addr"`
}
