package raft

import "github.com/ihavec/kirindb-raft-db/model"

// Callbacks is the capability interface a host implements to give a Server
// I/O: sending RPCs, persisting metadata and log entries, and applying
// committed entries to the state machine. All methods are invoked
// synchronously from inside a Server public method and must not re-enter
// the Server. They may block (e.g. to fsync); the host budgets accordingly.
//
// Methods return error; a non-nil error that the enclosing Server operation
// returns is wrapped in ErrCallbackFailed, and any state mutation already
// applied before the failure is not rolled back. Send failures during an
// election, a heartbeat broadcast, or RecvEntry's replication are passed to
// Log instead and do not fail the operation.
//
// Mandatory methods have no useful default; the interface makes an
// implementation provide them, and NewServer itself checks nothing.
// Optional methods default to no-ops via NopCallbacks, which every
// Callbacks implementation should embed.
type Callbacks[C any] interface {
	// --- mandatory ---

	// SendRequestVote dispatches a RequestVote to the given node. The
	// response, when it eventually arrives, reaches the Server through
	// RecvRequestVoteResponse — SendRequestVote itself does not return it.
	SendRequestVote(node *Node[C], msg model.RequestVote) error

	// SendAppendEntries dispatches an AppendEntries to the given node.
	SendAppendEntries(node *Node[C], msg model.AppendEntries) error

	// ApplyLog delivers a committed entry to the host state machine, in
	// strict index order, exactly once.
	ApplyLog(entry model.Entry) error

	// PersistVote durably records the server's vote for the current term.
	// A nil nodeID means the vote was cleared (new term, no vote cast yet).
	PersistVote(nodeID *NodeID) error

	// PersistTerm durably records the server's current term.
	PersistTerm(term uint64) error

	// LogOffer durably appends entry at index. Must fsync before returning
	// success.
	LogOffer(entry model.Entry) error

	// LogPop durably removes entry at index because it is being truncated
	// (a conflicting entry from a new leader is replacing it).
	LogPop(entry model.Entry) error

	// NewNodeData builds the user data a newly discovered node needs before
	// the core can reach it: offerMembershipEffect (ADD_NONVOTING_NODE) and
	// applyMembershipEffect (ADD_NODE for an id not already in the table)
	// both call this to turn the membership entry's payload into a dialable
	// C, since the core itself never interprets MembershipPayload.Addr.
	NewNodeData(payload model.MembershipPayload) C

	// --- optional, embed NopCallbacks to satisfy these ---

	// LogPoll durably removes the oldest retained entry, for compaction.
	LogPoll(entry model.Entry) error

	// NodeHasSufficientLogs fires the first time a peer's MatchIndex catches
	// up to the leader's LastIndex, for voting and non-voting peers alike;
	// the flag behind it is reset each time this server becomes leader. For
	// a non-voting node the host typically responds by submitting an
	// ADD_NODE entry for it.
	NodeHasSufficientLogs(node *Node[C]) error

	// Log is a diagnostic sink; message is a human-readable line.
	Log(message string)

	// MembershipEvent notifies the host of a membership table transition.
	MembershipEvent(node *Node[C], kind MembershipEventKind)
}

// MembershipEventKind enumerates the node-table transitions MembershipEvent
// reports.
type MembershipEventKind uint8

const (
	NodeAdded MembershipEventKind = iota
	NodePromoted
	NodeDemoted
	NodeRemoved
)

func (k MembershipEventKind) String() string {
	switch k {
	case NodeAdded:
		return "added"
	case NodePromoted:
		return "promoted"
	case NodeDemoted:
		return "demoted"
	case NodeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NopCallbacks implements the optional Callbacks methods as no-ops. Embed it
// in a host's Callbacks implementation to only override what's needed.
type NopCallbacks[C any] struct{}

func (NopCallbacks[C]) LogPoll(model.Entry) error                       { return nil }
func (NopCallbacks[C]) NodeHasSufficientLogs(*Node[C]) error            { return nil }
func (NopCallbacks[C]) Log(string)                                     {}
func (NopCallbacks[C]) MembershipEvent(*Node[C], MembershipEventKind) {}
