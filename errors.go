package raft

import "errors"

// Errors returned by Server's public operations. Callers should compare
// with errors.Is since some are wrapped with additional context.
var (
	// ErrNotLeader is returned by RecvEntry when called on a server that is
	// not the current leader.
	ErrNotLeader = errors.New("raft: not leader")

	// ErrOneVotingChangeOnly is returned when a voting-configuration-changing
	// entry is submitted while one is already uncommitted.
	ErrOneVotingChangeOnly = errors.New("raft: one voting change at a time")

	// ErrShutdown is returned by RecvEntry once the self node's removal from
	// the configuration has been applied. The server applies committed
	// entries up to and including its own removal and none after it, starts
	// no elections, and denies every vote request; it still answers
	// AppendEntries.
	ErrShutdown = errors.New("raft: server removed from configuration")

	// ErrCallbackFailed wraps an error returned by a host callback. The
	// enclosing operation is incomplete; state mutations already applied are
	// not rolled back.
	ErrCallbackFailed = errors.New("raft: callback failed")

	// ErrUnknownNode is returned by RecvRequestVoteResponse and
	// RecvAppendEntriesResponse when the sender is not in the node table.
	ErrUnknownNode = errors.New("raft: unknown node")

	// ErrNodeExists is returned by AddNode when the id is already present in
	// the node table.
	ErrNodeExists = errors.New("raft: node already exists")

	// ErrInvalidIndex is returned by log operations given an out-of-range index.
	ErrInvalidIndex = errors.New("raft: invalid log index")

	// ErrTruncateCommitted is returned if a truncate would drop an entry at
	// or below commitIndex; this should never happen if leaders are correct
	// and indicates a bug in the caller.
	ErrTruncateCommitted = errors.New("raft: refusing to truncate committed entry")
)
