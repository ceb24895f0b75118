package raft

import (
	"math/rand"
	"time"

	"github.com/ihavec/kirindb-raft-db/model"
)

// Role is one of the three Raft server roles.
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// NodeID identifies a server in the cluster.
type NodeID uint32

// Entry is an alias of the wire entry type; the core and the host share one
// representation end to end.
type Entry = model.Entry

// CommitStatus is the result of EntryCommitted (msg_entry_response_committed
// in the spec's terms).
type CommitStatus int

const (
	// Pending means the entry has not yet reached commitIndex.
	Pending CommitStatus = iota
	// Committed means the entry at that index, with that term and id, has
	// been committed.
	Committed
	// Superseded means a different entry now occupies that index: the one
	// the caller submitted was overwritten by a later leader and will never
	// commit. The caller must resubmit.
	Superseded
)

func (s CommitStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// EntryResponse identifies a previously submitted entry for use with
// EntryCommitted.
type EntryResponse struct {
	Term  uint64
	Index uint64
	ID    uint32
}

// Config holds the tuning knobs a host supplies when constructing a Server.
// Zero values are replaced with the documented defaults in NewServer.
type Config struct {
	SelfID uint32

	ElectionTimeout        time.Duration // default 1000ms
	RequestTimeout         time.Duration // default 200ms, must be < ElectionTimeout
	MaxAppendEntriesBatch  int           // default 8
	Rand                   *rand.Rand    // optional, for deterministic tests
}

const (
	defaultElectionTimeout = 1000 * time.Millisecond
	defaultRequestTimeout  = 200 * time.Millisecond
	defaultBatchSize       = 8
)

func (c Config) withDefaults() Config {
	if c.ElectionTimeout <= 0 {
		c.ElectionTimeout = defaultElectionTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxAppendEntriesBatch <= 0 {
		c.MaxAppendEntriesBatch = defaultBatchSize
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(int64(c.SelfID) + 1))
	}
	return c
}
