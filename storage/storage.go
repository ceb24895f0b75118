// Package storage is the reference host's durable persistence layer: the
// term, vote, and log entries the core's Callbacks ask to have written to
// stable storage before a reply is sent, backed by an embedded ordered
// key-value store (github.com/cockroachdb/pebble) rather than the single
// whole-file msgpack blob the originating sketch rewrote on every change.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ihavec/kirindb-raft-db/model"
)

var (
	keyTerm = []byte("meta:term")
	keyVote = []byte("meta:vote")
	logPfx  = []byte("log:")
)

// Store persists raft metadata and log entries for one node. It is safe
// for use by a single goroutine at a time, matching the core's
// single-threaded calling convention.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a pebble store rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pebble handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func logKey(index uint64) []byte {
	k := make([]byte, len(logPfx)+8)
	copy(k, logPfx)
	binary.BigEndian.PutUint64(k[len(logPfx):], index)
	return k
}

// SaveTerm persists the current term. Grounded on state.go's CurrentTerm
// field, the same value the core's PersistTerm callback is handed.
func (s *Store) SaveTerm(term uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], term)
	return s.db.Set(keyTerm, buf[:], pebble.Sync)
}

// LoadTerm returns the persisted term, or 0 if none was ever saved.
func (s *Store) LoadTerm() (uint64, error) {
	v, closer, err := s.db.Get(keyTerm)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: load term: %w", err)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(v), nil
}

// votedForRecord distinguishes "voted for node 0" from "never voted", since
// node 0 is a valid id.
type votedForRecord struct {
	Voted bool   `msgpack:"voted"`
	For   uint32 `msgpack:"for"`
}

// SaveVote persists the candidate this node voted for in the current term.
// Grounded on state.go's VotedFor field.
func (s *Store) SaveVote(nodeID uint32) error {
	raw, err := msgpack.Marshal(votedForRecord{Voted: true, For: nodeID})
	if err != nil {
		return fmt.Errorf("storage: encode vote: %w", err)
	}
	return s.db.Set(keyVote, raw, pebble.Sync)
}

// ClearVote persists "no vote cast", used when stepping into a new term.
func (s *Store) ClearVote() error {
	raw, err := msgpack.Marshal(votedForRecord{})
	if err != nil {
		return fmt.Errorf("storage: encode vote: %w", err)
	}
	return s.db.Set(keyVote, raw, pebble.Sync)
}

// LoadVote returns the persisted vote, if any.
func (s *Store) LoadVote() (nodeID uint32, hasVote bool, err error) {
	v, closer, err := s.db.Get(keyVote)
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("storage: load vote: %w", err)
	}
	defer closer.Close()
	var rec votedForRecord
	if err := msgpack.Unmarshal(v, &rec); err != nil {
		return 0, false, fmt.Errorf("storage: decode vote: %w", err)
	}
	return rec.For, rec.Voted, nil
}

// AppendEntry persists one log entry, called from the core's log_offer
// callback.
func (s *Store) AppendEntry(e model.Entry) error {
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("storage: encode entry %d: %w", e.Index, err)
	}
	return s.db.Set(logKey(e.Index), raw, pebble.Sync)
}

// PopEntry removes a single entry, called from the core's log_pop callback
// when a conflicting suffix is being discarded.
func (s *Store) PopEntry(index uint64) error {
	return s.db.Delete(logKey(index), pebble.Sync)
}

// PollEntries removes every entry with index < upTo, called from the
// core's optional log_poll callback during compaction.
func (s *Store) PollEntries(upTo uint64) error {
	if upTo == 0 {
		return nil
	}
	return s.db.DeleteRange(logKey(0), logKey(upTo), pebble.Sync)
}

// LoadEntries returns every persisted entry in ascending index order, for
// replaying into a freshly constructed raft.Server via ReplayEntry.
func (s *Store) LoadEntries() ([]model.Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: logPfx,
		UpperBound: logKey(^uint64(0)),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: iterate log: %w", err)
	}
	defer iter.Close()

	var entries []model.Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e model.Entry
		if err := msgpack.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("storage: decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("storage: iterate log: %w", err)
	}
	return entries, nil
}
