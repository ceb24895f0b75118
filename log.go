package raft

import (
	"fmt"

	"github.com/ihavec/kirindb-raft-db/model"
)

// log is the in-memory replicated log. It is bounded on the left by
// baseIndex (the first retained index, increasing only on compaction) and
// unbounded on the right. Index 0 is never a real entry; it represents "no
// entry / before the beginning of the log".
//
// entries[i] holds the entry at index baseIndex+i. All mutating operations
// invoke the corresponding Callbacks method before returning, and propagate
// a callback failure to the caller without changing state further.
type log struct {
	baseIndex uint64 // first retained index; 1 when nothing has been compacted
	baseTerm  uint64 // term of the entry immediately before baseIndex (0 if baseIndex==1)
	entries   []model.Entry
}

func newLog() *log {
	return &log{baseIndex: 1, entries: nil}
}

// lastIndex returns the index of the most recently appended entry, or
// baseIndex-1 if the log (suffix held in memory) is empty.
func (l *log) lastIndex() uint64 {
	return l.baseIndex - 1 + uint64(len(l.entries))
}

// lastTerm returns the term of the entry at lastIndex, or baseTerm if empty.
func (l *log) lastTerm() uint64 {
	if len(l.entries) == 0 {
		return l.baseTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// termAt returns the term of the entry at index, or 0 if index is 0.
// index must be >= baseIndex-1 and <= lastIndex.
func (l *log) termAt(index uint64) (uint64, bool) {
	if index == 0 {
		return 0, true
	}
	if index == l.baseIndex-1 {
		return l.baseTerm, true
	}
	e, ok := l.get(index)
	if !ok {
		return 0, false
	}
	return e.Term, true
}

// get returns the entry at the given 1-based index, if retained.
func (l *log) get(index uint64) (model.Entry, bool) {
	if index < l.baseIndex || index > l.lastIndex() {
		return model.Entry{}, false
	}
	return l.entries[index-l.baseIndex], true
}

// has reports whether the log has an entry at index with the given term.
// index == 0 matches only term 0.
func (l *log) has(index, term uint64) bool {
	if index == 0 {
		return term == 0
	}
	got, ok := l.termAt(index)
	return ok && got == term
}

// slice returns up to count entries starting at from (inclusive).
func (l *log) slice(from uint64, count int) []model.Entry {
	if from < l.baseIndex || from > l.lastIndex() {
		return nil
	}
	start := from - l.baseIndex
	end := start + uint64(count)
	if end > uint64(len(l.entries)) {
		end = uint64(len(l.entries))
	}
	out := make([]model.Entry, end-start)
	copy(out, l.entries[start:end])
	return out
}

// appendEntry adds entry to the tail, assigning no index itself (the caller has
// already stamped entry.Index == lastIndex()+1), and invokes LogOffer.
func appendEntry[C any](l *log, cb Callbacks[C], entry model.Entry) error {
	if entry.Index != l.lastIndex()+1 {
		return fmt.Errorf("raft: append index %d != expected %d", entry.Index, l.lastIndex()+1)
	}
	if err := cb.LogOffer(entry); err != nil {
		return fmt.Errorf("%w: log_offer: %v", ErrCallbackFailed, err)
	}
	l.entries = append(l.entries, entry)
	return nil
}

// truncateFrom drops every entry at index i and above, invoking LogPop for
// each from the tail backward. Refuses to drop an entry at or below
// commitIndex. onPop, if non-nil, runs after each entry's LogPop succeeds
// (before the next one is popped) so callers can reverse any offer-time
// side effect, such as a non-voting membership add.
func truncateFrom[C any](l *log, cb Callbacks[C], commitIndex, i uint64, onPop func(model.Entry) error) error {
	if i <= commitIndex {
		return ErrTruncateCommitted
	}
	if i < l.baseIndex || i > l.lastIndex()+1 {
		return nil
	}
	for idx := l.lastIndex(); idx >= i; idx-- {
		e, ok := l.get(idx)
		if !ok {
			break
		}
		if err := cb.LogPop(e); err != nil {
			return fmt.Errorf("%w: log_pop: %v", ErrCallbackFailed, err)
		}
		l.entries = l.entries[:len(l.entries)-1]
		if onPop != nil {
			if err := onPop(e); err != nil {
				return err
			}
		}
		if idx == l.baseIndex {
			break
		}
	}
	return nil
}

// popFront drops the oldest retained entry, advancing baseIndex. Used only
// by compaction; the core never calls this on its own.
func popFront[C any](l *log, cb Callbacks[C]) error {
	if len(l.entries) == 0 {
		return nil
	}
	e := l.entries[0]
	if err := cb.LogPoll(e); err != nil {
		return fmt.Errorf("%w: log_poll: %v", ErrCallbackFailed, err)
	}
	l.baseTerm = e.Term
	l.baseIndex++
	l.entries = l.entries[1:]
	return nil
}

// replay appends an entry during startup replay, bypassing LogOffer (the
// entry is already durable — that's where it came from).
func (l *log) replay(entry model.Entry) error {
	if entry.Index != l.lastIndex()+1 {
		return fmt.Errorf("raft: replay index %d != expected %d", entry.Index, l.lastIndex()+1)
	}
	l.entries = append(l.entries, entry)
	return nil
}
