// Package host is the reference implementation of a process embedding the
// raft engine: it wires config, storage, transport, the state machine and
// metrics together behind the single command loop the core's
// non-reentrant calling convention requires, the way the originating
// sketch's Server tied together its config, state, and rpcx server behind
// one mutex. Here a channel takes the place of the mutex, since the core
// no longer holds one itself.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	raft "github.com/ihavec/kirindb-raft-db"
	"github.com/ihavec/kirindb-raft-db/config"
	"github.com/ihavec/kirindb-raft-db/db"
	"github.com/ihavec/kirindb-raft-db/metrics"
	"github.com/ihavec/kirindb-raft-db/model"
	"github.com/ihavec/kirindb-raft-db/storage"
	"github.com/ihavec/kirindb-raft-db/transport"
)

// tickInterval is how often Run calls Server.Tick. It must be small
// relative to RequestTimeoutMs for heartbeats to be timely.
const tickInterval = 20 * time.Millisecond

// Host runs one raft group for one process: it owns the Server, its
// durable storage, its RPC listener, and the state machine committed
// entries are applied to.
type Host struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.Store
	sm    db.StateMachine

	srv        *raft.Server[*config.Node]
	listener   *transport.Listener
	sender     transport.Sender[*config.Node]
	collectors *metrics.Collectors

	cmds chan func()
	quit chan struct{}
}

// Open loads cfg's storage directory, replays persisted state into a new
// Server, starts listening for RPCs, and returns a Host ready for Run.
func Open(cfg *config.Config, logger *slog.Logger, collectors *metrics.Collectors) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	self, err := cfg.SelfNode()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(cfg.Dir, fmt.Sprintf("node-%d", cfg.SelfID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("host: create %s: %w", dir, err)
	}
	store, err := storage.Open(dir)
	if err != nil {
		return nil, err
	}

	h := &Host{
		cfg:        cfg,
		log:        logger,
		store:      store,
		sm:         db.NewStateMachine(0),
		collectors: collectors,
		cmds:       make(chan func()),
		quit:       make(chan struct{}),
	}
	h.sender = transport.Sender[*config.Node]{Sink: h, Timeout: cfg.RequestTimeout()}

	var cb raft.Callbacks[*config.Node] = &callbacks{host: h}
	if collectors != nil {
		cb = metrics.Instrument[*config.Node](cb, collectors)
	}

	h.srv = raft.NewServer[*config.Node](raft.Config{
		SelfID:                cfg.SelfID,
		ElectionTimeout:       cfg.ElectionTimeout(),
		RequestTimeout:        cfg.RequestTimeout(),
		MaxAppendEntriesBatch: cfg.MaxAppendEntriesBatch,
	}, cb)

	if err := h.replay(); err != nil {
		store.Close()
		return nil, err
	}
	if err := h.bootstrapMembers(); err != nil {
		store.Close()
		return nil, err
	}

	listener, err := transport.Listen(self.GetAddress(), h)
	if err != nil {
		store.Close()
		return nil, err
	}
	h.listener = listener

	return h, nil
}

func (h *Host) replay() error {
	term, err := h.store.LoadTerm()
	if err != nil {
		return err
	}
	h.srv.ReplayTerm(term)

	votedFor, hasVote, err := h.store.LoadVote()
	if err != nil {
		return err
	}
	if hasVote {
		id := raft.NodeID(votedFor)
		h.srv.ReplayVote(&id)
	}

	entries, err := h.store.LoadEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := h.srv.ReplayEntry(e); err != nil {
			return fmt.Errorf("host: replay entry %d: %w", e.Index, err)
		}
	}
	return nil
}

// bootstrapMembers adds every configured node that replay didn't already
// restore into the table, so a fresh cluster starts with its full
// configured membership.
func (h *Host) bootstrapMembers() error {
	for i := range h.cfg.Nodes {
		n := &h.cfg.Nodes[i]
		id := raft.NodeID(n.ID)
		if _, ok := h.srv.Node(id); ok {
			continue
		}
		if _, err := h.srv.AddNode(id, n.Voting, n); err != nil {
			return fmt.Errorf("host: add node %d: %w", n.ID, err)
		}
	}
	return nil
}

// Run drives the tick loop until ctx is cancelled or Close is called.
func (h *Host) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.quit:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if err := h.srv.Tick(elapsed); err != nil {
				h.log.Error("tick failed", slog.Any("error", err))
			}
			if h.collectors != nil {
				h.collectors.SetRole(h.srv.Role())
				h.collectors.CommitIndex.Set(float64(h.srv.CommitIndex()))
			}
			h.maybeCompact()
		case fn := <-h.cmds:
			fn()
		}
	}
}

// retainEntries is how many applied entries Run keeps in memory past
// lastAppliedIndex before compacting, bounding log growth on a
// long-running leader without needing snapshot transfer (out of scope;
// see Server.Compact).
const retainEntries = 1000

func (h *Host) maybeCompact() {
	applied := h.srv.LastAppliedIndex()
	if applied <= retainEntries {
		return
	}
	if err := h.srv.Compact(applied - retainEntries); err != nil {
		h.log.Warn("compact", slog.Any("error", err))
	}
}

// Close stops the RPC listener, the run loop, and closes storage.
func (h *Host) Close() error {
	close(h.quit)
	if err := h.listener.Close(); err != nil {
		return err
	}
	return h.store.Close()
}

// Propose submits a client command to the leader's log and returns once it
// is appended locally (not yet necessarily committed — poll with
// EntryCommitted, or wait via WaitCommitted).
func (h *Host) Propose(entryType model.EntryType, id uint32, payload []byte) (raft.EntryResponse, error) {
	type result struct {
		resp raft.EntryResponse
		err  error
	}
	done := make(chan result, 1)
	h.cmds <- func() {
		resp, err := h.srv.RecvEntry(entryType, id, payload)
		done <- result{resp, err}
	}
	r := <-done
	return r.resp, r.err
}

// Get reads a key directly from the local state machine (not linearizable).
func (h *Host) Get(key []byte) ([]byte, bool) {
	return h.sm.Get(key)
}

// WaitCommitted blocks, polling on the host's tick cadence, until resp
// commits or is superseded.
func (h *Host) WaitCommitted(ctx context.Context, resp raft.EntryResponse) (raft.CommitStatus, error) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return raft.Pending, ctx.Err()
		case <-ticker.C:
			done := make(chan raft.CommitStatus, 1)
			h.cmds <- func() { done <- h.srv.EntryCommitted(resp) }
			status := <-done
			if status != raft.Pending {
				return status, nil
			}
		}
	}
}

// --- transport.Inbound ---

func (h *Host) RecvRequestVote(from raft.NodeID, msg model.RequestVote) (model.RequestVoteResponse, error) {
	type result struct {
		resp model.RequestVoteResponse
		err  error
	}
	done := make(chan result, 1)
	h.cmds <- func() {
		resp, err := h.srv.RecvRequestVote(from, msg)
		done <- result{resp, err}
	}
	r := <-done
	return r.resp, r.err
}

func (h *Host) RecvAppendEntries(from raft.NodeID, msg model.AppendEntries) (model.AppendEntriesResponse, error) {
	type result struct {
		resp model.AppendEntriesResponse
		err  error
	}
	done := make(chan result, 1)
	h.cmds <- func() {
		resp, err := h.srv.RecvAppendEntries(from, msg)
		done <- result{resp, err}
	}
	r := <-done
	return r.resp, r.err
}

// --- transport.ResponseSink ---

func (h *Host) DeliverRequestVoteResponse(from *raft.Node[*config.Node], msg model.RequestVoteResponse) {
	h.cmds <- func() {
		if err := h.srv.RecvRequestVoteResponse(from.ID, msg); err != nil {
			h.log.Warn("request_vote_response", slog.Any("error", err))
		}
	}
}

func (h *Host) DeliverAppendEntriesResponse(from *raft.Node[*config.Node], msg model.AppendEntriesResponse) {
	h.cmds <- func() {
		if err := h.srv.RecvAppendEntriesResponse(from.ID, msg); err != nil {
			h.log.Warn("append_entries_response", slog.Any("error", err))
		}
	}
}
