package raft

import (
	"fmt"
	"time"

	"github.com/ihavec/kirindb-raft-db/model"
)

// Server is the Raft consensus engine for one member of a cluster. It is
// not safe for concurrent use; see the package doc comment.
//
// C is the type of opaque host context attached to every Node (for example
// a transport handle); the engine itself never inspects it.
type Server[C any] struct {
	cb  Callbacks[C]
	cfg Config

	role Role

	currentTerm uint64
	votedFor    *NodeID
	leader      *NodeID

	commitIndex      uint64
	lastAppliedIndex uint64

	electionTimeout     time.Duration
	electionTimeoutRand time.Duration
	requestTimeout      time.Duration
	timeSinceLastEvent  time.Duration

	nodes *nodeTable[C]
	log   *log

	votingConfigChangeInFlight bool
	shutdownPending            bool
}

// NewServer constructs a Server in the Follower role at term 0 with an
// empty log. The host then populates the node table with AddNode
// (bootstrap, voting or non-voting) or ReplayEntry (recovery) before calling Tick.
func NewServer[C any](cfg Config, cb Callbacks[C]) *Server[C] {
	cfg = cfg.withDefaults()
	s := &Server[C]{
		cb:             cb,
		cfg:            cfg,
		role:           Follower,
		electionTimeout: cfg.ElectionTimeout,
		requestTimeout:  cfg.RequestTimeout,
		nodes:           newNodeTable[C](NodeID(cfg.SelfID)),
		log:             newLog(),
	}
	s.resetElectionTimer()
	return s
}

// --- accessors ---

func (s *Server[C]) SelfID() NodeID              { return s.nodes.self }
func (s *Server[C]) Role() Role                  { return s.role }
func (s *Server[C]) CurrentTerm() uint64         { return s.currentTerm }
func (s *Server[C]) CommitIndex() uint64         { return s.commitIndex }
func (s *Server[C]) LastAppliedIndex() uint64    { return s.lastAppliedIndex }
func (s *Server[C]) LastLogIndex() uint64        { return s.log.lastIndex() }
func (s *Server[C]) IsShutdownPending() bool     { return s.shutdownPending }
func (s *Server[C]) Leader() (NodeID, bool) {
	if s.leader == nil {
		return 0, false
	}
	return *s.leader, true
}
func (s *Server[C]) Node(id NodeID) (*Node[C], bool) { return s.nodes.get(id) }

// --- bootstrap ---

// AddNode registers a bootstrap member of the cluster. Use ReplayEntry
// instead when recovering from a persisted log that already contains
// membership entries.
func (s *Server[C]) AddNode(id NodeID, voting bool, udata C) (*Node[C], error) {
	if _, exists := s.nodes.get(id); exists {
		return nil, ErrNodeExists
	}
	n := s.nodes.add(id, voting, udata)
	n.NextIndex = s.log.lastIndex() + 1
	return n, nil
}

// --- replay API (§6 Persisted state) ---

// ReplayTerm restores the durable current term without re-persisting it.
func (s *Server[C]) ReplayTerm(term uint64) { s.currentTerm = term }

// ReplayVote restores the durable vote without re-persisting it.
func (s *Server[C]) ReplayVote(id *NodeID) { s.votedFor = id }

// ReplayEntry appends a durable entry during startup, bypassing LogOffer
// (the entry is already on disk) but still applying the offer-time
// membership effect so the node table matches what it would have been live.
func (s *Server[C]) ReplayEntry(entry model.Entry) error {
	if err := s.log.replay(entry); err != nil {
		return err
	}
	return s.offerMembershipEffect(entry)
}

// ReplayApplied fast-forwards lastAppliedIndex after replay, for hosts whose
// state machine is not idempotent and therefore persist it separately (§6).
func (s *Server[C]) ReplayApplied(index uint64) { s.lastAppliedIndex = index }

// --- timer bookkeeping ---

func (s *Server[C]) resetElectionTimer() {
	s.timeSinceLastEvent = 0
	span := int64(s.electionTimeout)
	if span <= 0 {
		span = int64(defaultElectionTimeout)
	}
	s.electionTimeoutRand = s.electionTimeout + time.Duration(s.cfg.Rand.Int63n(span))
}

// --- universal term rule ---

func (s *Server[C]) stepDown(term uint64) error {
	if err := s.cb.PersistTerm(term); err != nil {
		return fmt.Errorf("%w: persist_term: %v", ErrCallbackFailed, err)
	}
	s.currentTerm = term
	if err := s.cb.PersistVote(nil); err != nil {
		return fmt.Errorf("%w: persist_vote: %v", ErrCallbackFailed, err)
	}
	s.votedFor = nil
	s.role = Follower
	s.leader = nil
	return nil
}

func (s *Server[C]) applyTermRule(term uint64) error {
	if term > s.currentTerm {
		return s.stepDown(term)
	}
	return nil
}

// --- Tick ---

// Tick advances the server's internal clock by elapsed. If the server is a
// follower or candidate and the randomized election timeout has elapsed, it
// starts a new election. If it is the leader and the heartbeat interval has
// elapsed, it re-broadcasts AppendEntries to every active peer. Finally it
// advances commit/apply.
func (s *Server[C]) Tick(elapsed time.Duration) error {
	s.timeSinceLastEvent += elapsed

	switch s.role {
	case Follower, Candidate:
		if !s.shutdownPending && s.timeSinceLastEvent >= s.electionTimeoutRand {
			if err := s.startElection(); err != nil {
				return err
			}
		}
	case Leader:
		if s.timeSinceLastEvent >= s.requestTimeout {
			s.timeSinceLastEvent = 0
			s.broadcastAppendEntries()
		}
	}

	return s.applyAll()
}

func (s *Server[C]) broadcastAppendEntries() {
	s.nodes.eachPeer(func(n *Node[C]) {
		if !n.Active {
			return
		}
		if err := s.sendAppendEntriesTo(n); err != nil {
			s.cb.Log(fmt.Sprintf("raft: send append_entries to %d: %v", n.ID, err))
		}
	})
}

func (s *Server[C]) sendAppendEntriesTo(n *Node[C]) error {
	prevIndex := n.NextIndex - 1
	prevTerm, ok := s.log.termAt(prevIndex)
	if !ok {
		// prevIndex has been compacted away; snapshot transfer is out of
		// scope for this engine (SPEC_FULL.md §1/§9). The host must detect
		// this (e.g. via LogPoll bookkeeping) and install a snapshot out of
		// band before the peer can catch up through AppendEntries again.
		s.cb.Log(fmt.Sprintf("raft: node %d needs a snapshot, next_index %d is before the log base", n.ID, n.NextIndex))
		return nil
	}
	entries := s.log.slice(n.NextIndex, s.cfg.MaxAppendEntriesBatch)
	msg := model.AppendEntries{
		Term:         s.currentTerm,
		LeaderID:     uint32(s.nodes.self),
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: s.commitIndex,
	}
	if err := s.cb.SendAppendEntries(n, msg); err != nil {
		return fmt.Errorf("%w: send_appendentries: %v", ErrCallbackFailed, err)
	}
	return nil
}

// --- election ---

func (s *Server[C]) startElection() error {
	self := s.nodes.selfNode()
	if self == nil || !self.Voting || !self.Active {
		return nil
	}

	s.currentTerm++
	if err := s.cb.PersistTerm(s.currentTerm); err != nil {
		return fmt.Errorf("%w: persist_term: %v", ErrCallbackFailed, err)
	}
	id := s.nodes.self
	s.votedFor = &id
	if err := s.cb.PersistVote(&id); err != nil {
		return fmt.Errorf("%w: persist_vote: %v", ErrCallbackFailed, err)
	}

	s.role = Candidate
	s.leader = nil
	s.nodes.each(func(n *Node[C]) { n.HasVoteForMe = false })
	self.HasVoteForMe = true
	s.resetElectionTimer()

	msg := model.RequestVote{
		Term:         s.currentTerm,
		CandidateID:  uint32(s.nodes.self),
		LastLogIndex: s.log.lastIndex(),
		LastLogTerm:  s.log.lastTerm(),
	}
	s.nodes.eachPeer(func(n *Node[C]) {
		if !n.Voting || !n.Active {
			return
		}
		if err := s.cb.SendRequestVote(n, msg); err != nil {
			s.cb.Log(fmt.Sprintf("raft: send request_vote to %d: %v", n.ID, err))
		}
	})

	if s.nodes.hasQuorum() {
		s.becomeLeader()
	}
	return nil
}

func (s *Server[C]) becomeLeader() {
	s.role = Leader
	id := s.nodes.self
	s.leader = &id
	last := s.log.lastIndex()
	s.nodes.each(func(n *Node[C]) {
		n.NextIndex = last + 1
		n.MatchIndex = 0
		n.HasSufficientLogs = n.ID == s.nodes.self
	})
	s.timeSinceLastEvent = 0
	s.broadcastAppendEntries()
}

// --- RequestVote ---

func (s *Server[C]) RecvRequestVote(from NodeID, msg model.RequestVote) (model.RequestVoteResponse, error) {
	if err := s.applyTermRule(msg.Term); err != nil {
		return model.RequestVoteResponse{}, err
	}

	resp := model.RequestVoteResponse{Term: s.currentTerm}
	if msg.Term < s.currentTerm || s.shutdownPending {
		resp.VoteGranted = false
		return resp, nil
	}

	votedOK := s.votedFor == nil || *s.votedFor == NodeID(msg.CandidateID)
	lastIdx, lastTerm := s.log.lastIndex(), s.log.lastTerm()
	logUpToDate := msg.LastLogTerm > lastTerm || (msg.LastLogTerm == lastTerm && msg.LastLogIndex >= lastIdx)

	if votedOK && logUpToDate {
		id := NodeID(msg.CandidateID)
		if err := s.cb.PersistVote(&id); err != nil {
			return resp, fmt.Errorf("%w: persist_vote: %v", ErrCallbackFailed, err)
		}
		s.votedFor = &id
		s.resetElectionTimer()
		resp.VoteGranted = true
	}
	return resp, nil
}

func (s *Server[C]) RecvRequestVoteResponse(from NodeID, msg model.RequestVoteResponse) error {
	if err := s.applyTermRule(msg.Term); err != nil {
		return err
	}
	if s.role != Candidate || msg.Term != s.currentTerm || !msg.VoteGranted {
		return nil
	}
	n, ok := s.nodes.get(from)
	if !ok {
		return ErrUnknownNode
	}
	n.HasVoteForMe = true
	if s.nodes.hasQuorum() {
		s.becomeLeader()
	}
	return nil
}

// --- AppendEntries ---

func (s *Server[C]) RecvAppendEntries(from NodeID, msg model.AppendEntries) (model.AppendEntriesResponse, error) {
	if err := s.applyTermRule(msg.Term); err != nil {
		return model.AppendEntriesResponse{}, err
	}

	resp := model.AppendEntriesResponse{Term: s.currentTerm}
	if msg.Term < s.currentTerm {
		resp.Success = false
		resp.CurrentIdx = s.log.lastIndex()
		return resp, nil
	}

	if msg.PrevLogIndex > 0 && !s.log.has(msg.PrevLogIndex, msg.PrevLogTerm) {
		resp.Success = false
		if msg.PrevLogIndex > s.log.lastIndex() {
			resp.CurrentIdx = s.log.lastIndex()
		} else {
			conflictTerm, _ := s.log.termAt(msg.PrevLogIndex)
			first := msg.PrevLogIndex
			for first > s.log.baseIndex {
				t, ok := s.log.termAt(first - 1)
				if !ok || t != conflictTerm {
					break
				}
				first--
			}
			resp.CurrentIdx = first
			resp.FirstIdx = first
		}
		return resp, nil
	}

	s.role = Follower
	lf := from
	s.leader = &lf
	s.resetElectionTimer()

	for k, e := range msg.Entries {
		idx := msg.PrevLogIndex + 1 + uint64(k)
		existing, exists := s.log.get(idx)
		switch {
		case exists && existing.Term == e.Term:
			continue
		default:
			if exists {
				if err := s.truncateLogFrom(idx); err != nil {
					return resp, err
				}
			}
			stamped := e
			stamped.Index = idx
			if err := appendEntry(s.log, s.cb, stamped); err != nil {
				return resp, err
			}
			if err := s.offerMembershipEffect(stamped); err != nil {
				return resp, err
			}
		}
	}

	if msg.LeaderCommit > s.commitIndex {
		newCommit := msg.LeaderCommit
		if s.log.lastIndex() < newCommit {
			newCommit = s.log.lastIndex()
		}
		s.commitIndex = newCommit
	}

	resp.Success = true
	resp.CurrentIdx = msg.PrevLogIndex + uint64(len(msg.Entries))
	return resp, nil
}

// truncateLogFrom drops the log suffix starting at i, reversing any
// offer-time membership effect for each entry popped.
func (s *Server[C]) truncateLogFrom(i uint64) error {
	return truncateFrom(s.log, s.cb, s.commitIndex, i, s.reverseMembershipOffer)
}

func (s *Server[C]) RecvAppendEntriesResponse(from NodeID, msg model.AppendEntriesResponse) error {
	if err := s.applyTermRule(msg.Term); err != nil {
		return err
	}
	n, ok := s.nodes.get(from)
	if !ok {
		return ErrUnknownNode
	}
	if s.role != Leader {
		return nil
	}

	if msg.Success {
		if msg.CurrentIdx > n.MatchIndex {
			n.MatchIndex = msg.CurrentIdx
		}
		n.NextIndex = n.MatchIndex + 1
		if n.MatchIndex >= s.log.lastIndex() && !n.HasSufficientLogs {
			n.HasSufficientLogs = true
			if err := s.cb.NodeHasSufficientLogs(n); err != nil {
				return fmt.Errorf("%w: node_has_sufficient_logs: %v", ErrCallbackFailed, err)
			}
		}
		s.tryAdvanceCommit()
		return nil
	}

	if msg.Term > s.currentTerm {
		return nil // already stepped down above
	}
	hint := msg.CurrentIdx
	if msg.FirstIdx > 0 {
		hint = msg.FirstIdx
	}
	if hint == 0 {
		if n.NextIndex > 1 {
			n.NextIndex--
		}
	} else {
		n.NextIndex = hint
	}
	if n.NextIndex < 1 {
		n.NextIndex = 1
	}
	return s.sendAppendEntriesTo(n)
}

// tryAdvanceCommit implements §4.1 "Commit advancement": the leader may
// only move commitIndex forward to an index N whose entry is of the
// current term and is replicated to a majority of voters.
func (s *Server[C]) tryAdvanceCommit() {
	if s.role != Leader {
		return
	}
	n0 := s.nodes.matchIndexMajority(s.log.lastIndex())
	for n := n0; n > s.commitIndex; n-- {
		term, ok := s.log.termAt(n)
		if !ok {
			continue
		}
		if term == s.currentTerm {
			s.commitIndex = n
			return
		}
	}
}

// --- client entries ---

// RecvEntry submits a new entry to the leader's log. Only the leader may
// accept entries; everyone else returns ErrNotLeader. The entry is stamped
// with the current term and the next index, appended locally, and
// replication to every peer is kicked off immediately (Tick will retry).
func (s *Server[C]) RecvEntry(entryType model.EntryType, id uint32, payload []byte) (EntryResponse, error) {
	if s.role != Leader {
		return EntryResponse{}, ErrNotLeader
	}
	if s.shutdownPending {
		return EntryResponse{}, ErrShutdown
	}
	if entryType.IsVotingChange() && s.votingConfigChangeInFlight {
		return EntryResponse{}, ErrOneVotingChangeOnly
	}

	entry := model.Entry{
		Index:   s.log.lastIndex() + 1,
		Term:    s.currentTerm,
		ID:      id,
		Type:    entryType,
		Payload: payload,
	}
	if err := appendEntry(s.log, s.cb, entry); err != nil {
		return EntryResponse{}, err
	}
	if err := s.offerMembershipEffect(entry); err != nil {
		return EntryResponse{}, err
	}

	s.nodes.eachPeer(func(n *Node[C]) {
		if !n.Active {
			return
		}
		if err := s.sendAppendEntriesTo(n); err != nil {
			s.cb.Log(fmt.Sprintf("raft: send append_entries to %d: %v", n.ID, err))
		}
	})

	// A single-node voting cluster commits immediately on append.
	s.tryAdvanceCommit()

	return EntryResponse{Term: entry.Term, Index: entry.Index, ID: entry.ID}, nil
}

// EntryCommitted implements msg_entry_response_committed: it reports
// whether a previously submitted entry has committed, is still pending, or
// was superseded by a later leader overwriting that index.
func (s *Server[C]) EntryCommitted(resp EntryResponse) CommitStatus {
	if resp.Index > s.commitIndex {
		if e, ok := s.log.get(resp.Index); ok && (e.Term != resp.Term || e.ID != resp.ID) {
			return Superseded
		}
		return Pending
	}
	e, ok := s.log.get(resp.Index)
	if !ok || e.Term != resp.Term || e.ID != resp.ID {
		return Superseded
	}
	return Committed
}

// --- compaction ---

// Compact discards applied log entries up to and including upTo, freeing
// the memory they held. upTo must not exceed lastAppliedIndex: compaction
// only discards entries this server has already applied, whether or not
// every peer has them. A peer whose NextIndex later falls before the new base needs a
// snapshot installed out of band (see sendAppendEntriesTo); this engine
// does not implement snapshot transfer itself.
func (s *Server[C]) Compact(upTo uint64) error {
	if upTo > s.lastAppliedIndex {
		return fmt.Errorf("%w: compact %d exceeds last applied %d", ErrInvalidIndex, upTo, s.lastAppliedIndex)
	}
	for s.log.baseIndex <= upTo && s.log.baseIndex <= s.lastAppliedIndex {
		if err := popFront(s.log, s.cb); err != nil {
			return err
		}
	}
	return nil
}

// --- apply ---

// applyAll advances lastAppliedIndex up to commitIndex, invoking ApplyLog
// for each newly committed entry in order and applying commit-time
// membership effects.
func (s *Server[C]) applyAll() error {
	for !s.shutdownPending && s.lastAppliedIndex < s.commitIndex {
		idx := s.lastAppliedIndex + 1
		e, ok := s.log.get(idx)
		if !ok {
			return fmt.Errorf("raft: missing log entry at index %d during apply", idx)
		}
		if err := s.cb.ApplyLog(e); err != nil {
			return fmt.Errorf("%w: applylog: %v", ErrCallbackFailed, err)
		}
		if err := s.applyMembershipEffect(e); err != nil {
			return err
		}
		s.lastAppliedIndex = idx
		if s.shutdownPending && e.Type == model.RemoveNode {
			break
		}
	}
	return nil
}
