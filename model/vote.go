package model

// RequestVote is sent by a candidate to gather votes.
type RequestVote struct {
	Term         uint64 `msgpack:"term"`
	CandidateID  uint32 `msgpack:"candidate_id"`
	LastLogIndex uint64 `msgpack:"last_log_index"`
	LastLogTerm  uint64 `msgpack:"last_log_term"`
}

// RequestVoteResponse is the receiver's reply to RequestVote.
type RequestVoteResponse struct {
	Term        uint64 `msgpack:"term"`
	VoteGranted bool   `msgpack:"vote_granted"`
}
