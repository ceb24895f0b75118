package transport

import (
	"sync"
	"testing"
	"time"

	rpcxclient "github.com/smallnest/rpcx/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raft "github.com/ihavec/kirindb-raft-db"
	"github.com/ihavec/kirindb-raft-db/model"
)

type fakeInbound struct {
	voteResp model.RequestVoteResponse
	aeResp   model.AppendEntriesResponse
}

func (f *fakeInbound) RecvRequestVote(raft.NodeID, model.RequestVote) (model.RequestVoteResponse, error) {
	return f.voteResp, nil
}

func (f *fakeInbound) RecvAppendEntries(raft.NodeID, model.AppendEntries) (model.AppendEntriesResponse, error) {
	return f.aeResp, nil
}

type fakeDialer struct {
	addr string
	mu   sync.Mutex
	conn rpcxclient.XClient
}

func (d *fakeDialer) Client() (rpcxclient.XClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	disc, err := rpcxclient.NewPeer2PeerDiscovery("tcp@"+d.addr, "")
	if err != nil {
		return nil, err
	}
	d.conn = rpcxclient.NewXClient(ServiceName, rpcxclient.Failtry, rpcxclient.RandomSelect, disc, rpcxclient.DefaultOption)
	return d.conn, nil
}

type sink struct {
	mu      sync.Mutex
	votes   []model.RequestVoteResponse
	entries []model.AppendEntriesResponse
}

func (s *sink) DeliverRequestVoteResponse(_ *raft.Node[*fakeDialer], msg model.RequestVoteResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append(s.votes, msg)
}

func (s *sink) DeliverAppendEntriesResponse(_ *raft.Node[*fakeDialer], msg model.AppendEntriesResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, msg)
}

func Test_SendRequestVote_DeliversResponse(t *testing.T) {
	in := &fakeInbound{voteResp: model.RequestVoteResponse{Term: 5, VoteGranted: true}}
	addr := "127.0.0.1:19421"
	l, err := Listen(addr, in)
	require.NoError(t, err)
	defer l.Close()
	time.Sleep(50 * time.Millisecond)

	sk := &sink{}
	sender := Sender[*fakeDialer]{Sink: sk, Timeout: time.Second}
	node := &raft.Node[*fakeDialer]{ID: 2, UData: &fakeDialer{addr: addr}}

	require.NoError(t, sender.SendRequestVote(node, model.RequestVote{Term: 5, CandidateID: 1}))

	require.Eventually(t, func() bool {
		sk.mu.Lock()
		defer sk.mu.Unlock()
		return len(sk.votes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, sk.votes[0].VoteGranted)
	assert.EqualValues(t, 5, sk.votes[0].Term)
}
