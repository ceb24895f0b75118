package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihavec/kirindb-raft-db/model"
	"github.com/ihavec/kirindb-raft-db/rafttest"
)

// S1: a three-node cluster with no prior leader elects exactly one leader,
// and every other node becomes its follower.
func Test_Scenario_ThreeNodeElection(t *testing.T) {
	cl := rafttest.NewCluster([]uint32{1, 2, 3})

	leader, err := cl.ElectLeader(20)
	require.NoError(t, err)

	followers := 0
	for _, id := range []uint32{1, 2, 3} {
		s := cl.Servers[NodeID(id)]
		if s == leader {
			continue
		}
		if s.Role() == Follower {
			followers++
		}
	}
	assert.Equal(t, 2, followers)
	assert.EqualValues(t, leader.CurrentTerm(), cl.Servers[1].CurrentTerm())
}

// S2: a client entry submitted to the leader of a three-node cluster
// eventually commits and is applied on every node.
func Test_Scenario_EntryCommitsAndApplies(t *testing.T) {
	cl := rafttest.NewCluster([]uint32{1, 2, 3})
	leader, err := cl.ElectLeader(20)
	require.NoError(t, err)

	resp, err := leader.RecvEntry(model.Normal, 1, []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, cl.Drain())
	for i := 0; i < 10 && leader.EntryCommitted(resp) != Committed; i++ {
		require.NoError(t, cl.Tick(10 * time.Millisecond))
	}
	assert.Equal(t, Committed, leader.EntryCommitted(resp))

	// Give followers a few more heartbeats to learn the advanced commit
	// index and apply it themselves.
	for i := 0; i < 5; i++ {
		require.NoError(t, cl.Tick(10*time.Millisecond))
	}

	for _, id := range []uint32{1, 2, 3} {
		cb := cl.CBs[NodeID(id)]
		require.Len(t, cb.Applied, 1)
		assert.Equal(t, []byte("hello"), cb.Applied[0].Payload)
	}
}

// S6: isolating the leader causes the remaining majority to elect a new
// leader at a higher term; when the old leader rejoins and hears the new
// term, it steps down to follower.
func Test_Scenario_LeaderIsolationAndRejoin(t *testing.T) {
	cl := rafttest.NewCluster([]uint32{1, 2, 3})
	oldLeader, err := cl.ElectLeader(20)
	require.NoError(t, err)
	oldLeaderID := oldLeader.SelfID()

	cl.Net.Partition(oldLeaderID)

	var newLeader *Server[int]
	for i := 0; i < 30; i++ {
		require.NoError(t, cl.Tick(30*time.Millisecond))
		if s, ok := cl.Leader(); ok && s.SelfID() != oldLeaderID {
			newLeader = s
			break
		}
	}
	require.NotNil(t, newLeader, "majority partition should elect a new leader")
	assert.Greater(t, newLeader.CurrentTerm(), oldLeader.CurrentTerm())

	cl.Net.Heal(oldLeaderID)
	for i := 0; i < 10; i++ {
		require.NoError(t, cl.Tick(10 * time.Millisecond))
	}
	assert.Equal(t, Follower, oldLeader.Role())
	assert.Equal(t, newLeader.CurrentTerm(), oldLeader.CurrentTerm())
}

func Test_NewServer_StartsAsFollowerAtTermZero(t *testing.T) {
	net := rafttest.NewNetwork()
	cb := rafttest.NewCallbacks(1, net)
	s := NewServer[int](Config{SelfID: 1}, cb)

	assert.Equal(t, Follower, s.Role())
	assert.EqualValues(t, 0, s.CurrentTerm())
	assert.EqualValues(t, 0, s.CommitIndex())
	assert.EqualValues(t, 0, s.LastLogIndex())
}

func Test_AddNode_RejectsDuplicate(t *testing.T) {
	net := rafttest.NewNetwork()
	cb := rafttest.NewCallbacks(1, net)
	s := NewServer[int](Config{SelfID: 1}, cb)

	_, err := s.AddNode(2, true, 0)
	require.NoError(t, err)
	_, err = s.AddNode(2, true, 0)
	assert.ErrorIs(t, err, ErrNodeExists)
}

func Test_RecvEntry_RejectsWhenNotLeader(t *testing.T) {
	net := rafttest.NewNetwork()
	cb := rafttest.NewCallbacks(1, net)
	s := NewServer[int](Config{SelfID: 1}, cb)

	_, err := s.RecvEntry(model.Normal, 1, nil)
	assert.ErrorIs(t, err, ErrNotLeader)
}
