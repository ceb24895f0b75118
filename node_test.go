package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Majority(t *testing.T) {
	assert.Equal(t, 1, majority(1))
	assert.Equal(t, 2, majority(2))
	assert.Equal(t, 2, majority(3))
	assert.Equal(t, 3, majority(4))
	assert.Equal(t, 3, majority(5))
}

func Test_NodeTable_QuorumAcrossVotes(t *testing.T) {
	tbl := newNodeTable[int](1)
	tbl.add(1, true, 0)
	tbl.add(2, true, 0)
	tbl.add(3, true, 0)

	assert.False(t, tbl.hasQuorum()) // only self counts so far
	n2, _ := tbl.get(2)
	n2.HasVoteForMe = true
	assert.True(t, tbl.hasQuorum())
}

func Test_NodeTable_NonVotingNodesExcludedFromQuorum(t *testing.T) {
	tbl := newNodeTable[int](1)
	tbl.add(1, true, 0)
	tbl.add(2, false, 0) // non-voting, shouldn't count toward majority

	assert.True(t, tbl.hasQuorum()) // majority(1 voter) == 1, self alone suffices
}

func Test_NodeTable_MatchIndexMajority(t *testing.T) {
	tbl := newNodeTable[int](1)
	tbl.add(1, true, 0)
	n2 := tbl.add(2, true, 0)
	n3 := tbl.add(3, true, 0)
	n2.MatchIndex = 5
	n3.MatchIndex = 3

	// self (selfMatch=10), 5, 3 -> sorted desc [10,5,3], majority(3)=2 -> index 1 -> 5
	assert.EqualValues(t, 5, tbl.matchIndexMajority(10))
}

func Test_NodeTable_RemoveDropsFromOrderAndMap(t *testing.T) {
	tbl := newNodeTable[int](1)
	tbl.add(1, true, 0)
	tbl.add(2, true, 0)
	tbl.remove(2)

	_, ok := tbl.get(2)
	assert.False(t, ok)
	assert.Len(t, tbl.order, 1)
}

func Test_NodeTable_EachPeerSkipsSelf(t *testing.T) {
	tbl := newNodeTable[int](1)
	tbl.add(1, true, 0)
	tbl.add(2, true, 0)
	tbl.add(3, true, 0)

	var seen []NodeID
	tbl.eachPeer(func(n *Node[int]) { seen = append(seen, n.ID) })
	assert.Equal(t, []NodeID{2, 3}, seen)
}
