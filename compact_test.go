package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihavec/kirindb-raft-db/model"
	"github.com/ihavec/kirindb-raft-db/rafttest"
)

func Test_Compact_RejectsBeyondLastApplied(t *testing.T) {
	net := rafttest.NewNetwork()
	cb := rafttest.NewCallbacks(1, net)
	s := NewServer[int](Config{SelfID: 1}, cb)

	err := s.Compact(5)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func Test_Compact_DropsAppliedPrefix(t *testing.T) {
	net := rafttest.NewNetwork()
	cb := rafttest.NewCallbacks(1, net)
	s := NewServer[int](Config{SelfID: 1}, cb)
	_, err := s.AddNode(1, true, 0)
	require.NoError(t, err)
	require.NoError(t, s.startElection())
	require.Equal(t, Leader, s.Role())

	for i := uint64(1); i <= 3; i++ {
		_, err := s.RecvEntry(model.Normal, uint32(i), nil)
		require.NoError(t, err)
	}
	require.NoError(t, s.applyAll())
	require.EqualValues(t, 3, s.LastAppliedIndex())

	require.NoError(t, s.Compact(2))
	assert.EqualValues(t, 3, s.log.baseIndex)

	_, ok := s.log.get(1)
	assert.False(t, ok)
	_, ok = s.log.get(3)
	assert.True(t, ok)
}
