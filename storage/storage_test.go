package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihavec/kirindb-raft-db/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_SaveLoadTerm(t *testing.T) {
	s := openTestStore(t)

	term, err := s.LoadTerm()
	require.NoError(t, err)
	assert.EqualValues(t, 0, term)

	require.NoError(t, s.SaveTerm(7))
	term, err = s.LoadTerm()
	require.NoError(t, err)
	assert.EqualValues(t, 7, term)
}

func Test_SaveLoadVote(t *testing.T) {
	s := openTestStore(t)

	_, has, err := s.LoadVote()
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.SaveVote(3))
	id, has, err := s.LoadVote()
	require.NoError(t, err)
	assert.True(t, has)
	assert.EqualValues(t, 3, id)

	require.NoError(t, s.ClearVote())
	_, has, err = s.LoadVote()
	require.NoError(t, err)
	assert.False(t, has)
}

func Test_AppendLoadPopPollEntries(t *testing.T) {
	s := openTestStore(t)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, s.AppendEntry(model.Entry{Index: i, Term: 1}))
	}

	entries, err := s.LoadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.EqualValues(t, 1, entries[0].Index)
	assert.EqualValues(t, 3, entries[2].Index)

	require.NoError(t, s.PopEntry(3))
	entries, err = s.LoadEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, s.PollEntries(2))
	entries, err = s.LoadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].Index)
}
