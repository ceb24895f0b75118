package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ReadConfig(t *testing.T) {
	file := "../testdata/test_readConfig.yaml"
	c, err := ReadConfig(file)
	require.NoError(t, err)
	assert.Len(t, c.Nodes, 2)

	n1 := c.Nodes[0]
	assert.EqualValues(t, 1, n1.ID)
	assert.Equal(t, "123", n1.Address)
	assert.Equal(t, "14", n1.Port)
	assert.True(t, n1.Voting)

	n2 := c.Nodes[1]
	assert.EqualValues(t, 2, n2.ID)
	assert.Equal(t, "123", n2.Address)
	assert.Equal(t, "15", n2.Port)

	assert.Equal(t, DefaultElectionTimeoutMs, c.ElectionTimeoutMs)
	assert.Equal(t, DefaultRequestTimeoutMs, c.RequestTimeoutMs)
	assert.Equal(t, DefaultMaxAppendEntriesBatch, c.MaxAppendEntriesBatch)
}

func Test_ReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig("../testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func Test_Validate_RejectsBadTimeouts(t *testing.T) {
	c := &Config{
		SelfID: 1,
		Dir:    "/tmp/raft",
		Nodes:  []Node{{ID: 1, Address: "127.0.0.1", Port: "4000"}},
	}
	c.ElectionTimeoutMs = 100
	c.RequestTimeoutMs = 100
	assert.Error(t, c.Validate())
}

func Test_Validate_RejectsDuplicateIDs(t *testing.T) {
	c := &Config{
		SelfID: 1,
		Dir:    "/tmp/raft",
		Nodes: []Node{
			{ID: 1, Address: "127.0.0.1", Port: "4000"},
			{ID: 1, Address: "127.0.0.1", Port: "4001"},
		},
	}
	c.ApplyDefaults()
	assert.Error(t, c.Validate())
}
