package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihavec/kirindb-raft-db/model"
	"github.com/ihavec/kirindb-raft-db/rafttest"
)

func newTestServer(t *testing.T, id uint32) (*Server[int], *rafttest.Callbacks) {
	t.Helper()
	net := rafttest.NewNetwork()
	cb := rafttest.NewCallbacks(NodeID(id), net)
	return NewServer[int](Config{SelfID: id}, cb), cb
}

func Test_OfferMembershipEffect_AddNonvotingNodeIsImmediatelyVisible(t *testing.T) {
	s, cb := newTestServer(t, 1)
	payload, err := encodeMembershipPayload(2, "127.0.0.1:9000")
	require.NoError(t, err)

	entry := model.Entry{Index: 1, Term: 1, Type: model.AddNonvotingNode, Payload: payload}
	require.NoError(t, s.offerMembershipEffect(entry))

	n, ok := s.nodes.get(2)
	require.True(t, ok)
	assert.False(t, n.Voting)
	assert.True(t, n.Active)
	assert.Equal(t, 2, n.UData, "UData must come from NewNodeData(payload), not a zero value")
	require.Len(t, cb.Membership, 1)
	assert.Equal(t, "added:2", cb.Membership[0])
}

func Test_OfferMembershipEffect_VotingChangeSetsInFlightOnly(t *testing.T) {
	s, _ := newTestServer(t, 1)
	payload, err := encodeMembershipPayload(2, "")
	require.NoError(t, err)

	entry := model.Entry{Index: 1, Term: 1, Type: model.AddNode, Payload: payload}
	require.NoError(t, s.offerMembershipEffect(entry))

	_, exists := s.nodes.get(2)
	assert.False(t, exists, "voting changes must not touch the table at offer time")
	assert.True(t, s.votingConfigChangeInFlight)
}

func Test_ReverseMembershipOffer_UndoesNonvotingAdd(t *testing.T) {
	s, cb := newTestServer(t, 1)
	payload, err := encodeMembershipPayload(2, "addr")
	require.NoError(t, err)
	entry := model.Entry{Index: 1, Term: 1, Type: model.AddNonvotingNode, Payload: payload}
	require.NoError(t, s.offerMembershipEffect(entry))

	require.NoError(t, s.reverseMembershipOffer(entry))

	_, exists := s.nodes.get(2)
	assert.False(t, exists)
	assert.Equal(t, "removed:2", cb.Membership[len(cb.Membership)-1])
}

func Test_ReverseMembershipOffer_ClearsInFlightForVotingChange(t *testing.T) {
	s, _ := newTestServer(t, 1)
	payload, err := encodeMembershipPayload(2, "")
	require.NoError(t, err)
	entry := model.Entry{Index: 1, Term: 1, Type: model.RemoveNode, Payload: payload}
	require.NoError(t, s.offerMembershipEffect(entry))
	require.True(t, s.votingConfigChangeInFlight)

	require.NoError(t, s.reverseMembershipOffer(entry))
	assert.False(t, s.votingConfigChangeInFlight)
}

func Test_ApplyMembershipEffect_AddNodePromotesOrCreatesVoting(t *testing.T) {
	s, _ := newTestServer(t, 1)
	payload, err := encodeMembershipPayload(2, "addr")
	require.NoError(t, err)

	entry := model.Entry{Index: 1, Term: 1, Type: model.AddNode, Payload: payload}
	require.NoError(t, s.applyMembershipEffect(entry))

	n, ok := s.nodes.get(2)
	require.True(t, ok)
	assert.True(t, n.Voting)
	assert.Equal(t, 2, n.UData, "a node not already in the table must get UData from NewNodeData(payload)")
	assert.False(t, s.votingConfigChangeInFlight)
}

func Test_ApplyMembershipEffect_RemoveSelfSetsShutdownPending(t *testing.T) {
	s, _ := newTestServer(t, 1)
	payload, err := encodeMembershipPayload(1, "")
	require.NoError(t, err)

	entry := model.Entry{Index: 1, Term: 1, Type: model.RemoveNode, Payload: payload}
	require.NoError(t, s.applyMembershipEffect(entry))

	assert.True(t, s.shutdownPending)
}

// S5: the leader adds a non-voting node, which is in its node table as soon
// as the entry is offered; the host (simulated here by directly calling
// RecvEntry with AddNode) then submits the promotion, and a second voting
// change is refused while that one is still uncommitted.
func Test_Scenario_MembershipAddAndPromote(t *testing.T) {
	cl := rafttest.NewCluster([]uint32{1, 2, 3})
	leader, err := cl.ElectLeader(20)
	require.NoError(t, err)

	payload, err := encodeMembershipPayload(4, "127.0.0.1:9004")
	require.NoError(t, err)
	_, err = leader.RecvEntry(model.AddNonvotingNode, 1, payload)
	require.NoError(t, err)

	_, ok := leader.Node(4)
	require.True(t, ok, "offer-time effect should make node 4 visible immediately")

	_, err = leader.RecvEntry(model.AddNode, 2, payload)
	require.NoError(t, err)
	_, err = leader.RecvEntry(model.AddNode, 3, payload)
	assert.ErrorIs(t, err, ErrOneVotingChangeOnly)
}
