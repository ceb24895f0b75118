package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raft "github.com/ihavec/kirindb-raft-db"
	"github.com/ihavec/kirindb-raft-db/model"
)

type fakeCallbacks struct {
	raft.NopCallbacks[int]
	applyErr error
}

func (fakeCallbacks) SendRequestVote(*raft.Node[int], model.RequestVote) error { return nil }
func (fakeCallbacks) SendAppendEntries(*raft.Node[int], model.AppendEntries) error {
	return nil
}
func (f fakeCallbacks) ApplyLog(model.Entry) error            { return f.applyErr }
func (fakeCallbacks) PersistVote(*raft.NodeID) error          { return nil }
func (fakeCallbacks) PersistTerm(uint64) error                { return nil }
func (fakeCallbacks) LogOffer(model.Entry) error              { return nil }
func (fakeCallbacks) LogPop(model.Entry) error                { return nil }
func (fakeCallbacks) NewNodeData(model.MembershipPayload) int { return 0 }

func Test_Instrument_CountsApplyAndOffer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	cb := Instrument[int](fakeCallbacks{}, c)

	require.NoError(t, cb.LogOffer(model.Entry{Index: 1}))
	require.NoError(t, cb.ApplyLog(model.Entry{Index: 1}))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.LogAppends))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.EntriesApplied))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.LastAppliedIndex))
}

func Test_Instrument_RecordsCallbackErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	cb := Instrument[int](fakeCallbacks{applyErr: assert.AnError}, c)

	err := cb.ApplyLog(model.Entry{Index: 1})
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.CallbackErrors.WithLabelValues("ApplyLog")))
}

func Test_SetRole_OnlyCurrentIsOne(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	c.SetRole(raft.Leader)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.RoleGaugeVec.WithLabelValues("leader")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.RoleGaugeVec.WithLabelValues("follower")))
}
