// Package metrics wraps a raft.Callbacks implementation with
// github.com/prometheus/client_golang instrumentation, using the
// namespace/subsystem Gauge/GaugeVec/Counter/CounterVec shapes common for
// monitoring a long-running server. It records no latency histograms.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	raft "github.com/ihavec/kirindb-raft-db"
	"github.com/ihavec/kirindb-raft-db/model"
)

const (
	namespace = "kirindb"
	subsystem = "raft"
)

// Collectors are the metrics Instrument registers and updates. Register
// them with a prometheus.Registerer once per process (they are shared
// across every Instrumented Callbacks since there is one raft group per
// process in the reference host).
type Collectors struct {
	Term              prometheus.Gauge
	CommitIndex       prometheus.Gauge
	LastAppliedIndex  prometheus.Gauge
	RoleGaugeVec      *prometheus.GaugeVec
	EntriesApplied    prometheus.Counter
	LogAppends        prometheus.Counter
	LogPops           prometheus.Counter
	CallbackErrors    *prometheus.CounterVec
	AppendEntriesSent prometheus.Counter
	RequestVoteSent   prometheus.Counter
	MembershipEvents  *prometheus.CounterVec
}

// NewCollectors creates and registers a Collectors set. reg may be nil, in
// which case prometheus.DefaultRegisterer is used.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		Term: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "term", Help: "current raft term",
		}),
		CommitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "commit_index", Help: "highest committed log index",
		}),
		LastAppliedIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "last_applied_index", Help: "highest applied log index",
		}),
		RoleGaugeVec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "role", Help: "1 for the currently held role, 0 otherwise",
		}, []string{"role"}),
		EntriesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "entries_applied_total", Help: "entries applied to the state machine",
		}),
		LogAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "log_appends_total", Help: "log entries durably appended",
		}),
		LogPops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "log_pops_total", Help: "log entries discarded due to truncation",
		}),
		CallbackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "callback_errors_total", Help: "errors returned by a wrapped callback, by method",
		}, []string{"method"}),
		AppendEntriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "append_entries_sent_total", Help: "AppendEntries RPCs dispatched",
		}),
		RequestVoteSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "request_vote_sent_total", Help: "RequestVote RPCs dispatched",
		}),
		MembershipEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "membership_events_total", Help: "membership table transitions, by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		c.Term, c.CommitIndex, c.LastAppliedIndex, c.RoleGaugeVec,
		c.EntriesApplied, c.LogAppends, c.LogPops, c.CallbackErrors,
		c.AppendEntriesSent, c.RequestVoteSent, c.MembershipEvents,
	)
	return c
}

// SetRole zeroes every role gauge except the current one.
func (c *Collectors) SetRole(r raft.Role) {
	for _, name := range []string{"follower", "candidate", "leader"} {
		v := 0.0
		if name == r.String() {
			v = 1.0
		}
		c.RoleGaugeVec.WithLabelValues(name).Set(v)
	}
}

// instrumented wraps a raft.Callbacks[C], recording metrics around each
// call and forwarding to the wrapped implementation unchanged.
type instrumented[C any] struct {
	raft.Callbacks[C]
	c *Collectors
}

// Instrument wraps cb so that the send, ApplyLog, PersistTerm, LogOffer,
// LogPop and MembershipEvent calls update c's collectors around delegating
// to cb; every other method passes straight through to cb. CommitIndex and
// RoleGaugeVec are not touched here; the host sets them (see SetRole).
func Instrument[C any](cb raft.Callbacks[C], c *Collectors) raft.Callbacks[C] {
	return &instrumented[C]{Callbacks: cb, c: c}
}

func (i *instrumented[C]) SendRequestVote(node *raft.Node[C], msg model.RequestVote) error {
	i.c.RequestVoteSent.Inc()
	err := i.Callbacks.SendRequestVote(node, msg)
	if err != nil {
		i.c.CallbackErrors.WithLabelValues("SendRequestVote").Inc()
	}
	return err
}

func (i *instrumented[C]) SendAppendEntries(node *raft.Node[C], msg model.AppendEntries) error {
	i.c.AppendEntriesSent.Inc()
	err := i.Callbacks.SendAppendEntries(node, msg)
	if err != nil {
		i.c.CallbackErrors.WithLabelValues("SendAppendEntries").Inc()
	}
	return err
}

func (i *instrumented[C]) ApplyLog(entry model.Entry) error {
	err := i.Callbacks.ApplyLog(entry)
	if err != nil {
		i.c.CallbackErrors.WithLabelValues("ApplyLog").Inc()
		return err
	}
	i.c.EntriesApplied.Inc()
	i.c.LastAppliedIndex.Set(float64(entry.Index))
	return nil
}

func (i *instrumented[C]) PersistTerm(term uint64) error {
	err := i.Callbacks.PersistTerm(term)
	if err != nil {
		i.c.CallbackErrors.WithLabelValues("PersistTerm").Inc()
		return err
	}
	i.c.Term.Set(float64(term))
	return nil
}

func (i *instrumented[C]) LogOffer(entry model.Entry) error {
	err := i.Callbacks.LogOffer(entry)
	if err != nil {
		i.c.CallbackErrors.WithLabelValues("LogOffer").Inc()
		return err
	}
	i.c.LogAppends.Inc()
	return nil
}

func (i *instrumented[C]) LogPop(entry model.Entry) error {
	err := i.Callbacks.LogPop(entry)
	if err != nil {
		i.c.CallbackErrors.WithLabelValues("LogPop").Inc()
		return err
	}
	i.c.LogPops.Inc()
	return nil
}

func (i *instrumented[C]) MembershipEvent(node *raft.Node[C], kind raft.MembershipEventKind) {
	i.c.MembershipEvents.WithLabelValues(kind.String()).Inc()
	i.Callbacks.MembershipEvent(node, kind)
}
