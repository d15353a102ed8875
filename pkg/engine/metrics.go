// Copyright 2025 Certen Protocol

package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the aggregation engine's Prometheus instruments.
type Metrics struct {
	LeavesTotal    prometheus.Counter
	BranchesTotal  prometheus.Counter
	RootsTotal     prometheus.Counter
	BatchCloseSecs prometheus.Histogram
	MailboxDepth   prometheus.Gauge
}

// NewMetrics registers the engine's instruments with reg and returns them.
// Pass prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LeavesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_leaves_total",
			Help: "Leaf rows written by the aggregation engine.",
		}),
		BranchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_branches_total",
			Help: "Branch rows written by the aggregation engine.",
		}),
		RootsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_roots_total",
			Help: "Root rows written by the aggregation engine.",
		}),
		BatchCloseSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ledger_batch_close_seconds",
			Help: "Wall-clock time spent folding and anchoring a closed batch.",
		}),
		MailboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_mailbox_depth",
			Help: "Number of messages waiting in the engine mailbox.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.LeavesTotal, m.BranchesTotal, m.RootsTotal, m.BatchCloseSecs, m.MailboxDepth)
	}
	return m
}
