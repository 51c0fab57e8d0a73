package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors published by the relay-token
// ledger. It is a plain struct rather than package-level globals so a node
// process can run multiple independent ledgers (e.g. in tests) without
// collector registration collisions.
type Metrics struct {
	TxAdmitted      prometheus.Counter
	TxRejected      *prometheus.CounterVec
	TipCount        prometheus.Gauge
	TotalWeight     prometheus.Gauge
	RewardsDistributed prometheus.Counter
	PendingRewards  prometheus.Gauge
	PowDifficulty   prometheus.Gauge
	AnchorAttempts  *prometheus.CounterVec
}

// NewMetrics constructs and registers a fresh Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TxAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshledger_tx_admitted_total",
			Help: "Relay transactions successfully admitted into the DAG.",
		}),
		TxRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshledger_tx_rejected_total",
			Help: "Relay transactions rejected during admission, by reason.",
		}, []string{"reason"}),
		TipCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshledger_dag_tip_count",
			Help: "Current number of DAG tips.",
		}),
		TotalWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshledger_dag_total_weight_urlt",
			Help: "Sum of fee_per_hop across all stored transactions, in microRLT.",
		}),
		RewardsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshledger_rewards_distributed_urlt_total",
			Help: "Cumulative microRLT credited by the reward distributor.",
		}),
		PendingRewards: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshledger_rewards_pending",
			Help: "Number of reward awards currently queued for retry.",
		}),
		PowDifficulty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshledger_pow_difficulty",
			Help: "Current proof-of-work difficulty, in leading zero bits.",
		}),
		AnchorAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshledger_anchor_attempts_total",
			Help: "Anchor submission attempts, by resulting status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.TxAdmitted, m.TxRejected, m.TipCount, m.TotalWeight,
			m.RewardsDistributed, m.PendingRewards, m.PowDifficulty, m.AnchorAttempts)
	}
	return m
}
