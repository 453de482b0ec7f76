// Package metrics registers the Prometheus instrumentation surface for
// the consensus core (ambient stack, SPEC_FULL.md §1): per-stage
// validation durations, mempool size, and UTXO set size. Grounded on
// teranode's services/blockvalidation/metrics.go and
// services/validator/metrics.go (one prometheus.Registerer, gauges and
// histograms registered at package init, labels by stage name).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector this module exposes. Construct one with
// New and register it against whatever prometheus.Registerer the host
// process uses.
type Metrics struct {
	StageDuration     *prometheus.HistogramVec
	MempoolSize       prometheus.Gauge
	UTXOSetSize       prometheus.Gauge
	BlocksApplied     prometheus.Counter
	BlocksUnwound     prometheus.Counter
	TargetChainReorgs prometheus.Counter
}

// New constructs the collector set, unregistered.
func New(namespace string) *Metrics {
	return &Metrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "block_validation",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each block validator pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "size",
			Help:      "Number of transactions currently held in the mempool.",
		}),
		UTXOSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "utxo",
			Name:      "set_size",
			Help:      "Number of unspent transaction records currently tracked.",
		}),
		BlocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chainstate",
			Name:      "blocks_applied_total",
			Help:      "Total number of blocks applied to the UTXO set.",
		}),
		BlocksUnwound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chainstate",
			Name:      "blocks_unwound_total",
			Help:      "Total number of blocks unwound from the UTXO set during reorgs.",
		}),
		TargetChainReorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "target_chain_changes_total",
			Help:      "Total number of times the selected target chain tip changed.",
		}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate-registration error (the teacher's own init-time pattern).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.StageDuration,
		m.MempoolSize,
		m.UTXOSetSize,
		m.BlocksApplied,
		m.BlocksUnwound,
		m.TargetChainReorgs,
	)
}
