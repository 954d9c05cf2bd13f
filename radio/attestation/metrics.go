package attestation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	localAttestationCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_local_attestations",
			Help: "The number of local attestations currently stored.",
		},
	)
	comparisonResultCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_comparison_results_total",
			Help: "Count of comparison verdicts by result type.",
		},
		[]string{"result"},
	)
)

// RecordResult counts a resolved comparison verdict.
func RecordResult(r ComparisonResult) {
	comparisonResultCounter.WithLabelValues(string(r.Type)).Inc()
}
