package core

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors this package exposes. Registration
// happens once, lazily, guarded by metricsOnce — the one package-level
// mutable side effect the concurrency model (spec.md §5) allows, and it
// matches Prometheus's own "register once with the default registry" idiom
// rather than introducing a bespoke lock.
type Metrics struct {
	EpochsProcessed  prometheus.Counter
	EpochsInvalid    prometheus.Counter
	SatellitesUsed   prometheus.Gauge
	SatellitesReject prometheus.Counter
	AmbiguitiesFixed prometheus.Counter
	SingularMatrix   prometheus.Counter
	PostfitSigma     prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// GetMetrics returns the lazily-registered package metrics, registering them
// with the default Prometheus registry on first call.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		m := &Metrics{
			EpochsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ppp", Name: "epochs_processed_total",
				Help: "Number of epochs that produced a valid solution.",
			}),
			EpochsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ppp", Name: "epochs_invalid_total",
				Help: "Number of epochs rejected (singular matrix or insufficient satellites).",
			}),
			SatellitesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ppp", Name: "satellites_used",
				Help: "Satellites used in the most recent epoch's solution.",
			}),
			SatellitesReject: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ppp", Name: "satellites_rejected_total",
				Help: "Satellites dropped by outlier rejection across all epochs.",
			}),
			AmbiguitiesFixed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ppp", Name: "ambiguities_fixed_total",
				Help: "Number of ambiguities fixed by the LAMBDA resolver.",
			}),
			SingularMatrix: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ppp", Name: "singular_matrix_total",
				Help: "Cholesky failures during predict/update or DD-ambiguity inversion.",
			}),
			PostfitSigma: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ppp", Name: "postfit_sigma",
				Help: "sqrt(r'Wr) of the most recent epoch's postfit residuals.",
			}),
		}
		prometheus.MustRegister(
			m.EpochsProcessed, m.EpochsInvalid, m.SatellitesUsed,
			m.SatellitesReject, m.AmbiguitiesFixed, m.SingularMatrix, m.PostfitSigma,
		)
		metrics = m
	})
	return metrics
}
