package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the manager's Prometheus collectors.
type Metrics struct {
	ModelsLoaded prometheus.Gauge
	Inferences   *prometheus.CounterVec
	InferLatency *prometheus.HistogramVec
	LoadFailures prometheus.Counter
}

// NewMetrics builds the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quiver",
			Name:      "models_loaded",
			Help:      "Number of models currently resident.",
		}),
		Inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiver",
			Name:      "inferences_total",
			Help:      "Inference calls by model and outcome.",
		}, []string{"model", "status"}),
		InferLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quiver",
			Name:      "inference_duration_seconds",
			Help:      "Inference wall time by model.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"model"}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiver",
			Name:      "model_load_failures_total",
			Help:      "Model load attempts that failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ModelsLoaded, m.Inferences, m.InferLatency, m.LoadFailures)
	}
	return m
}
