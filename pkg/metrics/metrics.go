// Package metrics exposes prometheus collectors for the serving and
// monitoring paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups every exported metric of the pipeline.
type Collectors struct {
	PredictionsTotal  prometheus.Counter
	PredictionLatency prometheus.Histogram
	DriftChecksTotal  prometheus.Counter
	DriftedFeatures   prometheus.Gauge
	EvalR2            prometheus.Gauge
	EvalRMSE          prometheus.Gauge
	EvalMAE           prometheus.Gauge
}

// New builds and registers the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		PredictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kpiengine",
			Name:      "predictions_total",
			Help:      "Total predictions served.",
		}),
		PredictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kpiengine",
			Name:      "prediction_latency_seconds",
			Help:      "Prediction response time.",
			Buckets:   prometheus.DefBuckets,
		}),
		DriftChecksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kpiengine",
			Name:      "drift_checks_total",
			Help:      "Drift detections executed.",
		}),
		DriftedFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kpiengine",
			Name:      "drifted_features",
			Help:      "Feature count flagged as drifted in the last check.",
		}),
		EvalR2: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kpiengine",
			Name:      "evaluation_r2",
			Help:      "R2 of the latest evaluation.",
		}),
		EvalRMSE: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kpiengine",
			Name:      "evaluation_rmse",
			Help:      "RMSE of the latest evaluation.",
		}),
		EvalMAE: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kpiengine",
			Name:      "evaluation_mae",
			Help:      "MAE of the latest evaluation.",
		}),
	}
	reg.MustRegister(
		c.PredictionsTotal,
		c.PredictionLatency,
		c.DriftChecksTotal,
		c.DriftedFeatures,
		c.EvalR2,
		c.EvalRMSE,
		c.EvalMAE,
	)
	return c
}
