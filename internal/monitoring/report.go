package monitoring

import (
	"time"
)

// Report bundles the monitoring state over a trailing window for operator
// review.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Window      time.Duration      `json:"window"`
	Predictions PredictionStats    `json:"predictions"`
	Evaluations []EvaluationRecord `json:"evaluations"`
	Health      HealthReport       `json:"health"`
}

// BuildReport assembles prediction statistics, the recent evaluation history
// and a fresh health check.
func BuildReport(window time.Duration, preds *PredictionLogger, perf *PerformanceMonitor, health *HealthChecker) Report {
	report := Report{
		GeneratedAt: time.Now().UTC(),
		Window:      window,
		Predictions: preds.Stats(window),
		Health:      health.Check(),
	}
	if history, err := perf.History(5); err == nil {
		report.Evaluations = history
	}
	return report
}
