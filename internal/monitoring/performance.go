package monitoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wareflow/kpiengine/internal/config"
	"github.com/wareflow/kpiengine/pkg/metrics"
)

// EvaluationRecord is one timestamped model evaluation with any threshold
// breaches as human-readable alerts.
type EvaluationRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Dataset   string    `json:"dataset"`
	R2        float64   `json:"r2_score"`
	RMSE      float64   `json:"rmse"`
	MAE       float64   `json:"mae"`
	Samples   int       `json:"samples"`
	Alerts    []string  `json:"alerts"`
}

// EvaluationStore persists the rolling evaluation history.
type EvaluationStore interface {
	// AppendEvaluation appends rec and evicts the oldest records beyond cap.
	AppendEvaluation(rec EvaluationRecord, cap int) error
	// RecentEvaluations returns up to n records, most recent last.
	RecentEvaluations(n int) ([]EvaluationRecord, error)
}

// PerformanceMonitor computes accuracy metrics, compares them against the
// configured thresholds and keeps the capped evaluation history.
type PerformanceMonitor struct {
	cfg        config.MonitoringConfig
	store      EvaluationStore
	collectors *metrics.Collectors
	logger     *zap.Logger
}

// NewPerformanceMonitor wires a monitor. collectors may be nil when no
// metrics registry is configured.
func NewPerformanceMonitor(cfg config.MonitoringConfig, store EvaluationStore, collectors *metrics.Collectors, logger *zap.Logger) *PerformanceMonitor {
	return &PerformanceMonitor{cfg: cfg, store: store, collectors: collectors, logger: logger}
}

// Evaluate scores predictions against targets, derives threshold alerts and
// appends the record to the persisted history. Metric computation errors are
// surfaced; history persistence failures are logged and absorbed so an
// evaluation never takes down the caller.
func (m *PerformanceMonitor) Evaluate(yTrue, yPred []float64, dataset string) (EvaluationRecord, error) {
	r2, err := RSquared(yTrue, yPred)
	if err != nil {
		return EvaluationRecord{}, err
	}
	rmse, err := RMSE(yTrue, yPred)
	if err != nil {
		return EvaluationRecord{}, err
	}
	mae, err := MAE(yTrue, yPred)
	if err != nil {
		return EvaluationRecord{}, err
	}

	rec := EvaluationRecord{
		Timestamp: time.Now().UTC(),
		Dataset:   dataset,
		R2:        r2,
		RMSE:      rmse,
		MAE:       mae,
		Samples:   len(yTrue),
	}

	if r2 < m.cfg.R2Min {
		rec.Alerts = append(rec.Alerts,
			fmt.Sprintf("R2 dropped to %.4f (threshold: %.2f)", r2, m.cfg.R2Min))
	}
	if rmse > m.cfg.RMSEMax {
		rec.Alerts = append(rec.Alerts,
			fmt.Sprintf("RMSE increased to %.6f (threshold: %.6f)", rmse, m.cfg.RMSEMax))
	}
	if mae > m.cfg.MAEMax {
		rec.Alerts = append(rec.Alerts,
			fmt.Sprintf("MAE increased to %.6f (threshold: %.6f)", mae, m.cfg.MAEMax))
	}

	if len(rec.Alerts) > 0 {
		m.logger.Warn("performance alerts detected",
			zap.String("dataset", dataset),
			zap.Strings("alerts", rec.Alerts))
	} else {
		m.logger.Info("model performance evaluated",
			zap.String("dataset", dataset),
			zap.Float64("r2", r2),
			zap.Float64("rmse", rmse),
			zap.Float64("mae", mae))
	}

	if m.collectors != nil {
		m.collectors.EvalR2.Set(r2)
		m.collectors.EvalRMSE.Set(rmse)
		m.collectors.EvalMAE.Set(mae)
	}

	if m.store != nil {
		if err := m.store.AppendEvaluation(rec, m.cfg.HistoryCap); err != nil {
			m.logger.Error("persist evaluation failed", zap.Error(err))
		}
	}
	return rec, nil
}

// History returns up to n evaluation records, most recent last.
func (m *PerformanceMonitor) History(n int) ([]EvaluationRecord, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.RecentEvaluations(n)
}
