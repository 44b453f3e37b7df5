package monitoring

import (
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/wareflow/kpiengine/pkg/metrics"
)

// PredictionEntry is one served prediction in the append-only audit log.
type PredictionEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	ItemID         string    `json:"item_id"`
	Category       string    `json:"category"`
	StockLevel     float64   `json:"stock_level"`
	PredictedKPI   float64   `json:"predicted_kpi"`
	Confidence     string    `json:"confidence"`
	ResponseTimeMS float64   `json:"response_time_ms"`
	ModelVersion   string    `json:"model_version"`
	FeaturesUsed   int       `json:"features_used"`
}

// PredictionStore persists the append-only prediction log.
type PredictionStore interface {
	AppendPrediction(entry PredictionEntry) error
	// RecentPredictions returns entries with timestamps at or after since,
	// oldest first.
	RecentPredictions(since time.Time) ([]PredictionEntry, error)
}

// PredictionStats summarizes recent prediction activity.
type PredictionStats struct {
	Total             int            `json:"total_predictions"`
	AvgKPI            float64        `json:"avg_kpi"`
	StdKPI            float64        `json:"std_kpi"`
	MinKPI            float64        `json:"min_kpi"`
	MaxKPI            float64        `json:"max_kpi"`
	AvgResponseTimeMS float64        `json:"avg_response_time_ms"`
	MaxResponseTimeMS float64        `json:"max_response_time_ms"`
	PerCategory       map[string]int `json:"predictions_per_category"`
	Window            time.Duration  `json:"-"`
}

// PredictionLogger records served predictions for audit. Log failures are
// absorbed: audit logging must never fail a prediction.
type PredictionLogger struct {
	store      PredictionStore
	collectors *metrics.Collectors
	logger     *zap.Logger
}

// NewPredictionLogger wires the audit logger. collectors may be nil.
func NewPredictionLogger(store PredictionStore, collectors *metrics.Collectors, logger *zap.Logger) *PredictionLogger {
	return &PredictionLogger{store: store, collectors: collectors, logger: logger}
}

// Log appends one entry to the audit log.
func (l *PredictionLogger) Log(entry PredictionEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if l.collectors != nil {
		l.collectors.PredictionsTotal.Inc()
		l.collectors.PredictionLatency.Observe(entry.ResponseTimeMS / 1000)
	}
	if l.store == nil {
		return
	}
	if err := l.store.AppendPrediction(entry); err != nil {
		l.logger.Error("log prediction failed", zap.Error(err))
		return
	}
	l.logger.Debug("prediction logged",
		zap.String("item_id", entry.ItemID),
		zap.Float64("predicted_kpi", entry.PredictedKPI),
		zap.Float64("response_time_ms", entry.ResponseTimeMS))
}

// Recent returns predictions from the trailing window, oldest first. Store
// failures yield an empty slice, not an error.
func (l *PredictionLogger) Recent(window time.Duration) []PredictionEntry {
	if l.store == nil {
		return nil
	}
	entries, err := l.store.RecentPredictions(time.Now().UTC().Add(-window))
	if err != nil {
		l.logger.Error("read prediction log failed", zap.Error(err))
		return nil
	}
	return entries
}

// Stats aggregates the trailing window of the prediction log.
func (l *PredictionLogger) Stats(window time.Duration) PredictionStats {
	entries := l.Recent(window)
	stats := PredictionStats{PerCategory: make(map[string]int), Window: window}
	if len(entries) == 0 {
		return stats
	}

	kpis := make([]float64, len(entries))
	stats.MinKPI = entries[0].PredictedKPI
	stats.MaxKPI = entries[0].PredictedKPI
	var sumResponse float64
	for i, e := range entries {
		kpis[i] = e.PredictedKPI
		if e.PredictedKPI < stats.MinKPI {
			stats.MinKPI = e.PredictedKPI
		}
		if e.PredictedKPI > stats.MaxKPI {
			stats.MaxKPI = e.PredictedKPI
		}
		sumResponse += e.ResponseTimeMS
		if e.ResponseTimeMS > stats.MaxResponseTimeMS {
			stats.MaxResponseTimeMS = e.ResponseTimeMS
		}
		stats.PerCategory[e.Category]++
	}
	stats.Total = len(entries)
	stats.AvgKPI = stat.Mean(kpis, nil)
	stats.StdKPI = stat.StdDev(kpis, nil)
	stats.AvgResponseTimeMS = sumResponse / float64(len(entries))
	return stats
}
