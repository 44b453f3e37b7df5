package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memPredictionStore keeps the audit log in memory.
type memPredictionStore struct {
	entries   []PredictionEntry
	appendErr error
	readErr   error
}

func (s *memPredictionStore) AppendPrediction(entry PredictionEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memPredictionStore) RecentPredictions(since time.Time) ([]PredictionEntry, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []PredictionEntry
	for _, e := range s.entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func entry(category string, kpi, responseMS float64, age time.Duration) PredictionEntry {
	return PredictionEntry{
		Timestamp:      time.Now().UTC().Add(-age),
		ItemID:         "ITEM-001",
		Category:       category,
		PredictedKPI:   kpi,
		ResponseTimeMS: responseMS,
	}
}

func TestLogFillsTimestamp(t *testing.T) {
	store := &memPredictionStore{}
	l := NewPredictionLogger(store, nil, zap.NewNop())

	l.Log(PredictionEntry{ItemID: "ITEM-001", PredictedKPI: 0.8})

	require.Len(t, store.entries, 1)
	assert.False(t, store.entries[0].Timestamp.IsZero())
}

func TestLogAbsorbsStoreFailure(t *testing.T) {
	store := &memPredictionStore{appendErr: errors.New("db locked")}
	l := NewPredictionLogger(store, nil, zap.NewNop())

	// Must not panic or surface the error.
	l.Log(PredictionEntry{ItemID: "ITEM-001"})
	assert.Empty(t, store.entries)
}

func TestRecentRespectsWindow(t *testing.T) {
	store := &memPredictionStore{}
	l := NewPredictionLogger(store, nil, zap.NewNop())
	l.Log(entry("electronics", 0.8, 10, 10*time.Minute))
	l.Log(entry("food", 0.6, 20, 2*time.Hour))

	recent := l.Recent(time.Hour)
	require.Len(t, recent, 1)
	assert.Equal(t, "electronics", recent[0].Category)
}

func TestRecentReadFailureYieldsEmpty(t *testing.T) {
	store := &memPredictionStore{readErr: errors.New("db locked")}
	l := NewPredictionLogger(store, nil, zap.NewNop())
	assert.Empty(t, l.Recent(time.Hour))
}

func TestStats(t *testing.T) {
	store := &memPredictionStore{}
	l := NewPredictionLogger(store, nil, zap.NewNop())
	l.Log(entry("electronics", 0.2, 10, time.Minute))
	l.Log(entry("electronics", 0.4, 30, time.Minute))
	l.Log(entry("food", 0.6, 20, time.Minute))

	stats := l.Stats(time.Hour)
	assert.Equal(t, 3, stats.Total)
	assert.InDelta(t, 0.4, stats.AvgKPI, 1e-12)
	assert.InDelta(t, 0.2, stats.MinKPI, 1e-12)
	assert.InDelta(t, 0.6, stats.MaxKPI, 1e-12)
	assert.InDelta(t, 20, stats.AvgResponseTimeMS, 1e-12)
	assert.InDelta(t, 30, stats.MaxResponseTimeMS, 1e-12)
	assert.Equal(t, map[string]int{"electronics": 2, "food": 1}, stats.PerCategory)
}

func TestStatsEmptyWindow(t *testing.T) {
	l := NewPredictionLogger(&memPredictionStore{}, nil, zap.NewNop())
	stats := l.Stats(time.Hour)
	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.PerCategory)
}
