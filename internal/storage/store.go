// Package storage persists the monitoring state (prediction log, evaluation
// history, drift reference snapshot) in a local sqlite database. Each table
// has a single writer; a mutex serializes appends since the monitoring layer
// specifies no finer locking.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wareflow/kpiengine/internal/monitoring"
)

type predictionRow struct {
	ID             uint `gorm:"primaryKey"`
	Timestamp      time.Time
	ItemID         string
	Category       string
	StockLevel     float64
	PredictedKPI   float64
	Confidence     string
	ResponseTimeMS float64
	ModelVersion   string
	FeaturesUsed   int
}

type evaluationRow struct {
	ID        uint `gorm:"primaryKey"`
	Timestamp time.Time
	Dataset   string
	R2        float64
	RMSE      float64
	MAE       float64
	Samples   int
	Alerts    string
}

type referenceRow struct {
	ID        uint `gorm:"primaryKey"`
	Blob      []byte
	UpdatedAt time.Time
}

// Store is the sqlite-backed monitoring store. It implements the monitoring
// package's PredictionStore, EvaluationStore and ReferenceStore contracts.
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open opens (and migrates) the monitoring database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&predictionRow{}, &evaluationRow{}, &referenceRow{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// AppendPrediction appends one audit-log entry. Entries are never mutated or
// deleted.
func (s *Store) AppendPrediction(entry monitoring.PredictionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := predictionRow{
		Timestamp:      entry.Timestamp,
		ItemID:         entry.ItemID,
		Category:       entry.Category,
		StockLevel:     entry.StockLevel,
		PredictedKPI:   entry.PredictedKPI,
		Confidence:     entry.Confidence,
		ResponseTimeMS: entry.ResponseTimeMS,
		ModelVersion:   entry.ModelVersion,
		FeaturesUsed:   entry.FeaturesUsed,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("storage: append prediction: %w", err)
	}
	return nil
}

// RecentPredictions returns entries at or after since, oldest first.
func (s *Store) RecentPredictions(since time.Time) ([]monitoring.PredictionEntry, error) {
	var rows []predictionRow
	err := s.db.Where("timestamp >= ?", since).Order("id asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: read predictions: %w", err)
	}
	entries := make([]monitoring.PredictionEntry, len(rows))
	for i, r := range rows {
		entries[i] = monitoring.PredictionEntry{
			Timestamp:      r.Timestamp,
			ItemID:         r.ItemID,
			Category:       r.Category,
			StockLevel:     r.StockLevel,
			PredictedKPI:   r.PredictedKPI,
			Confidence:     r.Confidence,
			ResponseTimeMS: r.ResponseTimeMS,
			ModelVersion:   r.ModelVersion,
			FeaturesUsed:   r.FeaturesUsed,
		}
	}
	return entries, nil
}

// AppendEvaluation appends rec and evicts the oldest rows beyond cap.
func (s *Store) AppendEvaluation(rec monitoring.EvaluationRecord, cap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := json.Marshal(rec.Alerts)
	if err != nil {
		return fmt.Errorf("storage: encode alerts: %w", err)
	}
	row := evaluationRow{
		Timestamp: rec.Timestamp,
		Dataset:   rec.Dataset,
		R2:        rec.R2,
		RMSE:      rec.RMSE,
		MAE:       rec.MAE,
		Samples:   rec.Samples,
		Alerts:    string(alerts),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("storage: append evaluation: %w", err)
	}

	var count int64
	if err := s.db.Model(&evaluationRow{}).Count(&count).Error; err != nil {
		return fmt.Errorf("storage: count evaluations: %w", err)
	}
	if cap > 0 && count > int64(cap) {
		var stale []uint
		err := s.db.Model(&evaluationRow{}).
			Order("id asc").
			Limit(int(count) - cap).
			Pluck("id", &stale).Error
		if err != nil {
			return fmt.Errorf("storage: find stale evaluations: %w", err)
		}
		if err := s.db.Delete(&evaluationRow{}, stale).Error; err != nil {
			return fmt.Errorf("storage: evict evaluations: %w", err)
		}
	}
	return nil
}

// RecentEvaluations returns up to n records, most recent last.
func (s *Store) RecentEvaluations(n int) ([]monitoring.EvaluationRecord, error) {
	var rows []evaluationRow
	err := s.db.Order("id desc").Limit(n).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: read evaluations: %w", err)
	}
	records := make([]monitoring.EvaluationRecord, len(rows))
	for i, r := range rows {
		var alerts []string
		if r.Alerts != "" {
			if err := json.Unmarshal([]byte(r.Alerts), &alerts); err != nil {
				return nil, fmt.Errorf("storage: corrupt alerts for evaluation %d: %w", r.ID, err)
			}
		}
		// Reverse while copying so the oldest lands first.
		records[len(rows)-1-i] = monitoring.EvaluationRecord{
			Timestamp: r.Timestamp,
			Dataset:   r.Dataset,
			R2:        r.R2,
			RMSE:      r.RMSE,
			MAE:       r.MAE,
			Samples:   r.Samples,
			Alerts:    alerts,
		}
	}
	return records, nil
}

// SaveReference stores the drift baseline, replacing any previous snapshot.
func (s *Store) SaveReference(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := referenceRow{ID: 1, Blob: blob, UpdatedAt: time.Now().UTC()}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("storage: save reference: %w", err)
	}
	return nil
}

// LoadReference returns the stored drift baseline. ok=false means no snapshot
// has been stored yet, which is expected on first start; a read error means
// the snapshot exists but is unusable and must be surfaced.
func (s *Store) LoadReference() ([]byte, bool, error) {
	var row referenceRow
	err := s.db.First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: load reference: %w", err)
	}
	return row.Blob, true, nil
}
