package monitoring

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wareflow/kpiengine/internal/dataset"
)

// DriftSeverity classifies a drift result by the share of drifted features.
type DriftSeverity int

const (
	DriftNone DriftSeverity = iota
	DriftInfo
	DriftHigh
)

func (s DriftSeverity) String() string {
	switch s {
	case DriftInfo:
		return "info"
	case DriftHigh:
		return "high"
	default:
		return "none"
	}
}

// FeatureDrift is the two-sample test outcome for one feature.
type FeatureDrift struct {
	KSStatistic float64 `json:"ks_statistic"`
	PValue      float64 `json:"p_value"`
	Drifted     bool    `json:"drifted"`
}

// DriftResult summarizes one drift comparison.
type DriftResult struct {
	Timestamp         time.Time               `json:"timestamp"`
	ReferenceSamples  int                     `json:"reference_samples"`
	ProductionSamples int                     `json:"production_samples"`
	FeaturesAnalyzed  int                     `json:"features_analyzed"`
	DriftedFeatures   []string                `json:"drifted_features"`
	Scores            map[string]FeatureDrift `json:"scores"`
	DriftPercentage   float64                 `json:"drift_percentage"`
	Severity          DriftSeverity           `json:"-"`
}

// ReferenceStore persists the drift baseline across restarts.
type ReferenceStore interface {
	SaveReference(blob []byte) error
	// LoadReference returns ok=false when no snapshot has been stored yet;
	// a non-nil error means the stored snapshot could not be read back.
	LoadReference() (blob []byte, ok bool, err error)
}

// DriftDetector compares production feature distributions against a fixed
// reference snapshot with a per-feature two-sample Kolmogorov-Smirnov test.
// It has two states: without a reference every Detect is a logged no-op;
// with one, Detect is deterministic for fixed inputs. The reference is only
// ever replaced by an explicit SetReference.
type DriftDetector struct {
	pThreshold    float64
	escalationPct float64
	store         ReferenceStore
	logger        *zap.Logger

	reference *dataset.Frame
}

// NewDriftDetector builds a detector. store may be nil for in-memory use; an
// existing persisted snapshot is restored when present.
func NewDriftDetector(pThreshold, escalationPct float64, store ReferenceStore, logger *zap.Logger) *DriftDetector {
	d := &DriftDetector{
		pThreshold:    pThreshold,
		escalationPct: escalationPct,
		store:         store,
		logger:        logger,
	}
	if store != nil {
		if blob, ok, err := store.LoadReference(); err != nil {
			logger.Error("drift reference snapshot unreadable", zap.Error(err))
		} else if ok {
			if ref, err := decodeReference(blob); err != nil {
				logger.Error("drift reference snapshot corrupt", zap.Error(err))
			} else {
				d.reference = ref
			}
		}
	}
	return d
}

// Ready reports whether a reference snapshot is set.
func (d *DriftDetector) Ready() bool { return d.reference != nil }

// SetReference stores a copy of frame's numeric columns as the new baseline
// and persists it when a store is configured.
func (d *DriftDetector) SetReference(frame *dataset.Frame) error {
	ref := dataset.New(frame.Rows())
	for _, name := range frame.NumericNames() {
		col, err := frame.Numeric(name)
		if err != nil {
			return err
		}
		if err := ref.AddNumeric(name, append([]float64(nil), col...)); err != nil {
			return err
		}
	}
	d.reference = ref
	d.logger.Info("drift reference set",
		zap.Int("samples", ref.Rows()),
		zap.Int("features", len(ref.NumericNames())))

	if d.store != nil {
		blob, err := encodeReference(ref)
		if err != nil {
			return err
		}
		if err := d.store.SaveReference(blob); err != nil {
			// Persistence failure degrades restart behavior but not the
			// in-memory detector.
			d.logger.Error("persist drift reference failed", zap.Error(err))
		}
	}
	return nil
}

// Detect runs the per-feature KS test of production against the reference.
// Without a reference it returns an empty result and logs a warning; drift
// monitoring is advisory and must not fail the serving path.
func (d *DriftDetector) Detect(production *dataset.Frame) DriftResult {
	result := DriftResult{
		Timestamp: time.Now().UTC(),
		Scores:    make(map[string]FeatureDrift),
	}
	if d.reference == nil {
		d.logger.Warn("drift detection skipped: no reference data set")
		return result
	}

	result.ReferenceSamples = d.reference.Rows()
	result.ProductionSamples = production.Rows()

	for _, name := range d.reference.NumericNames() {
		refCol, err := d.reference.Numeric(name)
		if err != nil {
			continue
		}
		prodCol, err := production.Numeric(name)
		if err != nil {
			continue // feature absent from production frame
		}
		if len(refCol) == 0 || len(prodCol) == 0 {
			continue
		}
		result.FeaturesAnalyzed++

		statistic, p := ksTwoSample(refCol, prodCol)
		drifted := p < d.pThreshold
		result.Scores[name] = FeatureDrift{KSStatistic: statistic, PValue: p, Drifted: drifted}
		if drifted {
			result.DriftedFeatures = append(result.DriftedFeatures, name)
			d.logger.Warn("feature drift detected",
				zap.String("feature", name),
				zap.Float64("p_value", p))
		}
	}

	if result.FeaturesAnalyzed > 0 {
		result.DriftPercentage = float64(len(result.DriftedFeatures)) / float64(result.FeaturesAnalyzed) * 100
	}
	sort.Strings(result.DriftedFeatures)

	switch {
	case result.DriftPercentage > d.escalationPct:
		result.Severity = DriftHigh
		d.logger.Warn("drift alert: retraining recommended",
			zap.Float64("drift_percentage", result.DriftPercentage),
			zap.Strings("features", result.DriftedFeatures))
	case result.DriftPercentage > 0:
		result.Severity = DriftInfo
		d.logger.Info("minor drift detected",
			zap.Float64("drift_percentage", result.DriftPercentage))
	default:
		result.Severity = DriftNone
		d.logger.Info("no significant drift detected")
	}
	return result
}

// ksTwoSample returns the two-sample Kolmogorov-Smirnov statistic and its
// asymptotic p-value.
func ksTwoSample(a, b []float64) (statistic, pValue float64) {
	x := append([]float64(nil), a...)
	y := append([]float64(nil), b...)
	sort.Float64s(x)
	sort.Float64s(y)

	n1, n2 := len(x), len(y)
	var i, j int
	var d float64
	for i < n1 && j < n2 {
		v1, v2 := x[i], y[j]
		v := math.Min(v1, v2)
		for i < n1 && x[i] <= v {
			i++
		}
		for j < n2 && y[j] <= v {
			j++
		}
		diff := math.Abs(float64(i)/float64(n1) - float64(j)/float64(n2))
		if diff > d {
			d = diff
		}
	}

	if d == 0 {
		return 0, 1
	}
	en := math.Sqrt(float64(n1) * float64(n2) / float64(n1+n2))
	lambda := (en + 0.12 + 0.11/en) * d
	return d, ksProbability(lambda)
}

// ksProbability evaluates the asymptotic Kolmogorov distribution tail
// Q(lambda) = 2 * sum_{j>=1} (-1)^{j-1} exp(-2 j^2 lambda^2).
func ksProbability(lambda float64) float64 {
	const terms = 100
	var sum float64
	sign := 1.0
	for j := 1; j <= terms; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// referenceBlob is the persisted snapshot layout.
type referenceBlob struct {
	Rows    int                  `json:"rows"`
	Columns map[string][]float64 `json:"columns"`
	Order   []string             `json:"order"`
}

func encodeReference(ref *dataset.Frame) ([]byte, error) {
	blob := referenceBlob{
		Rows:    ref.Rows(),
		Columns: make(map[string][]float64),
		Order:   ref.NumericNames(),
	}
	for _, name := range blob.Order {
		col, err := ref.Numeric(name)
		if err != nil {
			return nil, err
		}
		blob.Columns[name] = col
	}
	return json.Marshal(blob)
}

func decodeReference(data []byte) (*dataset.Frame, error) {
	var blob referenceBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, err
	}
	ref := dataset.New(blob.Rows)
	for _, name := range blob.Order {
		if err := ref.AddNumeric(name, blob.Columns[name]); err != nil {
			return nil, err
		}
	}
	return ref, nil
}
