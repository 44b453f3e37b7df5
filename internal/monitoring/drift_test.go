package monitoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wareflow/kpiengine/internal/dataset"
)

// memReferenceStore keeps the snapshot in memory.
type memReferenceStore struct {
	blob    []byte
	saveErr error
}

func (s *memReferenceStore) SaveReference(blob []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.blob = append([]byte(nil), blob...)
	return nil
}

func (s *memReferenceStore) LoadReference() ([]byte, bool, error) {
	if s.blob == nil {
		return nil, false, nil
	}
	return s.blob, true, nil
}

// driftFrame builds numFeatures identical numeric columns plus shifted
// copies of the first shiftedFeatures columns.
func driftFrame(t *testing.T, numFeatures, rows int, shiftedFeatures int, shift float64) *dataset.Frame {
	t.Helper()
	f := dataset.New(rows)
	for j := 0; j < numFeatures; j++ {
		col := make([]float64, rows)
		for i := range col {
			col[i] = float64(i)
			if j < shiftedFeatures {
				col[i] += shift
			}
		}
		require.NoError(t, f.AddNumeric(featureName(j), col))
	}
	return f
}

func featureName(j int) string {
	return string(rune('a'+j)) + "_feature"
}

func newTestDetector(store ReferenceStore) *DriftDetector {
	return NewDriftDetector(0.05, 20.0, store, zap.NewNop())
}

func TestDetectWithoutReferenceIsNoOp(t *testing.T) {
	d := newTestDetector(nil)
	assert.False(t, d.Ready())

	result := d.Detect(driftFrame(t, 3, 50, 0, 0))
	assert.Zero(t, result.FeaturesAnalyzed)
	assert.Empty(t, result.DriftedFeatures)
	assert.Equal(t, DriftNone, result.Severity)
}

func TestDetectSelfComparisonShowsNoDrift(t *testing.T) {
	d := newTestDetector(nil)
	frame := driftFrame(t, 5, 100, 0, 0)
	require.NoError(t, d.SetReference(frame))
	require.True(t, d.Ready())

	result := d.Detect(frame)
	assert.Equal(t, 5, result.FeaturesAnalyzed)
	assert.Empty(t, result.DriftedFeatures)
	assert.Equal(t, DriftNone, result.Severity)
	assert.Zero(t, result.DriftPercentage)
	for name, score := range result.Scores {
		assert.False(t, score.Drifted, name)
		assert.InDelta(t, 1, score.PValue, 1e-9, name)
	}
}

func TestDetectFlagsShiftedFeatures(t *testing.T) {
	d := newTestDetector(nil)
	require.NoError(t, d.SetReference(driftFrame(t, 10, 100, 0, 0)))

	// One of ten features strongly shifted: minor drift.
	result := d.Detect(driftFrame(t, 10, 100, 1, 1000))
	assert.Equal(t, []string{featureName(0)}, result.DriftedFeatures)
	assert.InDelta(t, 10, result.DriftPercentage, 1e-9)
	assert.Equal(t, DriftInfo, result.Severity)
	assert.True(t, result.Scores[featureName(0)].Drifted)
	assert.Less(t, result.Scores[featureName(0)].PValue, 0.05)
}

func TestDetectEscalatesAboveThreshold(t *testing.T) {
	d := newTestDetector(nil)
	require.NoError(t, d.SetReference(driftFrame(t, 10, 100, 0, 0)))

	// Three of ten features shifted: 30% > 20% escalation threshold.
	result := d.Detect(driftFrame(t, 10, 100, 3, 1000))
	assert.Len(t, result.DriftedFeatures, 3)
	assert.InDelta(t, 30, result.DriftPercentage, 1e-9)
	assert.Equal(t, DriftHigh, result.Severity)
}

func TestDetectSkipsMissingProductionFeatures(t *testing.T) {
	d := newTestDetector(nil)
	require.NoError(t, d.SetReference(driftFrame(t, 5, 50, 0, 0)))

	result := d.Detect(driftFrame(t, 2, 50, 0, 0))
	assert.Equal(t, 2, result.FeaturesAnalyzed)
	assert.Empty(t, result.DriftedFeatures)
}

func TestReferenceSurvivesRestart(t *testing.T) {
	store := &memReferenceStore{}
	first := newTestDetector(store)
	require.NoError(t, first.SetReference(driftFrame(t, 4, 60, 0, 0)))

	second := newTestDetector(store)
	require.True(t, second.Ready())

	result := second.Detect(driftFrame(t, 4, 60, 1, 1000))
	assert.Equal(t, []string{featureName(0)}, result.DriftedFeatures)
}

func TestSetReferencePersistFailureIsNonFatal(t *testing.T) {
	store := &memReferenceStore{saveErr: errors.New("disk full")}
	d := newTestDetector(store)

	require.NoError(t, d.SetReference(driftFrame(t, 2, 30, 0, 0)))
	assert.True(t, d.Ready())
}

func TestSetReferenceCopiesData(t *testing.T) {
	d := newTestDetector(nil)
	frame := driftFrame(t, 1, 100, 0, 0)
	require.NoError(t, d.SetReference(frame))

	// Mutating the source after SetReference must not leak into the
	// snapshot.
	col, err := frame.Numeric(featureName(0))
	require.NoError(t, err)
	for i := range col {
		col[i] += 1000
	}

	result := d.Detect(frame)
	assert.Equal(t, []string{featureName(0)}, result.DriftedFeatures)
}

func TestKSTwoSample(t *testing.T) {
	same := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	statistic, p := ksTwoSample(same, same)
	assert.Zero(t, statistic)
	assert.Equal(t, 1.0, p)

	disjointA := make([]float64, 50)
	disjointB := make([]float64, 50)
	for i := range disjointA {
		disjointA[i] = float64(i)
		disjointB[i] = float64(i) + 1000
	}
	statistic, p = ksTwoSample(disjointA, disjointB)
	assert.InDelta(t, 1, statistic, 1e-12)
	assert.Less(t, p, 1e-6)
}
