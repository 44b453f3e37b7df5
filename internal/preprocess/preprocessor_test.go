package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/wareflow/kpiengine/internal/dataset"
)

func trainingFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	f := dataset.New(4)
	require.NoError(t, f.AddString(dataset.ColItemID, []string{"i1", "i2", "i3", "i4"}))
	require.NoError(t, f.AddString(dataset.ColCategory, []string{"b", "a", "b", "c"}))
	require.NoError(t, f.AddString(dataset.ColZone, []string{"z1", "z2", "z1", "z2"}))
	require.NoError(t, f.AddString(dataset.ColLastRestockDate, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}))
	require.NoError(t, f.AddNumeric("x1", []float64{1, 2, 3, 4}))
	require.NoError(t, f.AddNumeric("x2", []float64{10, 20, 40, 30}))
	require.NoError(t, f.AddNumeric(dataset.ColTarget, []float64{0.1, 0.2, 0.3, 0.4}))
	return f
}

func TestFitTransformShapeAndTarget(t *testing.T) {
	p := New()
	x, y, err := p.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	rows, cols := x.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols) // category, zone, x1, x2
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, y)

	names, err := p.FeatureNames()
	require.NoError(t, err)
	assert.Equal(t, []string{dataset.ColCategory, dataset.ColZone, "x1", "x2"}, names)
}

func TestFitTransformEncodesSortedClasses(t *testing.T) {
	p := New()
	_, _, err := p.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	state, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, state.Encoders[dataset.ColCategory])
	assert.Equal(t, map[string]int{"z1": 0, "z2": 1}, state.Encoders[dataset.ColZone])
}

func TestFitTransformStandardizes(t *testing.T) {
	p := New()
	x, _, err := p.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	rows, cols := x.Dims()
	for j := 0; j < cols; j++ {
		var sum, sumSq float64
		for i := 0; i < rows; i++ {
			sum += x.At(i, j)
			sumSq += x.At(i, j) * x.At(i, j)
		}
		mean := sum / float64(rows)
		assert.InDelta(t, 0, mean, 1e-9, "column %d mean", j)
		assert.InDelta(t, 1, sumSq/float64(rows)-mean*mean, 1e-9, "column %d variance", j)
	}
}

func TestFitTransformConstantColumnMapsToZero(t *testing.T) {
	f := dataset.New(3)
	require.NoError(t, f.AddString(dataset.ColCategory, []string{"a", "a", "b"}))
	require.NoError(t, f.AddString(dataset.ColZone, []string{"z", "z", "z"}))
	require.NoError(t, f.AddNumeric("constant", []float64{7, 7, 7}))
	require.NoError(t, f.AddNumeric("varying", []float64{1, 2, 3}))

	p := New()
	x, _, err := p.FitTransform(f)
	require.NoError(t, err)

	// Columns: category, zone, constant, varying. Zone and constant never
	// vary, so they must come out exactly zero rather than NaN.
	rows, _ := x.Dims()
	for i := 0; i < rows; i++ {
		assert.Zero(t, x.At(i, 1))
		assert.Zero(t, x.At(i, 2))
	}
}

func TestTransformMatchesFitTransform(t *testing.T) {
	frame := trainingFrame(t)
	p := New()
	fitted, _, err := p.FitTransform(frame)
	require.NoError(t, err)

	again, err := p.Transform(frame)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(fitted, again, 1e-12))
}

func TestTransformRejectsUnseenCategory(t *testing.T) {
	p := New()
	_, _, err := p.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	frame := trainingFrame(t)
	frame.Drop(dataset.ColCategory)
	require.NoError(t, frame.AddString(dataset.ColCategory, []string{"b", "a", "b", "never-seen"}))

	_, err = p.Transform(frame)
	var unseen *UnseenCategoryError
	require.ErrorAs(t, err, &unseen)
	assert.Equal(t, dataset.ColCategory, unseen.Column)
	assert.Equal(t, "never-seen", unseen.Value)
}

func TestTransformBeforeFit(t *testing.T) {
	_, err := New().Transform(trainingFrame(t))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestTransformColumnContract(t *testing.T) {
	p := New()
	_, _, err := p.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	frame := trainingFrame(t)
	frame.Drop("x2")
	require.NoError(t, frame.AddNumeric("surprise", []float64{1, 2, 3, 4}))

	_, err = p.Transform(frame)
	var contract *ColumnContractError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, []string{"x2"}, contract.Missing)
	assert.Equal(t, []string{"surprise"}, contract.Extra)
}

func TestStateRoundTrip(t *testing.T) {
	frame := trainingFrame(t)
	p := New()
	fitted, _, err := p.FitTransform(frame)
	require.NoError(t, err)

	blob, err := p.MarshalState()
	require.NoError(t, err)

	restored, err := UnmarshalState(blob)
	require.NoError(t, err)

	x, err := restored.Transform(frame)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(fitted, x, 1e-12))
}

func TestStateIsACopy(t *testing.T) {
	p := New()
	_, _, err := p.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	state, err := p.State()
	require.NoError(t, err)
	state.Encoders[dataset.ColCategory]["a"] = 99
	state.Means[0] = 12345

	clean, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, 0, clean.Encoders[dataset.ColCategory]["a"])
	assert.NotEqual(t, 12345.0, clean.Means[0])
}

func TestTransformDoesNotMutateInput(t *testing.T) {
	frame := trainingFrame(t)
	p := New()
	_, _, err := p.FitTransform(frame)
	require.NoError(t, err)

	_, err = p.Transform(frame)
	require.NoError(t, err)

	col, err := frame.Numeric("x1")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, col)
	assert.True(t, frame.Has(dataset.ColTarget))
	assert.True(t, frame.Has(dataset.ColItemID))
}
