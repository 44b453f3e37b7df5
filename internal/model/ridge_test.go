package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// linearData builds zero-mean features with y = 2*x1 - 3*x2 + 5. Centering
// the features keeps the intercept equal to the target mean, which the
// closed-form solution assumes.
func linearData() (*mat.Dense, []float64) {
	features := []float64{
		-2, -1,
		-1, 1,
		0, 0,
		1, -1,
		2, 1,
	}
	x := mat.NewDense(5, 2, features)
	y := make([]float64, 5)
	for i := 0; i < 5; i++ {
		y[i] = 2*x.At(i, 0) - 3*x.At(i, 1) + 5
	}
	return x, y
}

func TestRidgeRecoversLinearRelation(t *testing.T) {
	x, y := linearData()
	r := NewRidge(1e-9)
	require.NoError(t, r.Fit(x, y))

	preds, err := r.Predict(x)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], preds[i], 1e-6)
	}
}

func TestRidgeShrinksWithAlpha(t *testing.T) {
	x, y := linearData()

	loose := NewRidge(1e-9)
	require.NoError(t, loose.Fit(x, y))
	tight := NewRidge(1000)
	require.NoError(t, tight.Fit(x, y))

	loosePreds, err := loose.Predict(x)
	require.NoError(t, err)
	tightPreds, err := tight.Predict(x)
	require.NoError(t, err)

	// Heavy regularization pulls predictions toward the target mean.
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(len(y))
	for i := range y {
		looseDist := abs(loosePreds[i] - yMean)
		tightDist := abs(tightPreds[i] - yMean)
		assert.LessOrEqual(t, tightDist, looseDist+1e-9)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestRidgePredictBeforeFit(t *testing.T) {
	x, _ := linearData()
	_, err := NewRidge(1).Predict(x)
	assert.ErrorIs(t, err, ErrModelNotFitted)
}

func TestRidgeDimensionChecks(t *testing.T) {
	x, y := linearData()
	assert.Error(t, NewRidge(1).Fit(x, y[:3]))

	r := NewRidge(1)
	require.NoError(t, r.Fit(x, y))
	_, err := r.Predict(mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}

func TestRidgeStateRoundTrip(t *testing.T) {
	x, y := linearData()
	r := NewRidge(0.5)
	require.NoError(t, r.Fit(x, y))

	state, err := r.marshal()
	require.NoError(t, err)
	restored, err := ridgeFromState(state)
	require.NoError(t, err)

	want, err := r.Predict(x)
	require.NoError(t, err)
	got, err := restored.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
