package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrModelNotFitted is returned by Predict before a successful Fit.
var ErrModelNotFitted = errors.New("model: predict called before fit")

// Ridge is L2-regularized linear regression solved in closed form. Features
// are expected pre-scaled; the intercept absorbs the target mean.
type Ridge struct {
	Alpha float64

	weights   *mat.VecDense
	intercept float64
	fitted    bool
}

// NewRidge returns an untrained ridge regressor.
func NewRidge(alpha float64) *Ridge {
	return &Ridge{Alpha: alpha}
}

func (r *Ridge) Name() string { return "ridge" }

// Fit solves (XᵀX + αI)w = Xᵀ(y - mean(y)).
func (r *Ridge) Fit(x mat.Matrix, y []float64) error {
	rows, cols := x.Dims()
	if rows != len(y) {
		return fmt.Errorf("model: %d rows but %d targets", rows, len(y))
	}
	if rows == 0 {
		return errors.New("model: empty training set")
	}

	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(rows)

	centered := mat.NewVecDense(rows, nil)
	for i, v := range y {
		centered.SetVec(i, v-yMean)
	}

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for j := 0; j < cols; j++ {
		gram.Set(j, j, gram.At(j, j)+r.Alpha)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), centered)

	weights := mat.NewVecDense(cols, nil)
	if err := weights.SolveVec(&gram, &xty); err != nil {
		return fmt.Errorf("model: ridge solve: %w", err)
	}

	r.weights = weights
	r.intercept = yMean
	r.fitted = true
	return nil
}

// Predict applies the fitted weights.
func (r *Ridge) Predict(x mat.Matrix) ([]float64, error) {
	if !r.fitted {
		return nil, ErrModelNotFitted
	}
	rows, cols := x.Dims()
	if cols != r.weights.Len() {
		return nil, fmt.Errorf("model: %d feature columns, fitted on %d", cols, r.weights.Len())
	}
	var out mat.VecDense
	out.MulVec(x, r.weights)
	preds := make([]float64, rows)
	for i := range preds {
		preds[i] = out.AtVec(i) + r.intercept
	}
	return preds, nil
}

// ridgeState is the serialized form used by the artifact store.
type ridgeState struct {
	Alpha     float64   `json:"alpha"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

func (r *Ridge) marshal() (ridgeState, error) {
	if !r.fitted {
		return ridgeState{}, ErrModelNotFitted
	}
	return ridgeState{
		Alpha:     r.Alpha,
		Weights:   append([]float64(nil), r.weights.RawVector().Data...),
		Intercept: r.intercept,
	}, nil
}

func ridgeFromState(s ridgeState) (*Ridge, error) {
	if len(s.Weights) == 0 {
		return nil, errors.New("model: ridge state has no weights")
	}
	return &Ridge{
		Alpha:     s.Alpha,
		weights:   mat.NewVecDense(len(s.Weights), append([]float64(nil), s.Weights...)),
		intercept: s.Intercept,
		fitted:    true,
	}, nil
}
