package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// stump is a depth-one regression tree: one feature, one threshold, two leaf
// values.
type stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

func (s stump) predict(x mat.Matrix, i int) float64 {
	if x.At(i, s.Feature) <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// GradientBoost fits an additive model of regression stumps on squared-error
// residuals. It is the in-repo stand-in for the gradient-boosted tree family.
type GradientBoost struct {
	Rounds       int
	LearningRate float64

	base   float64
	stumps []stump
	fitted bool
}

// NewGradientBoost returns an untrained booster. Rounds and rate default to
// 100 and 0.1 when non-positive.
func NewGradientBoost(rounds int, learningRate float64) *GradientBoost {
	if rounds <= 0 {
		rounds = 100
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}
	return &GradientBoost{Rounds: rounds, LearningRate: learningRate}
}

func (g *GradientBoost) Name() string { return "gradient_boost" }

// Fit greedily adds stumps that minimize squared error on the running
// residuals.
func (g *GradientBoost) Fit(x mat.Matrix, y []float64) error {
	rows, cols := x.Dims()
	if rows != len(y) {
		return fmt.Errorf("model: %d rows but %d targets", rows, len(y))
	}
	if rows == 0 {
		return errors.New("model: empty training set")
	}

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(rows)

	residual := make([]float64, rows)
	for i, v := range y {
		residual[i] = v - base
	}

	g.base = base
	g.stumps = g.stumps[:0]

	for round := 0; round < g.Rounds; round++ {
		best, ok := bestStump(x, residual, rows, cols)
		if !ok {
			break
		}
		best.Left *= g.LearningRate
		best.Right *= g.LearningRate
		g.stumps = append(g.stumps, best)
		for i := 0; i < rows; i++ {
			residual[i] -= best.predict(x, i)
		}
	}

	g.fitted = true
	return nil
}

// Predict sums the base value and every stump's contribution.
func (g *GradientBoost) Predict(x mat.Matrix) ([]float64, error) {
	if !g.fitted {
		return nil, ErrModelNotFitted
	}
	rows, _ := x.Dims()
	preds := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := g.base
		for _, s := range g.stumps {
			v += s.predict(x, i)
		}
		preds[i] = v
	}
	return preds, nil
}

// bestStump scans every feature and candidate threshold for the split with
// the lowest residual sum of squares.
func bestStump(x mat.Matrix, residual []float64, rows, cols int) (stump, bool) {
	var best stump
	bestSSE := math.Inf(1)
	found := false

	type pair struct {
		value    float64
		residual float64
	}

	for j := 0; j < cols; j++ {
		pairs := make([]pair, rows)
		for i := 0; i < rows; i++ {
			pairs[i] = pair{value: x.At(i, j), residual: residual[i]}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].value < pairs[b].value })

		var total float64
		for _, p := range pairs {
			total += p.residual
		}

		var leftSum float64
		for i := 0; i < rows-1; i++ {
			leftSum += pairs[i].residual
			if pairs[i].value == pairs[i+1].value {
				continue
			}
			nLeft := float64(i + 1)
			nRight := float64(rows - i - 1)
			leftMean := leftSum / nLeft
			rightMean := (total - leftSum) / nRight
			// SSE decomposition: minimizing it maximizes the weighted
			// separation of the two leaf means.
			gain := nLeft*leftMean*leftMean + nRight*rightMean*rightMean
			sse := -gain
			if sse < bestSSE {
				bestSSE = sse
				best = stump{
					Feature:   j,
					Threshold: (pairs[i].value + pairs[i+1].value) / 2,
					Left:      leftMean,
					Right:     rightMean,
				}
				found = true
			}
		}
	}

	if !found || (best.Left == 0 && best.Right == 0) {
		return stump{}, false
	}
	return best, true
}

type boostState struct {
	Rounds       int     `json:"rounds"`
	LearningRate float64 `json:"learning_rate"`
	Base         float64 `json:"base"`
	Stumps       []stump `json:"stumps"`
}

func (g *GradientBoost) marshal() (boostState, error) {
	if !g.fitted {
		return boostState{}, ErrModelNotFitted
	}
	return boostState{
		Rounds:       g.Rounds,
		LearningRate: g.LearningRate,
		Base:         g.base,
		Stumps:       append([]stump(nil), g.stumps...),
	}, nil
}

func boostFromState(s boostState) *GradientBoost {
	return &GradientBoost{
		Rounds:       s.Rounds,
		LearningRate: s.LearningRate,
		base:         s.Base,
		stumps:       append([]stump(nil), s.Stumps...),
		fitted:       true,
	}
}
