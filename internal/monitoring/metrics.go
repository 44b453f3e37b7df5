// Package monitoring implements the production-monitoring layer: performance
// evaluation against thresholds, prediction audit logging, data-drift
// detection and health aggregation. Monitoring never takes down a prediction
// path; storage failures are logged and absorbed.
package monitoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// RSquared is the coefficient of determination of predictions against
// observed targets.
func RSquared(yTrue, yPred []float64) (float64, error) {
	if err := sameLength(yTrue, yPred); err != nil {
		return 0, err
	}
	return stat.RSquaredFrom(yPred, yTrue, nil), nil
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred []float64) (float64, error) {
	if err := sameLength(yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(yTrue))), nil
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred []float64) (float64, error) {
	if err := sameLength(yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue)), nil
}

func sameLength(yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return fmt.Errorf("monitoring: empty evaluation input")
	}
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("monitoring: %d targets but %d predictions", len(yTrue), len(yPred))
	}
	return nil
}
