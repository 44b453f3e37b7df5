// Package model holds the estimator contract, the in-repo reference
// estimators and the training orchestration. The pipeline never inspects an
// estimator beyond Fit and Predict, so externally trained models can slot in
// behind the same interface.
package model

import "gonum.org/v1/gonum/mat"

// Estimator is the uniform contract every regression model implements.
type Estimator interface {
	// Name identifies the model family in logs and artifacts.
	Name() string
	// Fit trains on a feature matrix and target vector of equal row count.
	Fit(x mat.Matrix, y []float64) error
	// Predict returns one prediction per input row. Calling Predict before
	// Fit is an error.
	Predict(x mat.Matrix) ([]float64, error)
}
