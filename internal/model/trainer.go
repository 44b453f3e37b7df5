package model

import (
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wareflow/kpiengine/internal/config"
	"github.com/wareflow/kpiengine/internal/monitoring"
)

// Candidate names a model family and constructs fresh untrained instances,
// one per cross-validation fold plus the final fit.
type Candidate struct {
	Name string
	New  func() Estimator
}

// DefaultCandidates returns the model families trained by default.
func DefaultCandidates(cfg config.TrainingConfig) []Candidate {
	return []Candidate{
		{Name: "baseline_mean", New: func() Estimator { return NewBaseline() }},
		{Name: "ridge", New: func() Estimator { return NewRidge(cfg.RidgeAlpha) }},
		{Name: "gradient_boost", New: func() Estimator { return NewGradientBoost(100, 0.1) }},
	}
}

// CandidateResult carries the evaluation of one trained candidate.
type CandidateResult struct {
	Name     string  `json:"name"`
	TrainR2  float64 `json:"train_r2"`
	TestR2   float64 `json:"test_r2"`
	CVR2Mean float64 `json:"cv_r2_mean"`
	CVR2Std  float64 `json:"cv_r2_std"`
	TestRMSE float64 `json:"test_rmse"`
	TestMAE  float64 `json:"test_mae"`
}

// TrainResult is the outcome of a full training run.
type TrainResult struct {
	BestName   string            `json:"best_name"`
	Best       Estimator         `json:"-"`
	Candidates []CandidateResult `json:"candidates"`
	Ensemble   *CandidateResult  `json:"ensemble,omitempty"`

	TestTargets     []float64 `json:"-"`
	TestPredictions []float64 `json:"-"`
}

// Trainer orchestrates the train/test split, per-candidate cross-validation
// and best-model selection.
type Trainer struct {
	cfg    config.TrainingConfig
	logger *zap.Logger
}

// NewTrainer builds a trainer from training configuration.
func NewTrainer(cfg config.TrainingConfig, logger *zap.Logger) *Trainer {
	return &Trainer{cfg: cfg, logger: logger}
}

// Run trains every candidate on a seeded split of (x, y), cross-validates on
// the training portion, blends the non-baseline candidates into a weighted
// ensemble and returns the best model by test R2.
func (t *Trainer) Run(x *mat.Dense, y []float64, candidates []Candidate) (*TrainResult, error) {
	rows, _ := x.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("model: %d rows but %d targets", rows, len(y))
	}
	if len(candidates) == 0 {
		return nil, errors.New("model: no candidates to train")
	}

	trainIdx, testIdx := t.split(rows)
	xTrain, yTrain := takeRows(x, y, trainIdx)
	xTest, yTest := takeRows(x, y, testIdx)

	t.logger.Info("training candidates",
		zap.Int("train_rows", len(trainIdx)),
		zap.Int("test_rows", len(testIdx)),
		zap.Int("candidates", len(candidates)))

	result := &TrainResult{TestTargets: yTest}
	fitted := make(map[string]Estimator, len(candidates))
	bestR2 := 0.0

	for _, c := range candidates {
		est := c.New()
		if err := est.Fit(xTrain, yTrain); err != nil {
			return nil, fmt.Errorf("model: fit %s: %w", c.Name, err)
		}

		cr, testPreds, err := t.evaluate(est, c.Name, xTrain, yTrain, xTest, yTest)
		if err != nil {
			return nil, err
		}

		cvMean, cvStd, err := t.crossValidate(c, xTrain, yTrain)
		if err != nil {
			return nil, err
		}
		cr.CVR2Mean = cvMean
		cr.CVR2Std = cvStd

		t.logger.Info("candidate evaluated",
			zap.String("model", c.Name),
			zap.Float64("test_r2", cr.TestR2),
			zap.Float64("cv_r2_mean", cr.CVR2Mean),
			zap.Float64("test_rmse", cr.TestRMSE))

		result.Candidates = append(result.Candidates, cr)
		fitted[c.Name] = est
		if result.Best == nil || cr.TestR2 > bestR2 {
			bestR2 = cr.TestR2
			result.Best = est
			result.BestName = c.Name
			result.TestPredictions = testPreds
		}
	}

	if ens, cr, preds, err := t.buildEnsemble(result.Candidates, fitted, xTest, yTest); err != nil {
		t.logger.Warn("ensemble skipped", zap.Error(err))
	} else if ens != nil {
		result.Ensemble = cr
		if cr.TestR2 > bestR2 {
			result.Best = ens
			result.BestName = ens.Name()
			result.TestPredictions = preds
		}
	}

	t.logger.Info("best model selected",
		zap.String("model", result.BestName),
		zap.Float64("test_r2", bestOf(result)))
	return result, nil
}

func bestOf(r *TrainResult) float64 {
	if r.Ensemble != nil && r.BestName == "weighted_ensemble" {
		return r.Ensemble.TestR2
	}
	for _, c := range r.Candidates {
		if c.Name == r.BestName {
			return c.TestR2
		}
	}
	return 0
}

func (t *Trainer) evaluate(est Estimator, name string, xTrain mat.Matrix, yTrain []float64, xTest mat.Matrix, yTest []float64) (CandidateResult, []float64, error) {
	trainPreds, err := est.Predict(xTrain)
	if err != nil {
		return CandidateResult{}, nil, fmt.Errorf("model: predict train %s: %w", name, err)
	}
	testPreds, err := est.Predict(xTest)
	if err != nil {
		return CandidateResult{}, nil, fmt.Errorf("model: predict test %s: %w", name, err)
	}

	trainR2, err := monitoring.RSquared(yTrain, trainPreds)
	if err != nil {
		return CandidateResult{}, nil, err
	}
	testR2, err := monitoring.RSquared(yTest, testPreds)
	if err != nil {
		return CandidateResult{}, nil, err
	}
	rmse, err := monitoring.RMSE(yTest, testPreds)
	if err != nil {
		return CandidateResult{}, nil, err
	}
	mae, err := monitoring.MAE(yTest, testPreds)
	if err != nil {
		return CandidateResult{}, nil, err
	}

	return CandidateResult{
		Name:     name,
		TrainR2:  trainR2,
		TestR2:   testR2,
		TestRMSE: rmse,
		TestMAE:  mae,
	}, testPreds, nil
}

// crossValidate computes k-fold R2 on the training portion, refitting a
// fresh instance per fold.
func (t *Trainer) crossValidate(c Candidate, x *mat.Dense, y []float64) (mean, std float64, err error) {
	rows, _ := x.Dims()
	folds := t.cfg.CVFolds
	if folds > rows {
		folds = rows
	}
	if folds < 2 {
		return 0, 0, fmt.Errorf("model: cross-validation needs at least 2 folds, have %d rows", rows)
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	perm := rng.Perm(rows)

	scores := make([]float64, 0, folds)
	for f := 0; f < folds; f++ {
		var holdIdx, fitIdx []int
		for i, p := range perm {
			if i%folds == f {
				holdIdx = append(holdIdx, p)
			} else {
				fitIdx = append(fitIdx, p)
			}
		}
		xFit, yFit := takeRows(x, y, fitIdx)
		xHold, yHold := takeRows(x, y, holdIdx)

		est := c.New()
		if err := est.Fit(xFit, yFit); err != nil {
			return 0, 0, fmt.Errorf("model: cv fit %s: %w", c.Name, err)
		}
		preds, err := est.Predict(xHold)
		if err != nil {
			return 0, 0, fmt.Errorf("model: cv predict %s: %w", c.Name, err)
		}
		r2, err := monitoring.RSquared(yHold, preds)
		if err != nil {
			return 0, 0, err
		}
		scores = append(scores, r2)
	}
	return stat.Mean(scores, nil), stat.StdDev(scores, nil), nil
}

// buildEnsemble blends every already-fitted non-baseline candidate, weighted
// by cross-validated R2.
func (t *Trainer) buildEnsemble(candidates []CandidateResult, fitted map[string]Estimator, xTest mat.Matrix, yTest []float64) (*WeightedEnsemble, *CandidateResult, []float64, error) {
	var members []Member
	for _, cr := range candidates {
		if cr.Name == "baseline_mean" {
			continue
		}
		weight := cr.CVR2Mean
		if weight < 0 {
			weight = 0
		}
		members = append(members, Member{Estimator: fitted[cr.Name], Weight: weight})
	}
	if len(members) < 2 {
		return nil, nil, nil, errors.New("model: not enough members for an ensemble")
	}

	ens, err := NewWeightedEnsemble(members...)
	if err != nil {
		return nil, nil, nil, err
	}

	preds, err := ens.Predict(xTest)
	if err != nil {
		return nil, nil, nil, err
	}
	r2, err := monitoring.RSquared(yTest, preds)
	if err != nil {
		return nil, nil, nil, err
	}
	rmse, err := monitoring.RMSE(yTest, preds)
	if err != nil {
		return nil, nil, nil, err
	}
	mae, err := monitoring.MAE(yTest, preds)
	if err != nil {
		return nil, nil, nil, err
	}

	cr := &CandidateResult{
		Name:     ens.Name(),
		TestR2:   r2,
		TestRMSE: rmse,
		TestMAE:  mae,
	}
	t.logger.Info("ensemble evaluated",
		zap.Float64("test_r2", r2),
		zap.Int("members", len(members)))
	return ens, cr, preds, nil
}

// split shuffles row indices with the configured seed and carves off the
// test fraction.
func (t *Trainer) split(rows int) (train, test []int) {
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	perm := rng.Perm(rows)
	nTest := int(float64(rows) * t.cfg.TestFraction)
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= rows {
		nTest = rows - 1
	}
	return perm[nTest:], perm[:nTest]
}

func takeRows(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	targets := make([]float64, len(idx))
	for i, r := range idx {
		for j := 0; j < cols; j++ {
			out.Set(i, j, x.At(r, j))
		}
		targets[i] = y[r]
	}
	return out, targets
}
