package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Baseline predicts the training-target mean for every row. It anchors model
// comparison: anything that cannot beat it is not worth shipping.
type Baseline struct {
	mean   float64
	fitted bool
}

// NewBaseline returns an untrained mean predictor.
func NewBaseline() *Baseline { return &Baseline{} }

func (b *Baseline) Name() string { return "baseline_mean" }

func (b *Baseline) Fit(x mat.Matrix, y []float64) error {
	if len(y) == 0 {
		return errors.New("model: empty training set")
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	b.mean = sum / float64(len(y))
	b.fitted = true
	return nil
}

func (b *Baseline) Predict(x mat.Matrix) ([]float64, error) {
	if !b.fitted {
		return nil, ErrModelNotFitted
	}
	rows, _ := x.Dims()
	preds := make([]float64, rows)
	for i := range preds {
		preds[i] = b.mean
	}
	return preds, nil
}

type baselineState struct {
	Mean float64 `json:"mean"`
}

func (b *Baseline) marshal() (baselineState, error) {
	if !b.fitted {
		return baselineState{}, ErrModelNotFitted
	}
	return baselineState{Mean: b.mean}, nil
}

func baselineFromState(s baselineState) *Baseline {
	return &Baseline{mean: s.Mean, fitted: true}
}

// Member is one weighted component of an ensemble.
type Member struct {
	Estimator Estimator
	Weight    float64
}

// WeightedEnsemble blends member predictions with normalized weights, the
// weights typically being each member's cross-validated score.
type WeightedEnsemble struct {
	members []Member
}

// NewWeightedEnsemble builds an ensemble over already-constructed members.
// Weights are normalized to sum to one at prediction time.
func NewWeightedEnsemble(members ...Member) (*WeightedEnsemble, error) {
	if len(members) == 0 {
		return nil, errors.New("model: ensemble needs at least one member")
	}
	var total float64
	for _, m := range members {
		if m.Weight < 0 {
			return nil, fmt.Errorf("model: negative ensemble weight %f", m.Weight)
		}
		total += m.Weight
	}
	if total == 0 {
		return nil, errors.New("model: ensemble weights sum to zero")
	}
	return &WeightedEnsemble{members: members}, nil
}

func (e *WeightedEnsemble) Name() string { return "weighted_ensemble" }

// Fit trains every member on the same data.
func (e *WeightedEnsemble) Fit(x mat.Matrix, y []float64) error {
	for _, m := range e.members {
		if err := m.Estimator.Fit(x, y); err != nil {
			return fmt.Errorf("model: ensemble member %s: %w", m.Estimator.Name(), err)
		}
	}
	return nil
}

// ensembleState is the serialized form: each member keeps its own typed
// state next to its weight.
type ensembleState struct {
	Members []ensembleMemberState `json:"members"`
}

type ensembleMemberState struct {
	Type   string          `json:"type"`
	Weight float64         `json:"weight"`
	State  json.RawMessage `json:"state"`
}

func (e *WeightedEnsemble) marshal() (ensembleState, error) {
	var state ensembleState
	for _, m := range e.members {
		memberType, blob, err := marshalEstimator(m.Estimator)
		if err != nil {
			return ensembleState{}, err
		}
		state.Members = append(state.Members, ensembleMemberState{
			Type:   memberType,
			Weight: m.Weight,
			State:  blob,
		})
	}
	return state, nil
}

func ensembleFromState(s ensembleState) (*WeightedEnsemble, error) {
	members := make([]Member, 0, len(s.Members))
	for _, ms := range s.Members {
		est, err := unmarshalEstimator(ms.Type, ms.State)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{Estimator: est, Weight: ms.Weight})
	}
	return NewWeightedEnsemble(members...)
}

// Predict returns the weight-normalized blend of member predictions.
func (e *WeightedEnsemble) Predict(x mat.Matrix) ([]float64, error) {
	rows, _ := x.Dims()
	var total float64
	for _, m := range e.members {
		total += m.Weight
	}

	blended := make([]float64, rows)
	for _, m := range e.members {
		preds, err := m.Estimator.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("model: ensemble member %s: %w", m.Estimator.Name(), err)
		}
		w := m.Weight / total
		for i, p := range preds {
			blended[i] += p * w
		}
	}
	return blended, nil
}
