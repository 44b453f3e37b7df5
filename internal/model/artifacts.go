package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wareflow/kpiengine/internal/preprocess"
)

// Artifact bundles everything a deployed model version needs: the fitted
// estimator, the fitted preprocessor state and version metadata. One
// artifact file per model version; versions are immutable once written.
type Artifact struct {
	Version      string           `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
	ModelType    string           `json:"model_type"`
	ModelState   json.RawMessage  `json:"model_state"`
	Preprocessor preprocess.State `json:"preprocessor"`
}

// SaveArtifact writes a new model version under dir and returns the version
// identifier. Only estimators with a serializable form are supported.
func SaveArtifact(dir string, est Estimator, pre *preprocess.Preprocessor) (string, error) {
	modelType, state, err := marshalEstimator(est)
	if err != nil {
		return "", err
	}
	preState, err := pre.State()
	if err != nil {
		return "", fmt.Errorf("model: preprocessor state: %w", err)
	}

	artifact := Artifact{
		Version:      uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		ModelType:    modelType,
		ModelState:   state,
		Preprocessor: preState,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("model: create artifact dir: %w", err)
	}
	blob, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("model: encode artifact: %w", err)
	}
	name := fmt.Sprintf("artifact_%s_%s.json", artifact.CreatedAt.Format("20060102_150405"), artifact.Version)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", fmt.Errorf("model: write artifact: %w", err)
	}
	return artifact.Version, nil
}

// LoadLatest restores the newest artifact from dir. The timestamped file
// names sort chronologically, so the lexicographically last one is newest.
func LoadLatest(dir string) (Estimator, *preprocess.Preprocessor, string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "artifact_*.json"))
	if err != nil {
		return nil, nil, "", fmt.Errorf("model: scan artifacts: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil, "", fmt.Errorf("model: no artifacts in %s, train a model first", dir)
	}
	sort.Strings(matches)
	return LoadArtifact(matches[len(matches)-1])
}

// LoadArtifact restores one artifact file.
func LoadArtifact(path string) (Estimator, *preprocess.Preprocessor, string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("model: read artifact: %w", err)
	}
	var artifact Artifact
	if err := json.Unmarshal(blob, &artifact); err != nil {
		return nil, nil, "", fmt.Errorf("model: corrupt artifact %s: %w", path, err)
	}

	est, err := unmarshalEstimator(artifact.ModelType, artifact.ModelState)
	if err != nil {
		return nil, nil, "", fmt.Errorf("model: artifact %s: %w", path, err)
	}
	pre, err := preprocess.FromState(artifact.Preprocessor)
	if err != nil {
		return nil, nil, "", fmt.Errorf("model: artifact %s: %w", path, err)
	}
	return est, pre, artifact.Version, nil
}

func marshalEstimator(est Estimator) (string, json.RawMessage, error) {
	switch m := est.(type) {
	case *Ridge:
		state, err := m.marshal()
		if err != nil {
			return "", nil, err
		}
		blob, err := json.Marshal(state)
		return "ridge", blob, err
	case *GradientBoost:
		state, err := m.marshal()
		if err != nil {
			return "", nil, err
		}
		blob, err := json.Marshal(state)
		return "gradient_boost", blob, err
	case *WeightedEnsemble:
		state, err := m.marshal()
		if err != nil {
			return "", nil, err
		}
		blob, err := json.Marshal(state)
		return "weighted_ensemble", blob, err
	case *Baseline:
		state, err := m.marshal()
		if err != nil {
			return "", nil, err
		}
		blob, err := json.Marshal(state)
		return "baseline_mean", blob, err
	default:
		return "", nil, fmt.Errorf("model: estimator %s is not serializable", est.Name())
	}
}

func unmarshalEstimator(modelType string, blob json.RawMessage) (Estimator, error) {
	switch modelType {
	case "ridge":
		var state ridgeState
		if err := json.Unmarshal(blob, &state); err != nil {
			return nil, fmt.Errorf("decode ridge state: %w", err)
		}
		return ridgeFromState(state)
	case "gradient_boost":
		var state boostState
		if err := json.Unmarshal(blob, &state); err != nil {
			return nil, fmt.Errorf("decode gradient_boost state: %w", err)
		}
		return boostFromState(state), nil
	case "weighted_ensemble":
		var state ensembleState
		if err := json.Unmarshal(blob, &state); err != nil {
			return nil, fmt.Errorf("decode weighted_ensemble state: %w", err)
		}
		return ensembleFromState(state)
	case "baseline_mean":
		var state baselineState
		if err := json.Unmarshal(blob, &state); err != nil {
			return nil, fmt.Errorf("decode baseline_mean state: %w", err)
		}
		return baselineFromState(state), nil
	default:
		return nil, fmt.Errorf("unknown model type %q", modelType)
	}
}
