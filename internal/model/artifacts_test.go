package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/wareflow/kpiengine/internal/dataset"
	"github.com/wareflow/kpiengine/internal/preprocess"
)

func fittedPreprocessor(t *testing.T) (*preprocess.Preprocessor, *mat.Dense, []float64) {
	t.Helper()
	f := dataset.New(4)
	require.NoError(t, f.AddString(dataset.ColCategory, []string{"a", "b", "a", "b"}))
	require.NoError(t, f.AddString(dataset.ColZone, []string{"z1", "z1", "z2", "z2"}))
	require.NoError(t, f.AddNumeric("x1", []float64{1, 2, 3, 4}))
	require.NoError(t, f.AddNumeric(dataset.ColTarget, []float64{0.1, 0.4, 0.2, 0.8}))

	pre := preprocess.New()
	x, y, err := pre.FitTransform(f)
	require.NoError(t, err)
	return pre, x, y
}

func TestArtifactRoundTrip(t *testing.T) {
	pre, x, y := fittedPreprocessor(t)
	ridge := NewRidge(0.5)
	require.NoError(t, ridge.Fit(x, y))

	dir := t.TempDir()
	version, err := SaveArtifact(dir, ridge, pre)
	require.NoError(t, err)
	require.NotEmpty(t, version)

	est, restoredPre, loadedVersion, err := LoadLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, version, loadedVersion)
	assert.Equal(t, "ridge", est.Name())

	want, err := ridge.Predict(x)
	require.NoError(t, err)
	got, err := est.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	names, err := restoredPre.FeatureNames()
	require.NoError(t, err)
	wantNames, err := pre.FeatureNames()
	require.NoError(t, err)
	assert.Equal(t, wantNames, names)
}

func TestArtifactEnsembleRoundTrip(t *testing.T) {
	pre, x, y := fittedPreprocessor(t)
	ens, err := NewWeightedEnsemble(
		Member{Estimator: NewRidge(0.5), Weight: 2},
		Member{Estimator: NewGradientBoost(20, 0.1), Weight: 1},
	)
	require.NoError(t, err)
	require.NoError(t, ens.Fit(x, y))

	dir := t.TempDir()
	_, err = SaveArtifact(dir, ens, pre)
	require.NoError(t, err)

	est, _, _, err := LoadLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, "weighted_ensemble", est.Name())

	want, err := ens.Predict(x)
	require.NoError(t, err)
	got, err := est.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadLatestEmptyDir(t *testing.T) {
	_, _, _, err := LoadLatest(t.TempDir())
	assert.Error(t, err)
}

func TestSaveArtifactUnfittedModel(t *testing.T) {
	pre, _, _ := fittedPreprocessor(t)
	_, err := SaveArtifact(t.TempDir(), NewRidge(1), pre)
	assert.ErrorIs(t, err, ErrModelNotFitted)
}

func TestLoadArtifactCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact_20240101_000000_bogus.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, _, err := LoadArtifact(path)
	assert.Error(t, err)
}
