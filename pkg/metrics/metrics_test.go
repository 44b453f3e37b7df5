package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.PredictionsTotal.Inc()
	c.PredictionsTotal.Inc()
	c.DriftedFeatures.Set(3)
	c.EvalR2.Set(0.97)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.PredictionsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.DriftedFeatures))
	assert.Equal(t, 0.97, testutil.ToFloat64(c.EvalR2))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
