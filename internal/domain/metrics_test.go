package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeMetrics_PerfectPrediction(t *testing.T) {
	observed := []float64{10, 20, 30, 40, 50}
	m := ComputeMetrics(observed, observed)

	assert.InDelta(t, 1.0, m.R2, 1e-12)
	assert.InDelta(t, 0.0, m.RMSE, 1e-12)
	assert.InDelta(t, 0.0, m.MAE, 1e-12)
	assert.InDelta(t, 0.0, m.Bias, 1e-12)
	assert.InDelta(t, 1.0, m.SpearmanRho, 1e-12)
	assert.Equal(t, 5, m.N)
}

func TestComputeMetrics_ConstantOffset(t *testing.T) {
	observed := []float64{10, 20, 30, 40}
	predicted := []float64{12, 22, 32, 42}
	m := ComputeMetrics(observed, predicted)

	assert.InDelta(t, 2.0, m.Bias, 1e-12)
	assert.InDelta(t, 2.0, m.RMSE, 1e-12)
	assert.InDelta(t, 2.0, m.MAE, 1e-12)
	assert.InDelta(t, 1.0, m.SpearmanRho, 1e-12)
	// SSres = 4*4 = 16, SStot = 500, so R² = 1 - 16/500
	assert.InDelta(t, 1-16.0/500.0, m.R2, 1e-12)
}

func TestComputeMetrics_WorseThanMean(t *testing.T) {
	observed := []float64{1, 2, 3}
	predicted := []float64{30, -10, 50}
	m := ComputeMetrics(observed, predicted)
	assert.Less(t, m.R2, 0.0)
}

func TestComputeMetrics_DegenerateInputs(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, MetricSet{}, ComputeMetrics(nil, nil))
	})
	t.Run("length mismatch", func(t *testing.T) {
		assert.Equal(t, MetricSet{}, ComputeMetrics([]float64{1, 2}, []float64{1}))
	})
	t.Run("constant observed", func(t *testing.T) {
		m := ComputeMetrics([]float64{5, 5, 5}, []float64{4, 5, 6})
		assert.Equal(t, 0.0, m.R2)
		assert.Equal(t, 0.0, m.SpearmanRho)
	})
}

func TestSpearmanRho(t *testing.T) {
	t.Run("monotonic nonlinear is perfect", func(t *testing.T) {
		x := []float64{1, 2, 3, 4, 5}
		y := []float64{1, 8, 27, 64, 125}
		assert.InDelta(t, 1.0, SpearmanRho(x, y), 1e-12)
	})

	t.Run("reversed is minus one", func(t *testing.T) {
		x := []float64{1, 2, 3, 4}
		y := []float64{9, 7, 5, 3}
		assert.InDelta(t, -1.0, SpearmanRho(x, y), 1e-12)
	})

	t.Run("ties get average ranks", func(t *testing.T) {
		x := []float64{1, 2, 2, 3}
		y := []float64{10, 20, 20, 30}
		assert.InDelta(t, 1.0, SpearmanRho(x, y), 1e-12)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Equal(t, 0.0, SpearmanRho([]float64{1}, []float64{2}))
	})
}

func TestRanks(t *testing.T) {
	got := ranks([]float64{30, 10, 20, 20})
	assert.Equal(t, []float64{4, 1, 2.5, 2.5}, got)
}
