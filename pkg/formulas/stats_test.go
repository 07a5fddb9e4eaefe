package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{"empty slice", []float64{}, 0},
		{"single value", []float64{5.0}, 5.0},
		{"mixed values", []float64{1.0, 2.0, 3.0, 4.0}, 2.5},
		{"negative values", []float64{-1.0, 1.0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Mean(tt.data), 1e-10)
		})
	}
}

func TestStdDev(t *testing.T) {
	// Sample std dev of {2, 4, 4, 4, 5, 5, 7, 9} is sqrt(32/7)
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(data), 1e-10)

	assert.Equal(t, 0.0, StdDev([]float64{}))
	assert.Equal(t, 0.0, StdDev([]float64{1.0}))
}

func TestAnnualizedVolatility(t *testing.T) {
	daily := []float64{0.01, -0.02, 0.015, 0.005, -0.01}
	expected := StdDev(daily) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(daily), 1e-10)
	assert.Equal(t, 0.0, AnnualizedVolatility(nil))
}

func TestAnnualizedReturn(t *testing.T) {
	daily := []float64{0.001, 0.001, 0.001}
	assert.InDelta(t, 0.252, AnnualizedReturn(daily), 1e-10)
}

func TestLogReturns(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		expected []float64
	}{
		{
			name:     "simple growth",
			prices:   []float64{100, 110},
			expected: []float64{math.Log(1.1)},
		},
		{
			name:     "too short",
			prices:   []float64{100},
			expected: []float64{},
		},
		{
			name:     "skips non-positive prices",
			prices:   []float64{100, 0, 110},
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogReturns(tt.prices)
			require.Equal(t, len(tt.expected), len(got))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], got[i], 1e-10)
			}
		})
	}
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-10)

	inverted := []float64{10, 8, 6, 4, 2}
	assert.InDelta(t, -1.0, Correlation(x, inverted), 1e-10)

	assert.Equal(t, 0.0, Correlation(x, []float64{1, 2}))
}

func TestCovarianceMatchesCorrelation(t *testing.T) {
	x := []float64{0.01, -0.02, 0.015, 0.005, -0.01}
	y := []float64{0.02, -0.01, 0.01, 0.0, -0.015}

	cov := Covariance(x, y)
	corr := Correlation(x, y)
	assert.InDelta(t, corr, cov/(StdDev(x)*StdDev(y)), 1e-10)
}
