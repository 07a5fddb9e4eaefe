package risk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScenarios(t *testing.T) {
	scenarios := DefaultScenarios()
	require.Equal(t, 5, len(scenarios))

	names := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		names[s.Name] = true
	}
	assert.True(t, names["market_down_20"])
	assert.True(t, names["volatility_x2"])
}

func TestStressMarketShockWithSuppliedBetas(t *testing.T) {
	st := NewStressTester(zerolog.Nop())
	symbols := []string{"A", "B"}
	weights := []float64{0.6, 0.4}
	returns := testReturns(2, 100, 5)
	cov := [][]float64{{0.0004, 0.0}, {0.0, 0.0009}}

	results := st.Run([]ScenarioSpec{
		{
			Name:        "market_down_20",
			MarketShock: -0.20,
			Betas:       map[string]float64{"A": 1.2, "B": 0.8},
		},
	}, symbols, weights, returns, cov)

	require.Equal(t, 1, len(results))
	// 0.6×1.2×(−0.20) + 0.4×0.8×(−0.20) = −0.208
	assert.InDelta(t, -0.208, results[0].PortfolioReturn, 1e-12)
}

func TestStressMarketShockEstimatedBetas(t *testing.T) {
	st := NewStressTester(zerolog.Nop())
	symbols := []string{"A", "B"}
	weights := []float64{0.5, 0.5}

	// B moves exactly 2x A; the equal-weighted basket is 1.5x A, so the
	// betas against it are 2/3 and 4/3 and the weighted beta is exactly 1.
	base := testReturns(1, 200, 9)[0]
	double := make([]float64, len(base))
	for i, r := range base {
		double[i] = 2 * r
	}
	returns := [][]float64{base, double}
	cov := [][]float64{{0.0001, 0.0002}, {0.0002, 0.0004}}

	results := st.Run([]ScenarioSpec{
		{Name: "down_10", MarketShock: -0.10},
	}, symbols, weights, returns, cov)

	require.Equal(t, 1, len(results))
	assert.InDelta(t, -0.10, results[0].PortfolioReturn, 0.01)
}

func TestStressVolMultiplier(t *testing.T) {
	st := NewStressTester(zerolog.Nop())
	symbols := []string{"A", "B"}
	weights := []float64{0.5, 0.5}
	returns := testReturns(2, 100, 13)
	cov := [][]float64{{0.0004, 0.0}, {0.0, 0.0004}}

	results := st.Run([]ScenarioSpec{
		{Name: "vol_x2", VolMultiplier: 2.0},
		{Name: "vol_x4", VolMultiplier: 4.0},
	}, symbols, weights, returns, cov)

	require.Equal(t, 2, len(results))

	// Both are losses, and more stress means a deeper loss.
	assert.Negative(t, results[0].PortfolioReturn)
	assert.Negative(t, results[1].PortfolioReturn)
	assert.Less(t, results[1].PortfolioReturn, results[0].PortfolioReturn)
}

func TestStressRunDefaultsWhenEmpty(t *testing.T) {
	st := NewStressTester(zerolog.Nop())
	symbols := []string{"A", "B"}
	weights := []float64{0.5, 0.5}
	returns := testReturns(2, 100, 17)
	cov := [][]float64{{0.0004, 0.0001}, {0.0001, 0.0004}}

	results := st.Run(nil, symbols, weights, returns, cov)
	assert.Equal(t, len(DefaultScenarios()), len(results))

	// Order is preserved.
	for i, s := range DefaultScenarios() {
		assert.Equal(t, s.Name, results[i].Name)
	}
}
