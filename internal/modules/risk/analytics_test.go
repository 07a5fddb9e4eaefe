package risk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/engine/pkg/formulas"
)

func testReturns(numAssets, numPeriods int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, numAssets)
	for i := range out {
		row := make([]float64, numPeriods)
		for t := range row {
			row[t] = rng.NormFloat64() * 0.01
		}
		out[i] = row
	}
	return out
}

func TestPortfolioReturns(t *testing.T) {
	returns := [][]float64{
		{0.01, -0.02, 0.03},
		{0.02, 0.01, -0.01},
	}
	weights := []float64{0.6, 0.4}

	series := PortfolioReturns(weights, returns)
	require.Equal(t, 3, len(series))
	assert.InDelta(t, 0.6*0.01+0.4*0.02, series[0], 1e-12)
	assert.InDelta(t, 0.6*-0.02+0.4*0.01, series[1], 1e-12)
	assert.InDelta(t, 0.6*0.03+0.4*-0.01, series[2], 1e-12)

	assert.Nil(t, PortfolioReturns(nil, nil))
}

func TestAnalyzeReport(t *testing.T) {
	a := NewAnalytics(zerolog.Nop())
	returns := testReturns(3, 252, 11)
	weights := []float64{0.4, 0.35, 0.25}

	report := a.Analyze(weights, returns, 0.02)

	portfolio := PortfolioReturns(weights, returns)
	assert.InDelta(t, formulas.AnnualizedVolatility(portfolio), report.Volatility, 1e-12)
	assert.InDelta(t, formulas.SharpeRatio(portfolio, 0.02), report.Sharpe, 1e-12)

	// Tail ordering.
	assert.LessOrEqual(t, report.CVaR95, report.VaR95)
	assert.LessOrEqual(t, report.VaR99, report.VaR95)
	assert.LessOrEqual(t, report.CVaR99, report.CVaR95)

	// Monte Carlo cross-check lands in the same regime as the historical
	// estimate for roughly normal synthetic data.
	assert.InDelta(t, report.CVaR95, report.CVaR95MonteCarlo, math.Abs(report.CVaR95))

	assert.GreaterOrEqual(t, report.MaxDrawdown, 0.0)
	assert.Less(t, report.MaxDrawdown, 1.0)
}

func TestHerfindahl(t *testing.T) {
	tests := []struct {
		name     string
		weights  []float64
		expected float64
	}{
		{"single position", []float64{1.0}, 1.0},
		{"equal 4 assets", []float64{0.25, 0.25, 0.25, 0.25}, 0.25},
		{"concentrated", []float64{0.9, 0.1}, 0.82},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Herfindahl(tt.weights), 1e-12)
		})
	}
}

func TestEffectivePositionsBounds(t *testing.T) {
	a := NewAnalytics(zerolog.Nop())
	returns := testReturns(4, 100, 3)

	weights := []float64{0.25, 0.25, 0.25, 0.25}
	report := a.Analyze(weights, returns, 0.0)

	n := float64(len(weights))
	assert.Greater(t, report.Herfindahl, 1.0/n-1e-9)
	assert.LessOrEqual(t, report.Herfindahl, 1.0)
	assert.InDelta(t, n, report.EffectivePositions, 1e-9)
}

func TestDiversificationRatio(t *testing.T) {
	// Independent assets diversify: the ratio must exceed 1.
	returns := testReturns(3, 500, 19)
	weights := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}

	portfolio := PortfolioReturns(weights, returns)
	vol := formulas.AnnualizedVolatility(portfolio)
	dr := DiversificationRatio(weights, returns, vol)
	assert.Greater(t, dr, 1.0)

	// A single fully weighted asset has no diversification benefit.
	solo := []float64{1.0, 0.0, 0.0}
	soloVol := formulas.AnnualizedVolatility(returns[0])
	assert.InDelta(t, 1.0, DiversificationRatio(solo, returns, soloVol), 1e-9)

	assert.Equal(t, 0.0, DiversificationRatio(weights, returns, 0.0))
}

func TestDecompose(t *testing.T) {
	symbols := []string{"A", "B", "C"}
	weights := []float64{0.5, 0.3, 0.2}
	cov := [][]float64{
		{0.0004, 0.0001, 0.0000},
		{0.0001, 0.0009, 0.0002},
		{0.0000, 0.0002, 0.0016},
	}

	contributions := Decompose(symbols, weights, cov)
	require.Equal(t, 3, len(contributions))

	// Component contributions sum to the annualized portfolio volatility.
	var variance float64
	for i := range weights {
		for j := range weights {
			variance += weights[i] * weights[j] * cov[i][j]
		}
	}
	annualVol := math.Sqrt(variance * formulas.TradingDaysPerYear)

	var cctrSum float64
	for i, c := range contributions {
		assert.Equal(t, symbols[i], c.Symbol)
		assert.Equal(t, weights[i], c.Weight)
		assert.InDelta(t, c.Weight*c.Marginal, c.Component, 1e-12)
		cctrSum += c.Component
	}
	assert.InDelta(t, annualVol, cctrSum, 1e-10)
}

func TestDecomposeZeroVariance(t *testing.T) {
	contributions := Decompose([]string{"A"}, []float64{1.0}, [][]float64{{0}})
	require.Equal(t, 1, len(contributions))
	assert.Equal(t, 0.0, contributions[0].Marginal)
	assert.Equal(t, 0.0, contributions[0].Component)
}
