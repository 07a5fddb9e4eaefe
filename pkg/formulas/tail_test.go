package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoricalVaR(t *testing.T) {
	// 100 returns: -0.50, -0.49, ..., 0.49 in shuffled order does not matter
	// since VaR sorts internally. Use a simple known grid.
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = float64(i-50) / 100.0 // -0.50 .. 0.49
	}

	// 95% confidence: tail of ceil(100*0.05)=5, VaR is the 5th worst = -0.46
	assert.InDelta(t, -0.46, HistoricalVaR(returns, 0.95), 1e-10)

	// 99% confidence: tail of 1, VaR is the worst = -0.50
	assert.InDelta(t, -0.50, HistoricalVaR(returns, 0.99), 1e-10)

	assert.Equal(t, 0.0, HistoricalVaR(nil, 0.95))
}

func TestHistoricalCVaR(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = float64(i-50) / 100.0
	}

	// Mean of the 5 worst: (-0.50-0.49-0.48-0.47-0.46)/5 = -0.48
	assert.InDelta(t, -0.48, HistoricalCVaR(returns, 0.95), 1e-10)

	// CVaR is never better than VaR at the same confidence
	assert.LessOrEqual(t, HistoricalCVaR(returns, 0.95), HistoricalVaR(returns, 0.95))
	assert.LessOrEqual(t, HistoricalCVaR(returns, 0.99), HistoricalCVaR(returns, 0.95))
}

func TestMonteCarloCVaR(t *testing.T) {
	// With mu=0 sigma=0.01 the 95% CVaR of a normal is about -2.06 sigma.
	got := MonteCarloCVaR(0, 0.01, 50000, 0.95)
	assert.InDelta(t, -0.0206, got, 0.003)

	// Degenerate inputs fall back to the mean
	assert.Equal(t, 0.005, MonteCarloCVaR(0.005, 0, 1000, 0.95))
	assert.Equal(t, 0.005, MonteCarloCVaR(0.005, 0.01, 0, 0.95))
}

func TestGaussianQuantile(t *testing.T) {
	// 5% quantile of standard normal is about -1.645
	assert.InDelta(t, -1.645, GaussianQuantile(0, 1, 0.05), 1e-3)
	// Symmetry
	assert.InDelta(t, -GaussianQuantile(0, 1, 0.05), GaussianQuantile(0, 1, 0.95), 1e-10)
	// Degenerate sigma returns mu
	assert.Equal(t, 0.3, GaussianQuantile(0.3, 0, 0.05))
}

func TestSharpeAndSortino(t *testing.T) {
	// Constant positive returns: zero volatility means Sharpe 0 by convention,
	// and no downside observations means Sortino 0.
	flat := []float64{0.001, 0.001, 0.001}
	assert.Equal(t, 0.0, SharpeRatio(flat, 0.0))
	assert.Equal(t, 0.0, SortinoRatio(flat, 0.0))

	mixed := []float64{0.02, -0.01, 0.015, -0.005, 0.01, -0.02, 0.005}
	sharpe := SharpeRatio(mixed, 0.0)
	sortino := SortinoRatio(mixed, 0.0)
	assert.NotZero(t, sharpe)
	assert.NotZero(t, sortino)
	// Downside deviation uses only the negative returns, so it is smaller
	// than total volatility here and Sortino exceeds Sharpe.
	assert.Greater(t, sortino, sharpe)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name     string
		returns  []float64
		expected float64
		tol      float64
	}{
		{"empty", nil, 0, 1e-10},
		{"all gains", []float64{0.01, 0.02, 0.01}, 0, 1e-10},
		{"single 20% drop", []float64{0.10, -0.20, 0.05}, 0.20, 1e-10},
		{"recovers after drop", []float64{-0.10, 0.50, -0.05}, 0.10, 1e-10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, MaxDrawdown(tt.returns), tt.tol)
		})
	}
}

func TestBeta(t *testing.T) {
	market := []float64{0.01, -0.02, 0.015, 0.005, -0.01, 0.02, -0.005, 0.01}

	// Asset that moves exactly 2x the market has beta 2
	double := make([]float64, len(market))
	for i, r := range market {
		double[i] = 2 * r
	}
	assert.InDelta(t, 2.0, Beta(double, market), 1e-6)

	// The market against itself has beta 1
	assert.InDelta(t, 1.0, Beta(market, market), 1e-6)

	// Degenerate inputs default to 1
	assert.Equal(t, 1.0, Beta([]float64{0.01}, []float64{0.01}))
	assert.Equal(t, 1.0, Beta(market, market[:4]))
}
