package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierGenerate(t *testing.T) {
	cov := [][]float64{
		{0.0004, 0.0001, 0.0000},
		{0.0001, 0.0009, 0.0002},
		{0.0000, 0.0002, 0.0016},
	}
	mu := []float64{0.05, 0.10, 0.15}

	rm := randomReturnMatrix(3, 120, 9)
	cs := unconstrained(t, rm.Symbols)

	opt := newTestOptimizer()
	fg := NewFrontierGenerator(opt, zerolog.Nop())

	points, assetPoints, err := fg.Generate(cov, mu, 0.02, cs, rm, 15)
	require.NoError(t, err)
	require.NotEmpty(t, points)
	require.Equal(t, 3, len(assetPoints))

	// Ordered by increasing volatility.
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].Volatility, points[i-1].Volatility-1e-10,
			"frontier must be sorted by volatility")
	}

	// Returns span from near the min-variance return up toward the best
	// asset's return.
	first := points[0].ExpectedReturn
	last := points[len(points)-1].ExpectedReturn
	assert.Greater(t, last, first)
	assert.LessOrEqual(t, last, 0.15+1e-6)

	// Every point's weights stay a valid portfolio.
	for _, pt := range points {
		sum := 0.0
		for _, w := range pt.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
}

func TestFrontierSinglePointWhenReturnsCollapse(t *testing.T) {
	// Identical expected returns leave no return range to sweep.
	cov := [][]float64{
		{0.0004, 0.0000},
		{0.0000, 0.0009},
	}
	mu := []float64{0.08, 0.08}

	rm := randomReturnMatrix(2, 100, 13)
	cs := unconstrained(t, rm.Symbols)

	fg := NewFrontierGenerator(newTestOptimizer(), zerolog.Nop())
	points, _, err := fg.Generate(cov, mu, 0.02, cs, rm, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, len(points))
}

func TestFrontierSinglePointRequested(t *testing.T) {
	// numPoints of 1 leaves no range to step across; the sweep must still
	// produce the minimum-variance point instead of an empty frontier.
	cov := [][]float64{
		{0.0004, 0.0001, 0.0000},
		{0.0001, 0.0009, 0.0002},
		{0.0000, 0.0002, 0.0016},
	}
	mu := []float64{0.05, 0.10, 0.15}

	rm := randomReturnMatrix(3, 120, 21)
	cs := unconstrained(t, rm.Symbols)

	fg := NewFrontierGenerator(newTestOptimizer(), zerolog.Nop())
	points, _, err := fg.Generate(cov, mu, 0.02, cs, rm, 1)
	require.NoError(t, err)
	require.Equal(t, 1, len(points))

	sum := 0.0
	for _, w := range points[0].Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestMaxReturnUnderBounds(t *testing.T) {
	mu := []float64{0.05, 0.10, 0.15}

	cs := &ConstraintSet{
		Symbols: []string{"A", "B", "C"},
		Bounds:  [][2]float64{{0, 1}, {0, 1}, {0, 1}},
	}
	assert.InDelta(t, 0.15, maxReturnUnderBounds(mu, cs), 1e-12,
		"unbounded case puts everything in the best asset")

	capped := &ConstraintSet{
		Symbols: []string{"A", "B", "C"},
		Bounds:  [][2]float64{{0, 0.4}, {0, 0.4}, {0, 0.4}},
	}
	// 40% C + 40% B + 20% A
	assert.InDelta(t, 0.4*0.15+0.4*0.10+0.2*0.05, maxReturnUnderBounds(mu, capped), 1e-12)
}

func TestAnnualizedPortfolioVol(t *testing.T) {
	cov := [][]float64{
		{0.0001, 0.0},
		{0.0, 0.0001},
	}
	w := []float64{0.5, 0.5}

	// Daily variance 0.00005, annualized vol sqrt(0.00005*252)
	assert.InDelta(t, 0.11224972, annualizedPortfolioVol(w, cov), 1e-6)
}
