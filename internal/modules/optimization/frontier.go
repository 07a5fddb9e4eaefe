package optimization

import (
	"math"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/engine/pkg/formulas"
)

// DefaultFrontierPoints is the number of target-return levels swept when the
// caller does not ask for a specific count.
const DefaultFrontierPoints = 20

// FrontierGenerator sweeps min-variance solves across target-return levels
// between the global minimum-variance portfolio and the maximum achievable
// return under the constraint set.
type FrontierGenerator struct {
	opt *Optimizer
	log zerolog.Logger
}

// NewFrontierGenerator creates a frontier generator sharing the optimizer.
func NewFrontierGenerator(opt *Optimizer, log zerolog.Logger) *FrontierGenerator {
	return &FrontierGenerator{
		opt: opt,
		log: log.With().Str("component", "frontier").Logger(),
	}
}

// Generate computes the efficient frontier and the per-asset return/vol
// reference points. Individual target levels that prove infeasible under the
// constraint set are skipped, not fatal.
//
// Points are solved concurrently; each solve reads the same immutable inputs
// and writes to its own slot.
func (fg *FrontierGenerator) Generate(
	cov [][]float64,
	mu []float64,
	riskFree float64,
	cs *ConstraintSet,
	rm *ReturnMatrix,
	numPoints int,
) ([]FrontierPoint, []AssetPoint, error) {
	if numPoints <= 0 {
		numPoints = DefaultFrontierPoints
	}

	minVarWeights, err := fg.opt.MinVariance(cov, cs)
	if err != nil {
		return nil, nil, err
	}

	rMin := dot(mu, minVarWeights)
	rMax := maxReturnUnderBounds(mu, cs)

	targets := make([]float64, 0, numPoints)
	if numPoints == 1 || rMax-rMin < 1e-10 {
		// No range to sweep: report the minimum-variance point alone.
		targets = append(targets, rMin)
	} else {
		step := (rMax - rMin) / float64(numPoints-1)
		for k := 0; k < numPoints; k++ {
			targets = append(targets, rMin+step*float64(k))
		}
	}

	solved := make([][]float64, len(targets))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for k, target := range targets {
		g.Go(func() error {
			w, solveErr := fg.opt.EfficientReturn(cov, mu, target, cs)
			if solveErr != nil {
				fg.log.Debug().
					Float64("target_return", target).
					Err(solveErr).
					Msg("Skipping infeasible frontier target")
				return nil
			}
			solved[k] = w
			return nil
		})
	}
	_ = g.Wait()

	points := make([]FrontierPoint, 0, len(targets))
	for _, w := range solved {
		if w == nil {
			continue
		}
		vol := annualizedPortfolioVol(w, cov)
		ret := dot(mu, w)
		sharpe := 0.0
		if vol > 0 {
			sharpe = (ret - riskFree) / vol
		}
		points = append(points, FrontierPoint{
			ExpectedReturn: ret,
			Volatility:     vol,
			Sharpe:         sharpe,
			Weights:        weightsMap(rm.Symbols, w),
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Volatility < points[j].Volatility })

	assetPoints := make([]AssetPoint, len(rm.Symbols))
	for i, symbol := range rm.Symbols {
		assetPoints[i] = AssetPoint{
			Symbol:         symbol,
			ExpectedReturn: formulas.AnnualizedReturn(rm.Returns[i]),
			Volatility:     formulas.AnnualizedVolatility(rm.Returns[i]),
		}
	}

	fg.log.Debug().
		Int("frontier_points", len(points)).
		Float64("return_min", rMin).
		Float64("return_max", rMax).
		Msg("Generated efficient frontier")

	return points, assetPoints, nil
}

// maxReturnUnderBounds computes the maximum μ'w achievable under the box
// bounds alone: start every asset at its minimum, then hand the remaining
// budget to the highest-return assets first.
func maxReturnUnderBounds(mu []float64, cs *ConstraintSet) float64 {
	n := len(mu)
	w := make([]float64, n)
	budget := 1.0
	for i := range w {
		w[i] = cs.Bounds[i][0]
		budget -= w[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return mu[order[a]] > mu[order[b]] })

	for _, i := range order {
		if budget <= 0 {
			break
		}
		room := cs.Bounds[i][1] - w[i]
		add := math.Min(room, budget)
		w[i] += add
		budget -= add
	}

	return dot(mu, w)
}

// annualizedPortfolioVol computes sqrt(w'Σw × 252) for a daily covariance.
func annualizedPortfolioVol(w []float64, cov [][]float64) float64 {
	var variance float64
	for i := range w {
		for j := range w {
			variance += w[i] * w[j] * cov[i][j]
		}
	}
	return math.Sqrt(math.Max(variance, 0) * formulas.TradingDaysPerYear)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func weightsMap(symbols []string, w []float64) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for i, symbol := range symbols {
		out[symbol] = w[i]
	}
	return out
}
