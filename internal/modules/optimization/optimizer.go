package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// retryShrinkAmount is the extra diagonal shrinkage applied before the single
// automatic retry when a solve fails on an ill-conditioned matrix.
const retryShrinkAmount = 0.25

// Optimizer solves for a single weight vector under a chosen objective and a
// validated constraint set.
type Optimizer struct {
	solver QPSolver
	log    zerolog.Logger
}

// NewOptimizer creates an optimizer backed by the given QP solver.
func NewOptimizer(solver QPSolver, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		solver: solver,
		log:    log.With().Str("component", "optimizer").Logger(),
	}
}

// MinVariance minimizes w'Σw subject to full investment, box bounds, sector
// caps, and exclusions.
func (o *Optimizer) MinVariance(cov [][]float64, cs *ConstraintSet) ([]float64, error) {
	return o.solveWithRetry(QPProblem{Sigma: cov, Constraints: cs})
}

// EfficientReturn minimizes variance with the portfolio return pinned to a
// target. Used by the frontier generator.
func (o *Optimizer) EfficientReturn(cov [][]float64, mu []float64, target float64, cs *ConstraintSet) ([]float64, error) {
	return o.solveWithRetry(QPProblem{Sigma: cov, Mu: mu, TargetReturn: &target, Constraints: cs})
}

// MaxSharpe maximizes (μ'w − r_f) / sqrt(w'Σw).
//
// The unconstrained tangency portfolio w ∝ Σ⁻¹(μ − r_f·1) is tried first;
// when it violates the constraint set, the ratio is maximized directly with
// the penalty formulation.
func (o *Optimizer) MaxSharpe(cov [][]float64, mu []float64, riskFree float64, cs *ConstraintSet) ([]float64, error) {
	n := len(mu)

	excess := make([]float64, n)
	for i := range excess {
		excess[i] = mu[i] - riskFree
	}

	if w, err := tangencyPortfolio(cov, excess); err == nil {
		if cs == nil || cs.Satisfied(w, weightTolerance) {
			return finalizeWeights(w, cs), nil
		}
	}

	w, err := o.solveSharpeNumeric(cov, mu, riskFree, cs)
	if err != nil {
		o.log.Warn().Err(err).Msg("Sharpe solve failed, retrying with diagonal shrinkage")
		w, err = o.solveSharpeNumeric(ShrinkTowardDiagonal(cov, retryShrinkAmount), mu, riskFree, cs)
		if err != nil {
			return nil, &OptimizationDivergedError{Reason: err.Error()}
		}
	}

	return finalizeWeights(w, cs), nil
}

// solveWithRetry runs the QP solver with one automatic shrinkage escalation
// before surfacing a divergence error.
func (o *Optimizer) solveWithRetry(p QPProblem) ([]float64, error) {
	w, err := o.solver.Solve(p)
	if err != nil {
		o.log.Warn().Err(err).Msg("QP solve failed, retrying with diagonal shrinkage")
		p.Sigma = ShrinkTowardDiagonal(p.Sigma, retryShrinkAmount)
		w, err = o.solver.Solve(p)
		if err != nil {
			return nil, &OptimizationDivergedError{Reason: err.Error()}
		}
	}

	return finalizeWeights(w, p.Constraints), nil
}

// solveSharpeNumeric minimizes −(μ'w − r_f)/sqrt(w'Σw) plus the budget and
// sector penalties, bounds enforced by projection.
func (o *Optimizer) solveSharpeNumeric(cov [][]float64, mu []float64, riskFree float64, cs *ConstraintSet) ([]float64, error) {
	n := len(mu)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := projectToBounds(x, cs)

			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * w[i]
				for j := 0; j < n; j++ {
					variance += w[i] * w[j] * cov[i][j]
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
			}

			obj := -(ret - riskFree) / stdDev
			obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)
			obj += sectorPenalty(w, cs, penaltyWeight)
			return obj
		},
		Grad: func(grad, x []float64) {
			w := projectToBounds(x, cs)

			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * w[i]
				for j := 0; j < n; j++ {
					variance += w[i] * w[j] * cov[i][j]
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))
			excess := ret - riskFree

			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * cov[i][j] * w[j]
				}
				grad[i] = -mu[i]/stdDev + excess*dVariance/(2*stdDev*stdDev*stdDev)
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}

			addSectorPenaltyGradient(grad, w, cs, penaltyWeight)
		},
	}

	initial := feasibleStart(cs, n)
	settings := &optimize.Settings{MajorIterations: maxMajorIterations}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("sharpe solve failed: %w", err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("sharpe solve did not converge: status=%v", result.Status)
		}
	}

	return projectToBounds(result.X, cs), nil
}

// tangencyPortfolio solves Σy = excess and normalizes y to sum to 1.
func tangencyPortfolio(cov [][]float64, excess []float64) ([]float64, error) {
	n := len(excess)
	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, cov[i][j])
		}
	}

	var y mat.VecDense
	if err := y.SolveVec(sigma, mat.NewVecDense(n, excess)); err != nil {
		return nil, fmt.Errorf("singular covariance matrix: %w", err)
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += y.AtVec(i)
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("tangency portfolio is not long-biased")
	}

	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = y.AtVec(i) / sum
	}
	return w, nil
}

// finalizeWeights snaps dust positions to zero and renormalizes to sum to 1.
func finalizeWeights(w []float64, cs *ConstraintSet) []float64 {
	out := make([]float64, len(w))
	sum := 0.0
	for i, v := range w {
		if math.Abs(v) < dustThreshold {
			v = 0
		}
		if cs != nil && cs.Excluded[cs.Symbols[i]] {
			v = 0
		}
		out[i] = v
		sum += v
	}

	if sum > 0 && math.Abs(sum-1.0) > 1e-12 {
		for i := range out {
			out[i] /= sum
		}
	}

	return out
}
