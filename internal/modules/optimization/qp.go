package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// weightTolerance is the floating tolerance on the budget constraint.
	weightTolerance = 1e-6
	// dustThreshold snaps spurious residual positions to zero.
	dustThreshold = 1e-6
	// penaltyWeight scales the soft equality/sector penalties in the
	// numeric fallback solver.
	penaltyWeight = 1000.0
	// maxMajorIterations bounds solver work on ill-conditioned inputs.
	maxMajorIterations = 500
)

// QPProblem describes one constrained quadratic solve:
//
//	minimize  w'Σw
//	subject to  Σw = 1, bounds, sector caps, exclusions,
//	            and optionally μ'w = target.
type QPProblem struct {
	Sigma        [][]float64
	Mu           []float64 // required when TargetReturn is set
	TargetReturn *float64
	Constraints  *ConstraintSet
}

// QPSolver solves constrained quadratic programs over portfolio weights.
// Abstracting the solver keeps the rest of the engine independent of the
// concrete method (KKT, penalty, or a vendor library).
type QPSolver interface {
	Solve(p QPProblem) ([]float64, error)
}

// kktPenaltySolver first attempts a closed-form KKT solve of the
// equality-constrained problem; when that solution violates the box or
// sector constraints it falls back to a penalized gradient solve with the
// bounds enforced by projection.
type kktPenaltySolver struct{}

// NewQPSolver returns the default solver.
func NewQPSolver() QPSolver {
	return &kktPenaltySolver{}
}

func (s *kktPenaltySolver) Solve(p QPProblem) ([]float64, error) {
	n := len(p.Sigma)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}
	if p.TargetReturn != nil && len(p.Mu) != n {
		return nil, fmt.Errorf("expected returns required to pin a target return")
	}

	if w, err := s.solveKKT(p); err == nil {
		if p.Constraints == nil || p.Constraints.Satisfied(w, weightTolerance) {
			return w, nil
		}
	}

	return s.solvePenalized(p)
}

// solveKKT solves the equality-constrained problem analytically:
//
//	[2Σ A'] [w]   [0]
//	[A  0 ] [λ] = [b]
//
// where A stacks the budget row (all ones) and, when pinned, μ.
func (s *kktPenaltySolver) solveKKT(p QPProblem) ([]float64, error) {
	n := len(p.Sigma)
	m := 1
	if p.TargetReturn != nil {
		m = 2
	}

	dim := n + m
	k := mat.NewDense(dim, dim, nil)
	rhs := mat.NewVecDense(dim, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k.Set(i, j, 2*p.Sigma[i][j])
		}
		k.Set(i, n, 1)
		k.Set(n, i, 1)
	}
	rhs.SetVec(n, 1)

	if p.TargetReturn != nil {
		for i := 0; i < n; i++ {
			k.Set(i, n+1, p.Mu[i])
			k.Set(n+1, i, p.Mu[i])
		}
		rhs.SetVec(n+1, *p.TargetReturn)
	}

	var x mat.VecDense
	if err := x.SolveVec(k, rhs); err != nil {
		return nil, fmt.Errorf("singular KKT system: %w", err)
	}

	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = x.AtVec(i)
		if math.IsNaN(w[i]) || math.IsInf(w[i], 0) {
			return nil, fmt.Errorf("non-finite KKT solution")
		}
	}
	return w, nil
}

// solvePenalized minimizes the variance plus quadratic penalties for the
// budget, target-return, and sector constraints, with box bounds enforced by
// projection. BFGS first, Nelder-Mead as the derivative-free fallback.
func (s *kktPenaltySolver) solvePenalized(p QPProblem) ([]float64, error) {
	n := len(p.Sigma)

	objective := func(x []float64) float64 {
		w := projectToBounds(x, p.Constraints)

		var variance float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				variance += w[i] * w[j] * p.Sigma[i][j]
			}
		}

		sum := 0.0
		for i := 0; i < n; i++ {
			sum += w[i]
		}

		obj := variance
		obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)
		if p.TargetReturn != nil {
			var ret float64
			for i := 0; i < n; i++ {
				ret += p.Mu[i] * w[i]
			}
			obj += penaltyWeight * (ret - *p.TargetReturn) * (ret - *p.TargetReturn)
		}
		obj += sectorPenalty(w, p.Constraints, penaltyWeight)
		return obj
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			w := projectToBounds(x, p.Constraints)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * p.Sigma[i][j] * w[j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}

			if p.TargetReturn != nil {
				var ret float64
				for i := 0; i < n; i++ {
					ret += p.Mu[i] * w[i]
				}
				for i := 0; i < n; i++ {
					grad[i] += 2 * penaltyWeight * (ret - *p.TargetReturn) * p.Mu[i]
				}
			}

			addSectorPenaltyGradient(grad, w, p.Constraints, penaltyWeight)
		},
	}

	initial := feasibleStart(p.Constraints, n)
	settings := &optimize.Settings{MajorIterations: maxMajorIterations}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("qp solve failed: %w", err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("qp solve did not converge: status=%v", result.Status)
		}
	}

	w := projectToBounds(result.X, p.Constraints)
	return w, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

// feasibleStart spreads weight evenly, then clips into the box bounds.
func feasibleStart(cs *ConstraintSet, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0 / float64(n)
	}
	return projectToBounds(x, cs)
}

// projectToBounds clips weights to their box bounds.
func projectToBounds(x []float64, cs *ConstraintSet) []float64 {
	if cs == nil {
		return x
	}
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(cs.Bounds[i][0], math.Min(cs.Bounds[i][1], x[i]))
	}
	return proj
}

// sectorPenalty accumulates quadratic penalties for sector cap violations.
func sectorPenalty(w []float64, cs *ConstraintSet, weight float64) float64 {
	if cs == nil || len(cs.SectorCaps) == 0 {
		return 0
	}

	var penalty float64
	for sector, exposure := range cs.SectorWeights(w) {
		if limit, ok := cs.SectorCaps[sector]; ok && exposure > limit {
			over := exposure - limit
			penalty += weight * over * over
		}
	}
	return penalty
}

// addSectorPenaltyGradient adds the gradient of the sector cap penalties.
func addSectorPenaltyGradient(grad, w []float64, cs *ConstraintSet, weight float64) {
	if cs == nil || len(cs.SectorCaps) == 0 {
		return
	}

	exposures := cs.SectorWeights(w)
	for sector, exposure := range exposures {
		limit, ok := cs.SectorCaps[sector]
		if !ok || exposure <= limit {
			continue
		}
		g := 2 * weight * (exposure - limit)
		for i, symbol := range cs.Symbols {
			if cs.Sectors[symbol] == sector {
				grad[i] += g
			}
		}
	}
}
