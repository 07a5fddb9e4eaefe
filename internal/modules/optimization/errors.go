package optimization

import (
	"fmt"
	"strings"
)

// DataInsufficientError reports assets whose price history is too short to
// produce a usable return series.
type DataInsufficientError struct {
	Symbols   []string
	MinPoints int
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("insufficient price history for %s: need at least %d valid points",
		strings.Join(e.Symbols, ", "), e.MinPoints)
}

// InvalidInputError reports a malformed request detected before any matrix
// algebra runs.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// InfeasibleConstraintsError reports a constraint set that cannot admit any
// fully invested portfolio. Sector is empty for global bound violations.
type InfeasibleConstraintsError struct {
	Reason string
	Sector string
}

func (e *InfeasibleConstraintsError) Error() string {
	if e.Sector != "" {
		return fmt.Sprintf("infeasible constraints (sector %s): %s", e.Sector, e.Reason)
	}
	return fmt.Sprintf("infeasible constraints: %s", e.Reason)
}

// OptimizationDivergedError reports a solver that failed to converge even
// after the automatic shrinkage escalation retry.
type OptimizationDivergedError struct {
	Reason string
}

func (e *OptimizationDivergedError) Error() string {
	return fmt.Sprintf("optimization did not converge: %s", e.Reason)
}
