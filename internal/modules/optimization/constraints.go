package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// DefaultMaxPosition caps any single position when the caller does not
// provide an explicit maximum.
const DefaultMaxPosition = 1.0

// ConstraintSet is the normalized, validated form of the caller's constraint
// input: per-asset box bounds aligned to the symbol order, a sector mapping,
// per-sector caps, and the excluded-asset set (forced weight 0).
type ConstraintSet struct {
	Symbols    []string
	Bounds     [][2]float64
	Sectors    map[string]string
	SectorCaps map[string]float64
	Excluded   map[string]bool
}

// ConstraintsBuilder normalizes and validates constraint inputs.
type ConstraintsBuilder struct {
	log zerolog.Logger
}

// NewConstraintsBuilder creates a constraints builder.
func NewConstraintsBuilder(log zerolog.Logger) *ConstraintsBuilder {
	return &ConstraintsBuilder{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// Build normalizes the input into a ConstraintSet and proves feasibility
// analytically before any QP runs.
func (cb *ConstraintsBuilder) Build(symbols []string, input ConstraintInput, sectors map[string]string) (*ConstraintSet, error) {
	excluded := make(map[string]bool, len(input.ExcludedSymbols))
	for _, s := range input.ExcludedSymbols {
		excluded[s] = true
	}

	minPos := input.MinPositionSize
	maxPos := input.MaxPositionSize
	if maxPos <= 0 {
		maxPos = DefaultMaxPosition
	}

	bounds := make([][2]float64, len(symbols))
	for i, symbol := range symbols {
		lower, upper := minPos, maxPos
		if override, ok := input.Bounds[symbol]; ok {
			lower, upper = override[0], override[1]
		}
		if excluded[symbol] {
			lower, upper = 0, 0
		}

		if lower < 0 || upper > 1 || lower > upper {
			return nil, &InvalidInputError{
				Reason: fmt.Sprintf("bounds for %s must satisfy 0 <= min <= max <= 1, got [%.4f, %.4f]", symbol, lower, upper),
			}
		}
		bounds[i] = [2]float64{lower, upper}
	}

	cs := &ConstraintSet{
		Symbols:    symbols,
		Bounds:     bounds,
		Sectors:    sectors,
		SectorCaps: input.SectorCaps,
		Excluded:   excluded,
	}

	if err := cb.validateFeasibility(cs); err != nil {
		return nil, err
	}

	cb.log.Debug().
		Int("num_symbols", len(symbols)).
		Int("num_sector_caps", len(input.SectorCaps)).
		Int("num_excluded", len(excluded)).
		Msg("Built constraint set")

	return cs, nil
}

// validateFeasibility checks the bound sums and sector caps analytically.
func (cb *ConstraintsBuilder) validateFeasibility(cs *ConstraintSet) error {
	var minSum, maxSum float64
	for _, b := range cs.Bounds {
		minSum += b[0]
		maxSum += b[1]
	}

	if minSum > 1.0+weightTolerance {
		return &InfeasibleConstraintsError{
			Reason: fmt.Sprintf("minimum weights sum to %.4f, cannot stay fully invested", minSum),
		}
	}
	if maxSum < 1.0-weightTolerance {
		return &InfeasibleConstraintsError{
			Reason: fmt.Sprintf("maximum weights sum to %.4f, cannot reach full investment", maxSum),
		}
	}

	// Per-sector: the minimum exposure forced by the bounds must fit under
	// the cap, and capping sectors must leave room for a fully invested
	// portfolio overall.
	sectorMin := make(map[string]float64)
	for i, symbol := range cs.Symbols {
		if sector, ok := cs.Sectors[symbol]; ok {
			sectorMin[sector] += cs.Bounds[i][0]
		}
	}

	sectors := make([]string, 0, len(cs.SectorCaps))
	for sector := range cs.SectorCaps {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	capped := 0.0
	uncappedMax := 0.0
	sectorMaxUnderCap := make(map[string]float64)
	for i, symbol := range cs.Symbols {
		sector, hasSector := cs.Sectors[symbol]
		if hasSector {
			if _, hasCap := cs.SectorCaps[sector]; hasCap {
				sectorMaxUnderCap[sector] += cs.Bounds[i][1]
				continue
			}
		}
		uncappedMax += cs.Bounds[i][1]
	}

	for _, sector := range sectors {
		limit := cs.SectorCaps[sector]
		if sectorMin[sector] > limit+weightTolerance {
			return &InfeasibleConstraintsError{
				Sector: sector,
				Reason: fmt.Sprintf("minimum weights force %.4f exposure against a %.4f cap", sectorMin[sector], limit),
			}
		}
		capped += math.Min(limit, sectorMaxUnderCap[sector])
	}

	if len(sectors) > 0 && capped+uncappedMax < 1.0-weightTolerance {
		return &InfeasibleConstraintsError{
			Reason: fmt.Sprintf("sector caps limit total investable weight to %.4f", capped+uncappedMax),
		}
	}

	return nil
}

// SectorWeights aggregates a weight vector by sector.
func (cs *ConstraintSet) SectorWeights(w []float64) map[string]float64 {
	out := make(map[string]float64)
	for i, symbol := range cs.Symbols {
		if sector, ok := cs.Sectors[symbol]; ok {
			out[sector] += w[i]
		}
	}
	return out
}

// Satisfied reports whether a weight vector honors the box bounds and sector
// caps within tolerance.
func (cs *ConstraintSet) Satisfied(w []float64, tol float64) bool {
	for i := range w {
		if w[i] < cs.Bounds[i][0]-tol || w[i] > cs.Bounds[i][1]+tol {
			return false
		}
	}
	for sector, weight := range cs.SectorWeights(w) {
		if limit, ok := cs.SectorCaps[sector]; ok && weight > limit+tol {
			return false
		}
	}
	return true
}
