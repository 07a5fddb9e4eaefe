package optimization

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// CovarianceEstimate pairs a covariance matrix with the shrinkage intensity
// that produced it (0 = pure sample, 1 = pure structured target).
type CovarianceEstimate struct {
	Cov       [][]float64
	Intensity float64
}

// CovarianceEstimator computes sample and shrinkage-adjusted covariance
// matrices from a return matrix.
type CovarianceEstimator struct {
	log zerolog.Logger
}

// NewCovarianceEstimator creates a covariance estimator.
func NewCovarianceEstimator(log zerolog.Logger) *CovarianceEstimator {
	return &CovarianceEstimator{
		log: log.With().Str("component", "covariance").Logger(),
	}
}

// Estimate computes the covariance matrix for the requested method.
//
// When n_periods <= n_assets the sample covariance is singular, so shrinkage
// is applied regardless of the requested method; the optimizer must never see
// a non-positive-definite matrix.
func (ce *CovarianceEstimator) Estimate(rm *ReturnMatrix, method CovMethod) (*CovarianceEstimate, error) {
	sample, err := ce.SampleCovariance(rm)
	if err != nil {
		return nil, err
	}

	if method == MethodSample && rm.NumPeriods() > rm.NumAssets() {
		return &CovarianceEstimate{Cov: sample, Intensity: 0}, nil
	}

	if method == MethodSample {
		ce.log.Warn().
			Int("num_periods", rm.NumPeriods()).
			Int("num_assets", rm.NumAssets()).
			Msg("Sample covariance is singular, forcing shrinkage")
	}

	shrunk, delta := ce.ledoitWolf(rm, sample)
	return &CovarianceEstimate{Cov: shrunk, Intensity: delta}, nil
}

// SampleCovariance computes the sample covariance matrix (N−1 denominator).
func (ce *CovarianceEstimator) SampleCovariance(rm *ReturnMatrix) ([][]float64, error) {
	n := rm.NumAssets()
	t := rm.NumPeriods()
	if n == 0 {
		return nil, &InvalidInputError{Reason: "empty return matrix"}
	}
	if t < 2 {
		return nil, &InvalidInputError{Reason: "need at least 2 observations for covariance"}
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(rm.Returns[i], rm.Returns[j], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	return cov, nil
}

// ledoitWolf applies Ledoit-Wolf shrinkage toward the constant-correlation
// target and returns the shrunk matrix with the intensity used.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "Honey, I Shrunk the Sample
// Covariance Matrix".
func (ce *CovarianceEstimator) ledoitWolf(rm *ReturnMatrix, sample [][]float64) ([][]float64, float64) {
	n := rm.NumAssets()
	t := float64(rm.NumPeriods())

	// Demean returns once.
	demeaned := make([][]float64, n)
	for i := 0; i < n; i++ {
		mu := stat.Mean(rm.Returns[i], nil)
		row := make([]float64, rm.NumPeriods())
		for k, r := range rm.Returns[i] {
			row[k] = r - mu
		}
		demeaned[i] = row
	}

	// Average correlation across off-diagonal pairs.
	var rbar float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			denom := math.Sqrt(sample[i][i] * sample[j][j])
			if denom > 0 {
				rbar += sample[i][j] / denom
				pairs++
			}
		}
	}
	if pairs > 0 {
		rbar /= float64(pairs)
	}

	// Constant-correlation target F.
	target := make([][]float64, n)
	for i := range target {
		target[i] = make([]float64, n)
		for j := range target[i] {
			if i == j {
				target[i][j] = sample[i][i]
			} else {
				target[i][j] = rbar * math.Sqrt(sample[i][i]*sample[j][j])
			}
		}
	}

	// pi-hat: asymptotic variance of the sample covariance entries.
	// theta terms feed rho-hat, the covariance between the sample entries
	// and the target entries.
	var piHat, rhoHat, gammaHat float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var piIJ, thetaII, thetaJJ float64
			for k := 0; k < int(t); k++ {
				prod := demeaned[i][k] * demeaned[j][k]
				d := prod - sample[i][j]
				piIJ += d * d
				thetaII += (demeaned[i][k]*demeaned[i][k] - sample[i][i]) * d
				thetaJJ += (demeaned[j][k]*demeaned[j][k] - sample[j][j]) * d
			}
			piIJ /= t
			thetaII /= t
			thetaJJ /= t

			piHat += piIJ
			if i == j {
				rhoHat += piIJ
			} else if sample[i][i] > 0 && sample[j][j] > 0 {
				rhoHat += (rbar / 2) * (math.Sqrt(sample[j][j]/sample[i][i])*thetaII +
					math.Sqrt(sample[i][i]/sample[j][j])*thetaJJ)
			}

			diff := target[i][j] - sample[i][j]
			gammaHat += diff * diff
		}
	}

	var delta float64
	if gammaHat > 0 {
		kappa := (piHat - rhoHat) / gammaHat
		delta = clamp01(kappa / t)
	} else {
		// Sample already matches the target structure.
		delta = 1.0
	}

	// Conditioning floor: as the observation count approaches the asset
	// count the sample matrix degenerates, so force the intensity up.
	floor := clamp01((2.0*float64(n) - t) / float64(n))
	if floor > delta {
		delta = floor
	}

	shrunk := make([][]float64, n)
	for i := range shrunk {
		shrunk[i] = make([]float64, n)
		for j := range shrunk[i] {
			shrunk[i][j] = delta*target[i][j] + (1-delta)*sample[i][j]
		}
	}

	// Tiny ridge keeps the matrix positive definite when T <= N even after
	// shrinkage.
	if t <= float64(n) {
		var avgVar float64
		for i := 0; i < n; i++ {
			avgVar += shrunk[i][i]
		}
		avgVar /= float64(n)
		ridge := 1e-8 * avgVar
		for i := 0; i < n; i++ {
			shrunk[i][i] += ridge
		}
	}

	ce.log.Debug().
		Float64("shrinkage_intensity", delta).
		Float64("avg_correlation", rbar).
		Msg("Applied Ledoit-Wolf shrinkage")

	return shrunk, delta
}

// CorrelationFromCovariance converts a covariance matrix to a correlation
// matrix with exact unit diagonal.
func CorrelationFromCovariance(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			denom := math.Sqrt(cov[i][i] * cov[j][j])
			var c float64
			if denom > 0 {
				c = cov[i][j] / denom
			}
			corr[i][j] = c
			corr[j][i] = c
		}
	}

	return corr
}

// ShrinkTowardDiagonal blends a covariance matrix toward its own diagonal.
// Used as the escalation step when the QP solver fails on an ill-conditioned
// matrix.
func ShrinkTowardDiagonal(cov [][]float64, amount float64) [][]float64 {
	amount = clamp01(amount)
	n := len(cov)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			if i == j {
				out[i][j] = cov[i][j]
			} else {
				out[i][j] = (1 - amount) * cov[i][j]
			}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
