package ability

import (
	"math"

	"cat-engine/internal/irt"
)

// EAPEstimator computes the Expectation-A-Posteriori estimate: the posterior
// mean of theta under a standard-normal prior, integrated on a fixed uniform
// grid over the clamp bounds. The grid runs in log space so a long response
// history cannot underflow the likelihood product.
type EAPEstimator struct {
	bounds Bounds
	grid   []float64
}

const defaultGridPoints = 81

func NewEAPEstimator(bounds Bounds, gridPoints int) *EAPEstimator {
	if gridPoints < 3 {
		gridPoints = defaultGridPoints
	}
	grid := make([]float64, gridPoints)
	step := (bounds.Max - bounds.Min) / float64(gridPoints-1)
	for i := range grid {
		grid[i] = bounds.Min + float64(i)*step
	}
	return &EAPEstimator{bounds: bounds, grid: grid}
}

// Estimate returns the posterior mean and standard deviation of theta. With
// no responses it falls back to the prior (theta 0, unit spread, clamped).
func (e *EAPEstimator) Estimate(theta0 float64, responses []Observation) (float64, float64, error) {
	for _, r := range responses {
		if err := r.Params.Validate(); err != nil {
			return 0, 0, err
		}
	}
	if len(responses) == 0 {
		return e.bounds.clamp(0), 1.0, nil
	}

	logPost := make([]float64, len(e.grid))
	maxLog := math.Inf(-1)
	for i, t := range e.grid {
		lp := -0.5 * t * t // standard-normal prior up to a constant
		for _, r := range responses {
			ll, err := irt.LogLikelihood(t, r.Params, r.Correct)
			if err != nil {
				return 0, 0, err
			}
			lp += ll
		}
		logPost[i] = lp
		if lp > maxLog {
			maxLog = lp
		}
	}

	var total, mean float64
	weights := make([]float64, len(e.grid))
	for i, lp := range logPost {
		w := math.Exp(lp - maxLog)
		weights[i] = w
		total += w
		mean += w * e.grid[i]
	}
	mean /= total

	var variance float64
	for i, w := range weights {
		d := e.grid[i] - mean
		variance += w * d * d
	}
	variance /= total

	se := math.Sqrt(variance)
	if se < 1e-3 {
		se = 1e-3
	}
	return e.bounds.clamp(mean), se, nil
}
