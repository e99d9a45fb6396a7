package ability

import (
	"math"

	"cat-engine/internal/irt"
)

// ResidualEstimator is the lightweight alternative to EAP: a single damped
// residual step per response, weighted down as information accumulates. It
// replays the history from theta0 so the result depends only on the inputs.
type ResidualEstimator struct {
	bounds  Bounds
	damping float64
}

func NewResidualEstimator(bounds Bounds) *ResidualEstimator {
	return &ResidualEstimator{bounds: bounds, damping: 1.2}
}

// Estimate applies one update per response in order. Each step moves theta
// toward the response direction (up on correct, down on incorrect) by the
// damped residual (x - p), shrunk by the information gathered so far.
func (e *ResidualEstimator) Estimate(theta0 float64, responses []Observation) (float64, float64, error) {
	theta := e.bounds.clamp(theta0)
	infoSum := 0.0

	for _, r := range responses {
		p, err := irt.Probability(theta, r.Params)
		if err != nil {
			return 0, 0, err
		}
		info, err := irt.Information(theta, r.Params)
		if err != nil {
			return 0, 0, err
		}

		x := 0.0
		if r.Correct {
			x = 1.0
		}
		step := e.damping * (x - p) / (1 + math.Sqrt(infoSum))
		theta = e.bounds.clamp(theta + step)
		infoSum += info
	}

	se := 1.0
	if infoSum > 0 {
		se = 1 / math.Sqrt(infoSum)
	}
	if se > 1.0 {
		se = 1.0
	}
	if se < 1e-3 {
		se = 1e-3
	}
	return theta, se, nil
}
