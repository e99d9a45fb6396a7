// Package ability estimates examinee ability from a response history. Two
// strategies satisfy the same contract: the canonical EAP posterior-mean
// estimator and a damped residual update for callers that want the cheap
// path. Both move theta toward the response direction, stay inside the clamp
// bounds and never emit NaN/Inf.
package ability

import (
	"fmt"

	"cat-engine/internal/irt"
)

// Observation is one scored response with the item parameters in force when
// it was administered.
type Observation struct {
	Params  irt.ItemParams
	Correct bool
}

// Estimator produces a point estimate of theta and its standard error from a
// full response history. theta0 seeds estimators that iterate from a starting
// point; EAP ignores it.
type Estimator interface {
	Estimate(theta0 float64, responses []Observation) (theta, se float64, err error)
}

// Bounds clamp every estimate so a long all-correct or all-incorrect streak
// cannot diverge.
type Bounds struct {
	Min float64
	Max float64
}

func DefaultBounds() Bounds { return Bounds{Min: -4, Max: 4} }

func (b Bounds) clamp(theta float64) float64 {
	if theta < b.Min {
		return b.Min
	}
	if theta > b.Max {
		return b.Max
	}
	return theta
}

// New returns the estimator named by strategy: "eap" or "residual".
func New(strategy string, bounds Bounds, gridPoints int) (Estimator, error) {
	switch strategy {
	case "", "eap":
		return NewEAPEstimator(bounds, gridPoints), nil
	case "residual":
		return NewResidualEstimator(bounds), nil
	}
	return nil, fmt.Errorf("ability: unknown estimator strategy %q", strategy)
}
