package calibration

import (
	"math"

	"cat-engine/internal/irt"
	"cat-engine/internal/models"
)

// ResponsePoint is one observation for item fitting: the examinee's ability
// at the moment of the response, and whether it was correct.
type ResponsePoint struct {
	Theta   float64
	Correct bool
}

// ParamSE carries rough standard errors for a fitted parameter set, derived
// from the curvature of the log-likelihood at the optimum.
type ParamSE struct {
	A float64
	B float64
	C float64
}

// MinFitResponses is the hard floor below which fitting is refused
// regardless of the run's configured minimum.
const MinFitResponses = 30

// Fit3PL estimates (a, b, c) by maximizing the Bernoulli log-likelihood over
// a coarse parameter grid, then refining around the best cell. Grid search is
// slower than a gradient method but cannot diverge and needs no starting
// values, which matters for items with degenerate response patterns.
func Fit3PL(points []ResponsePoint) (irt.ItemParams, ParamSE, error) {
	if len(points) < MinFitResponses {
		return irt.ItemParams{}, ParamSE{}, models.ErrCalibrationDataInsufficient
	}

	coarse := gridSpec{
		aMin: 0.3, aMax: 2.5, aStep: 0.1,
		bMin: -3.0, bMax: 3.0, bStep: 0.1,
		cMin: 0.0, cMax: 0.40, cStep: 0.05,
	}
	best := searchGrid(points, coarse)

	fine := gridSpec{
		aMin: best.A - 0.1, aMax: best.A + 0.1, aStep: 0.02,
		bMin: best.B - 0.1, bMax: best.B + 0.1, bStep: 0.02,
		cMin: best.C - 0.05, cMax: best.C + 0.05, cStep: 0.01,
	}
	if fine.aMin < 0.05 {
		fine.aMin = 0.05
	}
	if fine.cMin < 0 {
		fine.cMin = 0
	}
	if fine.cMax > 0.99 {
		fine.cMax = 0.99
	}
	best = searchGrid(points, fine)

	se := standardErrors(points, best)
	return best, se, nil
}

type gridSpec struct {
	aMin, aMax, aStep float64
	bMin, bMax, bStep float64
	cMin, cMax, cStep float64
}

func searchGrid(points []ResponsePoint, g gridSpec) irt.ItemParams {
	best := irt.ItemParams{A: 1, B: 0, C: 0}
	bestLL := math.Inf(-1)
	for a := g.aMin; a <= g.aMax+1e-9; a += g.aStep {
		for b := g.bMin; b <= g.bMax+1e-9; b += g.bStep {
			for c := g.cMin; c <= g.cMax+1e-9; c += g.cStep {
				p := irt.ItemParams{A: a, B: b, C: c}
				if p.Validate() != nil {
					continue
				}
				ll := logLikelihood(points, p)
				if ll > bestLL {
					bestLL = ll
					best = p
				}
			}
		}
	}
	return best
}

func logLikelihood(points []ResponsePoint, p irt.ItemParams) float64 {
	total := 0.0
	for _, pt := range points {
		ll, err := irt.LogLikelihood(pt.Theta, p, pt.Correct)
		if err != nil {
			return math.Inf(-1)
		}
		total += ll
	}
	return total
}

// standardErrors approximates per-parameter SEs from the negative second
// derivative of the log-likelihood along each axis at the optimum.
func standardErrors(points []ResponsePoint, p irt.ItemParams) ParamSE {
	return ParamSE{
		A: axisSE(points, p, func(q irt.ItemParams, h float64) irt.ItemParams { q.A += h; return q }, 0.02),
		B: axisSE(points, p, func(q irt.ItemParams, h float64) irt.ItemParams { q.B += h; return q }, 0.02),
		C: axisSE(points, p, func(q irt.ItemParams, h float64) irt.ItemParams { q.C += h; return q }, 0.01),
	}
}

func axisSE(points []ResponsePoint, p irt.ItemParams, shift func(irt.ItemParams, float64) irt.ItemParams, h float64) float64 {
	center := logLikelihood(points, p)
	up := shift(p, h)
	down := shift(p, -h)
	// Flat or inverted curvature means the SE is undefined for this axis;
	// zero is stored instead of a non-finite value.
	if up.Validate() != nil || down.Validate() != nil {
		return 0
	}
	curvature := (logLikelihood(points, up) - 2*center + logLikelihood(points, down)) / (h * h)
	if curvature >= 0 {
		return 0
	}
	return 1 / math.Sqrt(-curvature)
}
