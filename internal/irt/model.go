// Package irt implements the three-parameter logistic response model and its
// Fisher information. Everything here is pure computation; persistence and
// selection live elsewhere.
package irt

import (
	"errors"
	"math"
)

// D is the logistic scaling constant that aligns the logistic curve with the
// normal ogive metric.
const D = 1.702

// pEpsilon keeps probabilities away from 0 and 1 inside information so the
// division never blows up into Inf/NaN.
const pEpsilon = 1e-6

var ErrInvalidParameters = errors.New("irt: discrimination must be positive and guessing must be in [0, 1)")

// ItemParams are the 3PL parameters of a single item: discrimination A,
// difficulty B and lower asymptote (guessing) C.
type ItemParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
}

// Validate rejects parameter sets outside the model's domain.
func (p ItemParams) Validate() error {
	if p.A <= 0 || p.C < 0 || p.C >= 1 || math.IsNaN(p.A) || math.IsNaN(p.B) || math.IsNaN(p.C) {
		return ErrInvalidParameters
	}
	return nil
}

// Probability returns the 3PL probability of a correct response at ability
// theta: c + (1-c) / (1 + exp(-D*a*(theta-b))). For valid parameters the
// result is always in [c, 1).
func Probability(theta float64, p ItemParams) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return probability(theta, p), nil
}

func probability(theta float64, p ItemParams) float64 {
	return p.C + (1-p.C)/(1+math.Exp(-D*p.A*(theta-p.B)))
}

// Information returns the Fisher information of an item at theta:
// D² a² ((p-c)/(1-c))² (1-p)/p. Non-negative and finite for all theta; its
// mode sits near theta = b when c is small.
func Information(theta float64, p ItemParams) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return information(theta, p), nil
}

func information(theta float64, p ItemParams) float64 {
	prob := probability(theta, p)
	if prob < pEpsilon {
		prob = pEpsilon
	}
	if prob > 1-pEpsilon {
		prob = 1 - pEpsilon
	}
	ratio := (prob - p.C) / (1 - p.C)
	return D * D * p.A * p.A * ratio * ratio * (1 - prob) / prob
}

// LogLikelihood returns the Bernoulli log-likelihood contribution of one
// observed response at theta, with the probability clamped to keep the log
// finite.
func LogLikelihood(theta float64, p ItemParams, correct bool) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	prob := probability(theta, p)
	if prob < pEpsilon {
		prob = pEpsilon
	}
	if prob > 1-pEpsilon {
		prob = 1 - pEpsilon
	}
	if correct {
		return math.Log(prob), nil
	}
	return math.Log(1 - prob), nil
}
