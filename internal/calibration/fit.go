package calibration

import (
	"math"

	"github.com/montanaflynn/stats"

	"cat-engine/internal/irt"
)

// FitStats are the model-fit diagnostics stored alongside each calibration:
// point-biserial discrimination and the Rasch-style infit/outfit
// mean-squares. Values near 1 indicate the response pattern matches the
// fitted model; values far above 1 flag misfit.
type FitStats struct {
	PointBiserial float64
	Infit         float64
	Outfit        float64
}

// ComputeFitStats evaluates the diagnostics for a fitted parameter set
// against the observed responses.
func ComputeFitStats(points []ResponsePoint, p irt.ItemParams) (FitStats, error) {
	scores := make(stats.Float64Data, len(points))
	thetas := make(stats.Float64Data, len(points))

	var infitNum, infitDen, outfitSum float64
	n := 0
	for i, pt := range points {
		thetas[i] = pt.Theta
		if pt.Correct {
			scores[i] = 1
		}

		prob, err := irt.Probability(pt.Theta, p)
		if err != nil {
			return FitStats{}, err
		}
		variance := prob * (1 - prob)
		if variance < 1e-9 {
			continue
		}
		resid := scores[i] - prob
		infitNum += resid * resid
		infitDen += variance
		outfitSum += resid * resid / variance
		n++
	}

	out := FitStats{}
	if n > 0 {
		out.Outfit = outfitSum / float64(n)
	}
	if infitDen > 0 {
		out.Infit = infitNum / infitDen
	}

	pb, err := stats.Pearson(scores, thetas)
	if err != nil || math.IsNaN(pb) {
		// Degenerate pattern (all correct or all incorrect) has no defined
		// correlation; report zero rather than failing the whole item.
		pb = 0
	}
	out.PointBiserial = pb
	return out, nil
}
