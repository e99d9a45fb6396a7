package selection

import (
	"time"

	"cat-engine/internal/irt"
	"cat-engine/internal/models"
)

// Request carries everything the selector needs to pick the next item for a
// session: the current ability estimate, the items already administered and
// the session's content constraints.
type Request struct {
	SessionID   string
	Theta       float64
	ExcludeIDs  []string
	Constraints models.Constraints
	// TopicCounts is the realized per-topic administration count so far,
	// used for blueprint balancing.
	TopicCounts map[string]int
	// Served is the total number of items administered so far.
	Served int
	// AsOf pins calibration lookups to the rows live at that instant,
	// normally the session's start time. Zero means the current view.
	AsOf time.Time
}

// Candidate is an eligible item with the parameters and information value
// used to rank it.
type Candidate struct {
	Item        models.Item
	Params      irt.ItemParams
	Information float64
	Calibrated  bool
}

// Result is the selector's pick plus the ranking context it was drawn from.
type Result struct {
	Candidate       Candidate
	TotalCandidates int
	ExposureSkips   int
}

// defaultParams are the fallback 3PL parameters keyed by difficulty label,
// used for items that have no promoted calibration yet.
var defaultParams = map[string]irt.ItemParams{
	"easy":   {A: 1.0, B: -1.0, C: 0.2},
	"medium": {A: 1.0, B: 0.0, C: 0.2},
	"hard":   {A: 1.0, B: 1.0, C: 0.2},
}

// DefaultParamsFor returns the fallback parameters for a difficulty label,
// medium when the label is unknown.
func DefaultParamsFor(label string) irt.ItemParams {
	if p, ok := defaultParams[label]; ok {
		return p
	}
	return defaultParams["medium"]
}
