// Package selection picks the next item for an adaptive session: maximum
// Fisher information at the current theta, randomized over the top K to avoid
// deterministic overexposure, gated by the Sympson-Hetter ledger and balanced
// against the session blueprint.
package selection

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"cat-engine/internal/irt"
	"cat-engine/internal/models"
)

// ItemSource supplies the eligible published pool for a set of constraints,
// minus the already administered items.
type ItemSource interface {
	FindEligible(ctx context.Context, c models.Constraints, excludeIDs []string) ([]models.Item, error)
}

// CalibrationSource supplies the promoted calibration for an item version, or
// nil when none has been promoted yet. FindPromotedAsOf resolves the row that
// was live at a past instant, so a session keeps the parameters in force when
// it started even if governance promotes new ones mid-flight.
type CalibrationSource interface {
	FindPromoted(ctx context.Context, itemID string, version int) (*models.ItemCalibration, error)
	FindPromotedAsOf(ctx context.Context, itemID string, version int, asOf time.Time) (*models.ItemCalibration, error)
}

// Gate is the exposure-control admission check. A false return means the
// draw failed and the selector must fall through to its next candidate.
type Gate interface {
	TryAdminister(ctx context.Context, itemID string, version int) (bool, error)
}

// Config tunes the selector.
type Config struct {
	// TopK is the randomization window over the information ranking.
	TopK int
}

func DefaultConfig() Config { return Config{TopK: 5} }

// Selector implements the adaptive item pick. The random source is injected
// so tests can assert exact outcomes.
type Selector struct {
	items        ItemSource
	calibrations CalibrationSource
	gate         Gate
	cfg          Config
	rng          *rand.Rand
}

func NewSelector(items ItemSource, calibrations CalibrationSource, gate Gate, cfg Config, rng *rand.Rand) *Selector {
	if cfg.TopK < 1 {
		cfg.TopK = DefaultConfig().TopK
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{items: items, calibrations: calibrations, gate: gate, cfg: cfg, rng: rng}
}

// SelectNext returns the next item to administer, or
// models.ErrNoItemAvailable once the eligible pool is exhausted (including
// exposure-control rejections). The caller records the administration.
func (s *Selector) SelectNext(ctx context.Context, req Request) (*Result, error) {
	pool, err := s.items.FindEligible(ctx, req.Constraints, req.ExcludeIDs)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, models.ErrNoItemAvailable
	}

	candidates, err := s.rank(ctx, req, pool)
	if err != nil {
		return nil, err
	}
	candidates = s.balanceBlueprint(candidates, req)

	total := len(candidates)
	skips := 0
	for len(candidates) > 0 {
		window := s.cfg.TopK
		if window > len(candidates) {
			window = len(candidates)
		}
		idx := s.rng.Intn(window)
		pick := candidates[idx]

		ok, err := s.gate.TryAdminister(ctx, pick.Item.ItemID, pick.Item.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Result{Candidate: pick, TotalCandidates: total, ExposureSkips: skips}, nil
		}
		skips++
		candidates = append(candidates[:idx], candidates[idx+1:]...)
	}
	return nil, models.ErrNoItemAvailable
}

// rank computes information at theta for every pool item, highest first.
// Items without a promoted calibration fall back to the defaults for their
// difficulty label. A non-zero AsOf pins the lookup to the calibrations live
// at that time.
func (s *Selector) rank(ctx context.Context, req Request, pool []models.Item) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(pool))
	for _, item := range pool {
		params := DefaultParamsFor(item.DifficultyLabel)
		calibrated := false
		var cal *models.ItemCalibration
		var err error
		if req.AsOf.IsZero() {
			cal, err = s.calibrations.FindPromoted(ctx, item.ItemID, item.Version)
		} else {
			cal, err = s.calibrations.FindPromotedAsOf(ctx, item.ItemID, item.Version, req.AsOf)
		}
		if err != nil {
			return nil, err
		}
		if cal != nil {
			params = irt.ItemParams{A: cal.A, B: cal.B, C: cal.C}
			calibrated = true
		}
		info, err := irt.Information(req.Theta, params)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			Item:        item,
			Params:      params,
			Information: info,
			Calibrated:  calibrated,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Information > candidates[j].Information
	})
	return candidates, nil
}

// balanceBlueprint narrows the candidate list to the most underserved topic
// when blueprint weights are configured, so the realized topic distribution
// converges to the targets over the session. Falls back to the full list when
// the deficit topic has no remaining candidates.
func (s *Selector) balanceBlueprint(candidates []Candidate, req Request) []Candidate {
	weights := req.Constraints.BlueprintWeights
	if len(weights) == 0 || len(candidates) == 0 {
		return candidates
	}

	// Sorted topic order so equal deficits tie-break the same way every run.
	topics := make([]string, 0, len(weights))
	for topic := range weights {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	served := float64(req.Served)
	deficitTopic := ""
	maxDeficit := 0.0
	for _, topic := range topics {
		realized := 0.0
		if served > 0 {
			realized = float64(req.TopicCounts[topic]) / served
		}
		deficit := weights[topic] - realized
		if deficit > maxDeficit {
			maxDeficit = deficit
			deficitTopic = topic
		}
	}
	if deficitTopic == "" {
		return candidates
	}

	narrowed := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Item.TopicID == deficitTopic {
			narrowed = append(narrowed, c)
		}
	}
	if len(narrowed) == 0 {
		return candidates
	}
	return narrowed
}
