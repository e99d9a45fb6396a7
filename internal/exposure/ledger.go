// Package exposure implements Sympson-Hetter exposure control: a persisted
// per-item administration probability drawn against at serve time, and a
// periodic recompute that tunes those probabilities toward a configured
// maximum long-run exposure rate.
package exposure

import (
	"context"
	"math/rand"
	"time"

	"cat-engine/internal/models"
)

// Store is the persistence contract for exposure records. Increment must be
// atomic: concurrent TryAdminister calls across sessions may not lose counts.
type Store interface {
	Find(ctx context.Context, itemID string, version int) (*models.ExposureRecord, error)
	Increment(ctx context.Context, itemID string, version int) error
	List(ctx context.Context) ([]models.ExposureRecord, error)
	SetControlProbability(ctx context.Context, itemID string, version int, p float64) error
}

// SessionCounter reports how many sessions have been started, the denominator
// of the observed exposure rate.
type SessionCounter interface {
	CountStarted(ctx context.Context) (int64, error)
}

// Config tunes the Sympson-Hetter recompute.
type Config struct {
	// MaxRate is the target ceiling for any single item's long-run
	// administration rate, e.g. 0.25.
	MaxRate float64
	// MinProbability keeps heavily overexposed items from being frozen out
	// entirely.
	MinProbability float64
	// RelaxFactor slowly restores probability to underexposed items.
	RelaxFactor float64
	// MinSessions is the observation floor below which probabilities are left
	// at their defaults.
	MinSessions int64
}

func DefaultConfig() Config {
	return Config{MaxRate: 0.25, MinProbability: 0.05, RelaxFactor: 1.05, MinSessions: 50}
}

// Ledger mediates every item administration. The random source is injected so
// tests can drive the draws deterministically.
type Ledger struct {
	store    Store
	sessions SessionCounter
	cfg      Config
	rng      *rand.Rand
}

func NewLedger(store Store, sessions SessionCounter, cfg Config, rng *rand.Rand) *Ledger {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Ledger{store: store, sessions: sessions, cfg: cfg, rng: rng}
}

// TryAdminister draws against the item's control probability. On success the
// exposure count is incremented and the item may be served; on failure the
// selector must fall through to its next candidate. Items with no record yet
// are unrestricted (probability 1).
func (l *Ledger) TryAdminister(ctx context.Context, itemID string, version int) (bool, error) {
	p := 1.0
	rec, err := l.store.Find(ctx, itemID, version)
	if err != nil {
		return false, err
	}
	if rec != nil {
		p = rec.ControlProbability
	}
	if p < 1.0 && l.rng.Float64() >= p {
		return false, nil
	}
	if err := l.store.Increment(ctx, itemID, version); err != nil {
		return false, err
	}
	return true, nil
}

// Recompute retunes every control probability from the observed exposure
// rates. Runs outside the serve path, on a schedule. Overexposed items are
// scaled down proportionally; underexposed ones drift back toward 1.
func (l *Ledger) Recompute(ctx context.Context) error {
	total, err := l.sessions.CountStarted(ctx)
	if err != nil {
		return err
	}
	if total < l.cfg.MinSessions {
		return nil
	}

	records, err := l.store.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		observed := float64(rec.ExposureCount) / float64(total)
		p := rec.ControlProbability
		if observed > l.cfg.MaxRate {
			p *= l.cfg.MaxRate / observed
		} else {
			p *= l.cfg.RelaxFactor
		}
		if p > 1.0 {
			p = 1.0
		}
		if p < l.cfg.MinProbability {
			p = l.cfg.MinProbability
		}
		if p == rec.ControlProbability {
			continue
		}
		if err := l.store.SetControlProbability(ctx, rec.ItemID, rec.ItemVersion, p); err != nil {
			return err
		}
	}
	return nil
}
