// Package session holds the test-session state machine: lifecycle
// transitions, stopping rules and per-serve/per-answer bookkeeping.
// Everything here is pure state manipulation; persistence, selection and
// estimation are orchestrated by the service layer on top.
package session

import (
	"time"

	"cat-engine/internal/models"
)

// Config bounds session creation.
type Config struct {
	DefaultTargetCount int
	MaxTargetCount     int
	DefaultTimeLimit   time.Duration
}

func DefaultConfig() Config {
	return Config{DefaultTargetCount: 20, MaxTargetCount: 100, DefaultTimeLimit: time.Hour}
}

// Machine applies lifecycle transitions to test sessions. One instance is
// shared across all sessions; it carries no per-session state.
type Machine struct {
	cfg Config
}

func NewMachine(cfg Config) *Machine {
	if cfg.DefaultTargetCount <= 0 {
		cfg.DefaultTargetCount = DefaultConfig().DefaultTargetCount
	}
	if cfg.MaxTargetCount <= 0 {
		cfg.MaxTargetCount = DefaultConfig().MaxTargetCount
	}
	return &Machine{cfg: cfg}
}

// StartOptions carries the caller-provided session settings.
type StartOptions struct {
	Mode        models.SessionMode
	TargetCount int
	TimeLimit   time.Duration
	Constraints models.Constraints
	SeedTheta   float64
	SeedSE      float64
}

// Start builds a new ACTIVE session. The seed theta comes from the
// examinee's persisted global ability estimate (zero for a first-timer).
func (m *Machine) Start(examineeID string, opts StartOptions, now time.Time) *models.TestSession {
	target := opts.TargetCount
	if target <= 0 {
		target = m.cfg.DefaultTargetCount
	}
	if target > m.cfg.MaxTargetCount {
		target = m.cfg.MaxTargetCount
	}
	se := opts.SeedSE
	if se <= 0 {
		se = 1.0
	}

	s := &models.TestSession{
		ExamineeID:      examineeID,
		Mode:            opts.Mode,
		State:           models.SessionActive,
		TargetCount:     target,
		Constraints:     opts.Constraints,
		Theta:           opts.SeedTheta,
		StandardError:   se,
		ThetaTrajectory: []float64{opts.SeedTheta},
		TopicCounts:     map[string]int{},
		Revision:        1,
		StartedAt:       now,
	}
	if opts.TimeLimit > 0 {
		s.TimeLimitSeconds = int(opts.TimeLimit.Seconds())
		expires := now.Add(opts.TimeLimit)
		s.ExpiresAt = &expires
	}
	return s
}

// Outcome is the stopping-rule decision for a session at a point in time.
type Outcome int

const (
	Continue Outcome = iota
	Complete
	Expire
)

// Evaluate applies the stopping rules: expiry wins over completion, and a
// session completes once the answered count reaches the target.
func (m *Machine) Evaluate(s *models.TestSession, now time.Time) Outcome {
	if s.Expired(now) {
		return Expire
	}
	if s.AnsweredCount >= s.TargetCount {
		return Complete
	}
	return Continue
}

// RecordServe registers an administered item: a dense position, the pending
// answer slot and the topic tally used for blueprint balancing.
func (m *Machine) RecordServe(s *models.TestSession, item models.Item) models.AdministeredItem {
	s.ServedCount++
	s.PendingItemID = item.ItemID
	s.PendingVersion = item.Version
	if s.TopicCounts == nil {
		s.TopicCounts = map[string]int{}
	}
	s.TopicCounts[item.TopicID]++
	return models.AdministeredItem{
		SessionID:   s.ID,
		ItemID:      item.ItemID,
		ItemVersion: item.Version,
		Position:    s.ServedCount,
	}
}

// ValidateAnswer guards a submission against the session state: the session
// must be ACTIVE and unexpired, and the item must be the pending, unanswered
// administered item.
func (m *Machine) ValidateAnswer(s *models.TestSession, itemID string, now time.Time, answeredBefore bool) error {
	if s.State != models.SessionActive || s.Expired(now) {
		return models.ErrSessionNotActive
	}
	if answeredBefore {
		return models.ErrDuplicateResponse
	}
	if s.PendingItemID == "" || s.PendingItemID != itemID {
		return models.ErrUnknownAdministeredItem
	}
	return nil
}

// RecordAnswer folds an accepted response into the session: the updated
// ability estimate joins the trajectory and the pending slot clears.
func (m *Machine) RecordAnswer(s *models.TestSession, theta, se float64) {
	s.AnsweredCount++
	s.Theta = theta
	s.StandardError = se
	s.ThetaTrajectory = append(s.ThetaTrajectory, theta)
	s.PendingItemID = ""
	s.PendingVersion = 0
}

// Finish moves the session to a terminal state. Transitions out of a
// terminal state are rejected.
func (m *Machine) Finish(s *models.TestSession, state models.SessionState, now time.Time) error {
	if s.State.Terminal() {
		return models.ErrSessionNotActive
	}
	s.State = state
	s.FinishedAt = &now
	return nil
}

// ConfidenceInterval returns the 95% interval around the current estimate.
func ConfidenceInterval(theta, se float64) (lo, hi float64) {
	return theta - 1.96*se, theta + 1.96*se
}
