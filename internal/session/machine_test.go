package session

import (
	"testing"
	"time"

	"cat-engine/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStartSeedsSession(t *testing.T) {
	m := NewMachine(DefaultConfig())
	s := m.Start("ex-1", StartOptions{
		Mode:        models.ModeAdaptive,
		TargetCount: 10,
		TimeLimit:   30 * time.Minute,
		SeedTheta:   0.8,
		SeedSE:      0.4,
	}, t0)

	if s.State != models.SessionActive {
		t.Fatalf("state = %v, want active", s.State)
	}
	if s.Theta != 0.8 || s.StandardError != 0.4 {
		t.Errorf("seed estimate = (%v, %v), want (0.8, 0.4)", s.Theta, s.StandardError)
	}
	if s.ExpiresAt == nil || !s.ExpiresAt.Equal(t0.Add(30*time.Minute)) {
		t.Errorf("expiresAt = %v, want start + 30m", s.ExpiresAt)
	}
	if len(s.ThetaTrajectory) != 1 || s.ThetaTrajectory[0] != 0.8 {
		t.Errorf("trajectory = %v, want seeded with theta", s.ThetaTrajectory)
	}
}

func TestStartClampsTargetCount(t *testing.T) {
	m := NewMachine(Config{DefaultTargetCount: 20, MaxTargetCount: 50})

	if got := m.Start("e", StartOptions{}, t0).TargetCount; got != 20 {
		t.Errorf("default target = %d, want 20", got)
	}
	if got := m.Start("e", StartOptions{TargetCount: 500}, t0).TargetCount; got != 50 {
		t.Errorf("target = %d, want clamped to 50", got)
	}
}

func TestEvaluateStoppingRules(t *testing.T) {
	m := NewMachine(DefaultConfig())
	s := m.Start("e", StartOptions{TargetCount: 2, TimeLimit: time.Hour}, t0)

	if got := m.Evaluate(s, t0.Add(time.Minute)); got != Continue {
		t.Errorf("fresh session outcome = %v, want Continue", got)
	}

	s.AnsweredCount = 2
	if got := m.Evaluate(s, t0.Add(time.Minute)); got != Complete {
		t.Errorf("at target outcome = %v, want Complete", got)
	}

	// Expiry wins even when the target is reached.
	if got := m.Evaluate(s, t0.Add(2*time.Hour)); got != Expire {
		t.Errorf("past expiry outcome = %v, want Expire", got)
	}
}

func TestRecordServeAndAnswer(t *testing.T) {
	m := NewMachine(DefaultConfig())
	s := m.Start("e", StartOptions{TargetCount: 5}, t0)
	s.ID = "s-1"

	item := models.Item{ItemID: "q-1", Version: 2, TopicID: "algebra"}
	admin := m.RecordServe(s, item)

	if admin.Position != 1 || admin.SessionID != "s-1" || admin.ItemVersion != 2 {
		t.Errorf("administered record = %+v", admin)
	}
	if s.PendingItemID != "q-1" || s.TopicCounts["algebra"] != 1 {
		t.Errorf("serve bookkeeping wrong: pending=%q topics=%v", s.PendingItemID, s.TopicCounts)
	}

	if err := m.ValidateAnswer(s, "q-1", t0.Add(time.Second), false); err != nil {
		t.Fatalf("ValidateAnswer: %v", err)
	}
	m.RecordAnswer(s, 0.3, 0.7)

	if s.AnsweredCount != 1 || s.PendingItemID != "" {
		t.Errorf("answer bookkeeping wrong: answered=%d pending=%q", s.AnsweredCount, s.PendingItemID)
	}
	if len(s.ThetaTrajectory) != 2 || s.ThetaTrajectory[1] != 0.3 {
		t.Errorf("trajectory = %v", s.ThetaTrajectory)
	}
}

func TestValidateAnswerGuards(t *testing.T) {
	m := NewMachine(DefaultConfig())
	s := m.Start("e", StartOptions{TargetCount: 5, TimeLimit: time.Hour}, t0)
	m.RecordServe(s, models.Item{ItemID: "q-1", Version: 1, TopicID: "t"})

	if err := m.ValidateAnswer(s, "q-2", t0, false); err != models.ErrUnknownAdministeredItem {
		t.Errorf("wrong item err = %v, want ErrUnknownAdministeredItem", err)
	}
	if err := m.ValidateAnswer(s, "q-1", t0, true); err != models.ErrDuplicateResponse {
		t.Errorf("duplicate err = %v, want ErrDuplicateResponse", err)
	}
	if err := m.ValidateAnswer(s, "q-1", t0.Add(2*time.Hour), false); err != models.ErrSessionNotActive {
		t.Errorf("expired err = %v, want ErrSessionNotActive", err)
	}

	s.State = models.SessionCompleted
	if err := m.ValidateAnswer(s, "q-1", t0, false); err != models.ErrSessionNotActive {
		t.Errorf("terminal err = %v, want ErrSessionNotActive", err)
	}
}

func TestFinishIsTerminal(t *testing.T) {
	m := NewMachine(DefaultConfig())
	s := m.Start("e", StartOptions{TargetCount: 5}, t0)

	if err := m.Finish(s, models.SessionCompleted, t0); err != nil {
		t.Fatal(err)
	}
	if s.State != models.SessionCompleted || s.FinishedAt == nil {
		t.Errorf("finish did not settle: state=%v finishedAt=%v", s.State, s.FinishedAt)
	}
	if err := m.Finish(s, models.SessionCancelled, t0); err == nil {
		t.Error("second transition out of a terminal state was accepted")
	}
}

func TestConfidenceInterval(t *testing.T) {
	lo, hi := ConfidenceInterval(0.5, 0.25)
	if lo >= 0.5 || hi <= 0.5 {
		t.Fatalf("interval (%v, %v) does not bracket the estimate", lo, hi)
	}
	if hi-lo < 0.9 || hi-lo > 1.0 {
		t.Errorf("interval width = %v, want 2*1.96*0.25", hi-lo)
	}
}
