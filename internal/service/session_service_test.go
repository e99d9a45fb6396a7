package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"cat-engine/internal/ability"
	"cat-engine/internal/models"
	"cat-engine/internal/pkg/logger"
	"cat-engine/internal/selection"
	"cat-engine/internal/session"
)

type memSessions struct {
	byID map[string]models.TestSession
}

func newMemSessions() *memSessions { return &memSessions{byID: map[string]models.TestSession{}} }

func (m *memSessions) Insert(_ context.Context, s *models.TestSession) error {
	// Mirrors the partial unique index on active sessions.
	if s.State == models.SessionActive {
		for _, existing := range m.byID {
			if existing.ExamineeID == s.ExamineeID && existing.State == models.SessionActive {
				return models.ErrActiveSessionExists
			}
		}
	}
	m.byID[s.ID] = *s
	return nil
}

func (m *memSessions) FindByID(_ context.Context, id string) (*models.TestSession, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := s
	return &cp, nil
}

func (m *memSessions) FindActiveByExaminee(_ context.Context, examineeID string) (*models.TestSession, error) {
	for _, s := range m.byID {
		if s.ExamineeID == examineeID && s.State == models.SessionActive {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSessions) Replace(_ context.Context, s *models.TestSession) error {
	stored, ok := m.byID[s.ID]
	if !ok {
		return models.ErrSessionNotFound
	}
	if stored.Revision != s.Revision {
		return models.ErrConcurrencyConflict
	}
	s.Revision++
	m.byID[s.ID] = *s
	return nil
}

func (m *memSessions) ListExpiredActive(_ context.Context, now time.Time) ([]models.TestSession, error) {
	var out []models.TestSession
	for _, s := range m.byID {
		if s.State == models.SessionActive && s.Expired(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

type memItems struct {
	items []models.Item
}

func (m *memItems) FindEligible(_ context.Context, c models.Constraints, excludeIDs []string) ([]models.Item, error) {
	excluded := map[string]bool{}
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	topics := map[string]bool{}
	for _, t := range c.TopicIDs {
		topics[t] = true
	}
	var out []models.Item
	for _, item := range m.items {
		if !item.Published || excluded[item.ItemID] {
			continue
		}
		if len(topics) > 0 && !topics[item.TopicID] {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memItems) FindByVersion(_ context.Context, itemID string, version int) (*models.Item, error) {
	for i := range m.items {
		if m.items[i].ItemID == itemID && m.items[i].Version == version {
			return &m.items[i], nil
		}
	}
	return nil, models.ErrItemNotFound
}

func (m *memItems) FindLatest(_ context.Context, itemID string) (*models.Item, error) {
	var latest *models.Item
	for i := range m.items {
		if m.items[i].ItemID != itemID || m.items[i].SupersededBy != nil {
			continue
		}
		if latest == nil || m.items[i].Version > latest.Version {
			latest = &m.items[i]
		}
	}
	if latest == nil {
		return nil, models.ErrItemNotFound
	}
	return latest, nil
}

type memAdministered struct {
	rows []models.AdministeredItem
}

func (m *memAdministered) Insert(_ context.Context, a *models.AdministeredItem) error {
	for _, row := range m.rows {
		if row.SessionID == a.SessionID && row.ItemID == a.ItemID {
			return models.ErrDuplicateResponse
		}
	}
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memAdministered) ListBySession(_ context.Context, sessionID string) ([]models.AdministeredItem, error) {
	var out []models.AdministeredItem
	for _, row := range m.rows {
		if row.SessionID == sessionID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memResponseStore struct {
	rows []models.Response
}

func (m *memResponseStore) Insert(_ context.Context, r *models.Response) error {
	for _, row := range m.rows {
		if row.SessionID == r.SessionID && row.ItemID == r.ItemID {
			return models.ErrDuplicateResponse
		}
	}
	m.rows = append(m.rows, *r)
	return nil
}

func (m *memResponseStore) ListBySession(_ context.Context, sessionID string) ([]models.Response, error) {
	var out []models.Response
	for _, row := range m.rows {
		if row.SessionID == sessionID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memAbilities struct {
	byKey map[string]models.AbilityEstimate
}

func newMemAbilities() *memAbilities { return &memAbilities{byKey: map[string]models.AbilityEstimate{}} }

func (m *memAbilities) key(examineeID, scope string) string { return examineeID + "|" + scope }

func (m *memAbilities) Find(_ context.Context, examineeID, scope string) (*models.AbilityEstimate, error) {
	est, ok := m.byKey[m.key(examineeID, scope)]
	if !ok {
		return nil, nil
	}
	cp := est
	return &cp, nil
}

func (m *memAbilities) Upsert(_ context.Context, est *models.AbilityEstimate) error {
	m.byKey[m.key(est.ExamineeID, est.Scope)] = *est
	return nil
}

type memCalibrations struct {
	rows []models.ItemCalibration
}

func (m *memCalibrations) FindPromoted(_ context.Context, itemID string, version int) (*models.ItemCalibration, error) {
	for i := range m.rows {
		if m.rows[i].ItemID == itemID && m.rows[i].ItemVersion == version && m.rows[i].Promoted {
			cp := m.rows[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memCalibrations) FindPromotedAsOf(_ context.Context, itemID string, version int, asOf time.Time) (*models.ItemCalibration, error) {
	for i := range m.rows {
		r := m.rows[i]
		if r.ItemID != itemID || r.ItemVersion != version {
			continue
		}
		if r.PromotedAt == nil || r.PromotedAt.After(asOf) {
			continue
		}
		if r.DemotedAt != nil && !r.DemotedAt.After(asOf) {
			continue
		}
		cp := r
		return &cp, nil
	}
	return nil, nil
}

func (m *memCalibrations) promote(cal models.ItemCalibration, at time.Time) {
	for i := range m.rows {
		if m.rows[i].ItemID == cal.ItemID && m.rows[i].ItemVersion == cal.ItemVersion && m.rows[i].Promoted {
			m.rows[i].Promoted = false
			demoted := at
			m.rows[i].DemotedAt = &demoted
		}
	}
	cal.Promoted = true
	cal.PromotedAt = &at
	m.rows = append(m.rows, cal)
}

type openGate struct{}

func (openGate) TryAdminister(_ context.Context, _ string, _ int) (bool, error) { return true, nil }

type recordingTx struct {
	calls int
}

func (t *recordingTx) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type harness struct {
	svc          *SessionService
	sessions     *memSessions
	items        *memItems
	administered *memAdministered
	responses    *memResponseStore
	abilities    *memAbilities
	calibrations *memCalibrations
	tx           *recordingTx
}

func sessionItem(id, topic, label string) models.Item {
	return models.Item{
		ItemID:          id,
		Version:         1,
		TopicID:         topic,
		DifficultyLabel: label,
		Content:         "content " + id,
		Options: []models.Option{
			{Label: "a", Text: "first"},
			{Label: "b", Text: "second"},
		},
		CorrectOption: "a",
		Published:     true,
	}
}

func newHarness(t *testing.T, items []models.Item) *harness {
	t.Helper()
	sessions := newMemSessions()
	itemStore := &memItems{items: items}
	administered := &memAdministered{}
	responses := &memResponseStore{}
	abilities := newMemAbilities()

	calibrations := &memCalibrations{}
	tx := &recordingTx{}

	estimator, err := ability.New("eap", ability.DefaultBounds(), 0)
	if err != nil {
		t.Fatal(err)
	}
	selector := selection.NewSelector(
		itemStore, calibrations, openGate{},
		selection.DefaultConfig(), rand.New(rand.NewSource(7)),
	)
	svc := NewSessionService(
		sessions, itemStore, administered, responses, abilities,
		selector, calibrations, estimator,
		session.NewMachine(session.Config{DefaultTargetCount: 3, MaxTargetCount: 10}),
		nil, tx, logger.NewNop(),
	)
	return &harness{
		svc:          svc,
		sessions:     sessions,
		items:        itemStore,
		administered: administered,
		responses:    responses,
		abilities:    abilities,
		calibrations: calibrations,
		tx:           tx,
	}
}

func defaultPool(n int) []models.Item {
	labels := []string{"easy", "medium", "hard"}
	items := make([]models.Item, n)
	for i := 0; i < n; i++ {
		items[i] = sessionItem(fmt.Sprintf("item-%02d", i), "topic-a", labels[i%len(labels)])
	}
	return items
}

func TestStartSeedsFromStoredAbility(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	h.abilities.Upsert(context.Background(), &models.AbilityEstimate{
		ExamineeID: "u1", Scope: models.AbilityScopeGlobal, Theta: 1.3, StandardError: 0.4,
	})

	sess, err := h.svc.Start(context.Background(), "u1", StartRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Theta != 1.3 || sess.StandardError != 0.4 {
		t.Errorf("seed = (%v, %v), want stored (1.3, 0.4)", sess.Theta, sess.StandardError)
	}
	if sess.State != models.SessionActive {
		t.Errorf("state = %v, want active", sess.State)
	}
}

func TestStartRejectsSecondActiveSession(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	if _, err := h.svc.Start(context.Background(), "u1", StartRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Start(context.Background(), "u1", StartRequest{}); err != models.ErrActiveSessionExists {
		t.Fatalf("err = %v, want ErrActiveSessionExists", err)
	}
	// A different examinee is unaffected.
	if _, err := h.svc.Start(context.Background(), "u2", StartRequest{}); err != nil {
		t.Fatal(err)
	}
}

func answerNext(t *testing.T, h *harness, sessionID, examineeID, choice string) *Feedback {
	t.Helper()
	next, err := h.svc.Next(context.Background(), sessionID, examineeID)
	if err != nil {
		t.Fatal(err)
	}
	if next.Item == nil {
		t.Fatalf("no item served, state %v", next.State)
	}
	if next.Item.CorrectOption != "" || next.Item.Rationale != "" {
		t.Fatal("served item leaks the answer key")
	}
	fb, err := h.svc.SubmitAnswer(context.Background(), sessionID, examineeID, SubmitRequest{
		ItemID:       next.Item.ItemID,
		ChosenOption: choice,
	})
	if err != nil {
		t.Fatal(err)
	}
	return fb
}

func TestFullSessionCountsMatch(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, err := h.svc.Start(context.Background(), "u1", StartRequest{TargetCount: 3})
	if err != nil {
		t.Fatal(err)
	}

	var last *Feedback
	for i := 0; i < 3; i++ {
		last = answerNext(t, h, sess.ID, "u1", "a")
		if !last.Correct {
			t.Fatalf("round %d scored incorrect for the keyed option", i)
		}
	}
	if last.State != models.SessionCompleted {
		t.Fatalf("state after target reached = %v, want completed", last.State)
	}

	served, _ := h.administered.ListBySession(context.Background(), sess.ID)
	answered, _ := h.responses.ListBySession(context.Background(), sess.ID)
	if len(served) != len(answered) {
		t.Errorf("administered %d != responses %d", len(served), len(answered))
	}
	for i, a := range served {
		if a.Position != i+1 {
			t.Errorf("position[%d] = %d, want dense sequence", i, a.Position)
		}
	}
}

func TestRepeatedNextServesPendingItem(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{})

	first, err := h.svc.Next(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.svc.Next(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Item.ItemID != second.Item.ItemID {
		t.Errorf("re-request advanced from %s to %s without an answer", first.Item.ItemID, second.Item.ItemID)
	}
	served, _ := h.administered.ListBySession(context.Background(), sess.ID)
	if len(served) != 1 {
		t.Errorf("administered %d rows, want 1", len(served))
	}
}

func TestDuplicateSubmissionRejectedAndThetaUnchanged(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{TargetCount: 3})

	fb := answerNext(t, h, sess.ID, "u1", "a")
	answeredID := ""
	for _, r := range h.responses.rows {
		answeredID = r.ItemID
	}

	_, err := h.svc.SubmitAnswer(context.Background(), sess.ID, "u1", SubmitRequest{
		ItemID: answeredID, ChosenOption: "b",
	})
	if err != models.ErrDuplicateResponse {
		t.Fatalf("err = %v, want ErrDuplicateResponse", err)
	}

	after, _ := h.sessions.FindByID(context.Background(), sess.ID)
	if after.Theta != fb.Theta {
		t.Errorf("theta moved %v -> %v on a rejected duplicate", fb.Theta, after.Theta)
	}
	if after.AnsweredCount != 1 {
		t.Errorf("answered count = %d, want 1", after.AnsweredCount)
	}
}

func TestSubmitUnknownItemRejected(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{})
	if _, err := h.svc.Next(context.Background(), sess.ID, "u1"); err != nil {
		t.Fatal(err)
	}

	_, err := h.svc.SubmitAnswer(context.Background(), sess.ID, "u1", SubmitRequest{
		ItemID: "never-served", ChosenOption: "a",
	})
	if err != models.ErrUnknownAdministeredItem {
		t.Fatalf("err = %v, want ErrUnknownAdministeredItem", err)
	}
}

func TestConcurrencyConflictSurfaces(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{})
	next, err := h.svc.Next(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}

	// A racing writer bumps the stored revision between read and replace.
	stored := h.sessions.byID[sess.ID]
	stored.Revision++
	h.sessions.byID[sess.ID] = stored

	_, err = h.svc.SubmitAnswer(context.Background(), sess.ID, "u1", SubmitRequest{
		ItemID: next.Item.ItemID, ChosenOption: "a",
	})
	if err != models.ErrConcurrencyConflict {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}
	responses, _ := h.responses.ListBySession(context.Background(), sess.ID)
	if len(responses) != 0 {
		t.Error("losing submission must not record a response")
	}
}

func TestPoolExhaustionCompletesShort(t *testing.T) {
	h := newHarness(t, defaultPool(2))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{TargetCount: 5})

	answerNext(t, h, sess.ID, "u1", "a")
	answerNext(t, h, sess.ID, "u1", "b")

	next, err := h.svc.Next(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if next.State != models.SessionCompleted || next.Item != nil {
		t.Fatalf("exhausted pool: state %v item %v, want completed with no item", next.State, next.Item)
	}

	results, err := h.svc.Results(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !results.Shortened {
		t.Error("results must flag the shortened session")
	}
	if results.ItemsAnswered != 2 || results.ItemsCorrect != 1 {
		t.Errorf("answered/correct = %d/%d, want 2/1", results.ItemsAnswered, results.ItemsCorrect)
	}
}

func TestResultsRequireTerminalState(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{})
	if _, err := h.svc.Results(context.Background(), sess.ID, "u1"); err != models.ErrSessionNotTerminal {
		t.Fatalf("err = %v, want ErrSessionNotTerminal", err)
	}
}

func TestResultsAggregation(t *testing.T) {
	items := []models.Item{
		sessionItem("t1", "algebra", "medium"),
		sessionItem("t2", "algebra", "medium"),
		sessionItem("t3", "geometry", "medium"),
	}
	h := newHarness(t, items)
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{TargetCount: 3})

	choices := map[string]string{"t1": "a", "t2": "b", "t3": "a"}
	for i := 0; i < 3; i++ {
		next, err := h.svc.Next(context.Background(), sess.ID, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.svc.SubmitAnswer(context.Background(), sess.ID, "u1", SubmitRequest{
			ItemID:         next.Item.ItemID,
			ChosenOption:   choices[next.Item.ItemID],
			ResponseTimeMs: 1000 * (i + 1),
		}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := h.svc.Results(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if results.ItemsCorrect != 2 {
		t.Errorf("correct = %d, want 2", results.ItemsCorrect)
	}
	algebra := results.Topics["algebra"]
	if algebra.Attempted != 2 || algebra.Correct != 1 {
		t.Errorf("algebra breakdown = %+v, want 2 attempted 1 correct", algebra)
	}
	if results.Times.TotalMs != 6000 {
		t.Errorf("total time = %d, want 6000", results.Times.TotalMs)
	}
	if results.Times.MeanMs != 2000 {
		t.Errorf("mean time = %v, want 2000", results.Times.MeanMs)
	}
	if len(results.ThetaTrajectory) != 4 {
		t.Errorf("trajectory length = %d, want seed plus three updates", len(results.ThetaTrajectory))
	}
	if results.Percentile <= 0 || results.Percentile >= 100 {
		t.Errorf("percentile = %v, want inside (0, 100)", results.Percentile)
	}
}

func TestAbilityPersistedPerScope(t *testing.T) {
	items := []models.Item{
		sessionItem("t1", "algebra", "medium"),
		sessionItem("t2", "geometry", "medium"),
	}
	h := newHarness(t, items)
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{TargetCount: 2})

	answerNext(t, h, sess.ID, "u1", "a")
	answerNext(t, h, sess.ID, "u1", "a")

	global, _ := h.abilities.Find(context.Background(), "u1", models.AbilityScopeGlobal)
	if global == nil || global.ResponseCount != 2 {
		t.Fatalf("global estimate = %+v, want response count 2", global)
	}
	for _, topic := range []string{"algebra", "geometry"} {
		est, _ := h.abilities.Find(context.Background(), "u1", topic)
		if est == nil || est.ResponseCount != 1 {
			t.Errorf("%s estimate = %+v, want response count 1", topic, est)
		}
	}
	if global.Theta <= 0 {
		t.Errorf("global theta = %v after two correct answers, want positive", global.Theta)
	}
}

func TestCancelAndTerminalGuard(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{})

	cancelled, err := h.svc.Cancel(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.State != models.SessionCancelled {
		t.Fatalf("state = %v, want cancelled", cancelled.State)
	}
	if _, err := h.svc.Cancel(context.Background(), sess.ID, "u1"); err != models.ErrSessionNotActive {
		t.Fatalf("second cancel err = %v, want ErrSessionNotActive", err)
	}

	next, err := h.svc.Next(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if next.Item != nil {
		t.Error("cancelled session must not serve items")
	}
}

func TestExpirySweep(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{TimeLimitSeconds: 1})

	stored := h.sessions.byID[sess.ID]
	past := time.Now().UTC().Add(-time.Minute)
	stored.ExpiresAt = &past
	h.sessions.byID[sess.ID] = stored

	swept, err := h.svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	after, _ := h.sessions.FindByID(context.Background(), sess.ID)
	if after.State != models.SessionExpired {
		t.Errorf("state = %v, want expired", after.State)
	}

	// Expired sessions no longer block a fresh start.
	if _, err := h.svc.Start(context.Background(), "u1", StartRequest{}); err != nil {
		t.Fatal(err)
	}
}

func TestFixedModeServesGivenOrder(t *testing.T) {
	items := []models.Item{
		sessionItem("f1", "algebra", "easy"),
		sessionItem("f2", "algebra", "hard"),
		sessionItem("f3", "geometry", "medium"),
	}
	h := newHarness(t, items)
	sess, err := h.svc.Start(context.Background(), "u1", StartRequest{
		Mode:    models.ModeFixed,
		ItemIDs: []string{"f3", "f1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sess.TargetCount != 2 {
		t.Fatalf("target = %d, want clamped to the form length", sess.TargetCount)
	}

	for i, want := range []string{"f3", "f1"} {
		next, err := h.svc.Next(context.Background(), sess.ID, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if next.Item.ItemID != want {
			t.Fatalf("position %d served %s, want %s", i+1, next.Item.ItemID, want)
		}
		if _, err := h.svc.SubmitAnswer(context.Background(), sess.ID, "u1", SubmitRequest{
			ItemID: want, ChosenOption: "a",
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiagnosticModeCoversTopics(t *testing.T) {
	items := []models.Item{
		sessionItem("d1", "algebra", "medium"),
		sessionItem("d2", "algebra", "medium"),
		sessionItem("d3", "geometry", "medium"),
		sessionItem("d4", "statistics", "medium"),
	}
	h := newHarness(t, items)
	sess, err := h.svc.Start(context.Background(), "u1", StartRequest{
		Mode:        models.ModeDiagnostic,
		TargetCount: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.FixedItemIDs) != 3 {
		t.Fatalf("form length = %d, want 3", len(sess.FixedItemIDs))
	}

	topics := map[string]bool{}
	for _, id := range sess.FixedItemIDs {
		item, _ := h.items.FindLatest(context.Background(), id)
		topics[item.TopicID] = true
	}
	if len(topics) != 3 {
		t.Errorf("form covers %d topics, want one item from each of 3", len(topics))
	}
}

func TestSessionHiddenFromOtherExaminee(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{})
	if _, err := h.svc.Get(context.Background(), sess.ID, "u2"); err != models.ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

// runFixedSession answers a fixed three-item form and returns the final theta.
// Fixed mode keeps the item order deterministic so two runs differ only in the
// parameters in force.
func runFixedSession(t *testing.T, h *harness, examineeID string, choices []string) float64 {
	t.Helper()
	sess, err := h.svc.Start(context.Background(), examineeID, StartRequest{
		Mode:    models.ModeFixed,
		ItemIDs: []string{"q1", "q2", "q3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, choice := range choices {
		next, err := h.svc.Next(context.Background(), sess.ID, examineeID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.svc.SubmitAnswer(context.Background(), sess.ID, examineeID, SubmitRequest{
			ItemID: next.Item.ItemID, ChosenOption: choice,
		}); err != nil {
			t.Fatal(err)
		}
	}
	final, err := h.sessions.FindByID(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	return final.Theta
}

func TestPromotionDoesNotAffectActiveSession(t *testing.T) {
	items := []models.Item{
		sessionItem("q1", "algebra", "medium"),
		sessionItem("q2", "algebra", "medium"),
		sessionItem("q3", "algebra", "medium"),
	}
	choices := []string{"a", "b", "a"}

	control := newHarness(t, items)
	baseline := runFixedSession(t, control, "u1", choices)

	h := newHarness(t, items)
	sess, err := h.svc.Start(context.Background(), "u1", StartRequest{
		Mode:    models.ModeFixed,
		ItemIDs: []string{"q1", "q2", "q3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	next, err := h.svc.Next(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.SubmitAnswer(context.Background(), sess.ID, "u1", SubmitRequest{
		ItemID: next.Item.ItemID, ChosenOption: choices[0],
	}); err != nil {
		t.Fatal(err)
	}

	// Governance promotes drastically different parameters between answers:
	// after this session started, before the next one will.
	promotedAt := time.Now().UTC()
	if !promotedAt.After(sess.StartedAt) {
		promotedAt = sess.StartedAt.Add(time.Nanosecond)
	}
	for _, id := range []string{"q1", "q2", "q3"} {
		h.calibrations.promote(models.ItemCalibration{
			ItemID: id, ItemVersion: 1, A: 2.5, B: -3.0, C: 0.05,
		}, promotedAt)
	}

	for _, choice := range choices[1:] {
		next, err := h.svc.Next(context.Background(), sess.ID, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.svc.SubmitAnswer(context.Background(), sess.ID, "u1", SubmitRequest{
			ItemID: next.Item.ItemID, ChosenOption: choice,
		}); err != nil {
			t.Fatal(err)
		}
	}
	final, _ := h.sessions.FindByID(context.Background(), sess.ID)
	if math.Abs(final.Theta-baseline) > 1e-12 {
		t.Fatalf("mid-session promotion moved theta %v -> %v", baseline, final.Theta)
	}

	// A session started after the promotion does pick up the new parameters.
	after := runFixedSession(t, h, "u2", choices)
	if math.Abs(after-baseline) < 1e-9 {
		t.Errorf("post-promotion session theta %v matches pre-promotion %v, new parameters unused", after, baseline)
	}
}

// racingSessions simulates the window where two Start calls both pass the
// active-session check before either insert lands.
type racingSessions struct {
	*memSessions
}

func (r *racingSessions) FindActiveByExaminee(_ context.Context, _ string) (*models.TestSession, error) {
	return nil, nil
}

func TestStartRaceStoppedByUniqueInsert(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	h.svc.Sessions = &racingSessions{h.sessions}

	if _, err := h.svc.Start(context.Background(), "u1", StartRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Start(context.Background(), "u1", StartRequest{}); err != models.ErrActiveSessionExists {
		t.Fatalf("err = %v, want ErrActiveSessionExists from the insert", err)
	}
}

func TestServeAndSubmitWritePairsRunTransactionally(t *testing.T) {
	h := newHarness(t, defaultPool(10))
	sess, _ := h.svc.Start(context.Background(), "u1", StartRequest{})

	answerNext(t, h, sess.ID, "u1", "a")
	// One transaction for the serve pair (session replace + administered
	// insert), one for the submit pair (session replace + response insert).
	if h.tx.calls != 2 {
		t.Errorf("transactor ran %d times, want 2", h.tx.calls)
	}
}
