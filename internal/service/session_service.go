package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"cat-engine/internal/ability"
	"cat-engine/internal/event"
	"cat-engine/internal/irt"
	"cat-engine/internal/models"
	"cat-engine/internal/pkg/logger"
	"cat-engine/internal/selection"
	"cat-engine/internal/session"
)

// SessionStore persists test sessions with optimistic concurrency on Replace.
type SessionStore interface {
	Insert(ctx context.Context, s *models.TestSession) error
	FindByID(ctx context.Context, id string) (*models.TestSession, error)
	FindActiveByExaminee(ctx context.Context, examineeID string) (*models.TestSession, error)
	Replace(ctx context.Context, s *models.TestSession) error
	ListExpiredActive(ctx context.Context, now time.Time) ([]models.TestSession, error)
}

// ItemStore reads published items.
type ItemStore interface {
	FindEligible(ctx context.Context, c models.Constraints, excludeIDs []string) ([]models.Item, error)
	FindByVersion(ctx context.Context, itemID string, version int) (*models.Item, error)
	FindLatest(ctx context.Context, itemID string) (*models.Item, error)
}

// AdministeredStore records served items.
type AdministeredStore interface {
	Insert(ctx context.Context, a *models.AdministeredItem) error
	ListBySession(ctx context.Context, sessionID string) ([]models.AdministeredItem, error)
}

// ResponseStore appends submitted answers.
type ResponseStore interface {
	Insert(ctx context.Context, r *models.Response) error
	ListBySession(ctx context.Context, sessionID string) ([]models.Response, error)
}

// AbilityStore persists per-examinee ability estimates.
type AbilityStore interface {
	Find(ctx context.Context, examineeID, scope string) (*models.AbilityEstimate, error)
	Upsert(ctx context.Context, est *models.AbilityEstimate) error
}

// ItemSelector picks the next adaptive item.
type ItemSelector interface {
	SelectNext(ctx context.Context, req selection.Request) (*selection.Result, error)
}

// Publisher pushes lifecycle events; a nil Publisher disables publishing.
type Publisher interface {
	Publish(routingKey string, payload interface{}) error
}

// Transactor runs fn atomically; paired writes either both land or neither
// does. A nil Transactor runs fn directly.
type Transactor interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionService orchestrates the test-session lifecycle: start, adaptive
// serving, answer submission with inline ability estimation, results and
// cancellation.
type SessionService struct {
	Sessions     SessionStore
	Items        ItemStore
	Administered AdministeredStore
	Responses    ResponseStore
	Abilities    AbilityStore

	selector     ItemSelector
	calibrations selection.CalibrationSource
	estimator    ability.Estimator
	machine      *session.Machine
	publisher    Publisher
	tx           Transactor
	log          *logger.Logger
}

func NewSessionService(
	sessions SessionStore,
	items ItemStore,
	administered AdministeredStore,
	responses ResponseStore,
	abilities AbilityStore,
	selector ItemSelector,
	calibrations selection.CalibrationSource,
	estimator ability.Estimator,
	machine *session.Machine,
	publisher Publisher,
	tx Transactor,
	log *logger.Logger,
) *SessionService {
	return &SessionService{
		Sessions:     sessions,
		Items:        items,
		Administered: administered,
		Responses:    responses,
		Abilities:    abilities,
		selector:     selector,
		calibrations: calibrations,
		estimator:    estimator,
		machine:      machine,
		publisher:    publisher,
		tx:           tx,
		log:          log,
	}
}

// StartRequest carries the caller-provided session settings. ItemIDs is the
// pre-materialized form for fixed mode and is ignored otherwise.
type StartRequest struct {
	Mode             models.SessionMode `json:"mode"`
	TargetCount      int                `json:"target_count"`
	TimeLimitSeconds int                `json:"time_limit_seconds"`
	Constraints      models.Constraints `json:"constraints"`
	ItemIDs          []string           `json:"item_ids"`
}

// Start creates an ACTIVE session seeded from the examinee's persisted global
// ability estimate. One active session per examinee: an unexpired active
// session blocks, an expired one is finished first.
func (s *SessionService) Start(ctx context.Context, examineeID string, req StartRequest) (*models.TestSession, error) {
	now := time.Now().UTC()

	existing, err := s.Sessions.FindActiveByExaminee(ctx, examineeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Expired(now) {
			return nil, models.ErrActiveSessionExists
		}
		if err := s.finish(ctx, existing, models.SessionExpired, now); err != nil {
			return nil, err
		}
	}

	seedTheta, seedSE := 0.0, 1.0
	if est, err := s.Abilities.Find(ctx, examineeID, models.AbilityScopeGlobal); err != nil {
		return nil, err
	} else if est != nil {
		seedTheta, seedSE = est.Theta, est.StandardError
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeAdaptive
	}
	opts := session.StartOptions{
		Mode:        mode,
		TargetCount: req.TargetCount,
		TimeLimit:   time.Duration(req.TimeLimitSeconds) * time.Second,
		Constraints: req.Constraints,
		SeedTheta:   seedTheta,
		SeedSE:      seedSE,
	}

	sess := s.machine.Start(examineeID, opts, now)
	sess.ID = uuid.NewString()

	switch mode {
	case models.ModeFixed:
		sess.FixedItemIDs = req.ItemIDs
		if len(sess.FixedItemIDs) > 0 && len(sess.FixedItemIDs) < sess.TargetCount {
			sess.TargetCount = len(sess.FixedItemIDs)
		}
	case models.ModeDiagnostic:
		ids, err := s.materializeDiagnosticForm(ctx, sess)
		if err != nil {
			return nil, err
		}
		sess.FixedItemIDs = ids
		if len(ids) < sess.TargetCount {
			sess.TargetCount = len(ids)
		}
	}

	if err := s.Sessions.Insert(ctx, sess); err != nil {
		return nil, err
	}
	s.publish(event.SessionStarted, sess)
	s.log.Info("session started",
		"session_id", sess.ID, "examinee_id", examineeID,
		"mode", sess.Mode, "target", sess.TargetCount, "seed_theta", seedTheta)
	return sess, nil
}

// materializeDiagnosticForm builds a round-robin per-topic coverage list so a
// diagnostic session touches every constrained topic evenly.
func (s *SessionService) materializeDiagnosticForm(ctx context.Context, sess *models.TestSession) ([]string, error) {
	pool, err := s.Items.FindEligible(ctx, sess.Constraints, nil)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, models.ErrNoItemAvailable
	}

	byTopic := map[string][]models.Item{}
	var topics []string
	for _, item := range pool {
		if len(byTopic[item.TopicID]) == 0 {
			topics = append(topics, item.TopicID)
		}
		byTopic[item.TopicID] = append(byTopic[item.TopicID], item)
	}

	var ids []string
	for round := 0; len(ids) < sess.TargetCount; round++ {
		advanced := false
		for _, topic := range topics {
			if round >= len(byTopic[topic]) {
				continue
			}
			ids = append(ids, byTopic[topic][round].ItemID)
			advanced = true
			if len(ids) == sess.TargetCount {
				break
			}
		}
		if !advanced {
			break
		}
	}
	return ids, nil
}

// NextItem is the serve-path payload: the sanitized item plus serve position,
// or just the session state once the session has finished.
type NextItem struct {
	SessionID string              `json:"session_id"`
	State     models.SessionState `json:"state"`
	Item      *models.Item        `json:"item,omitempty"`
	Position  int                 `json:"position,omitempty"`
	Served    int                 `json:"served"`
	Answered  int                 `json:"answered"`
	Target    int                 `json:"target"`
}

// Next serves the session's next item. Re-requesting without answering
// returns the same pending item. Lazy expiry and target-count completion are
// applied before selection; pool exhaustion completes the session short.
func (s *SessionService) Next(ctx context.Context, sessionID, examineeID string) (*NextItem, error) {
	sess, err := s.loadFor(ctx, sessionID, examineeID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	if sess.State.Terminal() {
		return s.nextPayload(sess, nil, 0), nil
	}
	switch s.machine.Evaluate(sess, now) {
	case session.Expire:
		if err := s.finish(ctx, sess, models.SessionExpired, now); err != nil {
			return nil, err
		}
		return s.nextPayload(sess, nil, 0), nil
	case session.Complete:
		if err := s.finish(ctx, sess, models.SessionCompleted, now); err != nil {
			return nil, err
		}
		return s.nextPayload(sess, nil, 0), nil
	}

	// Unanswered pending item: serve it again rather than advancing.
	if sess.PendingItemID != "" {
		item, err := s.Items.FindByVersion(ctx, sess.PendingItemID, sess.PendingVersion)
		if err != nil {
			return nil, err
		}
		sanitized := item.Sanitized()
		return s.nextPayload(sess, &sanitized, sess.ServedCount), nil
	}

	item, err := s.pickItem(ctx, sess)
	if err == models.ErrNoItemAvailable {
		if ferr := s.finish(ctx, sess, models.SessionCompleted, now); ferr != nil {
			return nil, ferr
		}
		s.log.Warn("pool exhausted, session completed short",
			"session_id", sess.ID, "answered", sess.AnsweredCount, "target", sess.TargetCount)
		return s.nextPayload(sess, nil, 0), nil
	}
	if err != nil {
		return nil, err
	}

	administered := s.machine.RecordServe(sess, *item)
	administered.ServedAt = now
	if err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.Sessions.Replace(ctx, sess); err != nil {
			return err
		}
		return s.Administered.Insert(ctx, &administered)
	}); err != nil {
		return nil, err
	}

	sanitized := item.Sanitized()
	return s.nextPayload(sess, &sanitized, administered.Position), nil
}

func (s *SessionService) pickItem(ctx context.Context, sess *models.TestSession) (*models.Item, error) {
	if len(sess.FixedItemIDs) > 0 {
		if sess.ServedCount >= len(sess.FixedItemIDs) {
			return nil, models.ErrNoItemAvailable
		}
		item, err := s.Items.FindLatest(ctx, sess.FixedItemIDs[sess.ServedCount])
		if err == models.ErrItemNotFound {
			return nil, models.ErrNoItemAvailable
		}
		return item, err
	}

	served, err := s.Administered.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	exclude := make([]string, 0, len(served))
	for _, a := range served {
		exclude = append(exclude, a.ItemID)
	}

	result, err := s.selector.SelectNext(ctx, selection.Request{
		SessionID:   sess.ID,
		Theta:       sess.Theta,
		ExcludeIDs:  exclude,
		Constraints: sess.Constraints,
		TopicCounts: sess.TopicCounts,
		Served:      sess.ServedCount,
		AsOf:        sess.StartedAt,
	})
	if err != nil {
		return nil, err
	}
	return &result.Candidate.Item, nil
}

// SubmitRequest is one answer submission.
type SubmitRequest struct {
	ItemID         string `json:"item_id"`
	ChosenOption   string `json:"chosen_option"`
	ResponseTimeMs int    `json:"response_time_ms"`
}

// Feedback is returned after a scored submission.
type Feedback struct {
	SessionID     string              `json:"session_id"`
	State         models.SessionState `json:"state"`
	Correct       bool                `json:"correct"`
	CorrectOption string              `json:"correct_option"`
	Rationale     string              `json:"rationale,omitempty"`
	Theta         float64             `json:"theta"`
	StandardError float64             `json:"standard_error"`
	CILow         float64             `json:"ci_low"`
	CIHigh        float64             `json:"ci_high"`
	Answered      int                 `json:"answered"`
	Remaining     int                 `json:"remaining"`
}

// SubmitAnswer scores the pending item, re-estimates ability over the full
// response history, persists the session (optimistic concurrency) and the
// examinee's global and topic ability estimates, then reports feedback.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID, examineeID string, req SubmitRequest) (*Feedback, error) {
	sess, err := s.loadFor(ctx, sessionID, examineeID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	if sess.State == models.SessionActive && sess.Expired(now) {
		if err := s.finish(ctx, sess, models.SessionExpired, now); err != nil {
			return nil, err
		}
		return nil, models.ErrSessionNotActive
	}

	answeredBefore, _, err := s.answeredBefore(ctx, sess, req.ItemID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.ValidateAnswer(sess, req.ItemID, now, answeredBefore); err != nil {
		return nil, err
	}

	item, err := s.Items.FindByVersion(ctx, sess.PendingItemID, sess.PendingVersion)
	if err != nil {
		return nil, err
	}
	correct := item.IsCorrect(req.ChosenOption)

	history, err := s.observationHistory(ctx, sess)
	if err != nil {
		return nil, err
	}
	newObs := ability.Observation{Params: s.paramsFor(ctx, item, sess.StartedAt), Correct: correct}
	history = append(history, observation{obs: newObs, topicID: item.TopicID})

	theta, se, err := s.estimator.Estimate(sess.Theta, observations(history))
	if err != nil {
		return nil, err
	}

	thetaBefore := sess.Theta
	s.machine.RecordAnswer(sess, theta, se)
	completed := s.machine.Evaluate(sess, now) == session.Complete
	if completed {
		if err := s.machine.Finish(sess, models.SessionCompleted, now); err != nil {
			return nil, err
		}
	}

	resp := &models.Response{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		ExamineeID:     sess.ExamineeID,
		ItemID:         item.ItemID,
		ItemVersion:    item.Version,
		TopicID:        item.TopicID,
		ChosenOption:   req.ChosenOption,
		IsCorrect:      correct,
		ResponseTimeMs: req.ResponseTimeMs,
		ThetaBefore:    thetaBefore,
		ThetaAfter:     theta,
		CreatedAt:      now,
	}

	// The revision-guarded replace is the serialization point for racing
	// submissions; the loser gets ErrConcurrencyConflict before any response
	// is recorded. The transaction keeps the session document and the
	// response row in step if the process dies between the two writes.
	if err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.Sessions.Replace(ctx, sess); err != nil {
			return err
		}
		return s.Responses.Insert(ctx, resp)
	}); err != nil {
		return nil, err
	}

	if err := s.persistAbilities(ctx, sess, history); err != nil {
		return nil, err
	}

	s.publish(event.ItemAnswered, map[string]interface{}{
		"session_id": sess.ID, "item_id": item.ItemID, "correct": correct, "theta": theta,
	})
	if completed {
		s.publish(event.SessionCompleted, sess)
	}

	lo, hi := session.ConfidenceInterval(theta, se)
	remaining := sess.TargetCount - sess.AnsweredCount
	if remaining < 0 {
		remaining = 0
	}
	return &Feedback{
		SessionID:     sess.ID,
		State:         sess.State,
		Correct:       correct,
		CorrectOption: item.CorrectOption,
		Rationale:     item.Rationale,
		Theta:         theta,
		StandardError: se,
		CILow:         lo,
		CIHigh:        hi,
		Answered:      sess.AnsweredCount,
		Remaining:     remaining,
	}, nil
}

// Cancel moves an active session to CANCELLED.
func (s *SessionService) Cancel(ctx context.Context, sessionID, examineeID string) (*models.TestSession, error) {
	sess, err := s.loadFor(ctx, sessionID, examineeID)
	if err != nil {
		return nil, err
	}
	if err := s.finish(ctx, sess, models.SessionCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session for its examinee.
func (s *SessionService) Get(ctx context.Context, sessionID, examineeID string) (*models.TestSession, error) {
	return s.loadFor(ctx, sessionID, examineeID)
}

// Progress reports the in-flight counters without serving an item.
type Progress struct {
	SessionID     string              `json:"session_id"`
	State         models.SessionState `json:"state"`
	Served        int                 `json:"served"`
	Answered      int                 `json:"answered"`
	Target        int                 `json:"target"`
	Theta         float64             `json:"theta"`
	StandardError float64             `json:"standard_error"`
	TopicCounts   map[string]int      `json:"topic_counts,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
}

func (s *SessionService) Progress(ctx context.Context, sessionID, examineeID string) (*Progress, error) {
	sess, err := s.loadFor(ctx, sessionID, examineeID)
	if err != nil {
		return nil, err
	}
	return &Progress{
		SessionID:     sess.ID,
		State:         sess.State,
		Served:        sess.ServedCount,
		Answered:      sess.AnsweredCount,
		Target:        sess.TargetCount,
		Theta:         sess.Theta,
		StandardError: sess.StandardError,
		TopicCounts:   sess.TopicCounts,
		ExpiresAt:     sess.ExpiresAt,
	}, nil
}

// Results aggregates a terminal session: score, per-topic accuracy, response
// time statistics, trajectory and the normal-reference percentile.
func (s *SessionService) Results(ctx context.Context, sessionID, examineeID string) (*models.SessionResults, error) {
	sess, err := s.loadFor(ctx, sessionID, examineeID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if sess.State == models.SessionActive && sess.Expired(now) {
		if err := s.finish(ctx, sess, models.SessionExpired, now); err != nil {
			return nil, err
		}
	}
	if !sess.State.Terminal() {
		return nil, models.ErrSessionNotTerminal
	}

	responses, err := s.Responses.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	results := &models.SessionResults{
		SessionID:       sess.ID,
		ExamineeID:      sess.ExamineeID,
		State:           sess.State,
		ItemsServed:     sess.ServedCount,
		ItemsAnswered:   sess.AnsweredCount,
		Theta:           sess.Theta,
		StandardError:   sess.StandardError,
		Percentile:      normalPercentile(sess.Theta),
		ThetaTrajectory: sess.ThetaTrajectory,
		Topics:          map[string]models.TopicBreakdown{},
		StartedAt:       sess.StartedAt,
		FinishedAt:      sess.FinishedAt,
		Shortened:       sess.AnsweredCount < sess.TargetCount,
	}

	var times []float64
	for _, r := range responses {
		tb := results.Topics[r.TopicID]
		tb.Attempted++
		if r.IsCorrect {
			tb.Correct++
			results.ItemsCorrect++
		}
		tb.Accuracy = float64(tb.Correct) / float64(tb.Attempted)
		results.Topics[r.TopicID] = tb

		results.Times.TotalMs += r.ResponseTimeMs
		times = append(times, float64(r.ResponseTimeMs))
	}
	if results.ItemsAnswered > 0 {
		results.Score = float64(results.ItemsCorrect) / float64(results.ItemsAnswered)
	}
	if len(times) > 0 {
		results.Times.MeanMs, _ = stats.Mean(times)
		results.Times.MedianMs, _ = stats.Median(times)
		results.Times.StdDevMs, _ = stats.StandardDeviation(times)
	}
	return results, nil
}

// SweepExpired finishes every active session whose deadline has passed. Runs
// from the scheduler.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.Sessions.ListExpiredActive(ctx, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range expired {
		sess := expired[i]
		if err := s.finish(ctx, &sess, models.SessionExpired, now); err != nil {
			if err == models.ErrConcurrencyConflict {
				continue
			}
			return swept, err
		}
		swept++
	}
	if swept > 0 {
		s.log.Info("expired sessions swept", "count", swept)
	}
	return swept, nil
}

func (s *SessionService) loadFor(ctx context.Context, sessionID, examineeID string) (*models.TestSession, error) {
	sess, err := s.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if examineeID != "" && sess.ExamineeID != examineeID {
		return nil, models.ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionService) finish(ctx context.Context, sess *models.TestSession, state models.SessionState, now time.Time) error {
	if err := s.machine.Finish(sess, state, now); err != nil {
		return err
	}
	if err := s.Sessions.Replace(ctx, sess); err != nil {
		return err
	}
	switch state {
	case models.SessionCompleted:
		s.publish(event.SessionCompleted, sess)
	case models.SessionExpired:
		s.publish(event.SessionExpired, sess)
	case models.SessionCancelled:
		s.publish(event.SessionCancelled, sess)
	}
	return nil
}

func (s *SessionService) answeredBefore(ctx context.Context, sess *models.TestSession, itemID string) (answered, administered bool, err error) {
	served, err := s.Administered.ListBySession(ctx, sess.ID)
	if err != nil {
		return false, false, err
	}
	for _, a := range served {
		if a.ItemID == itemID {
			administered = true
			break
		}
	}
	answered = administered && sess.PendingItemID != itemID
	return answered, administered, nil
}

type observation struct {
	obs     ability.Observation
	topicID string
}

func observations(history []observation) []ability.Observation {
	out := make([]ability.Observation, len(history))
	for i, h := range history {
		out[i] = h.obs
	}
	return out
}

// observationHistory rebuilds the scored history with the parameters that
// were in force when the session started. Calibrations promoted after that
// never touch an in-flight session's estimates.
func (s *SessionService) observationHistory(ctx context.Context, sess *models.TestSession) ([]observation, error) {
	responses, err := s.Responses.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	history := make([]observation, 0, len(responses))
	for _, r := range responses {
		item, err := s.Items.FindByVersion(ctx, r.ItemID, r.ItemVersion)
		if err != nil {
			return nil, err
		}
		history = append(history, observation{
			obs:     ability.Observation{Params: s.paramsFor(ctx, item, sess.StartedAt), Correct: r.IsCorrect},
			topicID: r.TopicID,
		})
	}
	return history, nil
}

func (s *SessionService) paramsFor(ctx context.Context, item *models.Item, asOf time.Time) irt.ItemParams {
	params := selection.DefaultParamsFor(item.DifficultyLabel)
	cal, err := s.calibrations.FindPromotedAsOf(ctx, item.ItemID, item.Version, asOf)
	if err != nil || cal == nil {
		return params
	}
	return irt.ItemParams{A: cal.A, B: cal.B, C: cal.C}
}

// persistAbilities writes the global estimate from the full history and a
// topic-scoped estimate for every topic present in it.
func (s *SessionService) persistAbilities(ctx context.Context, sess *models.TestSession, history []observation) error {
	if err := s.Abilities.Upsert(ctx, &models.AbilityEstimate{
		ExamineeID:    sess.ExamineeID,
		Scope:         models.AbilityScopeGlobal,
		Theta:         sess.Theta,
		StandardError: sess.StandardError,
		ResponseCount: len(history),
	}); err != nil {
		return err
	}

	byTopic := map[string][]ability.Observation{}
	for _, h := range history {
		byTopic[h.topicID] = append(byTopic[h.topicID], h.obs)
	}
	for topicID, obs := range byTopic {
		theta, se, err := s.estimator.Estimate(sess.Theta, obs)
		if err != nil {
			return err
		}
		if err := s.Abilities.Upsert(ctx, &models.AbilityEstimate{
			ExamineeID:    sess.ExamineeID,
			Scope:         topicID,
			Theta:         theta,
			StandardError: se,
			ResponseCount: len(obs),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) nextPayload(sess *models.TestSession, item *models.Item, position int) *NextItem {
	return &NextItem{
		SessionID: sess.ID,
		State:     sess.State,
		Item:      item,
		Position:  position,
		Served:    sess.ServedCount,
		Answered:  sess.AnsweredCount,
		Target:    sess.TargetCount,
	}
}

func (s *SessionService) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.Execute(ctx, fn)
}

func (s *SessionService) publish(routingKey string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(routingKey, payload); err != nil {
		s.log.Warn("event publish failed", "routing_key", routingKey, "error", err)
	}
}

// normalPercentile maps theta to its standard-normal percentile.
func normalPercentile(theta float64) float64 {
	return 100 * 0.5 * (1 + math.Erf(theta/math.Sqrt2))
}
