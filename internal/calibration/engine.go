// Package calibration re-estimates item parameters from accumulated
// responses as an asynchronous batch job. Runs are idempotent per input
// snapshot and never touch promoted calibrations: each run inserts new
// versioned rows that governance promotes afterwards.
package calibration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cat-engine/internal/models"
	"cat-engine/internal/pkg/logger"
)

// Method3PLGrid is the built-in estimation method.
const Method3PLGrid = "3pl-grid"

// ItemKey identifies one calibratable item version.
type ItemKey struct {
	ItemID  string
	Version int
}

// ResponseSource reads the accumulated response data a run consumes.
type ResponseSource interface {
	// ItemsInScope lists the distinct item versions the scope covers.
	ItemsInScope(ctx context.Context, scope models.RunScope) ([]ItemKey, error)
	// ListForItem returns every response recorded for an item version.
	ListForItem(ctx context.Context, itemID string, version int) ([]models.Response, error)
	// Watermark fingerprints the scope's input data: response count and the
	// newest response time.
	Watermark(ctx context.Context, scope models.RunScope) (count int64, latest time.Time, err error)
}

// RunStore persists calibration runs.
type RunStore interface {
	Insert(ctx context.Context, run *models.CalibrationRun) error
	Update(ctx context.Context, run *models.CalibrationRun) error
	FindByID(ctx context.Context, id string) (*models.CalibrationRun, error)
	FindBySnapshot(ctx context.Context, hash string) (*models.CalibrationRun, error)
}

// CalibrationWriter appends new versioned ItemCalibration rows.
type CalibrationWriter interface {
	Insert(ctx context.Context, cal *models.ItemCalibration) error
}

// Engine coordinates calibration runs.
type Engine struct {
	responses    ResponseSource
	runs         RunStore
	calibrations CalibrationWriter
	log          *logger.Logger
}

func NewEngine(responses ResponseSource, runs RunStore, calibrations CalibrationWriter, log *logger.Logger) *Engine {
	return &Engine{responses: responses, runs: runs, calibrations: calibrations, log: log}
}

// CreateRun registers a new pending run, or returns the existing run when
// one already covers the same (scope, method, input snapshot).
func (e *Engine) CreateRun(ctx context.Context, scope models.RunScope, method string, minResponses int) (*models.CalibrationRun, error) {
	if method == "" {
		method = Method3PLGrid
	}
	if method != Method3PLGrid {
		return nil, models.ErrUnknownCalibrationMethod
	}
	if minResponses < MinFitResponses {
		minResponses = MinFitResponses
	}

	count, latest, err := e.responses.Watermark(ctx, scope)
	if err != nil {
		return nil, err
	}
	hash := snapshotHash(scope, method, count, latest)

	if existing, err := e.runs.FindBySnapshot(ctx, hash); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	run := &models.CalibrationRun{
		ID:           uuid.NewString(),
		Scope:        scope,
		Method:       method,
		MinResponses: minResponses,
		Status:       models.RunPending,
		History:      []models.RunEvent{{Status: models.RunPending, At: now}},
		SnapshotHash: hash,
		CreatedAt:    now,
	}
	if err := e.runs.Insert(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Execute drives a pending run to a terminal status. Context cancellation is
// cooperative: it is checked between items and marks the run cancelled
// without promoting any partial output.
func (e *Engine) Execute(ctx context.Context, runID string) (*models.CalibrationRun, error) {
	run, err := e.runs.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, models.ErrCalibrationRunNotFound
	}
	if run.Status != models.RunPending {
		return run, nil
	}

	now := time.Now().UTC()
	run.Status = models.RunRunning
	run.StartedAt = &now
	run.History = append(run.History, models.RunEvent{Status: models.RunRunning, At: now})
	if err := e.runs.Update(ctx, run); err != nil {
		return nil, err
	}

	result, runErr := e.calibrateScope(ctx, run)
	finished := time.Now().UTC()
	run.FinishedAt = &finished

	switch {
	case ctx.Err() != nil:
		run.Status = models.RunCancelled
		run.History = append(run.History, models.RunEvent{Status: models.RunCancelled, Note: ctx.Err().Error(), At: finished})
	case runErr != nil:
		run.Status = models.RunFailed
		run.Error = runErr.Error()
		run.History = append(run.History, models.RunEvent{Status: models.RunFailed, Note: runErr.Error(), At: finished})
	default:
		run.Status = models.RunCompleted
		run.Result = result
		run.History = append(run.History, models.RunEvent{Status: models.RunCompleted, At: finished})
	}

	// Persist the terminal state with a fresh context so cancellation of the
	// batch does not also lose the bookkeeping.
	if err := e.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		return nil, err
	}
	e.log.Info("calibration run finished", "run_id", run.ID, "status", run.Status)
	return run, nil
}

func (e *Engine) calibrateScope(ctx context.Context, run *models.CalibrationRun) (*models.RunResult, error) {
	keys, err := e.responses.ItemsInScope(ctx, run.Scope)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, models.ErrCalibrationDataInsufficient
	}

	result := &models.RunResult{}
	for _, key := range keys {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		summary, err := e.calibrateItem(ctx, run, key)
		if err != nil {
			return nil, fmt.Errorf("calibrating item %s v%d: %w", key.ItemID, key.Version, err)
		}
		result.Items = append(result.Items, *summary)
		if summary.Skipped {
			result.ItemsSkipped++
		} else {
			result.ItemsCalibrated++
		}
	}
	if result.ItemsCalibrated == 0 {
		return nil, models.ErrCalibrationDataInsufficient
	}
	return result, nil
}

func (e *Engine) calibrateItem(ctx context.Context, run *models.CalibrationRun, key ItemKey) (*models.ItemRunSummary, error) {
	responses, err := e.responses.ListForItem(ctx, key.ItemID, key.Version)
	if err != nil {
		return nil, err
	}

	summary := &models.ItemRunSummary{
		ItemID:      key.ItemID,
		ItemVersion: key.Version,
		SampleSize:  len(responses),
	}
	if len(responses) < run.MinResponses {
		summary.Skipped = true
		summary.SkipReason = fmt.Sprintf("%d responses, need %d", len(responses), run.MinResponses)
		return summary, nil
	}

	points := make([]ResponsePoint, len(responses))
	for i, r := range responses {
		points[i] = ResponsePoint{Theta: r.ThetaBefore, Correct: r.IsCorrect}
	}

	params, se, err := Fit3PL(points)
	if err == models.ErrCalibrationDataInsufficient {
		summary.Skipped = true
		summary.SkipReason = err.Error()
		return summary, nil
	}
	if err != nil {
		return nil, err
	}
	fit, err := ComputeFitStats(points, params)
	if err != nil {
		return nil, err
	}

	cal := &models.ItemCalibration{
		ItemID:        key.ItemID,
		ItemVersion:   key.Version,
		Model:         "3pl",
		A:             params.A,
		B:             params.B,
		C:             params.C,
		SEA:           se.A,
		SEB:           se.B,
		SEC:           se.C,
		SampleSize:    len(points),
		PointBiserial: fit.PointBiserial,
		Infit:         fit.Infit,
		Outfit:        fit.Outfit,
		RunID:         run.ID,
		Promoted:      false,
		CalibratedAt:  time.Now().UTC(),
	}
	if err := e.calibrations.Insert(ctx, cal); err != nil {
		return nil, err
	}

	summary.A = params.A
	summary.B = params.B
	summary.C = params.C
	summary.PointBiserial = fit.PointBiserial
	summary.Infit = fit.Infit
	summary.Outfit = fit.Outfit
	return summary, nil
}

func snapshotHash(scope models.RunScope, method string, count int64, latest time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%v|%s|%d|%d", method, scope.ItemIDs, scope.TopicID, count, latest.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}
