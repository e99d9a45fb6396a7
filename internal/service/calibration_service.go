package service

import (
	"context"

	"cat-engine/internal/calibration"
	"cat-engine/internal/event"
	"cat-engine/internal/models"
	"cat-engine/internal/pkg/logger"
)

// CalibrationStore reads and promotes calibration rows.
type CalibrationStore interface {
	FindPromoted(ctx context.Context, itemID string, version int) (*models.ItemCalibration, error)
	Promote(ctx context.Context, id string) (*models.ItemCalibration, error)
	ListByItem(ctx context.Context, itemID string, version int) ([]models.ItemCalibration, error)
}

// RunReader lists stored runs for the read endpoints.
type RunReader interface {
	FindByID(ctx context.Context, id string) (*models.CalibrationRun, error)
	List(ctx context.Context, limit int64) ([]models.CalibrationRun, error)
}

// CalibrationService fronts the calibration engine: run creation with async
// execution, run reads, calibration history and promotion.
type CalibrationService struct {
	engine       *calibration.Engine
	runs         RunReader
	calibrations CalibrationStore
	publisher    Publisher
	log          *logger.Logger
}

func NewCalibrationService(
	engine *calibration.Engine,
	runs RunReader,
	calibrations CalibrationStore,
	publisher Publisher,
	log *logger.Logger,
) *CalibrationService {
	return &CalibrationService{
		engine:       engine,
		runs:         runs,
		calibrations: calibrations,
		publisher:    publisher,
		log:          log,
	}
}

// CreateRun registers a run and executes it in the background. An existing
// run over the same input snapshot is returned without starting a new one.
func (s *CalibrationService) CreateRun(ctx context.Context, scope models.RunScope, method string, minResponses int) (*models.CalibrationRun, error) {
	run, err := s.engine.CreateRun(ctx, scope, method, minResponses)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunPending {
		return run, nil
	}

	s.publishEvent(event.RunCreated, map[string]interface{}{"run_id": run.ID})
	go func() {
		done, err := s.engine.Execute(context.Background(), run.ID)
		if err != nil {
			s.log.Error("calibration run execution failed", "run_id", run.ID, "error", err)
			return
		}
		s.publishEvent(event.RunFinished, map[string]interface{}{
			"run_id": done.ID, "status": done.Status,
		})
	}()
	return run, nil
}

func (s *CalibrationService) GetRun(ctx context.Context, id string) (*models.CalibrationRun, error) {
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, models.ErrCalibrationRunNotFound
	}
	return run, nil
}

func (s *CalibrationService) ListRuns(ctx context.Context, limit int64) ([]models.CalibrationRun, error) {
	return s.runs.List(ctx, limit)
}

// Promote makes a calibration row live for selection.
func (s *CalibrationService) Promote(ctx context.Context, calibrationID string) (*models.ItemCalibration, error) {
	cal, err := s.calibrations.Promote(ctx, calibrationID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(event.ItemPromoted, map[string]interface{}{
		"calibration_id": cal.ID, "item_id": cal.ItemID, "item_version": cal.ItemVersion,
	})
	s.log.Info("calibration promoted",
		"calibration_id", cal.ID, "item_id", cal.ItemID, "item_version", cal.ItemVersion)
	return cal, nil
}

// History returns an item version's calibration rows, newest first.
func (s *CalibrationService) History(ctx context.Context, itemID string, version int) ([]models.ItemCalibration, error) {
	return s.calibrations.ListByItem(ctx, itemID, version)
}

func (s *CalibrationService) publishEvent(routingKey string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(routingKey, payload); err != nil {
		s.log.Warn("event publish failed", "routing_key", routingKey, "error", err)
	}
}
