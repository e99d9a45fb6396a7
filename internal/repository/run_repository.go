package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cat-engine/internal/models"
)

// RunRepository stores calibration runs.
type RunRepository struct {
	Col *mongo.Collection
}

func NewRunRepository(db *mongo.Database) *RunRepository {
	return &RunRepository{Col: db.Collection("calibration_runs")}
}

func (r *RunRepository) Insert(ctx context.Context, run *models.CalibrationRun) error {
	_, err := r.Col.InsertOne(ctx, run)
	return err
}

func (r *RunRepository) Update(ctx context.Context, run *models.CalibrationRun) error {
	_, err := r.Col.ReplaceOne(ctx, bson.M{"_id": run.ID}, run)
	return err
}

func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.CalibrationRun, error) {
	var run models.CalibrationRun
	err := r.Col.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunRepository) FindBySnapshot(ctx context.Context, hash string) (*models.CalibrationRun, error) {
	var run models.CalibrationRun
	err := r.Col.FindOne(ctx, bson.M{"snapshot_hash": hash}).Decode(&run)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns runs newest first.
func (r *RunRepository) List(ctx context.Context, limit int64) ([]models.CalibrationRun, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := r.Col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []models.CalibrationRun
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
