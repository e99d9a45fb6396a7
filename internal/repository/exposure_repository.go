package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cat-engine/internal/models"
)

// ExposureRepository persists exposure records. Increment relies on Mongo's
// atomic $inc so concurrent serves never lose counts.
type ExposureRepository struct {
	Col *mongo.Collection
}

func NewExposureRepository(db *mongo.Database) *ExposureRepository {
	return &ExposureRepository{Col: db.Collection("exposure_records")}
}

func (r *ExposureRepository) Find(ctx context.Context, itemID string, version int) (*models.ExposureRecord, error) {
	var rec models.ExposureRecord
	err := r.Col.FindOne(ctx, bson.M{"item_id": itemID, "item_version": version}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ExposureRepository) Increment(ctx context.Context, itemID string, version int) error {
	_, err := r.Col.UpdateOne(ctx,
		bson.M{"item_id": itemID, "item_version": version},
		bson.M{
			"$inc": bson.M{"exposure_count": 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
			"$setOnInsert": bson.M{"control_probability": 1.0},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *ExposureRepository) List(ctx context.Context) ([]models.ExposureRecord, error) {
	cursor, err := r.Col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.ExposureRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *ExposureRepository) SetControlProbability(ctx context.Context, itemID string, version int, p float64) error {
	_, err := r.Col.UpdateOne(ctx,
		bson.M{"item_id": itemID, "item_version": version},
		bson.M{"$set": bson.M{"control_probability": p, "updated_at": time.Now().UTC()}},
	)
	return err
}
