package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cat-engine/internal/models"
)

// CalibrationRepository stores the append-only calibration history. At most
// one row per (item_id, item_version) carries promoted=true.
type CalibrationRepository struct {
	Col *mongo.Collection
}

func NewCalibrationRepository(db *mongo.Database) *CalibrationRepository {
	return &CalibrationRepository{Col: db.Collection("item_calibrations")}
}

func (r *CalibrationRepository) Insert(ctx context.Context, cal *models.ItemCalibration) error {
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	_, err := r.Col.InsertOne(ctx, cal)
	return err
}

// FindPromoted returns the live calibration for an item version, or nil when
// none has been promoted yet.
func (r *CalibrationRepository) FindPromoted(ctx context.Context, itemID string, version int) (*models.ItemCalibration, error) {
	var cal models.ItemCalibration
	err := r.Col.FindOne(ctx, bson.M{
		"item_id":      itemID,
		"item_version": version,
		"promoted":     true,
	}).Decode(&cal)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

func (r *CalibrationRepository) FindByID(ctx context.Context, id string) (*models.ItemCalibration, error) {
	var cal models.ItemCalibration
	err := r.Col.FindOne(ctx, bson.M{"_id": id}).Decode(&cal)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

// Promote makes one calibration row live, demoting any previously promoted
// row for the same item version. Promotion and demotion times are stamped so
// the row in force at any past instant stays queryable; sessions pin their
// parameters to the calibrations live at session start.
func (r *CalibrationRepository) Promote(ctx context.Context, id string) (*models.ItemCalibration, error) {
	cal, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, models.ErrCalibrationNotFound
	}

	now := time.Now().UTC()
	_, err = r.Col.UpdateMany(ctx,
		bson.M{"item_id": cal.ItemID, "item_version": cal.ItemVersion, "promoted": true},
		bson.M{"$set": bson.M{"promoted": false, "demoted_at": now}},
	)
	if err != nil {
		return nil, err
	}
	_, err = r.Col.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"promoted": true, "promoted_at": now}, "$unset": bson.M{"demoted_at": ""}})
	if err != nil {
		return nil, err
	}
	cal.Promoted = true
	cal.PromotedAt = &now
	cal.DemotedAt = nil
	return cal, nil
}

// FindPromotedAsOf returns the calibration that was live at asOf: promoted at
// or before that instant and not demoted until after it. Nil when the item
// had no promoted calibration then.
func (r *CalibrationRepository) FindPromotedAsOf(ctx context.Context, itemID string, version int, asOf time.Time) (*models.ItemCalibration, error) {
	var cal models.ItemCalibration
	err := r.Col.FindOne(ctx, bson.M{
		"item_id":      itemID,
		"item_version": version,
		"promoted_at":  bson.M{"$lte": asOf},
		"$or": bson.A{
			bson.M{"demoted_at": bson.M{"$exists": false}},
			bson.M{"demoted_at": bson.M{"$gt": asOf}},
		},
	}).Decode(&cal)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

// ListByItem returns an item version's calibration history, newest first.
func (r *CalibrationRepository) ListByItem(ctx context.Context, itemID string, version int) ([]models.ItemCalibration, error) {
	cursor, err := r.Col.Find(ctx,
		bson.M{"item_id": itemID, "item_version": version},
		options.Find().SetSort(bson.M{"calibrated_at": -1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var calibrations []models.ItemCalibration
	if err := cursor.All(ctx, &calibrations); err != nil {
		return nil, err
	}
	return calibrations, nil
}
