package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cat-engine/internal/models"
)

// AbilityRepository stores per-examinee ability estimates, one document per
// (examinee, scope).
type AbilityRepository struct {
	Col *mongo.Collection
}

func NewAbilityRepository(db *mongo.Database) *AbilityRepository {
	return &AbilityRepository{Col: db.Collection("ability_estimates")}
}

func (r *AbilityRepository) Find(ctx context.Context, examineeID, scope string) (*models.AbilityEstimate, error) {
	var est models.AbilityEstimate
	err := r.Col.FindOne(ctx, bson.M{"examinee_id": examineeID, "scope": scope}).Decode(&est)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &est, nil
}

func (r *AbilityRepository) Upsert(ctx context.Context, est *models.AbilityEstimate) error {
	est.UpdatedAt = time.Now().UTC()
	_, err := r.Col.UpdateOne(ctx,
		bson.M{"examinee_id": est.ExamineeID, "scope": est.Scope},
		bson.M{"$set": bson.M{
			"theta":          est.Theta,
			"standard_error": est.StandardError,
			"response_count": est.ResponseCount,
			"updated_at":     est.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *AbilityRepository) ListByExaminee(ctx context.Context, examineeID string) ([]models.AbilityEstimate, error) {
	cursor, err := r.Col.Find(ctx, bson.M{"examinee_id": examineeID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var estimates []models.AbilityEstimate
	if err := cursor.All(ctx, &estimates); err != nil {
		return nil, err
	}
	return estimates, nil
}
