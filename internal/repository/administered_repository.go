package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cat-engine/internal/models"
)

// AdministeredRepository records which items each session has shown. The
// collection carries a unique index on (session_id, item_id).
type AdministeredRepository struct {
	Col *mongo.Collection
}

func NewAdministeredRepository(db *mongo.Database) *AdministeredRepository {
	return &AdministeredRepository{Col: db.Collection("administered_items")}
}

func (r *AdministeredRepository) Insert(ctx context.Context, a *models.AdministeredItem) error {
	_, err := r.Col.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrDuplicateResponse
	}
	return err
}

// ListBySession returns a session's administered items in serve order.
func (r *AdministeredRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AdministeredItem, error) {
	cursor, err := r.Col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.M{"position": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []models.AdministeredItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}
