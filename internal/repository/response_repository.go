package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cat-engine/internal/calibration"
	"cat-engine/internal/models"
)

// ResponseRepository stores submitted answers. Responses are append-only; a
// unique index on (session_id, item_id) rejects duplicate submissions at the
// storage layer too.
type ResponseRepository struct {
	Col *mongo.Collection
}

func NewResponseRepository(db *mongo.Database) *ResponseRepository {
	return &ResponseRepository{Col: db.Collection("responses")}
}

func (r *ResponseRepository) Insert(ctx context.Context, resp *models.Response) error {
	_, err := r.Col.InsertOne(ctx, resp)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrDuplicateResponse
	}
	return err
}

func (r *ResponseRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Response, error) {
	cursor, err := r.Col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.M{"created_at": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var responses []models.Response
	if err := cursor.All(ctx, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

func scopeFilter(scope models.RunScope) bson.M {
	filter := bson.M{}
	if len(scope.ItemIDs) > 0 {
		filter["item_id"] = bson.M{"$in": scope.ItemIDs}
	}
	if scope.TopicID != "" {
		filter["topic_id"] = scope.TopicID
	}
	return filter
}

// ItemsInScope lists the distinct (item_id, item_version) pairs with recorded
// responses inside the scope.
func (r *ResponseRepository) ItemsInScope(ctx context.Context, scope models.RunScope) ([]calibration.ItemKey, error) {
	pipeline := []bson.M{
		{"$match": scopeFilter(scope)},
		{"$group": bson.M{"_id": bson.M{
			"item_id":      "$item_id",
			"item_version": "$item_version",
		}}},
	}
	cursor, err := r.Col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID struct {
			ItemID      string `bson:"item_id"`
			ItemVersion int    `bson:"item_version"`
		} `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	keys := make([]calibration.ItemKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, calibration.ItemKey{ItemID: row.ID.ItemID, Version: row.ID.ItemVersion})
	}
	return keys, nil
}

// ListForItem returns every response recorded for an item version.
func (r *ResponseRepository) ListForItem(ctx context.Context, itemID string, version int) ([]models.Response, error) {
	cursor, err := r.Col.Find(ctx, bson.M{"item_id": itemID, "item_version": version})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var responses []models.Response
	if err := cursor.All(ctx, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

// Watermark fingerprints the scope's input data for run idempotency.
func (r *ResponseRepository) Watermark(ctx context.Context, scope models.RunScope) (int64, time.Time, error) {
	pipeline := []bson.M{
		{"$match": scopeFilter(scope)},
		{"$group": bson.M{
			"_id":    nil,
			"count":  bson.M{"$sum": 1},
			"latest": bson.M{"$max": "$created_at"},
		}},
	}
	cursor, err := r.Col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, time.Time{}, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Count  int64     `bson:"count"`
		Latest time.Time `bson:"latest"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, time.Time{}, err
	}
	if len(rows) == 0 {
		return 0, time.Time{}, nil
	}
	return rows[0].Count, rows[0].Latest, nil
}
