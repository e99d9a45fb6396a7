package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cat-engine/internal/models"
)

// ItemRepository stores versioned items. A version is immutable once
// published; content changes insert a new version and mark the old one
// superseded.
type ItemRepository struct {
	Col *mongo.Collection
}

func NewItemRepository(db *mongo.Database) *ItemRepository {
	return &ItemRepository{Col: db.Collection("items")}
}

func (r *ItemRepository) Insert(ctx context.Context, item *models.Item) error {
	_, err := r.Col.InsertOne(ctx, item)
	return err
}

// FindLatest returns the newest non-superseded version of an item.
func (r *ItemRepository) FindLatest(ctx context.Context, itemID string) (*models.Item, error) {
	var item models.Item
	err := r.Col.FindOne(ctx,
		bson.M{"item_id": itemID, "superseded_by": bson.M{"$exists": false}},
		options.FindOne().SetSort(bson.M{"version": -1}),
	).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, models.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) FindByVersion(ctx context.Context, itemID string, version int) (*models.Item, error) {
	var item models.Item
	err := r.Col.FindOne(ctx, bson.M{"item_id": itemID, "version": version}).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, models.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkSuperseded points the old version at its replacement.
func (r *ItemRepository) MarkSuperseded(ctx context.Context, itemID string, version, newVersion int) error {
	_, err := r.Col.UpdateOne(ctx,
		bson.M{"item_id": itemID, "version": version},
		bson.M{"$set": bson.M{"superseded_by": newVersion}},
	)
	return err
}

// FindEligible returns the published, non-superseded items matching the
// constraints, excluding the given item IDs. Implements the selector's pool
// lookup.
func (r *ItemRepository) FindEligible(ctx context.Context, c models.Constraints, excludeIDs []string) ([]models.Item, error) {
	filter := bson.M{
		"published":     true,
		"superseded_by": bson.M{"$exists": false},
	}
	if len(c.TopicIDs) > 0 {
		filter["topic_id"] = bson.M{"$in": c.TopicIDs}
	}
	if len(c.DifficultyLabels) > 0 {
		filter["difficulty_label"] = bson.M{"$in": c.DifficultyLabels}
	}
	if len(excludeIDs) > 0 {
		filter["item_id"] = bson.M{"$nin": excludeIDs}
	}

	cursor, err := r.Col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []models.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemRepository) List(ctx context.Context, topicID string, publishedOnly bool) ([]models.Item, error) {
	filter := bson.M{"superseded_by": bson.M{"$exists": false}}
	if topicID != "" {
		filter["topic_id"] = topicID
	}
	if publishedOnly {
		filter["published"] = true
	}

	cursor, err := r.Col.Find(ctx, filter, options.Find().SetSort(bson.M{"item_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []models.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}
