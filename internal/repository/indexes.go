package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the invariants depend on: version
// uniqueness for items, one response per administered item, one exposure
// record per item version and snapshot idempotency for runs.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		"items": {
			{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "version", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		"test_sessions": {
			// Partial unique index: at most one ACTIVE session per examinee,
			// even when two Start calls race past the service-level check.
			{Keys: bson.D{{Key: "examinee_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"state": "active"})},
			{Keys: bson.D{{Key: "examinee_id", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
		"administered_items": {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "item_id", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		"responses": {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "item_id", Value: 1}},
				Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "item_version", Value: 1}}},
		},
		"ability_estimates": {
			{Keys: bson.D{{Key: "examinee_id", Value: 1}, {Key: "scope", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		"exposure_records": {
			{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "item_version", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		"item_calibrations": {
			{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "item_version", Value: 1}, {Key: "promoted", Value: 1}}},
		},
		"calibration_runs": {
			{Keys: bson.D{{Key: "snapshot_hash", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
	}

	for collection, models := range specs {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
