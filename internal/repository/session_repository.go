package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"cat-engine/internal/models"
)

// SessionRepository stores test sessions. Updates are guarded by the session
// revision so racing submissions fail instead of interleaving.
type SessionRepository struct {
	Col *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{Col: db.Collection("test_sessions")}
}

// Insert persists a new session. The partial unique index on active sessions
// turns a lost race between two Start calls into ErrActiveSessionExists.
func (r *SessionRepository) Insert(ctx context.Context, s *models.TestSession) error {
	_, err := r.Col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrActiveSessionExists
	}
	return err
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.TestSession, error) {
	var s models.TestSession
	err := r.Col.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindActiveByExaminee returns the examinee's active session, or nil.
func (r *SessionRepository) FindActiveByExaminee(ctx context.Context, examineeID string) (*models.TestSession, error) {
	var s models.TestSession
	err := r.Col.FindOne(ctx, bson.M{
		"examinee_id": examineeID,
		"state":       models.SessionActive,
	}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Replace persists the full session document conditioned on the revision it
// was read at, bumping the revision. A missed match means another writer got
// there first and the caller must re-read.
func (r *SessionRepository) Replace(ctx context.Context, s *models.TestSession) error {
	readRevision := s.Revision
	s.Revision++
	res, err := r.Col.ReplaceOne(ctx, bson.M{"_id": s.ID, "revision": readRevision}, s)
	if err != nil {
		s.Revision = readRevision
		return err
	}
	if res.MatchedCount == 0 {
		s.Revision = readRevision
		return models.ErrConcurrencyConflict
	}
	return nil
}

// ListExpiredActive returns active sessions whose deadline has passed, for
// the background sweep.
func (r *SessionRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]models.TestSession, error) {
	cursor, err := r.Col.Find(ctx, bson.M{
		"state":      models.SessionActive,
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []models.TestSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CountStarted is the exposure-rate denominator.
func (r *SessionRepository) CountStarted(ctx context.Context) (int64, error) {
	return r.Col.CountDocuments(ctx, bson.M{})
}
