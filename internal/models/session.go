package models

import "time"

type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionActive    SessionState = "active"
	SessionCompleted SessionState = "completed"
	SessionExpired   SessionState = "expired"
	SessionCancelled SessionState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionCompleted, SessionExpired, SessionCancelled:
		return true
	}
	return false
}

type SessionMode string

const (
	ModeAdaptive   SessionMode = "adaptive"
	ModeFixed      SessionMode = "fixed"
	ModeDiagnostic SessionMode = "diagnostic"
)

// Constraints narrows the eligible item pool for a session. BlueprintWeights,
// when present, are target topic proportions the realized selection converges
// to over the whole session.
type Constraints struct {
	TopicIDs         []string           `bson:"topic_ids,omitempty" json:"topic_ids,omitempty"`
	DifficultyLabels []string           `bson:"difficulty_labels,omitempty" json:"difficulty_labels,omitempty"`
	BlueprintWeights map[string]float64 `bson:"blueprint_weights,omitempty" json:"blueprint_weights,omitempty"`
}

// TestSession is one examinee's attempt. Revision implements optimistic
// concurrency: every mutation must carry the revision it read, so racing
// submissions to the same session fail instead of silently reordering the
// path-dependent theta updates.
type TestSession struct {
	ID               string         `bson:"_id,omitempty" json:"id"`
	ExamineeID       string         `bson:"examinee_id" json:"examinee_id"`
	Mode             SessionMode    `bson:"mode" json:"mode"`
	State            SessionState   `bson:"state" json:"state"`
	TargetCount      int            `bson:"target_count" json:"target_count"`
	TimeLimitSeconds int            `bson:"time_limit_seconds,omitempty" json:"time_limit_seconds,omitempty"`
	Constraints      Constraints    `bson:"constraints" json:"constraints"`
	Theta            float64        `bson:"theta" json:"theta"`
	StandardError    float64        `bson:"standard_error" json:"standard_error"`
	ThetaTrajectory  []float64      `bson:"theta_trajectory" json:"theta_trajectory"`
	ServedCount      int            `bson:"served_count" json:"served_count"`
	AnsweredCount    int            `bson:"answered_count" json:"answered_count"`
	PendingItemID    string         `bson:"pending_item_id,omitempty" json:"pending_item_id,omitempty"`
	PendingVersion   int            `bson:"pending_version,omitempty" json:"pending_version,omitempty"`
	TopicCounts      map[string]int `bson:"topic_counts,omitempty" json:"topic_counts,omitempty"`
	FixedItemIDs     []string       `bson:"fixed_item_ids,omitempty" json:"fixed_item_ids,omitempty"`
	Revision         int64          `bson:"revision" json:"revision"`
	StartedAt        time.Time      `bson:"started_at" json:"started_at"`
	ExpiresAt        *time.Time     `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	FinishedAt       *time.Time     `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// Expired reports whether the session's time limit has passed.
func (s *TestSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// AdministeredItem records that an item was shown in a session. The pair
// (SessionID, ItemID) is unique; Position is a dense 1..N sequence.
type AdministeredItem struct {
	SessionID   string    `bson:"session_id" json:"session_id"`
	ItemID      string    `bson:"item_id" json:"item_id"`
	ItemVersion int       `bson:"item_version" json:"item_version"`
	Position    int       `bson:"position" json:"position"`
	ServedAt    time.Time `bson:"served_at" json:"served_at"`
}
