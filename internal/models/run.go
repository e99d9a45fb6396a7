package models

import "time"

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunScope names the items a calibration run covers: an explicit item set, a
// topic, or (both empty) every item with enough responses.
type RunScope struct {
	ItemIDs []string `bson:"item_ids,omitempty" json:"item_ids,omitempty"`
	TopicID string   `bson:"topic_id,omitempty" json:"topic_id,omitempty"`
}

type RunEvent struct {
	Status RunStatus `bson:"status" json:"status"`
	Note   string    `bson:"note,omitempty" json:"note,omitempty"`
	At     time.Time `bson:"at" json:"at"`
}

// ItemRunSummary reports per-item calibration output inside a run result.
type ItemRunSummary struct {
	ItemID        string  `bson:"item_id" json:"item_id"`
	ItemVersion   int     `bson:"item_version" json:"item_version"`
	SampleSize    int     `bson:"sample_size" json:"sample_size"`
	A             float64 `bson:"a" json:"a"`
	B             float64 `bson:"b" json:"b"`
	C             float64 `bson:"c" json:"c"`
	PointBiserial float64 `bson:"point_biserial" json:"point_biserial"`
	Infit         float64 `bson:"infit" json:"infit"`
	Outfit        float64 `bson:"outfit" json:"outfit"`
	Skipped       bool    `bson:"skipped" json:"skipped"`
	SkipReason    string  `bson:"skip_reason,omitempty" json:"skip_reason,omitempty"`
}

type RunResult struct {
	ItemsCalibrated int              `bson:"items_calibrated" json:"items_calibrated"`
	ItemsSkipped    int              `bson:"items_skipped" json:"items_skipped"`
	Items           []ItemRunSummary `bson:"items" json:"items"`
}

// CalibrationRun is one batch re-estimation job. SnapshotHash fingerprints the
// input (scope, method, response watermark), making runs idempotent: starting
// a run over an unchanged snapshot returns the existing one. A run never
// mutates live ItemCalibration rows; it inserts new versioned rows that
// governance promotes after completion.
type CalibrationRun struct {
	ID           string     `bson:"_id,omitempty" json:"id"`
	Scope        RunScope   `bson:"scope" json:"scope"`
	Method       string     `bson:"method" json:"method"`
	MinResponses int        `bson:"min_responses" json:"min_responses"`
	Status       RunStatus  `bson:"status" json:"status"`
	History      []RunEvent `bson:"history" json:"history"`
	Result       *RunResult `bson:"result,omitempty" json:"result,omitempty"`
	Error        string     `bson:"error,omitempty" json:"error,omitempty"`
	SnapshotHash string     `bson:"snapshot_hash" json:"snapshot_hash"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	StartedAt    *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	FinishedAt   *time.Time `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}
