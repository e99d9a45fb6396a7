package models

import "time"

// ItemCalibration holds estimated 3PL parameters for an (item, version, model)
// triple. Rows are append-only: a new calibration run inserts a new row and
// governance promotes it, prior rows are never rewritten.
type ItemCalibration struct {
	ID             string     `bson:"_id,omitempty" json:"id"`
	ItemID         string     `bson:"item_id" json:"item_id"`
	ItemVersion    int        `bson:"item_version" json:"item_version"`
	Model          string     `bson:"model" json:"model"`
	A              float64    `bson:"a" json:"a"`
	B              float64    `bson:"b" json:"b"`
	C              float64    `bson:"c" json:"c"`
	SEA            float64    `bson:"se_a" json:"se_a"`
	SEB            float64    `bson:"se_b" json:"se_b"`
	SEC            float64    `bson:"se_c" json:"se_c"`
	SampleSize     int        `bson:"sample_size" json:"sample_size"`
	PointBiserial  float64    `bson:"point_biserial" json:"point_biserial"`
	Infit          float64    `bson:"infit" json:"infit"`
	Outfit         float64    `bson:"outfit" json:"outfit"`
	RunID          string     `bson:"run_id" json:"run_id"`
	Promoted       bool       `bson:"promoted" json:"promoted"`
	PromotedAt     *time.Time `bson:"promoted_at,omitempty" json:"promoted_at,omitempty"`
	DemotedAt      *time.Time `bson:"demoted_at,omitempty" json:"demoted_at,omitempty"`
	CalibratedAt   time.Time  `bson:"calibrated_at" json:"calibrated_at"`
}

// ExposureRecord tracks population-level usage of an (item, version) pair.
// ControlProbability is the Sympson-Hetter administration probability, tuned
// periodically to keep the long-run exposure rate under the configured cap.
type ExposureRecord struct {
	ItemID             string    `bson:"item_id" json:"item_id"`
	ItemVersion        int       `bson:"item_version" json:"item_version"`
	ExposureCount      int64     `bson:"exposure_count" json:"exposure_count"`
	ControlProbability float64   `bson:"control_probability" json:"control_probability"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}

// AbilityScopeGlobal is the scope value for an examinee's overall estimate;
// any other scope value is a topic ID.
const AbilityScopeGlobal = "global"

// AbilityEstimate is an examinee's latent ability on the logistic scale,
// either global or per topic.
type AbilityEstimate struct {
	ExamineeID    string    `bson:"examinee_id" json:"examinee_id"`
	Scope         string    `bson:"scope" json:"scope"`
	Theta         float64   `bson:"theta" json:"theta"`
	StandardError float64   `bson:"standard_error" json:"standard_error"`
	ResponseCount int       `bson:"response_count" json:"response_count"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}
