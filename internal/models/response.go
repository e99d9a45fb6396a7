package models

import "time"

// Response is an examinee's submitted answer. Exactly one per administered
// item, append-only. ThetaBefore is the session theta at submission time; the
// calibration engine regresses against it, so it is recorded rather than
// recomputed later.
type Response struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	SessionID      string    `bson:"session_id" json:"session_id"`
	ExamineeID     string    `bson:"examinee_id" json:"examinee_id"`
	ItemID         string    `bson:"item_id" json:"item_id"`
	ItemVersion    int       `bson:"item_version" json:"item_version"`
	TopicID        string    `bson:"topic_id" json:"topic_id"`
	ChosenOption   string    `bson:"chosen_option" json:"chosen_option"`
	IsCorrect      bool      `bson:"is_correct" json:"is_correct"`
	ResponseTimeMs int       `bson:"response_time_ms" json:"response_time_ms"`
	ThetaBefore    float64   `bson:"theta_before" json:"theta_before"`
	ThetaAfter     float64   `bson:"theta_after" json:"theta_after"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
