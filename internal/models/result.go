package models

import "time"

// TopicBreakdown summarizes accuracy within one topic of a finished session.
type TopicBreakdown struct {
	Attempted int     `bson:"attempted" json:"attempted"`
	Correct   int     `bson:"correct" json:"correct"`
	Accuracy  float64 `bson:"accuracy" json:"accuracy"`
}

// TimeBreakdown summarizes response-time behaviour over a finished session.
type TimeBreakdown struct {
	TotalMs  int     `bson:"total_ms" json:"total_ms"`
	MeanMs   float64 `bson:"mean_ms" json:"mean_ms"`
	MedianMs float64 `bson:"median_ms" json:"median_ms"`
	StdDevMs float64 `bson:"stddev_ms" json:"stddev_ms"`
}

// SessionResults is the terminal-state aggregate for one session.
type SessionResults struct {
	SessionID       string                    `bson:"session_id" json:"session_id"`
	ExamineeID      string                    `bson:"examinee_id" json:"examinee_id"`
	State           SessionState              `bson:"state" json:"state"`
	ItemsServed     int                       `bson:"items_served" json:"items_served"`
	ItemsAnswered   int                       `bson:"items_answered" json:"items_answered"`
	ItemsCorrect    int                       `bson:"items_correct" json:"items_correct"`
	Score           float64                   `bson:"score" json:"score"`
	Theta           float64                   `bson:"theta" json:"theta"`
	StandardError   float64                   `bson:"standard_error" json:"standard_error"`
	Percentile      float64                   `bson:"percentile" json:"percentile"`
	ThetaTrajectory []float64                 `bson:"theta_trajectory" json:"theta_trajectory"`
	Topics          map[string]TopicBreakdown `bson:"topics" json:"topics"`
	Times           TimeBreakdown             `bson:"times" json:"times"`
	StartedAt       time.Time                 `bson:"started_at" json:"started_at"`
	FinishedAt      *time.Time                `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
	Shortened       bool                      `bson:"shortened" json:"shortened"`
}
