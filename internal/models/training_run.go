package models

import "time"

// Training run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// TrainingRun records one attempt to fit the normalizer and network.
type TrainingRun struct {
	ID         string     `db:"id" json:"id"`
	Status     string     `db:"status" json:"status"`
	Trigger    string     `db:"trigger_reason" json:"trigger"` // startup, stale, schema_drift, manual
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`

	// Training data shape
	SampleCount  int `db:"sample_count" json:"sample_count"`
	FeatureWidth int `db:"feature_width" json:"feature_width"`
	ClassCount   int `db:"class_count" json:"class_count"`

	// Final epoch metrics; validation ones are zero when no split was held out
	TrainLoss          float64 `db:"train_loss" json:"train_loss"`
	TrainAccuracy      float64 `db:"train_accuracy" json:"train_accuracy"`
	ValidationLoss     float64 `db:"validation_loss" json:"validation_loss"`
	ValidationAccuracy float64 `db:"validation_accuracy" json:"validation_accuracy"`

	SchemaFingerprint string `db:"schema_fingerprint" json:"schema_fingerprint"`
	ErrorMessage      string `db:"error_message" json:"error_message,omitempty"`
}
