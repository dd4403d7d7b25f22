package domain

import "time"

// JobState represents the lifecycle state of an OCR job.
// Transitions are monotonic: queued -> running -> succeeded|failed.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// OcrJob represents one asynchronous OCR run against a stored document.
//
// (OwnerID, ContentKey) is the deduplication key: at most one in-flight
// (queued/running) job may exist per pair, enforced by a partial unique
// index. A succeeded job is reusable as a cached result; a failed job
// never blocks a new attempt.
type OcrJob struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	OwnerID       string    `gorm:"type:text;not null;index;index:idx_inflight_owner_key,unique,where:state = 'queued' or state = 'running'" json:"owner_id"`
	ContentKey    string    `gorm:"type:text;not null;index:idx_inflight_owner_key,unique,where:state = 'queued' or state = 'running'" json:"content_key"`
	ExternalJobID string    `json:"external_job_id,omitempty"`
	State         JobState  `gorm:"type:text;not null;default:queued;index" json:"state"`
	ResultText    string    `json:"result_text,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	LinkedScanID  string    `json:"linked_scan_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for OcrJob.
func (OcrJob) TableName() string {
	return "ocr_jobs"
}
