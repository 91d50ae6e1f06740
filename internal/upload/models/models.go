package models

import (
	"time"

	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

// Status is an upload task's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusUploading, StatusUploaded, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal is true for uploaded and failed.
func (s Status) IsTerminal() bool {
	return s == StatusUploaded || s == StatusFailed
}

// QueueState is the queue-level mode.
type QueueState string

const (
	QueueDraining      QueueState = "draining"
	QueuePausedOffline QueueState = "paused_offline"
	QueuePausedQuota   QueueState = "paused_quota"
)

// Task is one captured artifact waiting to be uploaded.
type Task struct {
	ID             id.TaskID    `json:"id"`
	SubjectID      id.SubjectID `json:"subjectId"`
	SourceLocation string       `json:"sourceLocation"`
	FileName       string       `json:"fileName"`
	ContentHash    string       `json:"contentHash"`
	Status         Status       `json:"status"`
	RetryCount     int          `json:"retryCount"`
	LastError      string       `json:"lastError,omitempty"`
	ErrorKind      ErrorKind    `json:"errorKind,omitempty"`
	ObjectKey      string       `json:"objectKey,omitempty"`
	EnqueuedAt     time.Time    `json:"enqueuedAt"`
	NextAttemptAt  time.Time    `json:"nextAttemptAt,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// IntentID is the token every upload attempt for this task carries.
func (t *Task) IntentID() id.IntentID {
	return id.IntentID("upload:" + t.ID.String())
}

// ChargeIntentID guards the single quota charge for this task.
func (t *Task) ChargeIntentID() id.IntentID {
	return id.IntentID("charge:" + t.ID.String())
}

// Due reports whether a retrying task's backoff has elapsed.
func (t *Task) Due(now time.Time) bool {
	return t.Status == StatusRetrying && !now.Before(t.NextAttemptAt)
}

// Receipt is what a successful upload returns; it is also the value recorded
// under the task's intent.
type Receipt struct {
	ObjectKey  string    `json:"objectKey"`
	UploadedAt time.Time `json:"uploadedAt"`
}
