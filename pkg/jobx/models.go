package jobx

import (
	"encoding/json"
	"strings"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

const (
	DefaultQueue      = "default"
	DefaultMaxRetries = 3
)

// Job represents a unit of work to be enqueued.
type Job struct {
	Type    string          `json:"type"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`

	// MaxRetries is the maximum number of attempts. Zero means DefaultMaxRetries.
	MaxRetries int `json:"max_retries"`
}

// NewJob marshals payload into a job for queue.
func NewJob(jobType, queue string, payload any) (Job, error) {
	if strings.TrimSpace(jobType) == "" {
		return Job{}, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "job type is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, jobxErrors.NewWithCause(ErrInvalidJob, err).WithDetail("type", jobType)
	}
	return Job{Type: jobType, Queue: queue, Payload: raw}, nil
}

func (j Job) withDefaults() Job {
	if j.Queue == "" {
		j.Queue = DefaultQueue
	}
	if j.MaxRetries <= 0 {
		j.MaxRetries = DefaultMaxRetries
	}
	return j
}

// JobInfo is the full representation of a job stored in the backend.
type JobInfo struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	MaxRetries int             `json:"max_retries"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewJobInfo is the pending record a backend stores on enqueue.
func NewJobInfo(id string, job Job, now time.Time) JobInfo {
	return JobInfo{
		ID:         id,
		Type:       job.Type,
		Queue:      job.Queue,
		Payload:    job.Payload,
		Status:     JobStatusPending,
		MaxRetries: job.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Decode unmarshals the payload into v.
func (j *JobInfo) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return jobxErrors.NewWithCause(ErrInvalidPayload, err).
			WithDetail("job_id", j.ID).
			WithDetail("type", j.Type)
	}
	return nil
}

// CanRetry reports whether another attempt is allowed.
func (j *JobInfo) CanRetry() bool {
	return j.Attempts < j.MaxRetries
}

// IsFinal reports whether the job will not run again.
func (j *JobInfo) IsFinal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
