package api

import (
	"time"

	"sprocket/internal/jobs"
	"sprocket/internal/queue"
	"sprocket/internal/stage"
)

// DaemonStatus is the payload returned by GET /api/status.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"database_path"`
	LockFilePath string         `json:"lock_file_path"`
	QueueDepth   int            `json:"queue_depth"`
	JobStats     map[string]int `json:"job_stats"`
}

// StageHealthPayload is one entry of GET /api/health.
type StageHealthPayload struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the payload returned by GET /api/health.
type HealthResponse struct {
	Ready  bool                 `json:"ready"`
	Stages []StageHealthPayload `json:"stages"`
}

// JobError mirrors the persisted error fields of a failed job.
type JobError struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// JobPayload is the wire form of a job record.
type JobPayload struct {
	JobID        string    `json:"job_id"`
	SourceKey    string    `json:"source_key"`
	Status       string    `json:"status"`
	CurrentStage string    `json:"current_stage,omitempty"`
	Progress     float64   `json:"progress"`
	Error        *JobError `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobListResponse is the payload returned by GET /api/jobs.
type JobListResponse struct {
	Jobs []JobPayload `json:"jobs"`
}

// EnqueueRequest is the body accepted by POST /api/jobs. A missing job_id is
// filled with a generated identifier.
type EnqueueRequest struct {
	JobID     string            `json:"job_id,omitempty"`
	SourceKey string            `json:"source_key"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EnqueueResponse is the payload returned by POST /api/jobs.
type EnqueueResponse struct {
	JobID     string `json:"job_id"`
	MessageID int64  `json:"message_id"`
}

// DeadLetterPayload is the wire form of a dead-lettered message.
type DeadLetterPayload struct {
	ID           int64      `json:"id"`
	MessageID    int64      `json:"message_id"`
	Body         string     `json:"body"`
	ReceiveCount int        `json:"receive_count"`
	Reason       string     `json:"reason"`
	DeadAt       time.Time  `json:"dead_at"`
	ReplayedAt   *time.Time `json:"replayed_at,omitempty"`
}

// DeadLetterListResponse is the payload returned by GET /api/deadletters.
type DeadLetterListResponse struct {
	Entries []DeadLetterPayload `json:"entries"`
}

// ReplayResponse is the payload returned by POST /api/deadletters/{id}/replay.
type ReplayResponse struct {
	DeadLetterID int64 `json:"dead_letter_id"`
	MessageID    int64 `json:"message_id"`
}

// ErrorResponse is the uniform error body for non-2xx API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromJob converts a job record to its wire form.
func FromJob(job *jobs.Job) JobPayload {
	if job == nil {
		return JobPayload{}
	}
	payload := JobPayload{
		JobID:        job.JobID,
		SourceKey:    job.SourceKey,
		Status:       string(job.Status),
		CurrentStage: job.CurrentStage,
		Progress:     job.Progress,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if job.Error != nil {
		payload.Error = &JobError{Kind: job.Error.Kind, Message: job.Error.Message}
	}
	return payload
}

// FromDeadLetter converts a dead letter entry to its wire form.
func FromDeadLetter(entry *queue.DeadLetter) DeadLetterPayload {
	if entry == nil {
		return DeadLetterPayload{}
	}
	return DeadLetterPayload{
		ID:           entry.ID,
		MessageID:    entry.MessageID,
		Body:         string(entry.Body),
		ReceiveCount: entry.ReceiveCount,
		Reason:       entry.Reason,
		DeadAt:       entry.DeadAt,
		ReplayedAt:   entry.ReplayedAt,
	}
}

// FromStageHealth converts stage health records to their wire form.
func FromStageHealth(health []stage.Health) HealthResponse {
	resp := HealthResponse{Ready: true}
	for _, h := range health {
		if !h.Ready {
			resp.Ready = false
		}
		resp.Stages = append(resp.Stages, StageHealthPayload{
			Name:   h.Name,
			Ready:  h.Ready,
			Detail: h.Detail,
		})
	}
	return resp
}
