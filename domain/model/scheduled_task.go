package model

import "time"

type TaskKind string

const (
	TaskPublish        TaskKind = "publish"
	TaskMetricsRefresh TaskKind = "metrics-refresh"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskExecuting TaskStatus = "executing"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status can never change again.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed || s == TaskCancelled
}

// ScheduledTask is a deferred unit of work. It moves pending -> executing -> done|failed
// (or pending -> cancelled); a retry is always a new task pointing at its parent.
type ScheduledTask struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Kind          TaskKind   `json:"kind"`
	PublishJobID  *string    `json:"publish_job_id,omitempty"`
	DueAt         time.Time  `json:"due_at"`
	Status        TaskStatus `json:"status"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
	LastError     *string    `json:"last_error,omitempty"`
	RetryOf       *string    `json:"retry_of,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
