package dto

import (
	"time"

	"social-publisher/domain/model"
)

type CreatePublishJobRequest struct {
	Content         model.ContentItem `json:"content"`
	Targets         []string          `json:"targets" binding:"required,min=1"`
	CaptionOverride *string           `json:"caption_override"`
	ScheduledFor    *time.Time        `json:"scheduled_for"`
}

// ListJobsQuery binds the query string of GET /api/publish-jobs.
type ListJobsQuery struct {
	Status string     `form:"status"`
	Since  *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until  *time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit  int        `form:"limit"`
}

type ScheduleMetricsRequest struct {
	DueAt *time.Time `json:"due_at"`
}

// SchedulePublishRequest moves an existing draft or failed job onto the scheduler.
type SchedulePublishRequest struct {
	ScheduledFor time.Time `json:"scheduled_for" binding:"required"`
}
