package repository

import (
	"context"
	"time"

	"social-publisher/domain/model"
)

type IScheduledTask interface {
	Create(ctx context.Context, task *model.ScheduledTask) error
	Get(ctx context.Context, id string) (*model.ScheduledTask, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.ScheduledTask, error)
	// ListDue returns pending tasks whose due time is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledTask, error)
	// Claim moves a task from pending to executing. It reports false, without error,
	// when another worker got there first.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	// Finish moves an executing task to done or failed.
	Finish(ctx context.Context, id string, status model.TaskStatus, cause *string) error
	// Cancel moves a pending task owned by ownerID to cancelled.
	Cancel(ctx context.Context, ownerID, id string) (bool, error)
	HasPending(ctx context.Context, ownerID string, kind model.TaskKind) (bool, error)
}
