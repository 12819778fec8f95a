package repository

import (
	"context"

	"social-publisher/domain/model"
)

type IPublishJob interface {
	Create(ctx context.Context, job *model.PublishJob) error
	// Save persists status, results and completion time.
	Save(ctx context.Context, job *model.PublishJob) error
	Get(ctx context.Context, ownerID, id string) (*model.PublishJob, error)
	List(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.PublishJob, error)
}
