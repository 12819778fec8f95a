package repository

import (
	"context"

	"social-publisher/domain/model"
)

// IJobEventPublisher receives job status changes. Delivery is best effort.
type IJobEventPublisher interface {
	PublishJobEvent(ctx context.Context, evt model.JobEvent) error
}
