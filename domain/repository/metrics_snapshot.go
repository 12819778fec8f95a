package repository

import (
	"context"
	"time"

	"social-publisher/domain/model"
)

// IMetricsSnapshot stores snapshots append-only. Roll-ups are computed by readers.
type IMetricsSnapshot interface {
	Append(ctx context.Context, s *model.MetricsSnapshot) error
	// LatestPostSnapshots returns the newest post snapshot per (job, network) captured
	// in [from, to].
	LatestPostSnapshots(ctx context.Context, ownerID string, from, to time.Time) ([]*model.MetricsSnapshot, error)
	// LatestAccountSnapshots returns the newest account snapshot per network.
	LatestAccountSnapshots(ctx context.Context, ownerID string) ([]*model.MetricsSnapshot, error)
}
