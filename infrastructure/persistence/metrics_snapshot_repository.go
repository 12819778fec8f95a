package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/utils"

	"github.com/Masterminds/squirrel"
)

const metricsSnapshotColumns = "id, owner_id, scope, network, publish_job_id, connection_id, remote_id, reach, engagement, likes, comments, shares, followers, captured_at"

// MetricsSnapshotRepository appends snapshots to PostgreSQL and reads back the newest
// one per key with DISTINCT ON.
type MetricsSnapshotRepository struct{ db *sql.DB }

func NewMetricsSnapshotRepository(db *sql.DB) *MetricsSnapshotRepository {
	return &MetricsSnapshotRepository{db: db}
}

var _ repository.IMetricsSnapshot = (*MetricsSnapshotRepository)(nil)

func (r *MetricsSnapshotRepository) Append(ctx context.Context, s *model.MetricsSnapshot) error {
	if s.ID == "" {
		s.ID = utils.NewID()
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO metrics_snapshots (`+metricsSnapshotColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		s.ID, s.OwnerID, s.Scope, s.Network, s.PublishJobID, s.ConnectionID, s.RemoteID,
		s.Reach, s.Engagement, s.Likes, s.Comments, s.Shares, s.Followers, s.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert metrics snapshot: %w", err)
	}
	return nil
}

func (r *MetricsSnapshotRepository) LatestPostSnapshots(ctx context.Context, ownerID string, from, to time.Time) ([]*model.MetricsSnapshot, error) {
	q, args, err := squirrel.Select(metricsSnapshotColumns).
		Options("DISTINCT ON (publish_job_id, network)").
		From("metrics_snapshots").
		Where(squirrel.Eq{"owner_id": ownerID, "scope": string(model.ScopePost)}).
		Where(squirrel.GtOrEq{"captured_at": from}).
		Where(squirrel.LtOrEq{"captured_at": to}).
		OrderBy("publish_job_id", "network", "captured_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot query: %w", err)
	}
	return r.list(ctx, q, args...)
}

func (r *MetricsSnapshotRepository) LatestAccountSnapshots(ctx context.Context, ownerID string) ([]*model.MetricsSnapshot, error) {
	q, args, err := squirrel.Select(metricsSnapshotColumns).
		Options("DISTINCT ON (network)").
		From("metrics_snapshots").
		Where(squirrel.Eq{"owner_id": ownerID, "scope": string(model.ScopeAccount)}).
		OrderBy("network", "captured_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot query: %w", err)
	}
	return r.list(ctx, q, args...)
}

func (r *MetricsSnapshotRepository) list(ctx context.Context, q string, args ...interface{}) ([]*model.MetricsSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MetricsSnapshot
	for rows.Next() {
		s := &model.MetricsSnapshot{}
		var jobID, connID sql.NullString
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Scope, &s.Network, &jobID, &connID, &s.RemoteID,
			&s.Reach, &s.Engagement, &s.Likes, &s.Comments, &s.Shares, &s.Followers, &s.CapturedAt); err != nil {
			return nil, err
		}
		if jobID.Valid {
			v := jobID.String
			s.PublishJobID = &v
		}
		if connID.Valid {
			v := connID.String
			s.ConnectionID = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
