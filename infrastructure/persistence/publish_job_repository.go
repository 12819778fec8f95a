package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/utils"

	"github.com/Masterminds/squirrel"
)

const publishJobColumns = "id, owner_id, content, targets, caption_override, status, results, scheduled_for, completed_at, created_at, updated_at"

// PublishJobRepository stores jobs with content, targets and results as JSONB.
type PublishJobRepository struct{ db *sql.DB }

func NewPublishJobRepository(db *sql.DB) *PublishJobRepository {
	return &PublishJobRepository{db: db}
}

var _ repository.IPublishJob = (*PublishJobRepository)(nil)

func (r *PublishJobRepository) Create(ctx context.Context, job *model.PublishJob) error {
	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = utils.NewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	content, targets, results, err := marshalJob(job)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO publish_jobs (`+publishJobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		job.ID, job.OwnerID, content, targets, job.CaptionOverride, job.Status, results, job.ScheduledFor, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert publish job: %w", err)
	}
	return nil
}

func (r *PublishJobRepository) Save(ctx context.Context, job *model.PublishJob) error {
	job.UpdatedAt = time.Now().UTC()
	results, err := json.Marshal(job.Results)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE publish_jobs SET status=$1, results=$2, completed_at=$3, updated_at=$4 WHERE id=$5`,
		job.Status, results, job.CompletedAt, job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("update publish job: %w", err)
	}
	return requireOneRow(res)
}

func (r *PublishJobRepository) Get(ctx context.Context, ownerID, id string) (*model.PublishJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+publishJobColumns+` FROM publish_jobs WHERE id=$1 AND owner_id=$2`, id, ownerID)
	job, err := scanPublishJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return job, err
}

func (r *PublishJobRepository) List(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.PublishJob, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	qb := squirrel.Select(publishJobColumns).
		From("publish_jobs").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)
	if filter.Status != "" {
		qb = qb.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Since != nil {
		qb = qb.Where(squirrel.GtOrEq{"created_at": *filter.Since})
	}
	if filter.Until != nil {
		qb = qb.Where(squirrel.LtOrEq{"created_at": *filter.Until})
	}
	q, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build publish job query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.PublishJob
	for rows.Next() {
		job, err := scanPublishJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

func marshalJob(job *model.PublishJob) (content, targets, results []byte, err error) {
	if content, err = json.Marshal(job.Content); err != nil {
		return
	}
	if targets, err = json.Marshal(job.Targets); err != nil {
		return
	}
	if job.Results == nil {
		job.Results = map[model.Network]*model.NetworkResult{}
	}
	results, err = json.Marshal(job.Results)
	return
}

func scanPublishJob(s rowScanner) (*model.PublishJob, error) {
	job := &model.PublishJob{}
	var content, targets, results []byte
	var override sql.NullString
	var scheduledFor, completedAt sql.NullTime
	if err := s.Scan(&job.ID, &job.OwnerID, &content, &targets, &override, &job.Status, &results, &scheduledFor, &completedAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &job.Content); err != nil {
		return nil, fmt.Errorf("decode job content: %w", err)
	}
	if err := json.Unmarshal(targets, &job.Targets); err != nil {
		return nil, fmt.Errorf("decode job targets: %w", err)
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &job.Results); err != nil {
			return nil, fmt.Errorf("decode job results: %w", err)
		}
	}
	if override.Valid {
		v := override.String
		job.CaptionOverride = &v
	}
	if scheduledFor.Valid {
		t := scheduledFor.Time
		job.ScheduledFor = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}
