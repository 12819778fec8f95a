package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/utils"

	"github.com/Masterminds/squirrel"
)

const scheduledTaskColumns = "id, owner_id, kind, publish_job_id, due_at, status, last_attempt_at, attempt_count, last_error, retry_of, created_at, updated_at"

type ScheduledTaskRepository struct{ db *sql.DB }

func NewScheduledTaskRepository(db *sql.DB) *ScheduledTaskRepository {
	return &ScheduledTaskRepository{db: db}
}

var _ repository.IScheduledTask = (*ScheduledTaskRepository)(nil)

func (r *ScheduledTaskRepository) Create(ctx context.Context, task *model.ScheduledTask) error {
	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = utils.NewID()
	}
	if task.Status == "" {
		task.Status = model.TaskPending
	}
	task.CreatedAt, task.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `INSERT INTO scheduled_tasks (`+scheduledTaskColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		task.ID, task.OwnerID, task.Kind, task.PublishJobID, task.DueAt, task.Status, task.LastAttemptAt,
		task.AttemptCount, task.LastError, task.RetryOf, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert scheduled task: %w", err)
	}
	return nil
}

func (r *ScheduledTaskRepository) Get(ctx context.Context, id string) (*model.ScheduledTask, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduledTaskColumns+` FROM scheduled_tasks WHERE id=$1`, id)
	t, err := scanScheduledTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return t, err
}

func (r *ScheduledTaskRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.ScheduledTask, error) {
	if limit <= 0 {
		limit = 50
	}
	q, args, err := squirrel.Select(scheduledTaskColumns).
		From("scheduled_tasks").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("due_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build task query: %w", err)
	}
	return r.list(ctx, q, args...)
}

func (r *ScheduledTaskRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledTask, error) {
	return r.list(ctx, `SELECT `+scheduledTaskColumns+` FROM scheduled_tasks WHERE status='pending' AND due_at <= $1 ORDER BY due_at ASC LIMIT $2`, now, limit)
}

func (r *ScheduledTaskRepository) list(ctx context.Context, q string, args ...interface{}) ([]*model.ScheduledTask, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*model.ScheduledTask
	for rows.Next() {
		t, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Claim is the only mutual exclusion point between sweepers: the conditional update
// succeeds for exactly one of them.
func (r *ScheduledTaskRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_tasks SET status='executing', last_attempt_at=$1, attempt_count=attempt_count+1, updated_at=$1
WHERE id=$2 AND status='pending'`, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ScheduledTaskRepository) Finish(ctx context.Context, id string, status model.TaskStatus, cause *string) error {
	if status != model.TaskDone && status != model.TaskFailed {
		return fmt.Errorf("finish task with %s: %w", status, model.ErrInvalidTransition)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_tasks SET status=$1, last_error=$2, updated_at=$3 WHERE id=$4 AND status='executing'`,
		status, cause, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}

func (r *ScheduledTaskRepository) Cancel(ctx context.Context, ownerID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_tasks SET status='cancelled', updated_at=$1 WHERE id=$2 AND owner_id=$3 AND status='pending'`,
		time.Now().UTC(), id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ScheduledTaskRepository) HasPending(ctx context.Context, ownerID string, kind model.TaskKind) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM scheduled_tasks WHERE owner_id=$1 AND kind=$2 AND status IN ('pending','executing'))`,
		ownerID, kind).Scan(&exists)
	return exists, err
}

func scanScheduledTask(s rowScanner) (*model.ScheduledTask, error) {
	t := &model.ScheduledTask{}
	var jobID, lastErr, retryOf sql.NullString
	var lastAttempt sql.NullTime
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Kind, &jobID, &t.DueAt, &t.Status, &lastAttempt, &t.AttemptCount, &lastErr, &retryOf, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if jobID.Valid {
		v := jobID.String
		t.PublishJobID = &v
	}
	if lastErr.Valid {
		v := lastErr.String
		t.LastError = &v
	}
	if retryOf.Valid {
		v := retryOf.String
		t.RetryOf = &v
	}
	if lastAttempt.Valid {
		v := lastAttempt.Time
		t.LastAttemptAt = &v
	}
	return t, nil
}
