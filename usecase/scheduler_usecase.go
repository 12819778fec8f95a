package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"
)

type SchedulerConfig struct {
	BatchSize        int
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	MetricsInterval  time.Duration
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Due     int `json:"due"`
	Claimed int `json:"claimed"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Retried int `json:"retried"`
}

type ISchedulerUsecase interface {
	SchedulePublish(ctx context.Context, ownerID, jobID string, dueAt time.Time) (*model.ScheduledTask, error)
	ScheduleMetricsRefresh(ctx context.Context, ownerID string, dueAt time.Time) (*model.ScheduledTask, error)
	// EnsureMetricsRefresh schedules an immediate refresh unless one is already queued.
	EnsureMetricsRefresh(ctx context.Context, ownerID string) error
	// Cancel works on pending tasks only; executing tasks run to completion.
	Cancel(ctx context.Context, ownerID, taskID string) error
	ListTasks(ctx context.Context, ownerID string, limit int) ([]*model.ScheduledTask, error)
	// Sweep claims and runs every due task. Safe to run from several workers.
	Sweep(ctx context.Context) (SweepReport, error)
}

type schedulerUsecase struct {
	tasks     repository.IScheduledTask
	jobs      repository.IPublishJob
	publisher IPublishUsecase
	metrics   IMetricsUsecase
	cfg       SchedulerConfig
}

func NewSchedulerUsecase(tasks repository.IScheduledTask, jobs repository.IPublishJob, publisher IPublishUsecase, metrics IMetricsUsecase, cfg SchedulerConfig) ISchedulerUsecase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Minute
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = 6 * time.Hour
	}
	return &schedulerUsecase{tasks: tasks, jobs: jobs, publisher: publisher, metrics: metrics, cfg: cfg}
}

// SchedulePublish moves a draft or failed job to scheduled and queues its
// publish task. A job that is publishing or already published is refused.
func (u *schedulerUsecase) SchedulePublish(ctx context.Context, ownerID, jobID string, dueAt time.Time) (*model.ScheduledTask, error) {
	if ownerID == "" || jobID == "" || dueAt.IsZero() {
		return nil, model.ErrInvalidInput
	}
	job, err := u.jobs.Get(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobDraft && job.Status != model.JobFailed {
		return nil, fmt.Errorf("%w: job is %s", model.ErrInvalidTransition, job.Status)
	}

	lg := logger.GetLogger().WithField("owner_id", ownerID).WithField("job_id", jobID)
	prevStatus, prevDue := job.Status, job.ScheduledFor
	due := dueAt.UTC()
	job.Status = model.JobScheduled
	job.ScheduledFor = &due
	job.UpdatedAt = utils.GetCurrentTime()
	if err := u.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	task := &model.ScheduledTask{OwnerID: ownerID, Kind: model.TaskPublish, PublishJobID: &job.ID, DueAt: due, Status: model.TaskPending}
	if err := u.tasks.Create(ctx, task); err != nil {
		lg.WithError(err).Error("Failed to schedule publish task")
		job.Status, job.ScheduledFor = prevStatus, prevDue
		job.UpdatedAt = utils.GetCurrentTime()
		if serr := u.jobs.Save(ctx, job); serr != nil {
			lg.WithError(serr).Error("Failed to restore job after scheduling error")
		}
		return nil, err
	}
	lg.WithField("task_id", task.ID).WithField("due_at", due).Info("Publish job scheduled")
	return task, nil
}

func (u *schedulerUsecase) ScheduleMetricsRefresh(ctx context.Context, ownerID string, dueAt time.Time) (*model.ScheduledTask, error) {
	if ownerID == "" {
		return nil, model.ErrInvalidInput
	}
	task := &model.ScheduledTask{OwnerID: ownerID, Kind: model.TaskMetricsRefresh, DueAt: dueAt.UTC(), Status: model.TaskPending}
	if err := u.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (u *schedulerUsecase) EnsureMetricsRefresh(ctx context.Context, ownerID string) error {
	queued, err := u.tasks.HasPending(ctx, ownerID, model.TaskMetricsRefresh)
	if err != nil {
		return err
	}
	if queued {
		return nil
	}
	_, err = u.ScheduleMetricsRefresh(ctx, ownerID, utils.GetCurrentTime())
	return err
}

func (u *schedulerUsecase) Cancel(ctx context.Context, ownerID, taskID string) error {
	ok, err := u.tasks.Cancel(ctx, ownerID, taskID)
	if err != nil {
		return err
	}
	task, err := u.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.OwnerID != ownerID {
		return model.ErrNotFound
	}
	if !ok {
		return fmt.Errorf("%w: task is %s", model.ErrInvalidTransition, task.Status)
	}
	// A cancelled first attempt leaves its job unpublished.
	if task.Kind == model.TaskPublish && task.RetryOf == nil && task.PublishJobID != nil {
		job, err := u.jobs.Get(ctx, ownerID, *task.PublishJobID)
		if err == nil && job.Status == model.JobScheduled {
			job.Status = model.JobDraft
			job.UpdatedAt = utils.GetCurrentTime()
			if err := u.jobs.Save(ctx, job); err != nil {
				logger.GetLogger().WithError(err).WithField("job_id", job.ID).Warn("Failed to reset cancelled job")
			}
		}
	}
	logger.GetLogger().WithField("owner_id", ownerID).WithField("task_id", taskID).Info("Task cancelled")
	return nil
}

func (u *schedulerUsecase) ListTasks(ctx context.Context, ownerID string, limit int) ([]*model.ScheduledTask, error) {
	return u.tasks.ListByOwner(ctx, ownerID, limit)
}

func (u *schedulerUsecase) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := utils.GetCurrentTime()
	due, err := u.tasks.ListDue(ctx, now, u.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list due tasks: %w", err)
	}
	report.Due = len(due)

	for _, task := range due {
		if ctx.Err() != nil {
			break
		}
		claimed, err := u.tasks.Claim(ctx, task.ID, now)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("task_id", task.ID).Error("Failed to claim task")
			continue
		}
		if !claimed {
			continue
		}
		report.Claimed++
		task.Status = model.TaskExecuting
		task.AttemptCount++
		task.LastAttemptAt = &now

		status, retried := u.run(ctx, task)
		if status == model.TaskDone {
			report.Done++
		} else {
			report.Failed++
		}
		if retried {
			report.Retried++
		}
	}
	return report, nil
}

// run executes a claimed task and records its terminal status.
func (u *schedulerUsecase) run(ctx context.Context, task *model.ScheduledTask) (status model.TaskStatus, retried bool) {
	lg := logger.GetLogger().WithField("owner_id", task.OwnerID).WithField("task_id", task.ID).WithField("kind", task.Kind)
	var cause error
	defer func() {
		if r := recover(); r != nil {
			lg.WithField("panic", r).Error("Task panicked")
			status, cause = model.TaskFailed, fmt.Errorf("panic: %v", r)
		}
		var msg *string
		if cause != nil {
			s := cause.Error()
			msg = &s
		}
		if err := u.tasks.Finish(ctx, task.ID, status, msg); err != nil {
			lg.WithError(err).Error("Failed to finish task")
		}
		if task.Kind == model.TaskMetricsRefresh {
			u.scheduleNextRefresh(ctx, task.OwnerID)
		}
		lg.WithField("status", status).Info("Task finished")
	}()

	switch task.Kind {
	case model.TaskPublish:
		status, retried, cause = u.runPublish(ctx, task)
	case model.TaskMetricsRefresh:
		report, err := u.metrics.RefreshOwner(ctx, task.OwnerID)
		if err != nil {
			status, cause = model.TaskFailed, err
		} else {
			status = model.TaskDone
			if report.Failed > 0 {
				cause = fmt.Errorf("%d of %d items failed", report.Failed, report.Failed+report.Updated)
			}
		}
	default:
		status, cause = model.TaskFailed, fmt.Errorf("unknown task kind %q", task.Kind)
	}
	return status, retried
}

// runPublish marks the task failed only when every network failed. Networks that
// failed transiently get a new task with exponential backoff.
func (u *schedulerUsecase) runPublish(ctx context.Context, task *model.ScheduledTask) (model.TaskStatus, bool, error) {
	if task.PublishJobID == nil {
		return model.TaskFailed, false, errors.New("publish task without job")
	}
	job, err := u.jobs.Get(ctx, task.OwnerID, *task.PublishJobID)
	if err != nil {
		return model.TaskFailed, false, fmt.Errorf("load job: %w", err)
	}

	var only []model.Network
	if task.RetryOf != nil {
		only = TransientFailures(job)
		if len(only) == 0 {
			return model.TaskDone, false, nil
		}
	} else if job.Status.Terminal() {
		return model.TaskDone, false, nil
	}

	job, err = u.publisher.Execute(ctx, job, only)
	if err != nil {
		return model.TaskFailed, false, err
	}

	retried := false
	if pending := TransientFailures(job); len(pending) > 0 && task.AttemptCount < u.cfg.RetryMaxAttempts {
		retried = u.scheduleRetry(ctx, task, pending)
	}
	if job.Status == model.JobFailed {
		return model.TaskFailed, retried, errors.New(failureSummary(job))
	}
	if job.Status == model.JobPartiallyFailed {
		return model.TaskDone, retried, errors.New(failureSummary(job))
	}
	return model.TaskDone, retried, nil
}

func (u *schedulerUsecase) scheduleRetry(ctx context.Context, task *model.ScheduledTask, networks []model.Network) bool {
	retry := newPublishRetry(task.OwnerID, *task.PublishJobID, task.ID, task.AttemptCount, u.cfg.RetryBaseDelay)
	lg := logger.GetLogger().WithField("owner_id", task.OwnerID).WithField("task_id", task.ID)
	if err := u.tasks.Create(ctx, retry); err != nil {
		lg.WithError(err).Error("Failed to schedule retry")
		return false
	}
	lg.WithField("retry_task_id", retry.ID).WithField("networks", networks).WithField("due_at", retry.DueAt).Info("Retry scheduled")
	return true
}

// newPublishRetry builds the follow-up task for a job after its attempt-th run
// left transient failures. retryOf names the failed task, or the job itself when
// the failed run was the synchronous one in CreateJob. A non-nil RetryOf limits
// the run to the transient networks.
func newPublishRetry(ownerID, jobID, retryOf string, attempt int, base time.Duration) *model.ScheduledTask {
	if attempt < 1 {
		attempt = 1
	}
	return &model.ScheduledTask{
		OwnerID:      ownerID,
		Kind:         model.TaskPublish,
		PublishJobID: &jobID,
		DueAt:        utils.GetCurrentTime().Add(base << uint(attempt-1)),
		Status:       model.TaskPending,
		AttemptCount: attempt,
		RetryOf:      &retryOf,
	}
}

func (u *schedulerUsecase) scheduleNextRefresh(ctx context.Context, ownerID string) {
	queued, err := u.tasks.HasPending(ctx, ownerID, model.TaskMetricsRefresh)
	if err != nil || queued {
		return
	}
	if _, err := u.ScheduleMetricsRefresh(ctx, ownerID, utils.GetCurrentTime().Add(u.cfg.MetricsInterval)); err != nil {
		logger.GetLogger().WithError(err).WithField("owner_id", ownerID).Error("Failed to enqueue next metrics refresh")
	}
}

func failureSummary(job *model.PublishJob) string {
	var parts []string
	for _, n := range job.Targets {
		if r := job.Results[n]; r != nil && r.State == model.ResultFailed {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", n, r.ErrorReason, r.ErrorClass))
		}
	}
	return strings.Join(parts, "; ")
}
