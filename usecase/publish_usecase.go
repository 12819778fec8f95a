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

	"golang.org/x/sync/errgroup"
)

type CreatePublishJob struct {
	Content         model.ContentItem
	Targets         []model.Network
	CaptionOverride *string
	ScheduledFor    *time.Time
}

type IPublishUsecase interface {
	// CreateJob publishes right away, or stores the job as scheduled with a
	// publish task when ScheduledFor lies in the future.
	CreateJob(ctx context.Context, ownerID string, req CreatePublishJob) (*model.PublishJob, error)
	// Execute publishes to the given networks (all targets when empty). Partial
	// failure is recorded in the job, never returned as an error.
	Execute(ctx context.Context, job *model.PublishJob, only []model.Network) (*model.PublishJob, error)
	GetJob(ctx context.Context, ownerID, id string) (*model.PublishJob, error)
	ListJobs(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.PublishJob, error)
}

// PublishConfig bounds fan-out and the retry policy of the synchronous run.
type PublishConfig struct {
	Concurrency      int
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
}

type publishUsecase struct {
	jobs        repository.IPublishJob
	tasks       repository.IScheduledTask
	connections IConnectionUsecase
	registry    repository.IProviderRegistry
	events      []repository.IJobEventPublisher
	cfg         PublishConfig
}

func NewPublishUsecase(jobs repository.IPublishJob, tasks repository.IScheduledTask, connections IConnectionUsecase,
	registry repository.IProviderRegistry, cfg PublishConfig, events ...repository.IJobEventPublisher) IPublishUsecase {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = len(model.Networks)
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Minute
	}
	return &publishUsecase{
		jobs:        jobs,
		tasks:       tasks,
		connections: connections,
		registry:    registry,
		events:      events,
		cfg:         cfg,
	}
}

func validateContent(c model.ContentItem) error {
	if strings.TrimSpace(c.Caption) == "" && len(c.Media) == 0 {
		return fmt.Errorf("%w: content needs a caption or media", model.ErrInvalidInput)
	}
	for _, m := range c.Media {
		if strings.TrimSpace(m.URL) == "" {
			return fmt.Errorf("%w: media url is required", model.ErrInvalidInput)
		}
		if m.Kind != model.MediaImage && m.Kind != model.MediaVideo {
			return fmt.Errorf("%w: unknown media kind %q", model.ErrInvalidInput, m.Kind)
		}
	}
	return nil
}

// normalizeTargets drops duplicates while keeping the caller's order.
func normalizeTargets(targets []model.Network) ([]model.Network, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target network is required", model.ErrInvalidInput)
	}
	seen := make(map[model.Network]bool, len(targets))
	out := make([]model.Network, 0, len(targets))
	for _, t := range targets {
		n, ok := model.ParseNetwork(string(t))
		if !ok {
			return nil, fmt.Errorf("%w: unknown network %q", model.ErrInvalidInput, t)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

func (u *publishUsecase) CreateJob(ctx context.Context, ownerID string, req CreatePublishJob) (*model.PublishJob, error) {
	if ownerID == "" {
		return nil, model.ErrInvalidInput
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}
	targets, err := normalizeTargets(req.Targets)
	if err != nil {
		return nil, err
	}

	now := utils.GetCurrentTime()
	job := &model.PublishJob{
		ID:              utils.NewID(),
		OwnerID:         ownerID,
		Content:         req.Content,
		Targets:         targets,
		CaptionOverride: req.CaptionOverride,
		Status:          model.JobDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	job.ResetResults()
	lg := logger.GetLogger().WithField("owner_id", ownerID).WithField("job_id", job.ID)

	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		due := req.ScheduledFor.UTC()
		job.Status = model.JobScheduled
		job.ScheduledFor = &due
		if err := u.jobs.Create(ctx, job); err != nil {
			return nil, err
		}
		task := &model.ScheduledTask{
			OwnerID:      ownerID,
			Kind:         model.TaskPublish,
			PublishJobID: &job.ID,
			DueAt:        due,
			Status:       model.TaskPending,
		}
		if err := u.tasks.Create(ctx, task); err != nil {
			lg.WithError(err).Error("Failed to schedule publish task")
			job.Status = model.JobDraft
			job.ScheduledFor = nil
			job.UpdatedAt = utils.GetCurrentTime()
			if serr := u.jobs.Save(ctx, job); serr != nil {
				lg.WithError(serr).Error("Failed to revert unscheduled job to draft")
			}
			return nil, err
		}
		lg.WithField("task_id", task.ID).WithField("due_at", due).Info("Publish job scheduled")
		u.emit(ctx, job)
		return job, nil
	}

	if err := u.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	job, err = u.Execute(ctx, job, nil)
	if err != nil {
		return job, err
	}
	u.retryTransient(ctx, job)
	return job, nil
}

// retryTransient queues a publish task for the networks the synchronous run
// failed transiently. The run counts as the first attempt.
func (u *publishUsecase) retryTransient(ctx context.Context, job *model.PublishJob) {
	pending := TransientFailures(job)
	if len(pending) == 0 || u.cfg.RetryMaxAttempts <= 1 {
		return
	}
	lg := logger.GetLogger().WithField("owner_id", job.OwnerID).WithField("job_id", job.ID)
	retry := newPublishRetry(job.OwnerID, job.ID, job.ID, 1, u.cfg.RetryBaseDelay)
	if err := u.tasks.Create(ctx, retry); err != nil {
		lg.WithError(err).Error("Failed to schedule retry")
		return
	}
	lg.WithField("retry_task_id", retry.ID).WithField("networks", pending).WithField("due_at", retry.DueAt).Info("Retry scheduled")
}

func (u *publishUsecase) Execute(ctx context.Context, job *model.PublishJob, only []model.Network) (*model.PublishJob, error) {
	lg := logger.GetLogger().WithField("owner_id", job.OwnerID).WithField("job_id", job.ID)
	run := selectTargets(job.Targets, only)
	if job.Results == nil {
		job.ResetResults()
	}
	for _, n := range run {
		job.Results[n] = &model.NetworkResult{Network: n, State: model.ResultPending}
	}
	job.Status = model.JobPublishing
	job.UpdatedAt = utils.GetCurrentTime()
	if err := u.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	u.emit(ctx, job)

	content := job.EffectiveContent()
	// One slot per network; goroutines never share a map.
	slots := make([]model.NetworkResult, len(run))
	var g errgroup.Group
	g.SetLimit(u.cfg.Concurrency)
	for i, n := range run {
		g.Go(func() error {
			slots[i] = u.publishOne(ctx, job.OwnerID, n, content)
			return nil
		})
	}
	_ = g.Wait()

	for i := range slots {
		r := slots[i]
		job.Results[r.Network] = &r
	}
	job.Refresh()
	now := utils.GetCurrentTime()
	job.UpdatedAt = now
	if job.Status.Terminal() {
		job.CompletedAt = &now
	}
	if err := u.jobs.Save(ctx, job); err != nil {
		lg.WithError(err).Error("Failed to save publish results")
		return job, err
	}
	lg.WithField("status", job.Status).Info("Publish job finished")
	u.emit(ctx, job)
	return job, nil
}

func (u *publishUsecase) publishOne(ctx context.Context, ownerID string, n model.Network, content model.ContentItem) model.NetworkResult {
	lg := logger.GetLogger().WithField("owner_id", ownerID).WithField("network", n)
	at := utils.GetCurrentTime()
	res := model.NetworkResult{Network: n, AttemptedAt: &at}

	conn, err := u.connections.Credential(ctx, ownerID, n)
	if err != nil {
		if errors.Is(err, model.ErrNotConnected) {
			return failed(res, model.ErrorPermanent, model.ReasonNotConnected, "network is not connected")
		}
		pe := model.AsPublishError(err)
		return failed(res, pe.Class, pe.Reason, pe.Detail)
	}
	provider, ok := u.registry.Get(n)
	if !ok {
		return failed(res, model.ErrorPermanent, model.ReasonUnsupported, "network is not enabled")
	}

	receipt, err := provider.Publish(ctx, content, conn.Credential())
	if err != nil {
		pe := model.AsPublishError(err)
		if pe.Reason == model.ReasonAuthRevoked {
			_ = u.connections.MarkRevoked(ctx, conn)
		}
		lg.WithError(err).WithField("class", pe.Class).Warn("Publish failed")
		return failed(res, pe.Class, pe.Reason, pe.Detail)
	}
	res.State = model.ResultSucceeded
	res.RemotePostID = receipt.RemotePostID
	res.RemoteURL = receipt.RemoteURL
	return res
}

func failed(r model.NetworkResult, class model.ErrorClass, reason, detail string) model.NetworkResult {
	r.State = model.ResultFailed
	r.ErrorClass = class
	r.ErrorReason = reason
	r.ErrorMessage = detail
	return r
}

func selectTargets(targets, only []model.Network) []model.Network {
	if len(only) == 0 {
		return append([]model.Network(nil), targets...)
	}
	want := make(map[model.Network]bool, len(only))
	for _, n := range only {
		want[n] = true
	}
	var out []model.Network
	for _, n := range targets {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}

// emit hands the job to every event sink. Sink failures are logged only.
func (u *publishUsecase) emit(ctx context.Context, job *model.PublishJob) {
	if len(u.events) == 0 {
		return
	}
	evt := model.NewJobEvent(job, utils.GetCurrentTime())
	for _, sink := range u.events {
		if err := sink.PublishJobEvent(ctx, evt); err != nil {
			logger.GetLogger().WithError(err).WithField("job_id", job.ID).Warn("Failed to publish job event")
		}
	}
}

func (u *publishUsecase) GetJob(ctx context.Context, ownerID, id string) (*model.PublishJob, error) {
	return u.jobs.Get(ctx, ownerID, id)
}

func (u *publishUsecase) ListJobs(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.PublishJob, error) {
	return u.jobs.List(ctx, ownerID, filter)
}

// TransientFailures lists the networks of a job that may succeed on retry.
func TransientFailures(job *model.PublishJob) []model.Network {
	var out []model.Network
	for _, n := range job.Targets {
		if r, ok := job.Results[n]; ok && r != nil && r.Transient() {
			out = append(out, n)
		}
	}
	return out
}
