package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
	"social-publisher/usecase"
)

type schedulerFixture struct {
	tasks   *MockTaskRepo
	jobs    *MockPublishJobRepo
	publish *MockPublishUsecase
	metrics *MockMetricsUsecase
	uc      usecase.ISchedulerUsecase
}

func newSchedulerFixture() *schedulerFixture {
	f := &schedulerFixture{
		tasks:   new(MockTaskRepo),
		jobs:    new(MockPublishJobRepo),
		publish: new(MockPublishUsecase),
		metrics: new(MockMetricsUsecase),
	}
	f.uc = usecase.NewSchedulerUsecase(f.tasks, f.jobs, f.publish, f.metrics, usecase.SchedulerConfig{
		BatchSize:        10,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Minute,
		MetricsInterval:  time.Hour,
	})
	return f
}

func publishTask(id, jobID string, attempts int) *model.ScheduledTask {
	return &model.ScheduledTask{ID: id, OwnerID: "owner-1", Kind: model.TaskPublish, PublishJobID: &jobID, Status: model.TaskPending, AttemptCount: attempts}
}

func scheduledJob(results map[model.Network]*model.NetworkResult) *model.PublishJob {
	job := &model.PublishJob{ID: "job-1", OwnerID: "owner-1", Targets: []model.Network{model.NetworkFacebook, model.NetworkTwitter}, Results: results}
	job.Refresh()
	return job
}

func TestSchedulerUsecase_Sweep_SkipsLostClaim(t *testing.T) {
	f := newSchedulerFixture()
	f.tasks.On("ListDue", mock.Anything, mock.Anything, 10).Return([]*model.ScheduledTask{publishTask("t1", "job-1", 0)}, nil)
	f.tasks.On("Claim", mock.Anything, "t1", mock.Anything).Return(false, nil)

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 0, report.Claimed)
	f.publish.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	f.tasks.AssertNotCalled(t, "Finish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerUsecase_Sweep_PublishSucceeds(t *testing.T) {
	f := newSchedulerFixture()
	job := scheduledJob(nil)
	job.Status = model.JobScheduled
	done := scheduledJob(map[model.Network]*model.NetworkResult{
		model.NetworkFacebook: {State: model.ResultSucceeded},
		model.NetworkTwitter:  {State: model.ResultSucceeded},
	})

	f.tasks.On("ListDue", mock.Anything, mock.Anything, 10).Return([]*model.ScheduledTask{publishTask("t1", "job-1", 0)}, nil)
	f.tasks.On("Claim", mock.Anything, "t1", mock.Anything).Return(true, nil)
	f.jobs.On("Get", mock.Anything, "owner-1", "job-1").Return(job, nil)
	f.publish.On("Execute", mock.Anything, job, []model.Network(nil)).Return(done, nil)
	f.tasks.On("Finish", mock.Anything, "t1", model.TaskDone, (*string)(nil)).Return(nil)

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Claimed)
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, 0, report.Retried)
	f.tasks.AssertExpectations(t)
	f.tasks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSchedulerUsecase_Sweep_TransientFailureSchedulesRetryWithBackoff(t *testing.T) {
	f := newSchedulerFixture()
	job := scheduledJob(nil)
	job.Status = model.JobScheduled
	after := scheduledJob(map[model.Network]*model.NetworkResult{
		model.NetworkFacebook: {State: model.ResultSucceeded},
		model.NetworkTwitter:  {State: model.ResultFailed, ErrorClass: model.ErrorTransient, ErrorReason: model.ReasonRateLimited},
	})

	// Second attempt: the claim bumps the counter to 2, so the retry waits 2 minutes.
	f.tasks.On("ListDue", mock.Anything, mock.Anything, 10).Return([]*model.ScheduledTask{publishTask("t1", "job-1", 1)}, nil)
	f.tasks.On("Claim", mock.Anything, "t1", mock.Anything).Return(true, nil)
	f.jobs.On("Get", mock.Anything, "owner-1", "job-1").Return(job, nil)
	f.publish.On("Execute", mock.Anything, job, []model.Network(nil)).Return(after, nil)
	var retry *model.ScheduledTask
	f.tasks.On("Create", mock.Anything, mock.AnythingOfType("*model.ScheduledTask")).
		Run(func(args mock.Arguments) { retry = args.Get(1).(*model.ScheduledTask) }).
		Return(nil)
	f.tasks.On("Finish", mock.Anything, "t1", model.TaskDone, mock.Anything).Return(nil)

	start := time.Now()
	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)
	require.NotNil(t, retry)
	require.NotNil(t, retry.RetryOf)
	assert.Equal(t, "t1", *retry.RetryOf)
	assert.Equal(t, 2, retry.AttemptCount)
	assert.Equal(t, model.TaskPending, retry.Status)
	assert.WithinDuration(t, start.Add(2*time.Minute), retry.DueAt, 5*time.Second)
}

func TestSchedulerUsecase_Sweep_RetryRunsOnlyTransientNetworks(t *testing.T) {
	f := newSchedulerFixture()
	job := scheduledJob(map[model.Network]*model.NetworkResult{
		model.NetworkFacebook: {State: model.ResultSucceeded},
		model.NetworkTwitter:  {State: model.ResultFailed, ErrorClass: model.ErrorTransient},
	})
	done := scheduledJob(map[model.Network]*model.NetworkResult{
		model.NetworkFacebook: {State: model.ResultSucceeded},
		model.NetworkTwitter:  {State: model.ResultSucceeded},
	})
	task := publishTask("t2", "job-1", 1)
	parent := "t1"
	task.RetryOf = &parent

	f.tasks.On("ListDue", mock.Anything, mock.Anything, 10).Return([]*model.ScheduledTask{task}, nil)
	f.tasks.On("Claim", mock.Anything, "t2", mock.Anything).Return(true, nil)
	f.jobs.On("Get", mock.Anything, "owner-1", "job-1").Return(job, nil)
	f.publish.On("Execute", mock.Anything, job, []model.Network{model.NetworkTwitter}).Return(done, nil)
	f.tasks.On("Finish", mock.Anything, "t2", model.TaskDone, (*string)(nil)).Return(nil)

	_, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	f.publish.AssertExpectations(t)
}

func TestSchedulerUsecase_Sweep_NoRetryPastMaxAttempts(t *testing.T) {
	f := newSchedulerFixture()
	job := scheduledJob(nil)
	job.Status = model.JobScheduled
	after := scheduledJob(map[model.Network]*model.NetworkResult{
		model.NetworkFacebook: {State: model.ResultFailed, ErrorClass: model.ErrorTransient},
		model.NetworkTwitter:  {State: model.ResultFailed, ErrorClass: model.ErrorTransient},
	})

	f.tasks.On("ListDue", mock.Anything, mock.Anything, 10).Return([]*model.ScheduledTask{publishTask("t3", "job-1", 2)}, nil)
	f.tasks.On("Claim", mock.Anything, "t3", mock.Anything).Return(true, nil)
	f.jobs.On("Get", mock.Anything, "owner-1", "job-1").Return(job, nil)
	f.publish.On("Execute", mock.Anything, job, []model.Network(nil)).Return(after, nil)
	f.tasks.On("Finish", mock.Anything, "t3", model.TaskFailed, mock.AnythingOfType("*string")).Return(nil)

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Retried)
	f.tasks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSchedulerUsecase_Sweep_MetricsRefreshReenqueues(t *testing.T) {
	f := newSchedulerFixture()
	task := &model.ScheduledTask{ID: "m1", OwnerID: "owner-1", Kind: model.TaskMetricsRefresh, Status: model.TaskPending}
	f.tasks.On("ListDue", mock.Anything, mock.Anything, 10).Return([]*model.ScheduledTask{task}, nil)
	f.tasks.On("Claim", mock.Anything, "m1", mock.Anything).Return(true, nil)
	f.metrics.On("RefreshOwner", mock.Anything, "owner-1").Return(model.RefreshReport{Updated: 3}, nil)
	f.tasks.On("Finish", mock.Anything, "m1", model.TaskDone, (*string)(nil)).Return(nil)
	f.tasks.On("HasPending", mock.Anything, "owner-1", model.TaskMetricsRefresh).Return(false, nil)
	var next *model.ScheduledTask
	f.tasks.On("Create", mock.Anything, mock.AnythingOfType("*model.ScheduledTask")).
		Run(func(args mock.Arguments) { next = args.Get(1).(*model.ScheduledTask) }).
		Return(nil)

	_, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, model.TaskMetricsRefresh, next.Kind)
	assert.WithinDuration(t, time.Now().Add(time.Hour), next.DueAt, 5*time.Second)
}

func TestSchedulerUsecase_Sweep_RecoversFromPanic(t *testing.T) {
	f := newSchedulerFixture()
	task := &model.ScheduledTask{ID: "m2", OwnerID: "owner-1", Kind: model.TaskMetricsRefresh, Status: model.TaskPending}
	f.tasks.On("ListDue", mock.Anything, mock.Anything, 10).Return([]*model.ScheduledTask{task}, nil)
	f.tasks.On("Claim", mock.Anything, "m2", mock.Anything).Return(true, nil)
	f.metrics.On("RefreshOwner", mock.Anything, "owner-1").Panic("nil map")
	f.tasks.On("Finish", mock.Anything, "m2", model.TaskFailed, mock.AnythingOfType("*string")).Return(nil)
	f.tasks.On("HasPending", mock.Anything, "owner-1", model.TaskMetricsRefresh).Return(true, nil)

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	f.tasks.AssertExpectations(t)
}

func TestSchedulerUsecase_Cancel(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()
	task := publishTask("t1", "job-1", 0)
	task.Status = model.TaskCancelled
	job := scheduledJob(nil)
	job.Status = model.JobScheduled

	f.tasks.On("Cancel", ctx, "owner-1", "t1").Return(true, nil)
	f.tasks.On("Get", ctx, "t1").Return(task, nil)
	f.jobs.On("Get", ctx, "owner-1", "job-1").Return(job, nil)
	f.jobs.On("Save", ctx, mock.MatchedBy(func(j *model.PublishJob) bool { return j.Status == model.JobDraft })).Return(nil)

	require.NoError(t, f.uc.Cancel(ctx, "owner-1", "t1"))
	f.jobs.AssertExpectations(t)
}

func TestSchedulerUsecase_Cancel_Executing(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()
	task := publishTask("t1", "job-1", 1)
	task.Status = model.TaskExecuting
	f.tasks.On("Cancel", ctx, "owner-1", "t1").Return(false, nil)
	f.tasks.On("Get", ctx, "t1").Return(task, nil)

	err := f.uc.Cancel(ctx, "owner-1", "t1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestSchedulerUsecase_Cancel_OtherOwner(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()
	f.tasks.On("Cancel", ctx, "owner-2", "t1").Return(false, nil)
	f.tasks.On("Get", ctx, "t1").Return(publishTask("t1", "job-1", 0), nil)

	err := f.uc.Cancel(ctx, "owner-2", "t1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSchedulerUsecase_EnsureMetricsRefresh(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()
	f.tasks.On("HasPending", ctx, "owner-1", model.TaskMetricsRefresh).Return(true, nil).Once()
	require.NoError(t, f.uc.EnsureMetricsRefresh(ctx, "owner-1"))
	f.tasks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	f.tasks.On("HasPending", ctx, "owner-1", model.TaskMetricsRefresh).Return(false, errors.New("db down")).Once()
	assert.Error(t, f.uc.EnsureMetricsRefresh(ctx, "owner-1"))
}

func TestSchedulerUsecase_SchedulePublish(t *testing.T) {
	f := newSchedulerFixture()
	job := scheduledJob(nil)
	job.Status = model.JobDraft
	due := time.Now().Add(3 * time.Hour)
	f.jobs.On("Get", mock.Anything, "owner-1", "job-1").Return(job, nil)
	f.jobs.On("Save", mock.Anything, mock.MatchedBy(func(j *model.PublishJob) bool {
		return j.Status == model.JobScheduled && j.ScheduledFor != nil && j.ScheduledFor.Equal(due.UTC())
	})).Return(nil).Once()
	f.tasks.On("Create", mock.Anything, mock.MatchedBy(func(task *model.ScheduledTask) bool {
		return task.Kind == model.TaskPublish && *task.PublishJobID == "job-1" && task.RetryOf == nil && task.DueAt.Equal(due.UTC())
	})).Return(nil)

	task, err := f.uc.SchedulePublish(context.Background(), "owner-1", "job-1", due)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, model.JobScheduled, job.Status)
	f.jobs.AssertExpectations(t)
	f.tasks.AssertExpectations(t)
}

func TestSchedulerUsecase_SchedulePublish_RefusesActiveJobs(t *testing.T) {
	for _, status := range []model.JobStatus{model.JobPublishing, model.JobScheduled, model.JobCompleted, model.JobPartiallyFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := newSchedulerFixture()
			job := scheduledJob(nil)
			job.Status = status
			f.jobs.On("Get", mock.Anything, "owner-1", "job-1").Return(job, nil)

			_, err := f.uc.SchedulePublish(context.Background(), "owner-1", "job-1", time.Now().Add(time.Hour))
			assert.ErrorIs(t, err, model.ErrInvalidTransition)
			assert.Equal(t, status, job.Status)
			f.jobs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
			f.tasks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSchedulerUsecase_SchedulePublish_RestoresJobWhenTaskNotStored(t *testing.T) {
	f := newSchedulerFixture()
	job := scheduledJob(nil)
	job.Status = model.JobFailed
	f.jobs.On("Get", mock.Anything, "owner-1", "job-1").Return(job, nil)
	f.jobs.On("Save", mock.Anything, mock.Anything).Return(nil).Twice()
	f.tasks.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	_, err := f.uc.SchedulePublish(context.Background(), "owner-1", "job-1", time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Nil(t, job.ScheduledFor)
	f.jobs.AssertNumberOfCalls(t, "Save", 2)
}

func TestSchedulerUsecase_SchedulePublish_Validation(t *testing.T) {
	f := newSchedulerFixture()
	_, err := f.uc.SchedulePublish(context.Background(), "owner-1", "", time.Now())
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.uc.SchedulePublish(context.Background(), "owner-1", "job-1", time.Time{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	f.jobs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}
