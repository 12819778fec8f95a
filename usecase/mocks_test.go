package usecase_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/usecase"
)

type MockConnectionRepo struct {
	mock.Mock
}

func (m *MockConnectionRepo) Supersede(ctx context.Context, c *model.Connection) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockConnectionRepo) Get(ctx context.Context, ownerID string, network model.Network) (*model.Connection, error) {
	args := m.Called(ctx, ownerID, network)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *MockConnectionRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]*model.Connection), args.Error(1)
}

func (m *MockConnectionRepo) ListLive(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]*model.Connection), args.Error(1)
}

func (m *MockConnectionRepo) UpdateCredential(ctx context.Context, c *model.Connection) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockConnectionRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockConnectionRepo) UpdateFollowers(ctx context.Context, id string, followers int64) error {
	return m.Called(ctx, id, followers).Error(0)
}

func (m *MockConnectionRepo) Purge(ctx context.Context, ownerID string, network model.Network) (int64, error) {
	args := m.Called(ctx, ownerID, network)
	return args.Get(0).(int64), args.Error(1)
}

type MockLinkStateStore struct {
	mock.Mock
}

func (m *MockLinkStateStore) Put(ctx context.Context, attempt *model.LinkAttempt) error {
	return m.Called(ctx, attempt).Error(0)
}

func (m *MockLinkStateStore) Take(ctx context.Context, state string) (*model.LinkAttempt, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LinkAttempt), args.Error(1)
}

type MockProvider struct {
	mock.Mock
	network model.Network
	ads     bool
}

func newMockProvider(n model.Network, ads bool) *MockProvider {
	return &MockProvider{network: n, ads: ads}
}

func (m *MockProvider) Network() model.Network { return m.network }

func (m *MockProvider) AuthCodeURL(state, verifier string) string {
	return "https://auth.example/" + string(m.network) + "?state=" + state
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, verifier string) (*model.Credential, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockProvider) RefreshCredential(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	args := m.Called(ctx, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockProvider) FetchProfile(ctx context.Context, cred model.Credential) (*model.Profile, error) {
	args := m.Called(ctx, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProvider) Publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	args := m.Called(ctx, content, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishReceipt), args.Error(1)
}

func (m *MockProvider) GetMetrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error) {
	args := m.Called(ctx, target, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MetricsSnapshot), args.Error(1)
}

func (m *MockProvider) SupportsAds() bool { return m.ads }

func (m *MockProvider) CreateAd(ctx context.Context, req model.AdRequest, cred model.Credential) (*model.AdReceipt, error) {
	args := m.Called(ctx, req, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdReceipt), args.Error(1)
}

func (m *MockProvider) SetAdStatus(ctx context.Context, remoteCampaignID string, status model.CampaignStatus, cred model.Credential) error {
	return m.Called(ctx, remoteCampaignID, status, cred).Error(0)
}

func (m *MockProvider) GetAdMetrics(ctx context.Context, remoteCampaignID string, cred model.Credential) (*model.CampaignMetrics, error) {
	args := m.Called(ctx, remoteCampaignID, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampaignMetrics), args.Error(1)
}

// fakeRegistry resolves providers from a fixed map.
type fakeRegistry map[model.Network]repository.IProviderClient

func (r fakeRegistry) Get(n model.Network) (repository.IProviderClient, bool) {
	p, ok := r[n]
	return p, ok
}

func registryOf(providers ...*MockProvider) fakeRegistry {
	r := fakeRegistry{}
	for _, p := range providers {
		r[p.network] = p
	}
	return r
}

type MockConnectionUsecase struct {
	mock.Mock
}

func (m *MockConnectionUsecase) BeginLink(ctx context.Context, ownerID string, network model.Network) (string, string, error) {
	args := m.Called(ctx, ownerID, network)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockConnectionUsecase) CompleteLink(ctx context.Context, params usecase.CallbackParams) (*model.Connection, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *MockConnectionUsecase) Disconnect(ctx context.Context, ownerID string, network model.Network) error {
	return m.Called(ctx, ownerID, network).Error(0)
}

func (m *MockConnectionUsecase) Purge(ctx context.Context, ownerID string, network model.Network) (int64, error) {
	args := m.Called(ctx, ownerID, network)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConnectionUsecase) ListConnections(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]*model.Connection), args.Error(1)
}

func (m *MockConnectionUsecase) Credential(ctx context.Context, ownerID string, network model.Network) (*model.Connection, error) {
	args := m.Called(ctx, ownerID, network)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *MockConnectionUsecase) MarkRevoked(ctx context.Context, conn *model.Connection) error {
	return m.Called(ctx, conn).Error(0)
}

type MockPublishJobRepo struct {
	mock.Mock
}

func (m *MockPublishJobRepo) Create(ctx context.Context, job *model.PublishJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockPublishJobRepo) Save(ctx context.Context, job *model.PublishJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockPublishJobRepo) Get(ctx context.Context, ownerID, id string) (*model.PublishJob, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishJob), args.Error(1)
}

func (m *MockPublishJobRepo) List(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.PublishJob, error) {
	args := m.Called(ctx, ownerID, filter)
	return args.Get(0).([]*model.PublishJob), args.Error(1)
}

type MockTaskRepo struct {
	mock.Mock
}

func (m *MockTaskRepo) Create(ctx context.Context, task *model.ScheduledTask) error {
	return m.Called(ctx, task).Error(0)
}

func (m *MockTaskRepo) Get(ctx context.Context, id string) (*model.ScheduledTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledTask), args.Error(1)
}

func (m *MockTaskRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.ScheduledTask, error) {
	args := m.Called(ctx, ownerID, limit)
	return args.Get(0).([]*model.ScheduledTask), args.Error(1)
}

func (m *MockTaskRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledTask, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*model.ScheduledTask), args.Error(1)
}

func (m *MockTaskRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepo) Finish(ctx context.Context, id string, status model.TaskStatus, cause *string) error {
	return m.Called(ctx, id, status, cause).Error(0)
}

func (m *MockTaskRepo) Cancel(ctx context.Context, ownerID, id string) (bool, error) {
	args := m.Called(ctx, ownerID, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepo) HasPending(ctx context.Context, ownerID string, kind model.TaskKind) (bool, error) {
	args := m.Called(ctx, ownerID, kind)
	return args.Bool(0), args.Error(1)
}

type MockAdCampaignRepo struct {
	mock.Mock
}

func (m *MockAdCampaignRepo) Create(ctx context.Context, c *model.AdCampaign) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockAdCampaignRepo) Get(ctx context.Context, ownerID, id string) (*model.AdCampaign, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdCampaign), args.Error(1)
}

func (m *MockAdCampaignRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.AdCampaign, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]*model.AdCampaign), args.Error(1)
}

func (m *MockAdCampaignRepo) UpdateStatus(ctx context.Context, ownerID, id string, from, to model.CampaignStatus) error {
	return m.Called(ctx, ownerID, id, from, to).Error(0)
}

func (m *MockAdCampaignRepo) UpdateMetrics(ctx context.Context, id string, metrics model.CampaignMetrics) error {
	return m.Called(ctx, id, metrics).Error(0)
}

type MockSnapshotRepo struct {
	mock.Mock
}

func (m *MockSnapshotRepo) Append(ctx context.Context, s *model.MetricsSnapshot) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockSnapshotRepo) LatestPostSnapshots(ctx context.Context, ownerID string, from, to time.Time) ([]*model.MetricsSnapshot, error) {
	args := m.Called(ctx, ownerID, from, to)
	return args.Get(0).([]*model.MetricsSnapshot), args.Error(1)
}

func (m *MockSnapshotRepo) LatestAccountSnapshots(ctx context.Context, ownerID string) ([]*model.MetricsSnapshot, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]*model.MetricsSnapshot), args.Error(1)
}

type MockPublishUsecase struct {
	mock.Mock
}

func (m *MockPublishUsecase) CreateJob(ctx context.Context, ownerID string, req usecase.CreatePublishJob) (*model.PublishJob, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishJob), args.Error(1)
}

func (m *MockPublishUsecase) Execute(ctx context.Context, job *model.PublishJob, only []model.Network) (*model.PublishJob, error) {
	args := m.Called(ctx, job, only)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishJob), args.Error(1)
}

func (m *MockPublishUsecase) GetJob(ctx context.Context, ownerID, id string) (*model.PublishJob, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishJob), args.Error(1)
}

func (m *MockPublishUsecase) ListJobs(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.PublishJob, error) {
	args := m.Called(ctx, ownerID, filter)
	return args.Get(0).([]*model.PublishJob), args.Error(1)
}

type MockMetricsUsecase struct {
	mock.Mock
}

func (m *MockMetricsUsecase) RefreshJob(ctx context.Context, job *model.PublishJob) model.RefreshReport {
	return m.Called(ctx, job).Get(0).(model.RefreshReport)
}

func (m *MockMetricsUsecase) RefreshOwner(ctx context.Context, ownerID string) (model.RefreshReport, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(model.RefreshReport), args.Error(1)
}

func (m *MockMetricsUsecase) Summary(ctx context.Context, ownerID string, from, to time.Time) (*model.MetricsSummary, error) {
	args := m.Called(ctx, ownerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MetricsSummary), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishJobEvent(ctx context.Context, evt model.JobEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func linked(owner string, n model.Network) *model.Connection {
	return &model.Connection{
		ID:          "conn-" + string(n),
		OwnerID:     owner,
		Network:     n,
		Status:      model.ConnectionLinked,
		AccessToken: "token-" + string(n),
		Version:     1,
	}
}
