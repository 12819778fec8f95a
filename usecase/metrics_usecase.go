package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"
)

type IMetricsUsecase interface {
	// RefreshJob appends a post snapshot for every succeeded result of the job.
	RefreshJob(ctx context.Context, job *model.PublishJob) model.RefreshReport
	// RefreshOwner refreshes recent jobs, live connections and running ad campaigns.
	RefreshOwner(ctx context.Context, ownerID string) (model.RefreshReport, error)
	Summary(ctx context.Context, ownerID string, from, to time.Time) (*model.MetricsSummary, error)
}

type MetricsConfig struct {
	Lookback time.Duration
	JobLimit int
}

type metricsUsecase struct {
	jobs        repository.IPublishJob
	snapshots   repository.IMetricsSnapshot
	connRepo    repository.IConnection
	campaigns   repository.IAdCampaign
	connections IConnectionUsecase
	registry    repository.IProviderRegistry
	cfg         MetricsConfig
}

func NewMetricsUsecase(jobs repository.IPublishJob, snapshots repository.IMetricsSnapshot, connRepo repository.IConnection,
	campaigns repository.IAdCampaign, connections IConnectionUsecase, registry repository.IProviderRegistry, cfg MetricsConfig) IMetricsUsecase {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	if cfg.JobLimit <= 0 {
		cfg.JobLimit = 100
	}
	return &metricsUsecase{
		jobs:        jobs,
		snapshots:   snapshots,
		connRepo:    connRepo,
		campaigns:   campaigns,
		connections: connections,
		registry:    registry,
		cfg:         cfg,
	}
}

func (u *metricsUsecase) RefreshJob(ctx context.Context, job *model.PublishJob) model.RefreshReport {
	var report model.RefreshReport
	lg := logger.GetLogger().WithField("owner_id", job.OwnerID).WithField("job_id", job.ID)
	for _, n := range job.Targets {
		r, ok := job.Results[n]
		if !ok || r == nil || r.State != model.ResultSucceeded || r.RemotePostID == "" {
			continue
		}
		target := model.MetricsTarget{Scope: model.ScopePost, RemoteID: r.RemotePostID}
		snap, err := u.fetch(ctx, job.OwnerID, n, target)
		if err != nil {
			lg.WithError(err).WithField("network", n).Warn("Post metrics refresh failed")
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("job %s on %s: %v", job.ID, n, err))
			continue
		}
		jobID := job.ID
		snap.PublishJobID = &jobID
		if err := u.snapshots.Append(ctx, snap); err != nil {
			lg.WithError(err).WithField("network", n).Error("Failed to store post snapshot")
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("job %s on %s: %v", job.ID, n, err))
			continue
		}
		report.Updated++
	}
	return report
}

// fetch resolves the credential and asks the network. A rejected credential
// revokes the connection.
func (u *metricsUsecase) fetch(ctx context.Context, ownerID string, n model.Network, target model.MetricsTarget) (*model.MetricsSnapshot, error) {
	conn, err := u.connections.Credential(ctx, ownerID, n)
	if err != nil {
		return nil, err
	}
	provider, ok := u.registry.Get(n)
	if !ok {
		return nil, model.ErrUnsupported
	}
	snap, err := provider.GetMetrics(ctx, target, conn.Credential())
	if err != nil {
		if model.IsAuthRevoked(err) {
			_ = u.connections.MarkRevoked(ctx, conn)
		}
		return nil, model.AsMetricsError(err)
	}
	snap.ID = utils.NewID()
	snap.OwnerID = ownerID
	snap.Network = n
	snap.Scope = target.Scope
	snap.RemoteID = target.RemoteID
	snap.CapturedAt = utils.GetCurrentTime()
	if target.Scope == model.ScopeAccount {
		id := conn.ID
		snap.ConnectionID = &id
	}
	return snap, nil
}

func (u *metricsUsecase) RefreshOwner(ctx context.Context, ownerID string) (model.RefreshReport, error) {
	var report model.RefreshReport
	lg := logger.GetLogger().WithField("owner_id", ownerID)

	since := utils.GetCurrentTime().Add(-u.cfg.Lookback)
	jobs, err := u.jobs.List(ctx, ownerID, model.JobFilter{Since: &since, Limit: u.cfg.JobLimit})
	if err != nil {
		return report, fmt.Errorf("list recent jobs: %w", err)
	}
	for _, job := range jobs {
		if job.Status == model.JobCompleted || job.Status == model.JobPartiallyFailed {
			report.Merge(u.RefreshJob(ctx, job))
		}
	}

	conns, err := u.connRepo.ListLive(ctx, ownerID)
	if err != nil {
		return report, fmt.Errorf("list connections: %w", err)
	}
	for _, c := range conns {
		report.Merge(u.refreshAccount(ctx, c))
	}

	campaigns, err := u.campaigns.ListByOwner(ctx, ownerID)
	if err != nil {
		return report, fmt.Errorf("list ad campaigns: %w", err)
	}
	for _, c := range campaigns {
		if c.Status != model.CampaignActive && c.Status != model.CampaignPaused {
			continue
		}
		report.Merge(u.refreshCampaign(ctx, c))
	}

	lg.WithField("updated", report.Updated).WithField("failed", report.Failed).Info("Metrics refreshed")
	return report, nil
}

func (u *metricsUsecase) refreshAccount(ctx context.Context, c *model.Connection) model.RefreshReport {
	var report model.RefreshReport
	target := model.MetricsTarget{Scope: model.ScopeAccount, RemoteID: c.ExternalProfileID}
	snap, err := u.fetch(ctx, c.OwnerID, c.Network, target)
	if err == nil {
		err = u.snapshots.Append(ctx, snap)
	}
	if err == nil && snap.Followers > 0 {
		err = u.connRepo.UpdateFollowers(ctx, c.ID, snap.Followers)
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("owner_id", c.OwnerID).WithField("network", c.Network).Warn("Account metrics refresh failed")
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("account on %s: %v", c.Network, err))
		return report
	}
	report.Updated++
	return report
}

func (u *metricsUsecase) refreshCampaign(ctx context.Context, c *model.AdCampaign) model.RefreshReport {
	var report model.RefreshReport
	err := func() error {
		if c.RemoteCampaignID == "" {
			return errors.New("campaign has no remote id")
		}
		conn, err := u.connections.Credential(ctx, c.OwnerID, c.Network)
		if err != nil {
			return err
		}
		provider, ok := u.registry.Get(c.Network)
		if !ok || !provider.SupportsAds() {
			return model.ErrUnsupported
		}
		m, err := provider.GetAdMetrics(ctx, c.RemoteCampaignID, conn.Credential())
		if err != nil {
			if model.IsAuthRevoked(err) {
				_ = u.connections.MarkRevoked(ctx, conn)
			}
			return err
		}
		captured := utils.GetCurrentTime()
		m.CapturedAt = &captured
		*m = m.WithROAS()
		return u.campaigns.UpdateMetrics(ctx, c.ID, *m)
	}()
	if err != nil {
		logger.GetLogger().WithError(err).WithField("owner_id", c.OwnerID).WithField("campaign_id", c.ID).Warn("Campaign metrics refresh failed")
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("campaign %s: %v", c.ID, err))
		return report
	}
	report.Updated++
	return report
}

// Summary rolls up the newest post snapshot per (job, network) captured in [from, to].
func (u *metricsUsecase) Summary(ctx context.Context, ownerID string, from, to time.Time) (*model.MetricsSummary, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from must not be after to", model.ErrInvalidInput)
	}
	snaps, err := u.snapshots.LatestPostSnapshots(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	sum := &model.MetricsSummary{
		OwnerID:        ownerID,
		From:           from,
		To:             to,
		JobsPerNetwork: map[model.Network]int{},
		Networks:       map[model.Network]*model.NetworkSummary{},
	}
	jobs := map[model.Network]map[string]bool{}
	for _, s := range snaps {
		ns, ok := sum.Networks[s.Network]
		if !ok {
			ns = &model.NetworkSummary{Network: s.Network}
			sum.Networks[s.Network] = ns
			jobs[s.Network] = map[string]bool{}
		}
		if s.PublishJobID != nil && !jobs[s.Network][*s.PublishJobID] {
			jobs[s.Network][*s.PublishJobID] = true
			ns.Jobs++
		}
		ns.Reach += s.Reach
		ns.Engagement += s.Engagement
		ns.Likes += s.Likes
		ns.Comments += s.Comments
		ns.Shares += s.Shares

		sum.TotalReach += s.Reach
		sum.TotalEngagement += s.Engagement
		sum.TotalLikes += s.Likes
		sum.TotalComments += s.Comments
		sum.TotalShares += s.Shares
	}
	for n, ns := range sum.Networks {
		ns.EngagementRate = model.EngagementRate(ns.Engagement, ns.Reach)
		sum.JobsPerNetwork[n] = ns.Jobs
	}
	sum.EngagementRate = model.EngagementRate(sum.TotalEngagement, sum.TotalReach)

	accounts, err := u.snapshots.LatestAccountSnapshots(ctx, ownerID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("owner_id", ownerID).Warn("Failed to load follower snapshots")
		return sum, nil
	}
	if len(accounts) > 0 {
		sum.Followers = make(map[model.Network]int64, len(accounts))
		for _, a := range accounts {
			sum.Followers[a.Network] = a.Followers
		}
	}
	return sum, nil
}
