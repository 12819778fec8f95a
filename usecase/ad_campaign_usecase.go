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

	"github.com/shopspring/decimal"
)

type CreateAdCampaign struct {
	Network        model.Network
	Name           string
	ContentItemIDs []string
	Content        *model.ContentItem
	TotalBudget    decimal.Decimal
	DailyBudget    decimal.Decimal
	Audience       model.Audience
	StartAt        time.Time
	EndAt          time.Time
}

func (r CreateAdCampaign) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name is required", model.ErrInvalidInput)
	case !r.TotalBudget.IsPositive():
		return fmt.Errorf("%w: total budget must be positive", model.ErrInvalidInput)
	case !r.DailyBudget.IsPositive():
		return fmt.Errorf("%w: daily budget must be positive", model.ErrInvalidInput)
	case !r.EndAt.After(r.StartAt):
		return fmt.Errorf("%w: end must be after start", model.ErrInvalidInput)
	case r.Audience.AgeMin != 0 && r.Audience.AgeMax != 0 && r.Audience.AgeMin > r.Audience.AgeMax:
		return fmt.Errorf("%w: age range is inverted", model.ErrInvalidInput)
	}
	return nil
}

type IAdCampaignUsecase interface {
	// Create fails with *model.AdError or model.ErrUnsupported; nothing is stored then.
	Create(ctx context.Context, ownerID string, req CreateAdCampaign) (*model.AdCampaign, error)
	Pause(ctx context.Context, ownerID, id string) (*model.AdCampaign, error)
	Resume(ctx context.Context, ownerID, id string) (*model.AdCampaign, error)
	Complete(ctx context.Context, ownerID, id string) (*model.AdCampaign, error)
	List(ctx context.Context, ownerID string) ([]*model.AdCampaign, error)
	Get(ctx context.Context, ownerID, id string) (*model.AdCampaign, error)
}

type adCampaignUsecase struct {
	repo        repository.IAdCampaign
	connections IConnectionUsecase
	registry    repository.IProviderRegistry
}

func NewAdCampaignUsecase(repo repository.IAdCampaign, connections IConnectionUsecase, registry repository.IProviderRegistry) IAdCampaignUsecase {
	return &adCampaignUsecase{repo: repo, connections: connections, registry: registry}
}

func (u *adCampaignUsecase) Create(ctx context.Context, ownerID string, req CreateAdCampaign) (*model.AdCampaign, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	network, ok := model.ParseNetwork(string(req.Network))
	if !ok {
		return nil, fmt.Errorf("%w: unknown network %q", model.ErrInvalidInput, req.Network)
	}
	provider, found := u.registry.Get(network)
	if !found || !provider.SupportsAds() {
		return nil, fmt.Errorf("%w: %s has no ads api", model.ErrUnsupported, network)
	}
	conn, err := u.connections.Credential(ctx, ownerID, network)
	if err != nil {
		return nil, err
	}

	lg := logger.GetLogger().WithField("owner_id", ownerID).WithField("network", network)
	receipt, err := provider.CreateAd(ctx, model.AdRequest{
		Name:           req.Name,
		ContentItemIDs: req.ContentItemIDs,
		Content:        req.Content,
		TotalBudget:    req.TotalBudget,
		DailyBudget:    req.DailyBudget,
		Audience:       req.Audience,
		StartAt:        req.StartAt.UTC(),
		EndAt:          req.EndAt.UTC(),
	}, conn.Credential())
	if err != nil {
		if model.IsAuthRevoked(err) {
			_ = u.connections.MarkRevoked(ctx, conn)
		}
		lg.WithError(err).Error("Ad creation failed")
		return nil, model.AsAdError(err)
	}

	campaign := &model.AdCampaign{
		OwnerID:          ownerID,
		Network:          network,
		Name:             req.Name,
		ContentItemIDs:   req.ContentItemIDs,
		TotalBudget:      acceptedOr(receipt.AcceptedTotalBudget, req.TotalBudget),
		DailyBudget:      acceptedOr(receipt.AcceptedDailyBudget, req.DailyBudget),
		Audience:         req.Audience,
		StartAt:          req.StartAt.UTC(),
		EndAt:            req.EndAt.UTC(),
		Status:           model.CampaignActive,
		RemoteCampaignID: receipt.RemoteCampaignID,
	}
	if err := u.repo.Create(ctx, campaign); err != nil {
		lg.WithError(err).WithField("remote_campaign_id", receipt.RemoteCampaignID).Error("Failed to persist campaign created remotely")
		return nil, err
	}
	if !campaign.DailyBudget.Equal(req.DailyBudget) {
		lg.WithField("requested", req.DailyBudget.String()).WithField("accepted", campaign.DailyBudget.String()).Info("Daily budget adjusted by the network")
	}
	lg.WithField("campaign_id", campaign.ID).Info("Ad campaign created")
	return campaign, nil
}

func acceptedOr(accepted, requested decimal.Decimal) decimal.Decimal {
	if accepted.IsPositive() {
		return accepted
	}
	return requested
}

func (u *adCampaignUsecase) Pause(ctx context.Context, ownerID, id string) (*model.AdCampaign, error) {
	return u.transition(ctx, ownerID, id, model.CampaignPaused)
}

func (u *adCampaignUsecase) Resume(ctx context.Context, ownerID, id string) (*model.AdCampaign, error) {
	return u.transition(ctx, ownerID, id, model.CampaignActive)
}

func (u *adCampaignUsecase) Complete(ctx context.Context, ownerID, id string) (*model.AdCampaign, error) {
	return u.transition(ctx, ownerID, id, model.CampaignCompleted)
}

// transition pushes the status to the network first. Completing a campaign whose
// connection is gone is recorded locally only.
func (u *adCampaignUsecase) transition(ctx context.Context, ownerID, id string, to model.CampaignStatus) (*model.AdCampaign, error) {
	c, err := u.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, from, to)
	}
	lg := logger.GetLogger().WithField("owner_id", ownerID).WithField("campaign_id", id).WithField("network", c.Network)

	if err := u.push(ctx, c, to); err != nil {
		if !(to == model.CampaignCompleted && errors.Is(err, model.ErrNotConnected)) {
			lg.WithError(err).Error("Campaign status push failed")
			return nil, err
		}
		lg.Warn("Network not connected, completing campaign locally")
	}
	if err := u.repo.UpdateStatus(ctx, ownerID, id, from, to); err != nil {
		return nil, err
	}
	c.Status = to
	c.UpdatedAt = utils.GetCurrentTime()
	lg.WithField("from", from).WithField("to", to).Info("Campaign status changed")
	return c, nil
}

func (u *adCampaignUsecase) push(ctx context.Context, c *model.AdCampaign, to model.CampaignStatus) error {
	if c.RemoteCampaignID == "" {
		return nil
	}
	provider, ok := u.registry.Get(c.Network)
	if !ok || !provider.SupportsAds() {
		return nil
	}
	conn, err := u.connections.Credential(ctx, c.OwnerID, c.Network)
	if err != nil {
		return err
	}
	if err := provider.SetAdStatus(ctx, c.RemoteCampaignID, to, conn.Credential()); err != nil {
		if model.IsAuthRevoked(err) {
			_ = u.connections.MarkRevoked(ctx, conn)
		}
		return model.AsAdError(err)
	}
	return nil
}

func (u *adCampaignUsecase) List(ctx context.Context, ownerID string) ([]*model.AdCampaign, error) {
	return u.repo.ListByOwner(ctx, ownerID)
}

func (u *adCampaignUsecase) Get(ctx context.Context, ownerID, id string) (*model.AdCampaign, error) {
	return u.repo.Get(ctx, ownerID, id)
}
