package repository

import (
	"context"

	"social-publisher/domain/model"
)

type IAdCampaign interface {
	Create(ctx context.Context, c *model.AdCampaign) error
	Get(ctx context.Context, ownerID, id string) (*model.AdCampaign, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.AdCampaign, error)
	UpdateStatus(ctx context.Context, ownerID, id string, from, to model.CampaignStatus) error
	UpdateMetrics(ctx context.Context, id string, m model.CampaignMetrics) error
}
