package common

import (
	"context"

	"social-publisher/domain/model"
)

// NoAds is embedded by networks that expose no advertising API.
type NoAds struct{}

func (NoAds) SupportsAds() bool { return false }

func (NoAds) CreateAd(context.Context, model.AdRequest, model.Credential) (*model.AdReceipt, error) {
	return nil, model.ErrUnsupported
}

func (NoAds) SetAdStatus(context.Context, string, model.CampaignStatus, model.Credential) error {
	return model.ErrUnsupported
}

func (NoAds) GetAdMetrics(context.Context, string, model.Credential) (*model.CampaignMetrics, error) {
	return nil, model.ErrUnsupported
}
