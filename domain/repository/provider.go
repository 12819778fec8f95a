package repository

import (
	"context"

	"social-publisher/domain/model"
)

// IProviderClient is the capability contract every network adapter implements.
// Request and response shapes of the network never leave the adapter.
type IProviderClient interface {
	Network() model.Network

	// Linking, used by the connection manager only.
	AuthCodeURL(state, verifier string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*model.Credential, error)
	RefreshCredential(ctx context.Context, cred model.Credential) (*model.Credential, error)
	FetchProfile(ctx context.Context, cred model.Credential) (*model.Profile, error)

	// Publish fails with *model.PublishError.
	Publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error)
	// GetMetrics fails with *model.MetricsError.
	GetMetrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error)

	// Advertising. Networks without ads return model.ErrUnsupported.
	SupportsAds() bool
	CreateAd(ctx context.Context, req model.AdRequest, cred model.Credential) (*model.AdReceipt, error)
	SetAdStatus(ctx context.Context, remoteCampaignID string, status model.CampaignStatus, cred model.Credential) error
	GetAdMetrics(ctx context.Context, remoteCampaignID string, cred model.Credential) (*model.CampaignMetrics, error)
}

// IProviderRegistry resolves the adapter for a network id.
type IProviderRegistry interface {
	Get(network model.Network) (IProviderClient, bool)
}
