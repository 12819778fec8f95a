package clients

import (
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/clients/facebook"
	"social-publisher/infrastructure/clients/instagram"
	"social-publisher/infrastructure/clients/meta"
	"social-publisher/infrastructure/clients/tiktok"
	"social-publisher/infrastructure/clients/twitter"
	"social-publisher/infrastructure/clients/youtube"
	"social-publisher/infrastructure/configuration"
	"social-publisher/infrastructure/logger"
)

// Registry resolves the provider client for a network id.
type Registry struct {
	providers map[model.Network]repository.IProviderClient
}

// NewRegistry builds a client for every network with OAuth credentials configured.
func NewRegistry(cfg configuration.Config) *Registry {
	timeout := time.Duration(cfg.Publish.CallTimeoutSeconds) * time.Second
	r := &Registry{providers: make(map[model.Network]repository.IProviderClient, len(model.Networks))}
	for _, n := range model.Networks {
		app, _ := cfg.OAuth.Client(string(n))
		if !app.Configured() {
			logger.GetLogger().WithField("network", n).Warn("OAuth client not configured, network disabled")
			continue
		}
		r.providers[n] = newProvider(n, app, cfg, timeout)
	}
	return r
}

func newProvider(n model.Network, app configuration.OAuthClient, cfg configuration.Config, timeout time.Duration) repository.IProviderClient {
	switch n {
	case model.NetworkFacebook:
		return facebook.New(app, cfg.Meta, meta.Options{Timeout: timeout})
	case model.NetworkInstagram:
		return instagram.New(app, cfg.Meta, meta.Options{Timeout: timeout})
	case model.NetworkTwitter:
		return twitter.New(app, twitter.Options{Timeout: timeout})
	case model.NetworkYouTube:
		return youtube.New(app, youtube.Options{Timeout: timeout})
	case model.NetworkTikTok:
		return tiktok.New(app, tiktok.Options{Timeout: timeout})
	}
	return nil
}

// Register adds or replaces a provider.
func (r *Registry) Register(p repository.IProviderClient) {
	r.providers[p.Network()] = p
}

func (r *Registry) Get(n model.Network) (repository.IProviderClient, bool) {
	p, ok := r.providers[n]
	return p, ok
}

// Networks lists the enabled networks in a stable order.
func (r *Registry) Networks() []model.Network {
	out := make([]model.Network, 0, len(r.providers))
	for _, n := range model.Networks {
		if _, ok := r.providers[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
