package instagram

import (
	"context"
	"errors"
	"net/url"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/common"
	"social-publisher/infrastructure/clients/meta"
	"social-publisher/infrastructure/configuration"
)

var defaultScopes = []string{
	"instagram_basic",
	"instagram_content_publish",
	"instagram_manage_insights",
	"pages_show_list",
	"pages_read_engagement",
	"ads_management",
	"business_management",
}

// Client publishes to the Instagram professional account attached to a Facebook Page.
type Client struct {
	graph        *meta.Graph
	ads          *meta.Ads
	oauth        *common.OAuth
	pollInterval time.Duration
	pollAttempts int
}

func New(app configuration.OAuthClient, cfg configuration.Meta, opts meta.Options) *Client {
	graph, endpoint := meta.Setup(app, cfg.GraphVersion, opts)
	return &Client{
		graph:        graph,
		ads:          meta.NewAds(graph, cfg.MinDailyBudget),
		oauth:        common.NewOAuth(app, endpoint, defaultScopes, graph.HTTP, false),
		pollInterval: 3 * time.Second,
		pollAttempts: 20,
	}
}

func (c *Client) Network() model.Network {
	return model.NetworkInstagram
}

func (c *Client) AuthCodeURL(state, _ string) string {
	return c.oauth.AuthCodeURL(state, "")
}

func (c *Client) ExchangeCode(ctx context.Context, code, _ string) (*model.Credential, error) {
	short, err := c.oauth.Exchange(ctx, code, "")
	if err != nil {
		return nil, err
	}
	long, err := c.graph.LongLivedToken(ctx, short.AccessToken)
	if err != nil {
		return nil, err
	}
	long.Scopes = short.Scopes
	return long, nil
}

func (c *Client) RefreshCredential(context.Context, model.Credential) (*model.Credential, error) {
	return nil, common.Permanent(model.ReasonAuthRevoked, errors.New("instagram tokens cannot be renewed without the user"))
}

type igAccount struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FollowersCount int64  `json:"followers_count"`
}

func (c *Client) FetchProfile(ctx context.Context, cred model.Credential) (*model.Profile, error) {
	params := url.Values{}
	params.Set("fields", "id,name,instagram_business_account{id,username,followers_count}")
	var accounts struct {
		Data []struct {
			ID      string     `json:"id"`
			Account *igAccount `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := c.graph.Get(ctx, "me/accounts", params, cred.AccessToken, &accounts); err != nil {
		return nil, err
	}
	for _, p := range accounts.Data {
		if p.Account == nil || p.Account.ID == "" {
			continue
		}
		return &model.Profile{
			ExternalID:    p.Account.ID,
			Handle:        p.Account.Username,
			FollowerCount: p.Account.FollowersCount,
			AdAccountID:   c.graph.FirstAdAccount(ctx, cred.AccessToken),
		}, nil
	}
	return nil, common.Permanent(model.ReasonRejected, errors.New("no instagram professional account is linked to a managed page"))
}

// Publish creates a media container, waits for it when it is a video and publishes it.
func (c *Client) Publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	receipt, err := c.publish(ctx, content, cred)
	if err != nil {
		return nil, model.AsPublishError(err)
	}
	return receipt, nil
}

func (c *Client) publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	userID := cred.ExternalProfileID
	form := url.Values{}
	form.Set("caption", content.Caption)
	video := false
	if img, ok := content.FirstMedia(model.MediaImage); ok {
		form.Set("image_url", img.URL)
	} else if vid, ok := content.FirstMedia(model.MediaVideo); ok {
		form.Set("media_type", "REELS")
		form.Set("video_url", vid.URL)
		video = true
	} else {
		return nil, common.Permanent(model.ReasonInvalidContent, errors.New("instagram posts need an image or a video"))
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := c.graph.Post(ctx, userID+"/media", form, cred.AccessToken, &container); err != nil {
		return nil, err
	}
	if video {
		if err := c.waitReady(ctx, container.ID, cred.AccessToken); err != nil {
			return nil, err
		}
	}

	publish := url.Values{}
	publish.Set("creation_id", container.ID)
	var published struct {
		ID string `json:"id"`
	}
	if err := c.graph.Post(ctx, userID+"/media_publish", publish, cred.AccessToken, &published); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fields", "permalink")
	var media struct {
		Permalink string `json:"permalink"`
	}
	// The post exists at this point, a missing permalink is not a failure.
	_ = c.graph.Get(ctx, published.ID, params, cred.AccessToken, &media)
	return &model.PublishReceipt{RemotePostID: published.ID, RemoteURL: media.Permalink}, nil
}

func (c *Client) waitReady(ctx context.Context, containerID, token string) error {
	params := url.Values{}
	params.Set("fields", "status_code")
	for i := 0; i < c.pollAttempts; i++ {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		if err := c.graph.Get(ctx, containerID, params, token, &status); err != nil {
			return err
		}
		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return common.Permanent(model.ReasonInvalidContent, errors.New("media container "+status.StatusCode))
		}
		select {
		case <-ctx.Done():
			return common.TransportFailure(ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
	return common.Transient(model.ReasonTimeout, errors.New("media container not ready"))
}

func (c *Client) GetMetrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error) {
	snap, err := c.metrics(ctx, target, cred)
	if err != nil {
		return nil, model.AsMetricsError(err)
	}
	snap.NormalizeEngagement()
	return snap, nil
}

func (c *Client) metrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error) {
	snap := &model.MetricsSnapshot{Scope: target.Scope, Network: model.NetworkInstagram, RemoteID: target.RemoteID}

	if target.Scope == model.ScopeAccount {
		params := url.Values{}
		params.Set("fields", "followers_count")
		var acct igAccount
		if err := c.graph.Get(ctx, target.RemoteID, params, cred.AccessToken, &acct); err != nil {
			return nil, err
		}
		snap.Followers = acct.FollowersCount
		in, err := c.graph.FetchInsights(ctx, target.RemoteID, []string{"reach"}, "day", cred.AccessToken)
		if err != nil {
			return nil, err
		}
		snap.Reach = in.Value("reach")
		return snap, nil
	}

	params := url.Values{}
	params.Set("fields", "like_count,comments_count")
	var media struct {
		LikeCount     int64 `json:"like_count"`
		CommentsCount int64 `json:"comments_count"`
	}
	if err := c.graph.Get(ctx, target.RemoteID, params, cred.AccessToken, &media); err != nil {
		return nil, err
	}
	snap.Likes = media.LikeCount
	snap.Comments = media.CommentsCount

	in, err := c.graph.FetchInsights(ctx, target.RemoteID, []string{"reach", "shares", "total_interactions"}, "", cred.AccessToken)
	if err != nil {
		return nil, err
	}
	snap.Reach = in.Value("reach")
	snap.Shares = in.Value("shares")
	snap.Engagement = in.Value("total_interactions")
	return snap, nil
}

func (c *Client) SupportsAds() bool {
	return true
}

func (c *Client) CreateAd(ctx context.Context, req model.AdRequest, cred model.Credential) (*model.AdReceipt, error) {
	receipt, err := c.ads.Create(ctx, req, cred, "")
	if err != nil {
		return nil, model.AsAdError(err)
	}
	return receipt, nil
}

func (c *Client) SetAdStatus(ctx context.Context, remoteCampaignID string, status model.CampaignStatus, cred model.Credential) error {
	if err := c.ads.SetStatus(ctx, remoteCampaignID, status, cred); err != nil {
		return model.AsAdError(err)
	}
	return nil
}

func (c *Client) GetAdMetrics(ctx context.Context, remoteCampaignID string, cred model.Credential) (*model.CampaignMetrics, error) {
	m, err := c.ads.Metrics(ctx, remoteCampaignID, cred)
	if err != nil {
		return nil, model.AsAdError(err)
	}
	return m, nil
}
