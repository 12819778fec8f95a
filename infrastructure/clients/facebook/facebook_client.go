package facebook

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/common"
	"social-publisher/infrastructure/clients/meta"
	"social-publisher/infrastructure/configuration"
)

var defaultScopes = []string{
	"pages_show_list",
	"pages_read_engagement",
	"pages_manage_posts",
	"read_insights",
	"ads_management",
	"business_management",
}

// Client publishes to the first Facebook Page the user manages. The stored credential
// is the long-lived user token; the page token is looked up per call.
type Client struct {
	graph *meta.Graph
	ads   *meta.Ads
	oauth *common.OAuth
}

func New(app configuration.OAuthClient, cfg configuration.Meta, opts meta.Options) *Client {
	graph, endpoint := meta.Setup(app, cfg.GraphVersion, opts)
	return &Client{
		graph: graph,
		ads:   meta.NewAds(graph, cfg.MinDailyBudget),
		oauth: common.NewOAuth(app, endpoint, defaultScopes, graph.HTTP, false),
	}
}

func (c *Client) Network() model.Network {
	return model.NetworkFacebook
}

func (c *Client) AuthCodeURL(state, _ string) string {
	return c.oauth.AuthCodeURL(state, "")
}

// ExchangeCode trades the code for a short-lived token, then for a long-lived one.
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
	return nil, common.Permanent(model.ReasonAuthRevoked, errors.New("facebook user tokens cannot be renewed without the user"))
}

type page struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	AccessToken    string `json:"access_token"`
	FollowersCount int64  `json:"followers_count"`
	FanCount       int64  `json:"fan_count"`
}

func (c *Client) FetchProfile(ctx context.Context, cred model.Credential) (*model.Profile, error) {
	params := url.Values{}
	params.Set("fields", "id,name,access_token,followers_count,fan_count")
	var accounts struct {
		Data []page `json:"data"`
	}
	if err := c.graph.Get(ctx, "me/accounts", params, cred.AccessToken, &accounts); err != nil {
		return nil, err
	}
	if len(accounts.Data) == 0 {
		return nil, common.Permanent(model.ReasonRejected, errors.New("no facebook page is managed by this account"))
	}
	p := accounts.Data[0]
	followers := p.FollowersCount
	if followers == 0 {
		followers = p.FanCount
	}
	return &model.Profile{
		ExternalID:    p.ID,
		Handle:        p.Name,
		FollowerCount: followers,
		AdAccountID:   c.graph.FirstAdAccount(ctx, cred.AccessToken),
	}, nil
}

func (c *Client) pageToken(ctx context.Context, cred model.Credential) (string, error) {
	params := url.Values{}
	params.Set("fields", "access_token")
	var p page
	if err := c.graph.Get(ctx, cred.ExternalProfileID, params, cred.AccessToken, &p); err != nil {
		return "", err
	}
	if p.AccessToken == "" {
		return "", common.Permanent(model.ReasonAuthRevoked, errors.New("page token not granted"))
	}
	return p.AccessToken, nil
}

// Publish posts a photo, a video or a text status depending on the media attached.
func (c *Client) Publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	receipt, err := c.publish(ctx, content, cred)
	if err != nil {
		return nil, model.AsPublishError(err)
	}
	return receipt, nil
}

func (c *Client) publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	token, err := c.pageToken(ctx, cred)
	if err != nil {
		return nil, err
	}
	pageID := cred.ExternalProfileID
	form := url.Values{}
	var edge string
	if img, ok := content.FirstMedia(model.MediaImage); ok {
		edge = "photos"
		form.Set("url", img.URL)
		form.Set("caption", content.Caption)
	} else if vid, ok := content.FirstMedia(model.MediaVideo); ok {
		edge = "videos"
		form.Set("file_url", vid.URL)
		form.Set("description", content.Caption)
	} else {
		if strings.TrimSpace(content.Caption) == "" {
			return nil, common.Permanent(model.ReasonInvalidContent, errors.New("empty post"))
		}
		edge = "feed"
		form.Set("message", content.Caption)
	}

	var resp struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := c.graph.Post(ctx, pageID+"/"+edge, form, token, &resp); err != nil {
		return nil, err
	}
	postID := resp.PostID
	if postID == "" {
		postID = resp.ID
	}
	if postID == "" {
		return nil, common.Permanent(model.ReasonBadResponse, errors.New("no post id returned"))
	}
	return &model.PublishReceipt{RemotePostID: postID, RemoteURL: "https://www.facebook.com/" + postID}, nil
}

type summaryCount struct {
	Summary struct {
		TotalCount int64 `json:"total_count"`
	} `json:"summary"`
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
	token, err := c.pageToken(ctx, cred)
	if err != nil {
		return nil, err
	}
	snap := &model.MetricsSnapshot{Scope: target.Scope, Network: model.NetworkFacebook, RemoteID: target.RemoteID}

	if target.Scope == model.ScopeAccount {
		params := url.Values{}
		params.Set("fields", "followers_count,fan_count")
		var p page
		if err := c.graph.Get(ctx, target.RemoteID, params, token, &p); err != nil {
			return nil, err
		}
		snap.Followers = p.FollowersCount
		if snap.Followers == 0 {
			snap.Followers = p.FanCount
		}
		in, err := c.graph.FetchInsights(ctx, target.RemoteID, []string{"page_impressions_unique", "page_post_engagements"}, "days_28", token)
		if err != nil {
			return nil, err
		}
		snap.Reach = in.Value("page_impressions_unique")
		snap.Engagement = in.Value("page_post_engagements")
		return snap, nil
	}

	params := url.Values{}
	params.Set("fields", "shares,reactions.summary(total_count).limit(0),comments.summary(total_count).limit(0)")
	var post struct {
		Shares struct {
			Count int64 `json:"count"`
		} `json:"shares"`
		Reactions summaryCount `json:"reactions"`
		Comments  summaryCount `json:"comments"`
	}
	if err := c.graph.Get(ctx, target.RemoteID, params, token, &post); err != nil {
		return nil, err
	}
	snap.Likes = post.Reactions.Summary.TotalCount
	snap.Comments = post.Comments.Summary.TotalCount
	snap.Shares = post.Shares.Count

	in, err := c.graph.FetchInsights(ctx, target.RemoteID, []string{"post_impressions_unique", "post_clicks"}, "lifetime", token)
	if err != nil {
		return nil, err
	}
	snap.Reach = in.Value("post_impressions_unique")
	snap.Engagement = in.Value("post_clicks")
	return snap, nil
}

func (c *Client) SupportsAds() bool {
	return true
}

func (c *Client) CreateAd(ctx context.Context, req model.AdRequest, cred model.Credential) (*model.AdReceipt, error) {
	receipt, err := c.ads.Create(ctx, req, cred, cred.ExternalProfileID)
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
