package twitter

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/common"
	"social-publisher/infrastructure/configuration"

	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL   = "https://api.twitter.com"
	DefaultAuthURL  = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL = "https://api.twitter.com/2/oauth2/token"

	maxTweetLength = 280
)

var defaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

type Options struct {
	APIURL   string
	AuthURL  string
	TokenURL string
	Timeout  time.Duration
}

// Client posts to X (Twitter) through the v2 API with OAuth 2.0 PKCE user tokens.
type Client struct {
	common.NoAds

	http   *common.HTTPClient
	oauth  *common.OAuth
	apiURL string
}

func New(app configuration.OAuthClient, opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = DefaultAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	httpClient := common.NewHTTPClient(opts.Timeout, nil)
	endpoint := oauth2.Endpoint{AuthURL: opts.AuthURL, TokenURL: opts.TokenURL, AuthStyle: oauth2.AuthStyleInHeader}
	return &Client{
		http:   httpClient,
		oauth:  common.NewOAuth(app, endpoint, defaultScopes, httpClient, true),
		apiURL: strings.TrimRight(opts.APIURL, "/"),
	}
}

func (c *Client) Network() model.Network {
	return model.NetworkTwitter
}

func (c *Client) AuthCodeURL(state, verifier string) string {
	return c.oauth.AuthCodeURL(state, verifier)
}

func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*model.Credential, error) {
	if verifier == "" {
		return nil, common.Permanent(model.ReasonRejected, errors.New("missing PKCE verifier"))
	}
	return c.oauth.Exchange(ctx, code, verifier)
}

func (c *Client) RefreshCredential(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	return c.oauth.Refresh(ctx, cred)
}

type publicMetrics struct {
	FollowersCount  int64 `json:"followers_count"`
	ImpressionCount int64 `json:"impression_count"`
	LikeCount       int64 `json:"like_count"`
	ReplyCount      int64 `json:"reply_count"`
	RetweetCount    int64 `json:"retweet_count"`
	QuoteCount      int64 `json:"quote_count"`
}

type user struct {
	ID            string        `json:"id"`
	Username      string        `json:"username"`
	PublicMetrics publicMetrics `json:"public_metrics"`
}

func (c *Client) FetchProfile(ctx context.Context, cred model.Credential) (*model.Profile, error) {
	params := url.Values{}
	params.Set("user.fields", "public_metrics,username")
	var resp struct {
		Data user `json:"data"`
	}
	if err := c.http.GetJSON(ctx, c.apiURL+"/2/users/me", params, cred.AccessToken, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, common.Permanent(model.ReasonBadResponse, errors.New("empty user"))
	}
	return &model.Profile{
		ExternalID:    resp.Data.ID,
		Handle:        resp.Data.Username,
		FollowerCount: resp.Data.PublicMetrics.FollowersCount,
	}, nil
}

// tweetText appends the first media link; native media upload needs the v1.1 upload API.
func tweetText(content model.ContentItem) (string, error) {
	text := strings.TrimSpace(content.Caption)
	if len(content.Media) > 0 {
		if text != "" {
			text += " "
		}
		text += content.Media[0].URL
	}
	if text == "" {
		return "", errors.New("empty tweet")
	}
	if utf8.RuneCountInString(text) > maxTweetLength {
		return "", errors.New("tweet exceeds 280 characters")
	}
	return text, nil
}

func (c *Client) Publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	text, err := tweetText(content)
	if err != nil {
		return nil, model.AsPublishError(common.Permanent(model.ReasonInvalidContent, err))
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.http.PostJSON(ctx, c.apiURL+"/2/tweets", map[string]string{"text": text}, cred.AccessToken, &resp); err != nil {
		return nil, model.AsPublishError(err)
	}
	if resp.Data.ID == "" {
		return nil, model.AsPublishError(common.Permanent(model.ReasonBadResponse, errors.New("no tweet id returned")))
	}
	return &model.PublishReceipt{
		RemotePostID: resp.Data.ID,
		RemoteURL:    "https://x.com/i/web/status/" + resp.Data.ID,
	}, nil
}

func (c *Client) GetMetrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error) {
	snap := &model.MetricsSnapshot{Scope: target.Scope, Network: model.NetworkTwitter, RemoteID: target.RemoteID}

	if target.Scope == model.ScopeAccount {
		params := url.Values{}
		params.Set("user.fields", "public_metrics")
		var resp struct {
			Data user `json:"data"`
		}
		if err := c.http.GetJSON(ctx, c.apiURL+"/2/users/"+url.PathEscape(target.RemoteID), params, cred.AccessToken, &resp); err != nil {
			return nil, model.AsMetricsError(err)
		}
		snap.Followers = resp.Data.PublicMetrics.FollowersCount
		return snap, nil
	}

	params := url.Values{}
	params.Set("tweet.fields", "public_metrics")
	var resp struct {
		Data struct {
			ID            string        `json:"id"`
			PublicMetrics publicMetrics `json:"public_metrics"`
		} `json:"data"`
	}
	if err := c.http.GetJSON(ctx, c.apiURL+"/2/tweets/"+url.PathEscape(target.RemoteID), params, cred.AccessToken, &resp); err != nil {
		return nil, model.AsMetricsError(err)
	}
	pm := resp.Data.PublicMetrics
	snap.Reach = pm.ImpressionCount
	snap.Likes = pm.LikeCount
	snap.Comments = pm.ReplyCount
	snap.Shares = pm.RetweetCount + pm.QuoteCount
	snap.NormalizeEngagement()
	return snap, nil
}
