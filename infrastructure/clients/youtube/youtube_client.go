package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/common"
	"social-publisher/infrastructure/configuration"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const maxTitleLength = 100

type Options struct {
	// APIURL overrides the YouTube Data API endpoint, used by tests.
	APIURL        string
	AuthURL       string
	TokenURL      string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// Client uploads videos to the authenticated user's channel.
type Client struct {
	common.NoAds

	http          *common.HTTPClient
	oauth         *common.OAuth
	apiURL        string
	uploadTimeout time.Duration
}

func New(app configuration.OAuthClient, opts Options) *Client {
	endpoint := google.Endpoint
	if opts.AuthURL != "" {
		endpoint.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 10 * time.Minute
	}
	httpClient := common.NewHTTPClient(opts.Timeout, nil)
	scopes := []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope}
	return &Client{
		http:          httpClient,
		oauth:         common.NewOAuth(app, endpoint, scopes, httpClient, false),
		apiURL:        opts.APIURL,
		uploadTimeout: opts.UploadTimeout,
	}
}

func (c *Client) Network() model.Network {
	return model.NetworkYouTube
}

// AuthCodeURL forces the consent screen so Google always returns a refresh token.
func (c *Client) AuthCodeURL(state, _ string) string {
	return c.oauth.AuthCodeURL(state, "", oauth2.SetAuthURLParam("prompt", "consent"))
}

func (c *Client) ExchangeCode(ctx context.Context, code, _ string) (*model.Credential, error) {
	return c.oauth.Exchange(ctx, code, "")
}

func (c *Client) RefreshCredential(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	return c.oauth.Refresh(ctx, cred)
}

// service binds a Data API client to one credential. The token is used as is;
// refreshing is the connection manager's job.
func (c *Client) service(ctx context.Context, cred model.Credential) (*youtube.Service, error) {
	tok := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.apiURL != "" {
		opts = append(opts, option.WithEndpoint(c.apiURL))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, common.Permanent(model.ReasonUpstream, fmt.Errorf("failed to create YouTube service: %w", err))
	}
	return svc, nil
}

func (c *Client) FetchProfile(ctx context.Context, cred model.Credential) (*model.Profile, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.http.Timeout())
	defer cancel()
	resp, err := svc.Channels.List([]string{"id", "snippet", "statistics"}).Mine(true).Context(callCtx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Items) == 0 {
		return nil, common.Permanent(model.ReasonRejected, errors.New("account has no YouTube channel"))
	}
	ch := resp.Items[0]
	profile := &model.Profile{ExternalID: ch.Id}
	if ch.Snippet != nil {
		profile.Handle = ch.Snippet.CustomUrl
		if profile.Handle == "" {
			profile.Handle = ch.Snippet.Title
		}
	}
	if ch.Statistics != nil {
		profile.FollowerCount = int64(ch.Statistics.SubscriberCount)
	}
	return profile, nil
}

// videoTitle uses the first caption line, cut to YouTube's title limit.
func videoTitle(caption string) string {
	title := strings.TrimSpace(strings.SplitN(caption, "\n", 2)[0])
	if title == "" {
		return "Untitled"
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}
	return title
}

// Publish streams the first video reference into a resumable upload.
func (c *Client) Publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	media, ok := content.FirstMedia(model.MediaVideo)
	if !ok {
		return nil, model.AsPublishError(common.Permanent(model.ReasonInvalidContent, errors.New("youtube requires a video")))
	}
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, model.AsPublishError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, media.URL, nil)
	if err != nil {
		return nil, model.AsPublishError(common.Permanent(model.ReasonInvalidContent, err))
	}
	src, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, model.AsPublishError(common.TransportFailure(err))
	}
	defer src.Body.Close()
	if src.StatusCode >= 500 {
		return nil, model.AsPublishError(common.Transient(model.ReasonUpstream, fmt.Errorf("media fetch status %d", src.StatusCode)))
	}
	if src.StatusCode >= 300 {
		// A media host refusing the file says nothing about the channel credential.
		return nil, model.AsPublishError(common.Permanent(model.ReasonInvalidContent, fmt.Errorf("media fetch status %d", src.StatusCode)))
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(content.Caption),
			Description: content.Caption,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(src.Body).Context(ctx).Do()
	if err != nil {
		return nil, model.AsPublishError(classify(err))
	}
	return &model.PublishReceipt{
		RemotePostID: uploaded.Id,
		RemoteURL:    "https://www.youtube.com/watch?v=" + uploaded.Id,
	}, nil
}

func (c *Client) GetMetrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, model.AsMetricsError(err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.http.Timeout())
	defer cancel()

	snap := &model.MetricsSnapshot{Scope: target.Scope, Network: model.NetworkYouTube, RemoteID: target.RemoteID}
	if target.Scope == model.ScopeAccount {
		resp, err := svc.Channels.List([]string{"statistics"}).Id(target.RemoteID).Context(ctx).Do()
		if err != nil {
			return nil, model.AsMetricsError(classify(err))
		}
		if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
			return nil, model.AsMetricsError(common.Permanent(model.ReasonBadResponse, errors.New("channel not found")))
		}
		stats := resp.Items[0].Statistics
		snap.Followers = int64(stats.SubscriberCount)
		snap.Reach = int64(stats.ViewCount)
		return snap, nil
	}

	resp, err := svc.Videos.List([]string{"statistics"}).Id(target.RemoteID).Context(ctx).Do()
	if err != nil {
		return nil, model.AsMetricsError(classify(err))
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return nil, model.AsMetricsError(common.Permanent(model.ReasonBadResponse, errors.New("video not found")))
	}
	stats := resp.Items[0].Statistics
	snap.Reach = int64(stats.ViewCount)
	snap.Likes = int64(stats.LikeCount)
	snap.Comments = int64(stats.CommentCount)
	snap.NormalizeEngagement()
	return snap, nil
}

// classify maps googleapi errors. Quota exhaustion is retried later.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return common.TransportFailure(err)
	}
	for _, item := range gerr.Errors {
		if item.Reason == "quotaExceeded" || item.Reason == "rateLimitExceeded" || item.Reason == "uploadLimitExceeded" {
			return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonRateLimited, Detail: gerr.Message, Err: err}
		}
	}
	f := common.Classify(gerr.Code, []byte(gerr.Message))
	f.Err = err
	return f
}
