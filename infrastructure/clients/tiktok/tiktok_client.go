package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/common"
	"social-publisher/infrastructure/configuration"
	"social-publisher/infrastructure/logger"
)

const (
	DefaultAPIURL  = "https://open.tiktokapis.com"
	DefaultAuthURL = "https://www.tiktok.com/v2/auth/authorize/"

	publishIDPrefix = "v_pub_"
)

var defaultScopes = []string{"user.info.basic", "user.info.stats", "video.publish", "video.list"}

type Options struct {
	APIURL  string
	AuthURL string
	Timeout time.Duration
}

// Client posts through the Content Posting API. TikTok names the client id
// client_key, so the OAuth exchange is done by hand rather than with oauth2.Config.
type Client struct {
	common.NoAds

	http    *common.HTTPClient
	app     configuration.OAuthClient
	scopes  []string
	apiURL  string
	authURL string
}

func New(app configuration.OAuthClient, opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = DefaultAuthURL
	}
	scopes := app.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return &Client{
		http:    common.NewHTTPClient(opts.Timeout, Inspect),
		app:     app,
		scopes:  scopes,
		apiURL:  strings.TrimRight(opts.APIURL, "/"),
		authURL: opts.AuthURL,
	}
}

func (c *Client) Network() model.Network {
	return model.NetworkTikTok
}

func (c *Client) AuthCodeURL(state, _ string) string {
	params := url.Values{}
	params.Set("client_key", c.app.ClientID)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(c.scopes, ","))
	params.Set("redirect_uri", c.app.RedirectURI)
	params.Set("state", state)
	return c.authURL + "?" + params.Encode()
}

type tokenRequest struct {
	ClientKey    string `url:"client_key"`
	ClientSecret string `url:"client_secret"`
	GrantType    string `url:"grant_type"`
	Code         string `url:"code,omitempty"`
	RedirectURI  string `url:"redirect_uri,omitempty"`
	RefreshToken string `url:"refresh_token,omitempty"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenID           string `json:"open_id"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) token(ctx context.Context, req tokenRequest) (*model.Credential, error) {
	req.ClientKey = c.app.ClientID
	req.ClientSecret = c.app.ClientSecret
	var resp tokenResponse
	if err := c.http.PostForm(ctx, c.apiURL+"/v2/oauth/token/", req, "", &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		detail := errors.New(resp.Error + ": " + resp.ErrorDescription)
		if resp.Error == "invalid_grant" {
			return nil, common.Permanent(model.ReasonAuthRevoked, detail)
		}
		return nil, common.Permanent(model.ReasonRejected, detail)
	}
	cred := &model.Credential{
		AccessToken:       resp.AccessToken,
		RefreshToken:      resp.RefreshToken,
		ExternalProfileID: resp.OpenID,
		Scopes:            resp.Scope,
	}
	if resp.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		cred.ExpiresAt = &exp
	}
	return cred, nil
}

func (c *Client) ExchangeCode(ctx context.Context, code, _ string) (*model.Credential, error) {
	return c.token(ctx, tokenRequest{GrantType: "authorization_code", Code: code, RedirectURI: c.app.RedirectURI})
}

func (c *Client) RefreshCredential(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, common.Permanent(model.ReasonAuthRevoked, errors.New("no refresh token"))
	}
	out, err := c.token(ctx, tokenRequest{GrantType: "refresh_token", RefreshToken: cred.RefreshToken})
	if err != nil {
		return nil, err
	}
	if out.ExternalProfileID == "" {
		out.ExternalProfileID = cred.ExternalProfileID
	}
	return out, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// failure maps the error object every Open API response carries. "ok" is success.
func (e apiError) failure() *model.RemoteFailure {
	detail := fmt.Sprintf("tiktok %s: %s", e.Code, e.Message)
	switch e.Code {
	case "", "ok":
		return nil
	case "access_token_invalid", "scope_not_authorized", "scope_permission_missed":
		return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonAuthRevoked, Detail: detail}
	case "rate_limit_exceeded":
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonRateLimited, Detail: detail}
	case "internal_error":
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonUpstream, Detail: detail}
	case "invalid_params", "invalid_file_upload", "url_ownership_unverified":
		return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonInvalidContent, Detail: detail}
	}
	return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonRejected, Detail: detail}
}

// Inspect reads the error object of a non-2xx response.
func Inspect(status int, body []byte) *model.RemoteFailure {
	var env struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Code == "" {
		return nil
	}
	if status >= 500 || status == 429 {
		return nil
	}
	return env.Error.failure()
}

type userInfo struct {
	OpenID        string `json:"open_id"`
	DisplayName   string `json:"display_name"`
	Username      string `json:"username"`
	FollowerCount int64  `json:"follower_count"`
}

func (c *Client) user(ctx context.Context, token string) (*userInfo, error) {
	params := url.Values{}
	params.Set("fields", "open_id,display_name,username,follower_count")
	var resp struct {
		Data struct {
			User userInfo `json:"user"`
		} `json:"data"`
		Error apiError `json:"error"`
	}
	if err := c.http.GetJSON(ctx, c.apiURL+"/v2/user/info/", params, token, &resp); err != nil {
		return nil, err
	}
	if f := resp.Error.failure(); f != nil {
		return nil, f
	}
	return &resp.Data.User, nil
}

func (c *Client) FetchProfile(ctx context.Context, cred model.Credential) (*model.Profile, error) {
	u, err := c.user(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	handle := u.Username
	if handle == "" {
		handle = u.DisplayName
	}
	return &model.Profile{ExternalID: u.OpenID, Handle: handle, FollowerCount: u.FollowerCount}, nil
}

type postInfo struct {
	Title         string `json:"title"`
	PrivacyLevel  string `json:"privacy_level"`
	DisableDuet   bool   `json:"disable_duet"`
	DisableStitch bool   `json:"disable_stitch"`
}

type sourceInfo struct {
	Source      string   `json:"source"`
	VideoURL    string   `json:"video_url,omitempty"`
	PhotoImages []string `json:"photo_images,omitempty"`
	PhotoCover  int      `json:"photo_cover_index"`
}

// Publish asks TikTok to pull the media from its URL. The publish id is returned
// until processing yields the public post id.
func (c *Client) Publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	receipt, err := c.publish(ctx, content, cred)
	if err != nil {
		return nil, model.AsPublishError(err)
	}
	return receipt, nil
}

func (c *Client) publish(ctx context.Context, content model.ContentItem, cred model.Credential) (*model.PublishReceipt, error) {
	info := postInfo{Title: content.Caption, PrivacyLevel: "PUBLIC_TO_EVERYONE"}
	var endpoint string
	var payload map[string]interface{}
	if vid, ok := content.FirstMedia(model.MediaVideo); ok {
		endpoint = "/v2/post/publish/video/init/"
		payload = map[string]interface{}{
			"post_info":   info,
			"source_info": sourceInfo{Source: "PULL_FROM_URL", VideoURL: vid.URL},
		}
	} else {
		var photos []string
		for _, m := range content.Media {
			if m.Kind == model.MediaImage {
				photos = append(photos, m.URL)
			}
		}
		if len(photos) == 0 {
			return nil, common.Permanent(model.ReasonInvalidContent, errors.New("tiktok posts need a video or images"))
		}
		endpoint = "/v2/post/publish/content/init/"
		payload = map[string]interface{}{
			"post_info":   info,
			"source_info": sourceInfo{Source: "PULL_FROM_URL", PhotoImages: photos},
			"post_mode":   "DIRECT_POST",
			"media_type":  "PHOTO",
		}
	}

	var resp struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
		Error apiError `json:"error"`
	}
	if err := c.http.PostJSON(ctx, c.apiURL+endpoint, payload, cred.AccessToken, &resp); err != nil {
		return nil, err
	}
	if f := resp.Error.failure(); f != nil {
		return nil, f
	}
	if resp.Data.PublishID == "" {
		return nil, common.Permanent(model.ReasonBadResponse, errors.New("no publish id returned"))
	}

	receipt := &model.PublishReceipt{RemotePostID: resp.Data.PublishID}
	postID, err := c.resolvePost(ctx, resp.Data.PublishID, cred.AccessToken)
	switch {
	case err == nil:
		receipt.RemotePostID = postID
		receipt.RemoteURL = "https://www.tiktok.com/player/v1/" + postID
	case errors.Is(err, errPublishFailed):
		return nil, err
	default:
		// The post was accepted; metrics resolve the publish id later.
		logger.GetLogger().WithError(err).WithField("publish_id", resp.Data.PublishID).Debug("TikTok post not resolved yet")
	}
	return receipt, nil
}

var (
	errStillProcessing = errors.New("publish still processing")
	errPublishFailed   = errors.New("publish failed")
)

func isPending(err error) bool {
	return errors.Is(err, errStillProcessing)
}

// resolvePost turns a publish id into the public post id once TikTok has processed it.
func (c *Client) resolvePost(ctx context.Context, publishID, token string) (string, error) {
	var resp struct {
		Data struct {
			Status     string  `json:"status"`
			FailReason string  `json:"fail_reason"`
			PostIDs    []int64 `json:"publicaly_available_post_id"`
		} `json:"data"`
		Error apiError `json:"error"`
	}
	body := map[string]string{"publish_id": publishID}
	if err := c.http.PostJSON(ctx, c.apiURL+"/v2/post/publish/status/fetch/", body, token, &resp); err != nil {
		return "", err
	}
	if f := resp.Error.failure(); f != nil {
		return "", f
	}
	switch resp.Data.Status {
	case "FAILED":
		return "", &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonRejected, Detail: resp.Data.FailReason, Err: errPublishFailed}
	case "PUBLISH_COMPLETE":
		if len(resp.Data.PostIDs) > 0 {
			return fmt.Sprintf("%d", resp.Data.PostIDs[0]), nil
		}
	}
	return "", errStillProcessing
}

type video struct {
	ID           string `json:"id"`
	ViewCount    int64  `json:"view_count"`
	LikeCount    int64  `json:"like_count"`
	CommentCount int64  `json:"comment_count"`
	ShareCount   int64  `json:"share_count"`
}

func (c *Client) GetMetrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error) {
	snap, err := c.metrics(ctx, target, cred)
	if err != nil {
		return nil, model.AsMetricsError(err)
	}
	return snap, nil
}

func (c *Client) metrics(ctx context.Context, target model.MetricsTarget, cred model.Credential) (*model.MetricsSnapshot, error) {
	snap := &model.MetricsSnapshot{Scope: target.Scope, Network: model.NetworkTikTok, RemoteID: target.RemoteID}
	if target.Scope == model.ScopeAccount {
		u, err := c.user(ctx, cred.AccessToken)
		if err != nil {
			return nil, err
		}
		snap.Followers = u.FollowerCount
		return snap, nil
	}

	videoID := target.RemoteID
	if strings.HasPrefix(videoID, publishIDPrefix) {
		id, err := c.resolvePost(ctx, videoID, cred.AccessToken)
		if err != nil {
			if isPending(err) {
				return nil, common.Transient(model.ReasonUpstream, err)
			}
			return nil, err
		}
		videoID = id
	}

	body := map[string]interface{}{"filters": map[string][]string{"video_ids": {videoID}}}
	var resp struct {
		Data struct {
			Videos []video `json:"videos"`
		} `json:"data"`
		Error apiError `json:"error"`
	}
	endpoint := c.apiURL + "/v2/video/query/?fields=id,view_count,like_count,comment_count,share_count"
	if err := c.http.PostJSON(ctx, endpoint, body, cred.AccessToken, &resp); err != nil {
		return nil, err
	}
	if f := resp.Error.failure(); f != nil {
		return nil, f
	}
	if len(resp.Data.Videos) == 0 {
		return nil, common.Permanent(model.ReasonBadResponse, errors.New("video not found"))
	}
	v := resp.Data.Videos[0]
	snap.Reach = v.ViewCount
	snap.Likes = v.LikeCount
	snap.Comments = v.CommentCount
	snap.Shares = v.ShareCount
	snap.NormalizeEngagement()
	return snap, nil
}
