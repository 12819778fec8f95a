package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/common"
	"social-publisher/infrastructure/configuration"
	"social-publisher/infrastructure/logger"

	"golang.org/x/oauth2"
)

const (
	DefaultGraphURL  = "https://graph.facebook.com"
	DefaultDialogURL = "https://www.facebook.com"
)

// Graph is the Graph API transport shared by the Facebook and Instagram clients.
type Graph struct {
	HTTP    *common.HTTPClient
	baseURL string
	version string
	appID   string
	secret  string
}

func NewGraph(app configuration.OAuthClient, version string, timeout time.Duration) *Graph {
	return &Graph{
		HTTP:    common.NewHTTPClient(timeout, Inspect),
		baseURL: DefaultGraphURL,
		version: version,
		appID:   app.ClientID,
		secret:  app.ClientSecret,
	}
}

// Options locates the Graph hosts. Zero values mean production.
type Options struct {
	GraphURL  string
	DialogURL string
	Timeout   time.Duration
}

// Setup builds the graph transport and OAuth endpoint for one Meta app.
func Setup(app configuration.OAuthClient, version string, o Options) (*Graph, oauth2.Endpoint) {
	g := NewGraph(app, version, o.Timeout)
	if o.GraphURL != "" {
		g.WithBaseURL(o.GraphURL)
	}
	dialog := o.DialogURL
	if dialog == "" {
		dialog = DefaultDialogURL
	}
	return g, g.Endpoint(dialog)
}

// WithBaseURL points the graph at another host, used by tests.
func (g *Graph) WithBaseURL(base string) *Graph {
	g.baseURL = strings.TrimRight(base, "/")
	return g
}

// URL joins path segments under the versioned graph root.
func (g *Graph) URL(parts ...string) string {
	return g.baseURL + "/" + g.version + "/" + strings.Join(parts, "/")
}

// Endpoint is the OAuth dialog and token endpoint for this graph version.
func (g *Graph) Endpoint(dialogURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   strings.TrimRight(dialogURL, "/") + "/" + g.version + "/dialog/oauth",
		TokenURL:  g.URL("oauth", "access_token"),
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func (g *Graph) Get(ctx context.Context, path string, params url.Values, token string, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)
	return g.HTTP.GetJSON(ctx, g.URL(path), params, "", out)
}

func (g *Graph) Post(ctx context.Context, path string, form url.Values, token string, out interface{}) error {
	form.Set("access_token", token)
	return g.HTTP.PostForm(ctx, g.URL(path), form, "", out)
}

// FirstAdAccount returns the first ad account of the user, or "" when there is none.
func (g *Graph) FirstAdAccount(ctx context.Context, token string) string {
	params := url.Values{}
	params.Set("fields", "id,account_status")
	params.Set("limit", "1")
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := g.Get(ctx, "me/adaccounts", params, token, &resp); err != nil {
		logger.GetLogger().WithError(err).Warn("Ad account lookup failed, ads stay disabled for this connection")
		return ""
	}
	if len(resp.Data) == 0 {
		return ""
	}
	return resp.Data[0].ID
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// LongLivedToken swaps a short-lived user token for a long-lived one.
func (g *Graph) LongLivedToken(ctx context.Context, shortLived string) (*model.Credential, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", g.appID)
	params.Set("client_secret", g.secret)
	params.Set("fb_exchange_token", shortLived)

	var resp tokenResponse
	if err := g.HTTP.GetJSON(ctx, g.URL("oauth", "access_token"), params, "", &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, common.Permanent(model.ReasonBadResponse, fmt.Errorf("empty long-lived token"))
	}
	cred := &model.Credential{AccessToken: resp.AccessToken}
	if resp.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		cred.ExpiresAt = &exp
	}
	return cred, nil
}

type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// Inspect reads the Graph error envelope. Code 190 is an invalid or expired token;
// 4, 17, 32, 613 and 80004 are throttling.
func Inspect(status int, body []byte) *model.RemoteFailure {
	var ge graphError
	if err := json.Unmarshal(body, &ge); err != nil || ge.Error.Code == 0 {
		return nil
	}
	detail := fmt.Sprintf("graph %d/%d: %s", ge.Error.Code, ge.Error.ErrorSubcode, ge.Error.Message)
	switch ge.Error.Code {
	case 190, 102:
		return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonAuthRevoked, Detail: detail}
	case 4, 17, 32, 613, 80004:
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonRateLimited, Detail: detail}
	case 1, 2:
		return &model.RemoteFailure{Class: model.ErrorTransient, Reason: model.ReasonUpstream, Detail: detail}
	case 100, 324, 352:
		return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonInvalidContent, Detail: detail}
	}
	f := common.Classify(status, body)
	f.Detail = detail
	return f
}
