package facebook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/meta"
	"social-publisher/infrastructure/configuration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	app := configuration.OAuthClient{ClientID: "app", ClientSecret: "secret", RedirectURI: "http://localhost/auth/facebook/callback"}
	return New(app, configuration.Meta{GraphVersion: "v19.0", MinDailyBudget: 1}, meta.Options{GraphURL: srv.URL, DialogURL: srv.URL, Timeout: time.Second})
}

func TestExchangeCodeReturnsLongLivedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/oauth/access_token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "the-code", r.PostForm.Get("code"))
			_, _ = w.Write([]byte(`{"access_token":"short","token_type":"bearer","expires_in":3600}`))
			return
		}
		assert.Equal(t, "fb_exchange_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "short", r.URL.Query().Get("fb_exchange_token"))
		_, _ = w.Write([]byte(`{"access_token":"long","token_type":"bearer","expires_in":5184000}`))
	}))
	defer srv.Close()

	cred, err := newTestClient(srv).ExchangeCode(context.Background(), "the-code", "")
	require.NoError(t, err)
	assert.Equal(t, "long", cred.AccessToken)
	require.NotNil(t, cred.ExpiresAt)
	assert.True(t, cred.ExpiresAt.After(time.Now().Add(50*24*time.Hour)))
}

func TestAuthCodeURLUsesDialog(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	u := newTestClient(srv).AuthCodeURL("st-1", "")
	assert.Contains(t, u, srv.URL+"/v19.0/dialog/oauth")
	assert.Contains(t, u, "state=st-1")
	assert.Contains(t, u, "client_id=app")
}

func TestPublishTextUsesPageToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v19.0/page-1":
			assert.Equal(t, "user-tok", r.Form.Get("access_token"))
			_, _ = w.Write([]byte(`{"id":"page-1","access_token":"page-tok"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v19.0/page-1/feed":
			assert.Equal(t, "page-tok", r.PostForm.Get("access_token"))
			assert.Equal(t, "hello", r.PostForm.Get("message"))
			_, _ = w.Write([]byte(`{"id":"page-1_99"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cred := model.Credential{AccessToken: "user-tok", ExternalProfileID: "page-1"}
	receipt, err := newTestClient(srv).Publish(context.Background(), model.ContentItem{Caption: "hello"}, cred)
	require.NoError(t, err)
	assert.Equal(t, "page-1_99", receipt.RemotePostID)
	assert.Equal(t, "https://www.facebook.com/page-1_99", receipt.RemoteURL)
}

func TestPublishPhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"access_token":"page-tok"}`))
			return
		}
		assert.Equal(t, "/v19.0/page-1/photos", r.URL.Path)
		assert.Equal(t, "https://cdn.example.com/a.jpg", r.PostForm.Get("url"))
		_, _ = w.Write([]byte(`{"id":"photo-1","post_id":"page-1_100"}`))
	}))
	defer srv.Close()

	content := model.ContentItem{Caption: "look", Media: []model.MediaRef{{URL: "https://cdn.example.com/a.jpg", Kind: model.MediaImage}}}
	receipt, err := newTestClient(srv).Publish(context.Background(), content, model.Credential{AccessToken: "u", ExternalProfileID: "page-1"})
	require.NoError(t, err)
	assert.Equal(t, "page-1_100", receipt.RemotePostID)
}

func TestPublishExpiredTokenIsAuthRevoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Publish(context.Background(), model.ContentItem{Caption: "hi"}, model.Credential{AccessToken: "u", ExternalProfileID: "page-1"})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.ErrorPermanent, pe.Class)
	assert.Equal(t, model.ReasonAuthRevoked, pe.Reason)
}

func TestPublishRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"access_token":"page-tok"}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Publish(context.Background(), model.ContentItem{Caption: "hi"}, model.Credential{AccessToken: "u", ExternalProfileID: "page-1"})
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Transient())
}

func TestPostMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/page-1":
			_, _ = w.Write([]byte(`{"access_token":"page-tok"}`))
		case "/v19.0/page-1_99":
			_, _ = w.Write([]byte(`{"shares":{"count":2},"reactions":{"summary":{"total_count":10}},"comments":{"summary":{"total_count":4}}}`))
		case "/v19.0/page-1_99/insights":
			_, _ = w.Write([]byte(`{"data":[{"name":"post_impressions_unique","values":[{"value":300}]},{"name":"post_clicks","values":[{"value":0}]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	target := model.MetricsTarget{Scope: model.ScopePost, RemoteID: "page-1_99"}
	snap, err := newTestClient(srv).GetMetrics(context.Background(), target, model.Credential{AccessToken: "u", ExternalProfileID: "page-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(300), snap.Reach)
	assert.Equal(t, int64(10), snap.Likes)
	assert.Equal(t, int64(4), snap.Comments)
	assert.Equal(t, int64(2), snap.Shares)
	assert.Equal(t, int64(16), snap.Engagement)
}

func TestRefreshIsNotPossible(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(srv).RefreshCredential(context.Background(), model.Credential{})
	assert.True(t, model.IsAuthRevoked(err))
	assert.True(t, newTestClient(srv).SupportsAds())
}
