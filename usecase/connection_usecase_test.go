package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
	"social-publisher/usecase"
)

func newConnectionFixture(providers ...*MockProvider) (*MockConnectionRepo, *MockLinkStateStore, usecase.IConnectionUsecase) {
	repo := new(MockConnectionRepo)
	states := new(MockLinkStateStore)
	return repo, states, usecase.NewConnectionUsecase(repo, states, registryOf(providers...))
}

func TestConnectionUsecase_BeginLink(t *testing.T) {
	fb := newMockProvider(model.NetworkFacebook, true)
	_, states, uc := newConnectionFixture(fb)

	var stored *model.LinkAttempt
	states.On("Put", mock.Anything, mock.AnythingOfType("*model.LinkAttempt")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.LinkAttempt) }).
		Return(nil)

	url, state, err := uc.BeginLink(context.Background(), "owner-1", model.NetworkFacebook)
	require.NoError(t, err)
	assert.Len(t, state, 43)
	assert.True(t, strings.HasSuffix(url, "state="+state))
	require.NotNil(t, stored)
	assert.Equal(t, "owner-1", stored.OwnerID)
	assert.NotEmpty(t, stored.Verifier)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), stored.ExpiresAt, 5*time.Second)
}

func TestConnectionUsecase_BeginLink_UnknownNetwork(t *testing.T) {
	_, states, uc := newConnectionFixture()

	_, _, err := uc.BeginLink(context.Background(), "owner-1", model.NetworkTikTok)
	var le *model.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, model.StageInitiated, le.Stage)
	assert.ErrorIs(t, err, model.ErrUnsupported)
	states.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestConnectionUsecase_CompleteLink_Persists(t *testing.T) {
	fb := newMockProvider(model.NetworkFacebook, true)
	repo, states, uc := newConnectionFixture(fb)
	ctx := context.Background()

	states.On("Take", ctx, "st").Return(&model.LinkAttempt{State: "st", OwnerID: "owner-1", Network: model.NetworkFacebook, Verifier: "ver"}, nil)
	fb.On("ExchangeCode", ctx, "code", "ver").Return(&model.Credential{AccessToken: "user-token", Scopes: "pages_manage_posts"}, nil)
	fb.On("FetchProfile", ctx, mock.Anything).Return(&model.Profile{ExternalID: "page-1", Handle: "Acme", FollowerCount: 42, AdAccountID: "act_9", AccessToken: "page-token"}, nil)
	repo.On("Supersede", ctx, mock.MatchedBy(func(c *model.Connection) bool {
		return c.OwnerID == "owner-1" && c.AccessToken == "page-token" && c.ExternalProfileID == "page-1" &&
			c.AdAccountID != nil && *c.AdAccountID == "act_9"
	})).Return(nil)

	conn, err := uc.CompleteLink(ctx, usecase.CallbackParams{Code: "code", State: "st"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", conn.Handle)
	assert.Equal(t, int64(42), conn.FollowerCount)
	repo.AssertExpectations(t)
}

func TestConnectionUsecase_CompleteLink_Stages(t *testing.T) {
	attempt := func() *model.LinkAttempt {
		return &model.LinkAttempt{State: "st", OwnerID: "owner-1", Network: model.NetworkTwitter, Verifier: "ver"}
	}
	tests := []struct {
		name   string
		params usecase.CallbackParams
		setup  func(states *MockLinkStateStore, p *MockProvider, repo *MockConnectionRepo)
		stage  model.LinkStage
		code   string
	}{
		{
			name:   "missing state",
			params: usecase.CallbackParams{Code: "code"},
			setup:  func(*MockLinkStateStore, *MockProvider, *MockConnectionRepo) {},
			stage:  model.StageCallbackReceived,
			code:   "missing_state",
		},
		{
			name:   "unknown state",
			params: usecase.CallbackParams{Code: "code", State: "st"},
			setup: func(s *MockLinkStateStore, _ *MockProvider, _ *MockConnectionRepo) {
				s.On("Take", mock.Anything, "st").Return(nil, model.ErrNotFound)
			},
			stage: model.StageCallbackReceived,
			code:  "invalid_state",
		},
		{
			name:   "user denied",
			params: usecase.CallbackParams{State: "st", Error: "access_denied"},
			setup: func(s *MockLinkStateStore, _ *MockProvider, _ *MockConnectionRepo) {
				s.On("Take", mock.Anything, "st").Return(attempt(), nil)
			},
			stage: model.StageCallbackReceived,
			code:  "access_denied",
		},
		{
			name:   "other owner",
			params: usecase.CallbackParams{Code: "code", State: "st", OwnerID: "owner-2"},
			setup: func(s *MockLinkStateStore, _ *MockProvider, _ *MockConnectionRepo) {
				s.On("Take", mock.Anything, "st").Return(attempt(), nil)
			},
			stage: model.StageCallbackReceived,
			code:  "owner_mismatch",
		},
		{
			name:   "callback for another network",
			params: usecase.CallbackParams{Network: model.NetworkTikTok, Code: "code", State: "st"},
			setup: func(s *MockLinkStateStore, _ *MockProvider, _ *MockConnectionRepo) {
				s.On("Take", mock.Anything, "st").Return(attempt(), nil)
			},
			stage: model.StageCallbackReceived,
			code:  "network_mismatch",
		},
		{
			name:   "exchange fails",
			params: usecase.CallbackParams{Code: "code", State: "st"},
			setup: func(s *MockLinkStateStore, p *MockProvider, _ *MockConnectionRepo) {
				s.On("Take", mock.Anything, "st").Return(attempt(), nil)
				p.On("ExchangeCode", mock.Anything, "code", "ver").Return(nil, errors.New("invalid_grant"))
			},
			stage: model.StageExchanged,
			code:  "exchange_failed",
		},
		{
			name:   "profile fails",
			params: usecase.CallbackParams{Code: "code", State: "st"},
			setup: func(s *MockLinkStateStore, p *MockProvider, _ *MockConnectionRepo) {
				s.On("Take", mock.Anything, "st").Return(attempt(), nil)
				p.On("ExchangeCode", mock.Anything, "code", "ver").Return(&model.Credential{AccessToken: "t"}, nil)
				p.On("FetchProfile", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
			},
			stage: model.StageProfileFetched,
			code:  "profile_failed",
		},
		{
			name:   "persist fails",
			params: usecase.CallbackParams{Code: "code", State: "st"},
			setup: func(s *MockLinkStateStore, p *MockProvider, repo *MockConnectionRepo) {
				s.On("Take", mock.Anything, "st").Return(attempt(), nil)
				p.On("ExchangeCode", mock.Anything, "code", "ver").Return(&model.Credential{AccessToken: "t"}, nil)
				p.On("FetchProfile", mock.Anything, mock.Anything).Return(&model.Profile{ExternalID: "u1"}, nil)
				repo.On("Supersede", mock.Anything, mock.Anything).Return(errors.New("tx aborted"))
			},
			stage: model.StagePersisted,
			code:  "persist_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := newMockProvider(model.NetworkTwitter, false)
			repo, states, uc := newConnectionFixture(tw)
			tt.setup(states, tw, repo)

			conn, err := uc.CompleteLink(context.Background(), tt.params)
			assert.Nil(t, conn)
			var le *model.LinkError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.stage, le.Stage)
			assert.Equal(t, tt.code, le.Code)
			if tt.stage != model.StagePersisted {
				repo.AssertNotCalled(t, "Supersede", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestConnectionUsecase_Credential_Usable(t *testing.T) {
	repo, _, uc := newConnectionFixture()
	c := linked("owner-1", model.NetworkFacebook)
	repo.On("Get", mock.Anything, "owner-1", model.NetworkFacebook).Return(c, nil)

	got, err := uc.Credential(context.Background(), "owner-1", model.NetworkFacebook)
	require.NoError(t, err)
	assert.Same(t, c, got)
}

func TestConnectionUsecase_Credential_NotFound(t *testing.T) {
	repo, _, uc := newConnectionFixture()
	repo.On("Get", mock.Anything, "owner-1", model.NetworkTikTok).Return(nil, model.ErrNotFound)

	_, err := uc.Credential(context.Background(), "owner-1", model.NetworkTikTok)
	assert.ErrorIs(t, err, model.ErrNotConnected)
}

func TestConnectionUsecase_Credential_ExpiredWithoutRefresh(t *testing.T) {
	repo, _, uc := newConnectionFixture(newMockProvider(model.NetworkFacebook, true))
	c := linked("owner-1", model.NetworkFacebook)
	past := time.Now().Add(-time.Hour)
	c.ExpiresAt = &past
	repo.On("Get", mock.Anything, "owner-1", model.NetworkFacebook).Return(c, nil)
	repo.On("UpdateStatus", mock.Anything, c.ID, model.ConnectionExpired).Return(nil)

	_, err := uc.Credential(context.Background(), "owner-1", model.NetworkFacebook)
	assert.ErrorIs(t, err, model.ErrNotConnected)
	repo.AssertExpectations(t)
}

func TestConnectionUsecase_Credential_RefreshRetriesOnConflict(t *testing.T) {
	tw := newMockProvider(model.NetworkTwitter, false)
	repo, _, uc := newConnectionFixture(tw)
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	stale := func() *model.Connection {
		c := linked("owner-1", model.NetworkTwitter)
		c.RefreshToken = "rt"
		c.ExpiresAt = &past
		return c
	}
	repo.On("Get", mock.Anything, "owner-1", model.NetworkTwitter).Return(stale(), nil).Once()
	repo.On("Get", mock.Anything, "owner-1", model.NetworkTwitter).Return(stale(), nil).Once()
	tw.On("RefreshCredential", mock.Anything, mock.Anything).Return(&model.Credential{AccessToken: "fresh", ExpiresAt: &future}, nil)
	repo.On("UpdateCredential", mock.Anything, mock.Anything).Return(model.ErrConflict).Once()
	repo.On("UpdateCredential", mock.Anything, mock.Anything).Return(nil).Once()

	got, err := uc.Credential(context.Background(), "owner-1", model.NetworkTwitter)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken)
	repo.AssertNumberOfCalls(t, "UpdateCredential", 2)
}

func TestConnectionUsecase_Credential_RefreshRevoked(t *testing.T) {
	tw := newMockProvider(model.NetworkTwitter, false)
	repo, _, uc := newConnectionFixture(tw)
	c := linked("owner-1", model.NetworkTwitter)
	c.RefreshToken = "rt"
	past := time.Now().Add(-time.Minute)
	c.ExpiresAt = &past

	repo.On("Get", mock.Anything, "owner-1", model.NetworkTwitter).Return(c, nil)
	tw.On("RefreshCredential", mock.Anything, mock.Anything).
		Return(nil, &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonAuthRevoked, Detail: "invalid_grant"})
	repo.On("UpdateStatus", mock.Anything, c.ID, model.ConnectionRevoked).Return(nil)

	_, err := uc.Credential(context.Background(), "owner-1", model.NetworkTwitter)
	assert.ErrorIs(t, err, model.ErrNotConnected)
	repo.AssertCalled(t, "UpdateStatus", mock.Anything, c.ID, model.ConnectionRevoked)
	repo.AssertNotCalled(t, "UpdateCredential", mock.Anything, mock.Anything)
}

func TestConnectionUsecase_DisconnectAndPurge(t *testing.T) {
	repo, _, uc := newConnectionFixture()
	ctx := context.Background()
	c := linked("owner-1", model.NetworkYouTube)
	repo.On("Get", ctx, "owner-1", model.NetworkYouTube).Return(c, nil)
	repo.On("UpdateStatus", ctx, c.ID, model.ConnectionRevoked).Return(nil)
	repo.On("Purge", ctx, "owner-1", model.NetworkYouTube).Return(int64(2), nil).Once()
	repo.On("Purge", ctx, "owner-1", model.NetworkYouTube).Return(int64(0), nil).Once()

	require.NoError(t, uc.Disconnect(ctx, "owner-1", model.NetworkYouTube))

	n, err := uc.Purge(ctx, "owner-1", model.NetworkYouTube)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = uc.Purge(ctx, "owner-1", model.NetworkYouTube)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConnectionUsecase_MarkRevoked_AlreadyRevoked(t *testing.T) {
	repo, _, uc := newConnectionFixture()
	c := linked("owner-1", model.NetworkTikTok)
	repo.On("UpdateStatus", mock.Anything, c.ID, model.ConnectionRevoked).Return(model.ErrNotFound)

	assert.NoError(t, uc.MarkRevoked(context.Background(), c))
}
