package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"

	"golang.org/x/oauth2"
)

const (
	linkStateTTL       = 10 * time.Minute
	maxRefreshAttempts = 3
)

// CallbackParams are the query parameters of the OAuth redirect. OwnerID is set
// only when the callback request also carries an authenticated session. Network is
// the network named by the callback path, if any.
type CallbackParams struct {
	Network model.Network
	Code    string
	State   string
	Error   string
	OwnerID string
}

type IConnectionUsecase interface {
	BeginLink(ctx context.Context, ownerID string, network model.Network) (authURL string, state string, err error)
	CompleteLink(ctx context.Context, params CallbackParams) (*model.Connection, error)
	Disconnect(ctx context.Context, ownerID string, network model.Network) error
	Purge(ctx context.Context, ownerID string, network model.Network) (int64, error)
	ListConnections(ctx context.Context, ownerID string) ([]*model.Connection, error)
	// Credential returns a usable connection, refreshing an expired credential when
	// the network allows it. It fails with model.ErrNotConnected otherwise.
	Credential(ctx context.Context, ownerID string, network model.Network) (*model.Connection, error)
	MarkRevoked(ctx context.Context, conn *model.Connection) error
}

type connectionUsecase struct {
	repo     repository.IConnection
	states   repository.ILinkStateStore
	registry repository.IProviderRegistry
}

func NewConnectionUsecase(repo repository.IConnection, states repository.ILinkStateStore, registry repository.IProviderRegistry) IConnectionUsecase {
	return &connectionUsecase{repo: repo, states: states, registry: registry}
}

func (u *connectionUsecase) BeginLink(ctx context.Context, ownerID string, network model.Network) (string, string, error) {
	if ownerID == "" {
		return "", "", model.NewLinkError(model.StageInitiated, "missing_owner", model.ErrInvalidInput)
	}
	provider, ok := u.registry.Get(network)
	if !ok {
		return "", "", model.NewLinkError(model.StageInitiated, "unsupported_network", model.ErrUnsupported)
	}
	state, err := utils.NewStateToken()
	if err != nil {
		return "", "", model.NewLinkError(model.StageInitiated, "state_generation", err)
	}
	attempt := &model.LinkAttempt{
		State:     state,
		OwnerID:   ownerID,
		Network:   network,
		Verifier:  oauth2.GenerateVerifier(),
		ExpiresAt: time.Now().Add(linkStateTTL),
	}
	if err := u.states.Put(ctx, attempt); err != nil {
		return "", "", model.NewLinkError(model.StageInitiated, "state_store", err)
	}
	logger.GetLogger().WithField("owner_id", ownerID).WithField("network", network).Info("Link initiated")
	return provider.AuthCodeURL(state, attempt.Verifier), state, nil
}

// CompleteLink runs callback-received, exchanged, profile-fetched and persisted in
// order. Nothing is stored unless every stage succeeds.
func (u *connectionUsecase) CompleteLink(ctx context.Context, p CallbackParams) (*model.Connection, error) {
	lg := logger.GetLogger()
	if p.State == "" {
		return nil, model.NewLinkError(model.StageCallbackReceived, "missing_state", model.ErrInvalidInput)
	}
	attempt, err := u.states.Take(ctx, p.State)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewLinkError(model.StageCallbackReceived, "invalid_state", err)
		}
		return nil, model.NewLinkError(model.StageCallbackReceived, "state_store", err)
	}
	lg = lg.WithField("owner_id", attempt.OwnerID).WithField("network", attempt.Network)

	if p.Error != "" {
		lg.WithField("provider_error", p.Error).Warn("Authorization denied by the network")
		return nil, model.NewLinkError(model.StageCallbackReceived, "access_denied", errors.New(p.Error))
	}
	if p.OwnerID != "" && p.OwnerID != attempt.OwnerID {
		return nil, model.NewLinkError(model.StageCallbackReceived, "owner_mismatch", model.ErrForbidden)
	}
	if p.Network != "" && p.Network != attempt.Network {
		lg.WithField("callback_network", p.Network).Warn("Callback arrived for another network")
		return nil, model.NewLinkError(model.StageCallbackReceived, "network_mismatch", model.ErrInvalidInput)
	}
	if p.Code == "" {
		return nil, model.NewLinkError(model.StageCallbackReceived, "missing_code", model.ErrInvalidInput)
	}
	provider, ok := u.registry.Get(attempt.Network)
	if !ok {
		return nil, model.NewLinkError(model.StageCallbackReceived, "unsupported_network", model.ErrUnsupported)
	}

	cred, err := provider.ExchangeCode(ctx, p.Code, attempt.Verifier)
	if err != nil {
		lg.WithError(err).Error("Code exchange failed")
		return nil, model.NewLinkError(model.StageExchanged, "exchange_failed", err)
	}
	profile, err := provider.FetchProfile(ctx, *cred)
	if err != nil {
		lg.WithError(err).Error("Profile fetch failed")
		return nil, model.NewLinkError(model.StageProfileFetched, "profile_failed", err)
	}

	conn := &model.Connection{
		OwnerID:           attempt.OwnerID,
		Network:           attempt.Network,
		AccessToken:       cred.AccessToken,
		RefreshToken:      cred.RefreshToken,
		ExternalProfileID: profile.ExternalID,
		Handle:            profile.Handle,
		FollowerCount:     profile.FollowerCount,
		Scopes:            cred.Scopes,
		ExpiresAt:         cred.ExpiresAt,
		LinkedAt:          time.Now().UTC(),
	}
	if profile.AccessToken != "" {
		conn.AccessToken = profile.AccessToken
	}
	if conn.ExternalProfileID == "" {
		conn.ExternalProfileID = cred.ExternalProfileID
	}
	if profile.AdAccountID != "" {
		adAccount := profile.AdAccountID
		conn.AdAccountID = &adAccount
	}
	if err := u.repo.Supersede(ctx, conn); err != nil {
		lg.WithError(err).Error("Failed to persist connection")
		return nil, model.NewLinkError(model.StagePersisted, "persist_failed", err)
	}
	lg.WithField("connection_id", conn.ID).Info("Network linked")
	return conn, nil
}

func (u *connectionUsecase) Disconnect(ctx context.Context, ownerID string, network model.Network) error {
	conn, err := u.repo.Get(ctx, ownerID, network)
	if err != nil {
		return err
	}
	if err := u.repo.UpdateStatus(ctx, conn.ID, model.ConnectionRevoked); err != nil {
		return err
	}
	logger.GetLogger().WithField("owner_id", ownerID).WithField("network", network).Info("Network disconnected")
	return nil
}

func (u *connectionUsecase) Purge(ctx context.Context, ownerID string, network model.Network) (int64, error) {
	n, err := u.repo.Purge(ctx, ownerID, network)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, model.ErrNotFound
	}
	logger.GetLogger().WithField("owner_id", ownerID).WithField("network", network).WithField("rows", n).Info("Connection history purged")
	return n, nil
}

func (u *connectionUsecase) ListConnections(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	return u.repo.ListByOwner(ctx, ownerID)
}

func (u *connectionUsecase) Credential(ctx context.Context, ownerID string, network model.Network) (*model.Connection, error) {
	lg := logger.GetLogger().WithField("owner_id", ownerID).WithField("network", network)
	for i := 0; i < maxRefreshAttempts; i++ {
		conn, err := u.repo.Get(ctx, ownerID, network)
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotConnected
		}
		if err != nil {
			return nil, err
		}
		now := time.Now()
		if conn.Usable(now) {
			return conn, nil
		}
		if conn.AccessToken == "" || !conn.Refreshable() {
			if conn.Status == model.ConnectionLinked {
				if err := u.repo.UpdateStatus(ctx, conn.ID, model.ConnectionExpired); err != nil && !errors.Is(err, model.ErrNotFound) {
					lg.WithError(err).Warn("Failed to mark connection expired")
				}
			}
			return nil, model.ErrNotConnected
		}

		provider, ok := u.registry.Get(network)
		if !ok {
			return nil, model.ErrNotConnected
		}
		fresh, err := provider.RefreshCredential(ctx, conn.Credential())
		if err != nil {
			if model.IsAuthRevoked(err) {
				lg.WithError(err).Warn("Refresh rejected, revoking connection")
				_ = u.MarkRevoked(ctx, conn)
				return nil, fmt.Errorf("%w: %v", model.ErrNotConnected, err)
			}
			return nil, fmt.Errorf("refresh credential: %w", err)
		}
		conn.AccessToken = fresh.AccessToken
		if fresh.RefreshToken != "" {
			conn.RefreshToken = fresh.RefreshToken
		}
		conn.ExpiresAt = fresh.ExpiresAt
		err = u.repo.UpdateCredential(ctx, conn)
		if err == nil {
			lg.Info("Credential refreshed")
			return conn, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return nil, err
		}
		// Another worker wrote first; re-read and use its token if still valid.
		lg.Debug("Credential refresh lost the version race, retrying")
	}
	return nil, fmt.Errorf("refresh credential: %w", model.ErrConflict)
}

func (u *connectionUsecase) MarkRevoked(ctx context.Context, conn *model.Connection) error {
	err := u.repo.UpdateStatus(ctx, conn.ID, model.ConnectionRevoked)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("connection_id", conn.ID).Error("Failed to revoke connection")
		return err
	}
	conn.Status = model.ConnectionRevoked
	logger.GetLogger().WithField("owner_id", conn.OwnerID).WithField("network", conn.Network).Warn("Connection revoked after the network rejected its credential")
	return nil
}
