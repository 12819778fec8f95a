package repository

import (
	"context"

	"social-publisher/domain/model"
)

// IConnection is the credential store: one live connection per (owner, network).
type IConnection interface {
	// Supersede revokes any non-revoked connection for (owner, network) and inserts c,
	// atomically. Nothing is written if any step fails.
	Supersede(ctx context.Context, c *model.Connection) error
	// Get returns the live (non-revoked) connection or model.ErrNotFound.
	Get(ctx context.Context, ownerID string, network model.Network) (*model.Connection, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Connection, error)
	// ListLive returns the owner's linked connections, used by metrics refresh.
	ListLive(ctx context.Context, ownerID string) ([]*model.Connection, error)
	// UpdateCredential writes refreshed tokens when c.Version still matches the stored
	// version; it returns model.ErrConflict otherwise. c.Version is bumped on success.
	UpdateCredential(ctx context.Context, c *model.Connection) error
	UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error
	UpdateFollowers(ctx context.Context, id string, followers int64) error
	// Purge hard-deletes every row for (owner, network), including revoked history.
	Purge(ctx context.Context, ownerID string, network model.Network) (int64, error)
}
