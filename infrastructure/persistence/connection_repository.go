package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/utils"

	"github.com/lib/pq"
)

const connectionColumns = `id, owner_id, network, status, access_token, refresh_token, external_profile_id, handle, follower_count, ad_account_id, scopes, expires_at, linked_at, revoked_at, version, created_at, updated_at`

// ConnectionRepository is the PostgreSQL credential store. Tokens are sealed before
// they reach the database.
type ConnectionRepository struct {
	db     *sql.DB
	sealer *utils.Sealer
}

func NewConnectionRepository(db *sql.DB, sealer *utils.Sealer) *ConnectionRepository {
	return &ConnectionRepository{db: db, sealer: sealer}
}

var _ repository.IConnection = (*ConnectionRepository)(nil)

func (r *ConnectionRepository) Supersede(ctx context.Context, c *model.Connection) (err error) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = utils.NewID()
	}
	c.Status = model.ConnectionLinked
	c.Version = 1
	c.CreatedAt, c.UpdatedAt = now, now
	if c.LinkedAt.IsZero() {
		c.LinkedAt = now
	}
	access, refresh, err := sealTokens(r.sealer, c)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE connections SET status='revoked', revoked_at=$1, updated_at=$1, version=version+1
WHERE owner_id=$2 AND network=$3 AND status <> 'revoked'`, now, c.OwnerID, c.Network); err != nil {
		return fmt.Errorf("revoke previous connection: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO connections (`+connectionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULL,$14,$15,$16)`,
		c.ID, c.OwnerID, c.Network, c.Status, access, refresh, c.ExternalProfileID, c.Handle, c.FollowerCount,
		c.AdAccountID, c.Scopes, c.ExpiresAt, c.LinkedAt, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert connection: %w", model.ErrConflict)
		}
		return fmt.Errorf("insert connection: %w", err)
	}
	return tx.Commit()
}

func (r *ConnectionRepository) Get(ctx context.Context, ownerID string, network model.Network) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE owner_id=$1 AND network=$2 AND status <> 'revoked'`, ownerID, network)
	c, err := scanConnection(row, r.sealer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return c, err
}

func (r *ConnectionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	return r.list(ctx, `SELECT `+connectionColumns+` FROM connections WHERE owner_id=$1 ORDER BY network ASC, created_at DESC`, ownerID)
}

func (r *ConnectionRepository) ListLive(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	return r.list(ctx, `SELECT `+connectionColumns+` FROM connections WHERE owner_id=$1 AND status='linked' ORDER BY network ASC`, ownerID)
}

func (r *ConnectionRepository) list(ctx context.Context, q string, args ...interface{}) ([]*model.Connection, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.Connection
	for rows.Next() {
		c, err := scanConnection(rows, r.sealer)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *ConnectionRepository) UpdateCredential(ctx context.Context, c *model.Connection) error {
	access, refresh, err := sealTokens(r.sealer, c)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET access_token=$1, refresh_token=$2, expires_at=$3, status='linked', version=version+1, updated_at=$4
WHERE id=$5 AND version=$6 AND status <> 'revoked'`, access, refresh, c.ExpiresAt, now, c.ID, c.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrConflict
	}
	c.Version++
	c.Status = model.ConnectionLinked
	c.UpdatedAt = now
	return nil
}

func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET status=$1, revoked_at=CASE WHEN $1='revoked' THEN $2 ELSE revoked_at END, version=version+1, updated_at=$2
WHERE id=$3 AND status <> 'revoked'`, status, now, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *ConnectionRepository) UpdateFollowers(ctx context.Context, id string, followers int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE connections SET follower_count=$1, updated_at=$2 WHERE id=$3`, followers, time.Now().UTC(), id)
	return err
}

func (r *ConnectionRepository) Purge(ctx context.Context, ownerID string, network model.Network) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE owner_id=$1 AND network=$2`, ownerID, network)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(s rowScanner, sealer *utils.Sealer) (*model.Connection, error) {
	c := &model.Connection{}
	var adAccount sql.NullString
	var expiresAt, revokedAt sql.NullTime
	var access, refresh string
	if err := s.Scan(&c.ID, &c.OwnerID, &c.Network, &c.Status, &access, &refresh, &c.ExternalProfileID, &c.Handle, &c.FollowerCount,
		&adAccount, &c.Scopes, &expiresAt, &c.LinkedAt, &revokedAt, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if adAccount.Valid {
		v := adAccount.String
		c.AdAccountID = &v
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	var err error
	if c.AccessToken, err = sealer.Open(access); err != nil {
		return nil, fmt.Errorf("connection %s access token: %w", c.ID, err)
	}
	if c.RefreshToken, err = sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("connection %s refresh token: %w", c.ID, err)
	}
	return c, nil
}

func sealTokens(sealer *utils.Sealer, c *model.Connection) (string, string, error) {
	access, err := sealer.Seal(c.AccessToken)
	if err != nil {
		return "", "", err
	}
	refresh, err := sealer.Seal(c.RefreshToken)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
