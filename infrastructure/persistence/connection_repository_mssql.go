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

	mssql "github.com/microsoft/go-mssqldb"
)

// ConnectionRepositoryMSSQL is the credential store for SQL Server / Azure SQL deployments.
type ConnectionRepositoryMSSQL struct {
	db     *sql.DB
	sealer *utils.Sealer
}

func NewConnectionRepositoryMSSQL(db *sql.DB, sealer *utils.Sealer) *ConnectionRepositoryMSSQL {
	return &ConnectionRepositoryMSSQL{db: db, sealer: sealer}
}

var _ repository.IConnection = (*ConnectionRepositoryMSSQL)(nil)

// EnsureConnectionSchemaMSSQL creates the connections table for SQL Server if it does not exist.
func EnsureConnectionSchemaMSSQL(db *sql.DB) error {
	ddl := `IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.connections') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[connections] (
        id NVARCHAR(64) NOT NULL PRIMARY KEY,
        owner_id NVARCHAR(128) NOT NULL,
        network NVARCHAR(32) NOT NULL,
        status NVARCHAR(16) NOT NULL,
        access_token NVARCHAR(MAX) NOT NULL,
        refresh_token NVARCHAR(MAX) NOT NULL DEFAULT '',
        external_profile_id NVARCHAR(128) NOT NULL,
        handle NVARCHAR(255) NOT NULL DEFAULT '',
        follower_count BIGINT NOT NULL DEFAULT 0,
        ad_account_id NVARCHAR(128) NULL,
        scopes NVARCHAR(MAX) NOT NULL DEFAULT '',
        expires_at DATETIME2 NULL,
        linked_at DATETIME2 NOT NULL,
        revoked_at DATETIME2 NULL,
        version BIGINT NOT NULL DEFAULT 1,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL
    );
    CREATE UNIQUE INDEX UX_connections_owner_network_live ON dbo.[connections](owner_id, network) WHERE status <> 'revoked';
END`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create connections (mssql): %w", err)
	}
	return nil
}

func (r *ConnectionRepositoryMSSQL) Supersede(ctx context.Context, c *model.Connection) (err error) {
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
	// Normalize nullable values for MSSQL driver
	var adAccount sql.NullString
	if c.AdAccountID != nil {
		adAccount = sql.NullString{String: *c.AdAccountID, Valid: true}
	}
	var exp sql.NullTime
	if c.ExpiresAt != nil {
		exp = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
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

	if _, err = tx.ExecContext(ctx, `UPDATE dbo.[connections] SET status='revoked', revoked_at=@p1, updated_at=@p1, version=version+1
WHERE owner_id=@p2 AND network=@p3 AND status <> 'revoked'`, now, c.OwnerID, string(c.Network)); err != nil {
		return fmt.Errorf("revoke previous connection: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO dbo.[connections] (`+connectionColumns+`)
VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p10,@p11,@p12,@p13,NULL,@p14,@p15,@p16)`,
		c.ID, c.OwnerID, string(c.Network), string(c.Status), access, refresh, c.ExternalProfileID, c.Handle, c.FollowerCount,
		adAccount, c.Scopes, exp, c.LinkedAt, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var msErr mssql.Error
		// 2601/2627: duplicate key on a unique index or constraint
		if errors.As(err, &msErr) && (msErr.Number == 2601 || msErr.Number == 2627) {
			return fmt.Errorf("insert connection: %w", model.ErrConflict)
		}
		return fmt.Errorf("insert connection: %w", err)
	}
	return tx.Commit()
}

func (r *ConnectionRepositoryMSSQL) Get(ctx context.Context, ownerID string, network model.Network) (*model.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM dbo.[connections] WHERE owner_id=@p1 AND network=@p2 AND status <> 'revoked'`, ownerID, string(network))
	c, err := scanConnection(row, r.sealer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return c, err
}

func (r *ConnectionRepositoryMSSQL) ListByOwner(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	return r.list(ctx, `SELECT `+connectionColumns+` FROM dbo.[connections] WHERE owner_id=@p1 ORDER BY network ASC, created_at DESC`, ownerID)
}

func (r *ConnectionRepositoryMSSQL) ListLive(ctx context.Context, ownerID string) ([]*model.Connection, error) {
	return r.list(ctx, `SELECT `+connectionColumns+` FROM dbo.[connections] WHERE owner_id=@p1 AND status='linked' ORDER BY network ASC`, ownerID)
}

func (r *ConnectionRepositoryMSSQL) list(ctx context.Context, q string, args ...interface{}) ([]*model.Connection, error) {
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

func (r *ConnectionRepositoryMSSQL) UpdateCredential(ctx context.Context, c *model.Connection) error {
	access, refresh, err := sealTokens(r.sealer, c)
	if err != nil {
		return err
	}
	var exp sql.NullTime
	if c.ExpiresAt != nil {
		exp = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[connections] SET access_token=@p1, refresh_token=@p2, expires_at=@p3, status='linked', version=version+1, updated_at=@p4
WHERE id=@p5 AND version=@p6 AND status <> 'revoked'`, access, refresh, exp, now, c.ID, c.Version)
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

func (r *ConnectionRepositoryMSSQL) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE dbo.[connections] SET status=@p1, revoked_at=CASE WHEN @p1='revoked' THEN @p2 ELSE revoked_at END, version=version+1, updated_at=@p2
WHERE id=@p3 AND status <> 'revoked'`, string(status), now, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *ConnectionRepositoryMSSQL) UpdateFollowers(ctx context.Context, id string, followers int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE dbo.[connections] SET follower_count=@p1, updated_at=@p2 WHERE id=@p3`, followers, time.Now().UTC(), id)
	return err
}

func (r *ConnectionRepositoryMSSQL) Purge(ctx context.Context, ownerID string, network model.Network) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dbo.[connections] WHERE owner_id=@p1 AND network=@p2`, ownerID, string(network))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
