package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"social-publisher/infrastructure/logger"
)

var postgresTables = []struct {
	name string
	ddl  string
}{
	{"connections", `CREATE TABLE IF NOT EXISTS connections (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        network TEXT NOT NULL,
        status TEXT NOT NULL,
        access_token TEXT NOT NULL,
        refresh_token TEXT NOT NULL DEFAULT '',
        external_profile_id TEXT NOT NULL,
        handle TEXT NOT NULL DEFAULT '',
        follower_count BIGINT NOT NULL DEFAULT 0,
        ad_account_id TEXT,
        scopes TEXT NOT NULL DEFAULT '',
        expires_at TIMESTAMPTZ,
        linked_at TIMESTAMPTZ NOT NULL,
        revoked_at TIMESTAMPTZ,
        version BIGINT NOT NULL DEFAULT 1,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`},
	{"publish_jobs", `CREATE TABLE IF NOT EXISTS publish_jobs (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        content JSONB NOT NULL,
        targets JSONB NOT NULL,
        caption_override TEXT,
        status TEXT NOT NULL,
        results JSONB NOT NULL DEFAULT '{}'::jsonb,
        scheduled_for TIMESTAMPTZ,
        completed_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`},
	{"scheduled_tasks", `CREATE TABLE IF NOT EXISTS scheduled_tasks (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        publish_job_id TEXT REFERENCES publish_jobs(id),
        due_at TIMESTAMPTZ NOT NULL,
        status TEXT NOT NULL,
        last_attempt_at TIMESTAMPTZ,
        attempt_count INT NOT NULL DEFAULT 0,
        last_error TEXT,
        retry_of TEXT,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`},
	{"ad_campaigns", `CREATE TABLE IF NOT EXISTS ad_campaigns (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        network TEXT NOT NULL,
        name TEXT NOT NULL,
        content_item_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
        total_budget NUMERIC(14,2) NOT NULL,
        daily_budget NUMERIC(14,2) NOT NULL,
        audience JSONB NOT NULL DEFAULT '{}'::jsonb,
        start_at TIMESTAMPTZ NOT NULL,
        end_at TIMESTAMPTZ NOT NULL,
        status TEXT NOT NULL,
        metrics JSONB NOT NULL DEFAULT '{}'::jsonb,
        remote_campaign_id TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`},
	{"metrics_snapshots", `CREATE TABLE IF NOT EXISTS metrics_snapshots (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        scope TEXT NOT NULL,
        network TEXT NOT NULL,
        publish_job_id TEXT,
        connection_id TEXT,
        remote_id TEXT NOT NULL,
        reach BIGINT NOT NULL DEFAULT 0,
        engagement BIGINT NOT NULL DEFAULT 0,
        likes BIGINT NOT NULL DEFAULT 0,
        comments BIGINT NOT NULL DEFAULT 0,
        shares BIGINT NOT NULL DEFAULT 0,
        followers BIGINT NOT NULL DEFAULT 0,
        captured_at TIMESTAMPTZ NOT NULL
    )`},
}

// At most one live connection per (owner, network); revoked rows stay for audit.
const liveConnectionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_connections_owner_network_live ON connections(owner_id, network) WHERE status <> 'revoked'`

var postgresIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_publish_jobs_owner_created ON publish_jobs(owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks(status, due_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ad_campaigns_owner ON ad_campaigns(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_snapshots_owner_captured ON metrics_snapshots(owner_id, scope, captured_at DESC)`,
}

// EnsureSchema creates the service tables if they do not exist.
// Safe to call at startup.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, t := range postgresTables {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	if _, err := db.ExecContext(ctx, liveConnectionIndex); err != nil {
		return fmt.Errorf("create live connection index: %w", err)
	}
	for _, idx := range postgresIndexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			logger.GetLogger().WithField("error", err).WithField("ddl", idx).Warn("failed creating index")
		}
	}
	return nil
}
