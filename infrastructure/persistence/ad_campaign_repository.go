package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/utils"
)

const adCampaignColumns = "id, owner_id, network, name, content_item_ids, total_budget, daily_budget, audience, start_at, end_at, status, metrics, remote_campaign_id, created_at, updated_at"

type AdCampaignRepository struct{ db *sql.DB }

func NewAdCampaignRepository(db *sql.DB) *AdCampaignRepository {
	return &AdCampaignRepository{db: db}
}

var _ repository.IAdCampaign = (*AdCampaignRepository)(nil)

func (r *AdCampaignRepository) Create(ctx context.Context, c *model.AdCampaign) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = utils.NewID()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	items, err := json.Marshal(c.ContentItemIDs)
	if err != nil {
		return err
	}
	audience, err := json.Marshal(c.Audience)
	if err != nil {
		return err
	}
	metrics, err := json.Marshal(c.Metrics)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO ad_campaigns (`+adCampaignColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.OwnerID, c.Network, c.Name, items, c.TotalBudget, c.DailyBudget, audience, c.StartAt, c.EndAt,
		c.Status, metrics, c.RemoteCampaignID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ad campaign: %w", err)
	}
	return nil
}

func (r *AdCampaignRepository) Get(ctx context.Context, ownerID, id string) (*model.AdCampaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+adCampaignColumns+` FROM ad_campaigns WHERE id=$1 AND owner_id=$2`, id, ownerID)
	c, err := scanAdCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return c, err
}

func (r *AdCampaignRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.AdCampaign, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+adCampaignColumns+` FROM ad_campaigns WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.AdCampaign
	for rows.Next() {
		c, err := scanAdCampaign(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// UpdateStatus only applies when the stored status still equals from.
func (r *AdCampaignRepository) UpdateStatus(ctx context.Context, ownerID, id string, from, to model.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE ad_campaigns SET status=$1, updated_at=$2 WHERE id=$3 AND owner_id=$4 AND status=$5`,
		to, time.Now().UTC(), id, ownerID, from)
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
	return nil
}

func (r *AdCampaignRepository) UpdateMetrics(ctx context.Context, id string, m model.CampaignMetrics) error {
	metrics, err := json.Marshal(m)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE ad_campaigns SET metrics=$1, updated_at=$2 WHERE id=$3`, metrics, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func scanAdCampaign(s rowScanner) (*model.AdCampaign, error) {
	c := &model.AdCampaign{}
	var items, audience, metrics []byte
	if err := s.Scan(&c.ID, &c.OwnerID, &c.Network, &c.Name, &items, &c.TotalBudget, &c.DailyBudget, &audience, &c.StartAt, &c.EndAt,
		&c.Status, &metrics, &c.RemoteCampaignID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &c.ContentItemIDs); err != nil {
			return nil, fmt.Errorf("decode content item ids: %w", err)
		}
	}
	if len(audience) > 0 {
		if err := json.Unmarshal(audience, &c.Audience); err != nil {
			return nil, fmt.Errorf("decode audience: %w", err)
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &c.Metrics); err != nil {
			return nil, fmt.Errorf("decode campaign metrics: %w", err)
		}
	}
	return c, nil
}
