package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"social-publisher/domain/model"
)

type CreateAdCampaignRequest struct {
	Network        string             `json:"network" binding:"required"`
	Name           string             `json:"name" binding:"required"`
	ContentItemIDs []string           `json:"content_item_ids"`
	Content        *model.ContentItem `json:"content"`
	TotalBudget    decimal.Decimal    `json:"total_budget"`
	DailyBudget    decimal.Decimal    `json:"daily_budget"`
	Audience       model.Audience     `json:"audience"`
	StartAt        time.Time          `json:"start_at" binding:"required"`
	EndAt          time.Time          `json:"end_at" binding:"required"`
}
