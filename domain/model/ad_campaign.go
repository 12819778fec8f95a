package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// CanTransition lists the caller-driven transitions after creation.
func (s CampaignStatus) CanTransition(to CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return to == CampaignActive || to == CampaignCompleted
	case CampaignActive:
		return to == CampaignPaused || to == CampaignCompleted
	case CampaignPaused:
		return to == CampaignActive || to == CampaignCompleted
	}
	return false
}

type Audience struct {
	AgeMin    int      `json:"age_min,omitempty"`
	AgeMax    int      `json:"age_max,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

type CampaignMetrics struct {
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Spend       decimal.Decimal `json:"spend"`
	Conversions int64           `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
	ROAS        decimal.Decimal `json:"roas"`
	CapturedAt  *time.Time      `json:"captured_at,omitempty"`
}

// WithROAS fills the derived return on ad spend.
func (m CampaignMetrics) WithROAS() CampaignMetrics {
	if m.Spend.IsPositive() {
		m.ROAS = m.Revenue.DivRound(m.Spend, 4)
	} else {
		m.ROAS = decimal.Zero
	}
	return m
}

type AdCampaign struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"owner_id"`
	Network          Network         `json:"network"`
	Name             string          `json:"name"`
	ContentItemIDs   []string        `json:"content_item_ids"`
	TotalBudget      decimal.Decimal `json:"total_budget"`
	DailyBudget      decimal.Decimal `json:"daily_budget"`
	Audience         Audience        `json:"audience"`
	StartAt          time.Time       `json:"start_at"`
	EndAt            time.Time       `json:"end_at"`
	Status           CampaignStatus  `json:"status"`
	Metrics          CampaignMetrics `json:"metrics"`
	RemoteCampaignID string          `json:"remote_campaign_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AdRequest is what a provider client receives to create a paid promotion.
type AdRequest struct {
	Name           string
	ContentItemIDs []string
	Content        *ContentItem
	TotalBudget    decimal.Decimal
	DailyBudget    decimal.Decimal
	Audience       Audience
	StartAt        time.Time
	EndAt          time.Time
}

// Days is the scheduled duration rounded up to whole days.
func (r AdRequest) Days() int {
	d := r.EndAt.Sub(r.StartAt)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// AdReceipt carries what the network accepted, which may differ from the request.
type AdReceipt struct {
	RemoteCampaignID    string
	AcceptedDailyBudget decimal.Decimal
	AcceptedTotalBudget decimal.Decimal
}
