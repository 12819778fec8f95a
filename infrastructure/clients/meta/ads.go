package meta

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/clients/common"
	"social-publisher/infrastructure/logger"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// purchaseActions are the action types counted as conversions.
var purchaseActions = map[string]bool{
	"purchase":                             true,
	"omni_purchase":                        true,
	"offsite_conversion.fb_pixel_purchase": true,
}

// Ads talks to the Marketing API. Budgets travel in minor currency units.
type Ads struct {
	graph    *Graph
	minDaily decimal.Decimal
}

func NewAds(g *Graph, minDailyBudget float64) *Ads {
	return &Ads{graph: g, minDaily: decimal.NewFromFloat(minDailyBudget)}
}

type idResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type targeting struct {
	AgeMin       int                     `json:"age_min,omitempty"`
	AgeMax       int                     `json:"age_max,omitempty"`
	GeoLocations *geoLocations           `json:"geo_locations,omitempty"`
	FlexibleSpec []map[string][]interest `json:"flexible_spec,omitempty"`
}

type geoLocations struct {
	Countries []string `json:"countries"`
}

type interest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func buildTargeting(a model.Audience) (string, error) {
	t := targeting{AgeMin: a.AgeMin, AgeMax: a.AgeMax}
	if len(a.Locations) > 0 {
		t.GeoLocations = &geoLocations{Countries: a.Locations}
	} else {
		t.GeoLocations = &geoLocations{Countries: []string{"US"}}
	}
	if len(a.Interests) > 0 {
		items := make([]interest, 0, len(a.Interests))
		for _, i := range a.Interests {
			items = append(items, interest{ID: i})
		}
		t.FlexibleSpec = []map[string][]interest{{"interests": items}}
	}
	raw, err := json.Marshal(t)
	return string(raw), err
}

// Create opens a campaign with one ad set. The daily budget is raised to the
// account minimum and the values stored remotely are read back afterwards.
func (a *Ads) Create(ctx context.Context, req model.AdRequest, cred model.Credential, promotedPageID string) (*model.AdReceipt, error) {
	if cred.AdAccountID == "" {
		return nil, common.Permanent(model.ReasonRejected, errors.New("no ad account linked"))
	}
	account := cred.AdAccountID
	if !strings.HasPrefix(account, "act_") {
		account = "act_" + account
	}

	daily := req.DailyBudget
	if daily.LessThan(a.minDaily) {
		daily = a.minDaily
	}

	target, err := buildTargeting(req.Audience)
	if err != nil {
		return nil, common.Permanent(model.ReasonInvalidContent, err)
	}

	campaign := url.Values{}
	campaign.Set("name", req.Name)
	campaign.Set("objective", "OUTCOME_ENGAGEMENT")
	campaign.Set("status", "ACTIVE")
	campaign.Set("special_ad_categories", "[]")
	if req.TotalBudget.IsPositive() {
		campaign.Set("spend_cap", toMinor(req.TotalBudget))
	}
	var created idResponse
	if err := a.graph.Post(ctx, account+"/campaigns", campaign, cred.AccessToken, &created); err != nil {
		return nil, err
	}

	adSet := url.Values{}
	adSet.Set("name", req.Name+" ad set")
	adSet.Set("campaign_id", created.ID)
	adSet.Set("daily_budget", toMinor(daily))
	adSet.Set("billing_event", "IMPRESSIONS")
	adSet.Set("optimization_goal", "POST_ENGAGEMENT")
	adSet.Set("bid_strategy", "LOWEST_COST_WITHOUT_CAP")
	adSet.Set("targeting", target)
	adSet.Set("start_time", req.StartAt.UTC().Format(time.RFC3339))
	adSet.Set("end_time", req.EndAt.UTC().Format(time.RFC3339))
	adSet.Set("status", "ACTIVE")
	if promotedPageID != "" {
		adSet.Set("promoted_object", `{"page_id":"`+promotedPageID+`"}`)
	}
	var set idResponse
	if err := a.graph.Post(ctx, account+"/adsets", adSet, cred.AccessToken, &set); err != nil {
		a.discard(ctx, created.ID, cred)
		return nil, err
	}

	receipt := &model.AdReceipt{
		RemoteCampaignID:    created.ID,
		AcceptedDailyBudget: daily,
		AcceptedTotalBudget: req.TotalBudget,
	}
	a.readBack(ctx, created.ID, set.ID, cred, receipt)
	return receipt, nil
}

// discard deletes a campaign whose ad set was refused so no untracked campaign
// stays on the ad account.
func (a *Ads) discard(ctx context.Context, campaignID string, cred model.Credential) {
	form := url.Values{}
	form.Set("status", "DELETED")
	if err := a.graph.Post(context.WithoutCancel(ctx), campaignID, form, cred.AccessToken, nil); err != nil {
		logger.GetLogger().WithError(err).WithField("remote_campaign_id", campaignID).Error("Failed to delete campaign without ad set")
	}
}

// readBack replaces the submitted budgets with the ones the network stored.
func (a *Ads) readBack(ctx context.Context, campaignID, adSetID string, cred model.Credential, receipt *model.AdReceipt) {
	log := logger.GetLogger().WithField("remote_campaign_id", campaignID)

	var set struct {
		DailyBudget string `json:"daily_budget"`
	}
	params := url.Values{}
	params.Set("fields", "daily_budget")
	if err := a.graph.Get(ctx, adSetID, params, cred.AccessToken, &set); err != nil {
		log.WithError(err).Warn("Failed to read back ad set budget")
	} else if v, ok := fromMinor(set.DailyBudget); ok {
		receipt.AcceptedDailyBudget = v
	}

	var camp struct {
		SpendCap string `json:"spend_cap"`
	}
	params = url.Values{}
	params.Set("fields", "spend_cap")
	if err := a.graph.Get(ctx, campaignID, params, cred.AccessToken, &camp); err != nil {
		log.WithError(err).Warn("Failed to read back campaign spend cap")
	} else if v, ok := fromMinor(camp.SpendCap); ok {
		receipt.AcceptedTotalBudget = v
	}
}

// SetStatus pushes a caller-driven transition. Completed campaigns are archived.
func (a *Ads) SetStatus(ctx context.Context, remoteCampaignID string, status model.CampaignStatus, cred model.Credential) error {
	form := url.Values{}
	switch status {
	case model.CampaignActive:
		form.Set("status", "ACTIVE")
	case model.CampaignPaused:
		form.Set("status", "PAUSED")
	case model.CampaignCompleted:
		form.Set("status", "ARCHIVED")
	default:
		return common.Permanent(model.ReasonRejected, errors.New("unsupported campaign status "+string(status)))
	}
	return a.graph.Post(ctx, remoteCampaignID, form, cred.AccessToken, nil)
}

type action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

type insightRow struct {
	Impressions  string   `json:"impressions"`
	Clicks       string   `json:"clicks"`
	Spend        string   `json:"spend"`
	Actions      []action `json:"actions"`
	ActionValues []action `json:"action_values"`
}

// Metrics reads lifetime campaign insights. A campaign without delivery has no rows.
func (a *Ads) Metrics(ctx context.Context, remoteCampaignID string, cred model.Credential) (*model.CampaignMetrics, error) {
	params := url.Values{}
	params.Set("fields", "impressions,clicks,spend,actions,action_values")
	params.Set("date_preset", "maximum")

	var resp struct {
		Data []insightRow `json:"data"`
	}
	if err := a.graph.Get(ctx, remoteCampaignID+"/insights", params, cred.AccessToken, &resp); err != nil {
		return nil, err
	}
	m := model.CampaignMetrics{Spend: decimal.Zero, Revenue: decimal.Zero}
	for _, row := range resp.Data {
		m.Impressions += parseInt(row.Impressions)
		m.Clicks += parseInt(row.Clicks)
		if v, err := decimal.NewFromString(row.Spend); err == nil {
			m.Spend = m.Spend.Add(v)
		}
		for _, act := range row.Actions {
			if purchaseActions[act.ActionType] {
				m.Conversions += parseInt(act.Value)
			}
		}
		for _, act := range row.ActionValues {
			if !purchaseActions[act.ActionType] {
				continue
			}
			if v, err := decimal.NewFromString(act.Value); err == nil {
				m.Revenue = m.Revenue.Add(v)
			}
		}
	}
	m = m.WithROAS()
	return &m, nil
}

func toMinor(d decimal.Decimal) string {
	return d.Mul(hundred).Round(0).String()
}

func fromMinor(v string) (decimal.Decimal, bool) {
	if v == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d.Div(hundred), true
}

func parseInt(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
