package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveJobStatus(t *testing.T) {
	fb, tw := NetworkFacebook, NetworkTwitter
	targets := []Network{fb, tw}
	res := func(a, b ResultState) map[Network]*NetworkResult {
		return map[Network]*NetworkResult{fb: {Network: fb, State: a}, tw: {Network: tw, State: b}}
	}

	tests := []struct {
		name    string
		targets []Network
		results map[Network]*NetworkResult
		want    JobStatus
	}{
		{"no targets", nil, nil, JobDraft},
		{"all succeeded", targets, res(ResultSucceeded, ResultSucceeded), JobCompleted},
		{"all failed", targets, res(ResultFailed, ResultFailed), JobFailed},
		{"mixed", targets, res(ResultSucceeded, ResultFailed), JobPartiallyFailed},
		{"still pending", targets, res(ResultSucceeded, ResultPending), JobPublishing},
		{"missing entry", targets, map[Network]*NetworkResult{fb: {State: ResultSucceeded}}, JobPublishing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveJobStatus(tt.targets, tt.results))
		})
	}
}

func TestPublishJob_EffectiveContent(t *testing.T) {
	override := "summer sale"
	job := &PublishJob{
		Content:         ContentItem{Caption: "original", Media: []MediaRef{{URL: "https://cdn/a.jpg", Kind: MediaImage}}},
		CaptionOverride: &override,
	}
	got := job.EffectiveContent()
	assert.Equal(t, "summer sale", got.Caption)
	assert.Equal(t, "original", job.Content.Caption)

	got.Media[0].URL = "changed"
	assert.Equal(t, "https://cdn/a.jpg", job.Content.Media[0].URL)
}

func TestParseNetwork(t *testing.T) {
	n, ok := ParseNetwork(" X ")
	assert.True(t, ok)
	assert.Equal(t, NetworkTwitter, n)

	n, ok = ParseNetwork("YouTube")
	assert.True(t, ok)
	assert.Equal(t, NetworkYouTube, n)

	_, ok = ParseNetwork("myspace")
	assert.False(t, ok)
}

func TestCampaignStatus_CanTransition(t *testing.T) {
	assert.True(t, CampaignActive.CanTransition(CampaignPaused))
	assert.True(t, CampaignPaused.CanTransition(CampaignActive))
	assert.True(t, CampaignPaused.CanTransition(CampaignCompleted))
	assert.False(t, CampaignActive.CanTransition(CampaignActive))
	assert.False(t, CampaignCompleted.CanTransition(CampaignActive))
}

func TestCampaignMetrics_WithROAS(t *testing.T) {
	m := CampaignMetrics{Spend: decimal.NewFromInt(50), Revenue: decimal.NewFromInt(200)}.WithROAS()
	assert.True(t, m.ROAS.Equal(decimal.NewFromInt(4)))

	m = CampaignMetrics{Revenue: decimal.NewFromInt(200)}.WithROAS()
	assert.True(t, m.ROAS.IsZero())
}

func TestConnection_Usable(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Hour)

	assert.True(t, (&Connection{Status: ConnectionLinked, AccessToken: "t"}).Usable(now))
	assert.True(t, (&Connection{Status: ConnectionLinked, AccessToken: "t", ExpiresAt: &future}).Usable(now))
	assert.False(t, (&Connection{Status: ConnectionLinked, AccessToken: "t", ExpiresAt: &past}).Usable(now))
	assert.False(t, (&Connection{Status: ConnectionRevoked, AccessToken: "t"}).Usable(now))
	assert.False(t, (*Connection)(nil).Usable(now))
}

func TestAsPublishError(t *testing.T) {
	pe := AsPublishError(&RemoteFailure{Class: ErrorPermanent, Reason: ReasonAuthRevoked, Detail: "expired"})
	assert.Equal(t, ErrorPermanent, pe.Class)
	assert.True(t, IsAuthRevoked(pe))

	pe = AsPublishError(assert.AnError)
	assert.True(t, pe.Transient())
	assert.Equal(t, ReasonUpstream, pe.Reason)
}
