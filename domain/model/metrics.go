package model

import "time"

type MetricsScope string

const (
	ScopePost    MetricsScope = "post"
	ScopeAccount MetricsScope = "account"
)

// MetricsTarget names what a provider should report on.
type MetricsTarget struct {
	Scope    MetricsScope
	RemoteID string
}

// MetricsSnapshot is the normalized shape every network's numbers are mapped into.
// Snapshots are appended, never updated.
type MetricsSnapshot struct {
	ID           string       `json:"id" bson:"_id"`
	OwnerID      string       `json:"owner_id" bson:"owner_id"`
	Scope        MetricsScope `json:"scope" bson:"scope"`
	Network      Network      `json:"network" bson:"network"`
	PublishJobID *string      `json:"publish_job_id,omitempty" bson:"publish_job_id,omitempty"`
	ConnectionID *string      `json:"connection_id,omitempty" bson:"connection_id,omitempty"`
	RemoteID     string       `json:"remote_id" bson:"remote_id"`
	Reach        int64        `json:"reach" bson:"reach"`
	Engagement   int64        `json:"engagement" bson:"engagement"`
	Likes        int64        `json:"likes" bson:"likes"`
	Comments     int64        `json:"comments" bson:"comments"`
	Shares       int64        `json:"shares" bson:"shares"`
	Followers    int64        `json:"followers" bson:"followers"`
	CapturedAt   time.Time    `json:"captured_at" bson:"captured_at"`
}

// Interactions is likes + comments + shares.
func (s MetricsSnapshot) Interactions() int64 {
	return s.Likes + s.Comments + s.Shares
}

// NormalizeEngagement fills Engagement for networks that expose no distinct
// engagement/click figure.
func (s *MetricsSnapshot) NormalizeEngagement() {
	if s.Engagement == 0 {
		s.Engagement = s.Interactions()
	}
}

type NetworkSummary struct {
	Network        Network `json:"network"`
	Jobs           int     `json:"jobs"`
	Reach          int64   `json:"reach"`
	Engagement     int64   `json:"engagement"`
	Likes          int64   `json:"likes"`
	Comments       int64   `json:"comments"`
	Shares         int64   `json:"shares"`
	EngagementRate float64 `json:"engagement_rate"`
}

// MetricsSummary is computed at read time from stored snapshots.
type MetricsSummary struct {
	OwnerID         string                      `json:"owner_id"`
	From            time.Time                   `json:"from"`
	To              time.Time                   `json:"to"`
	TotalReach      int64                       `json:"total_reach"`
	TotalEngagement int64                       `json:"total_engagement"`
	TotalLikes      int64                       `json:"total_likes"`
	TotalComments   int64                       `json:"total_comments"`
	TotalShares     int64                       `json:"total_shares"`
	EngagementRate  float64                     `json:"engagement_rate"`
	JobsPerNetwork  map[Network]int             `json:"jobs_per_network"`
	Networks        map[Network]*NetworkSummary `json:"networks"`
	Followers       map[Network]int64           `json:"followers,omitempty"`
}

// EngagementRate returns engagement/reach, zero when there is no reach.
func EngagementRate(engagement, reach int64) float64 {
	if reach <= 0 {
		return 0
	}
	return float64(engagement) / float64(reach)
}

// RefreshReport counts per-item outcomes of a metrics batch.
type RefreshReport struct {
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Merge adds another report into r.
func (r *RefreshReport) Merge(o RefreshReport) {
	r.Updated += o.Updated
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)
}
