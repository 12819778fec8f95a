package model

import "time"

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type MediaRef struct {
	URL  string    `json:"url" binding:"required"`
	Kind MediaKind `json:"kind"`
}

// ContentItem is the material to publish. It is copied into the job and never mutated.
type ContentItem struct {
	Caption        string     `json:"caption"`
	Media          []MediaRef `json:"media,omitempty"`
	CatalogItemIDs []string   `json:"catalog_item_ids,omitempty"`
}

// FirstMedia returns the first media reference of the given kind.
func (c ContentItem) FirstMedia(kind MediaKind) (MediaRef, bool) {
	for _, m := range c.Media {
		if m.Kind == kind {
			return m, true
		}
	}
	return MediaRef{}, false
}

// WithCaption returns a copy carrying a different caption.
func (c ContentItem) WithCaption(caption string) ContentItem {
	out := c
	out.Caption = caption
	out.Media = append([]MediaRef(nil), c.Media...)
	out.CatalogItemIDs = append([]string(nil), c.CatalogItemIDs...)
	return out
}

type JobStatus string

const (
	JobDraft           JobStatus = "draft"
	JobScheduled       JobStatus = "scheduled"
	JobPublishing      JobStatus = "publishing"
	JobCompleted       JobStatus = "completed"
	JobPartiallyFailed JobStatus = "partially-failed"
	JobFailed          JobStatus = "failed"
)

type ResultState string

const (
	ResultPending   ResultState = "pending"
	ResultSucceeded ResultState = "succeeded"
	ResultFailed    ResultState = "failed"
)

// NetworkResult is the outcome of publishing a job to one network.
type NetworkResult struct {
	Network      Network     `json:"network"`
	State        ResultState `json:"state"`
	RemotePostID string      `json:"remote_post_id,omitempty"`
	RemoteURL    string      `json:"remote_url,omitempty"`
	ErrorClass   ErrorClass  `json:"error_class,omitempty"`
	ErrorReason  string      `json:"error_reason,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	AttemptedAt  *time.Time  `json:"attempted_at,omitempty"`
}

// PublishReceipt is what a network returns for a successful post.
type PublishReceipt struct {
	RemotePostID string
	RemoteURL    string
}

// Transient reports whether the result is a failure eligible for retry.
func (r NetworkResult) Transient() bool {
	return r.State == ResultFailed && r.ErrorClass == ErrorTransient
}

type PublishJob struct {
	ID              string                     `json:"id"`
	OwnerID         string                     `json:"owner_id"`
	Content         ContentItem                `json:"content"`
	Targets         []Network                  `json:"targets"`
	CaptionOverride *string                    `json:"caption_override,omitempty"`
	Status          JobStatus                  `json:"status"`
	Results         map[Network]*NetworkResult `json:"results"`
	CreatedAt       time.Time                  `json:"created_at"`
	ScheduledFor    *time.Time                 `json:"scheduled_for,omitempty"`
	CompletedAt     *time.Time                 `json:"completed_at,omitempty"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// EffectiveContent applies the caption override, if any.
func (j *PublishJob) EffectiveContent() ContentItem {
	if j.CaptionOverride != nil && *j.CaptionOverride != "" {
		return j.Content.WithCaption(*j.CaptionOverride)
	}
	return j.Content
}

// ResetResults puts a pending entry in place for every target.
func (j *PublishJob) ResetResults() {
	j.Results = make(map[Network]*NetworkResult, len(j.Targets))
	for _, n := range j.Targets {
		j.Results[n] = &NetworkResult{Network: n, State: ResultPending}
	}
}

// Refresh recomputes Status from Results.
func (j *PublishJob) Refresh() {
	j.Status = DeriveJobStatus(j.Targets, j.Results)
}

// DeriveJobStatus is the only place a job's overall status is computed.
// completed iff every target succeeded, failed iff every target failed,
// publishing while any target is still pending, partially-failed otherwise.
// A target with no entry counts as pending so a result is never dropped silently.
func DeriveJobStatus(targets []Network, results map[Network]*NetworkResult) JobStatus {
	if len(targets) == 0 {
		return JobDraft
	}
	var succeeded, failed int
	for _, n := range targets {
		r, ok := results[n]
		if !ok || r == nil {
			return JobPublishing
		}
		switch r.State {
		case ResultSucceeded:
			succeeded++
		case ResultFailed:
			failed++
		default:
			return JobPublishing
		}
	}
	switch {
	case succeeded == len(targets):
		return JobCompleted
	case failed == len(targets):
		return JobFailed
	default:
		return JobPartiallyFailed
	}
}

// Terminal reports whether the status is a finished publishing outcome.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobPartiallyFailed || s == JobFailed
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status JobStatus
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// JobEvent is broadcast whenever a job changes status.
type JobEvent struct {
	Type    string                     `json:"type"`
	JobID   string                     `json:"job_id"`
	OwnerID string                     `json:"owner_id"`
	Status  JobStatus                  `json:"status"`
	Results map[Network]*NetworkResult `json:"results,omitempty"`
	At      time.Time                  `json:"at"`
}

// NewJobEvent snapshots the job into an event.
func NewJobEvent(j *PublishJob, at time.Time) JobEvent {
	results := make(map[Network]*NetworkResult, len(j.Results))
	for k, v := range j.Results {
		cp := *v
		results[k] = &cp
	}
	return JobEvent{Type: "publish_job_status", JobID: j.ID, OwnerID: j.OwnerID, Status: j.Status, Results: results, At: at}
}
