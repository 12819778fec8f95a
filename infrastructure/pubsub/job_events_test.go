package pubsub_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/pubsub"
)

func TestNewJobEventPublisher(t *testing.T) {
	// The Pub/Sub client itself is only exercised against a real project.
	assert.NotNil(t, pubsub.NewJobEventPublisher(nil, "publish-job-events"))
}

func TestEncodeJobEvent(t *testing.T) {
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	evt := model.JobEvent{
		Type:    "publish_job_status",
		JobID:   "j1",
		OwnerID: "o1",
		Status:  model.JobPartiallyFailed,
		Results: map[model.Network]*model.NetworkResult{
			model.NetworkTwitter: {Network: model.NetworkTwitter, State: model.ResultFailed, ErrorClass: model.ErrorTransient, ErrorReason: model.ReasonRateLimited},
		},
		At: at,
	}
	payload, err := pubsub.EncodeJobEvent(evt)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "partially-failed", decoded["status"])
	results := decoded["results"].(map[string]interface{})
	assert.Equal(t, "transient", results["twitter"].(map[string]interface{})["error_class"])
}

func TestNewPubSub_RequiresProject(t *testing.T) {
	_, err := pubsub.NewPubSub(t.Context(), "")
	assert.Error(t, err)
}
