package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/pubsub"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

// JobEventPublisher forwards publish job events to a Pub/Sub topic so the host
// application can react to them.
type JobEventPublisher struct {
	client    *pubsub.Client
	topicName string

	once  sync.Once
	topic *pubsub.Topic
	err   error
}

func NewJobEventPublisher(client *pubsub.Client, topicName string) *JobEventPublisher {
	return &JobEventPublisher{client: client, topicName: topicName}
}

var _ repository.IJobEventPublisher = (*JobEventPublisher)(nil)

func (p *JobEventPublisher) PublishJobEvent(ctx context.Context, evt model.JobEvent) error {
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return err
	}
	payload, err := EncodeJobEvent(evt)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":     evt.Type,
			"owner_id": evt.OwnerID,
			"job_id":   evt.JobID,
			"status":   string(evt.Status),
		},
	}
	serverID, err := topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return err
	}
	logger.GetLogger().WithField("server_id", serverID).WithField("job_id", evt.JobID).Debug("Job event published")
	return nil
}

// ensureTopic creates the topic if it doesn't exist, once per process.
func (p *JobEventPublisher) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.once.Do(func() {
		topic := p.client.Topic(p.topicName)
		exists, err := topic.Exists(ctx)
		if err != nil {
			p.err = err
			return
		}
		if !exists {
			logger.GetLogger().WithField("topic", p.topicName).Info("Topic doesn't exist - creating it")
			if topic, err = p.client.CreateTopic(ctx, p.topicName); err != nil {
				p.err = err
				return
			}
		}
		p.topic = topic
	})
	return p.topic, p.err
}

// Close flushes pending messages.
func (p *JobEventPublisher) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

// EncodeJobEvent is the wire payload shared by every event transport.
func EncodeJobEvent(evt model.JobEvent) ([]byte, error) {
	return json.Marshal(evt)
}
