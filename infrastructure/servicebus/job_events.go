package servicebus

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

// JobEventSender forwards publish job events to a Service Bus queue.
type JobEventSender struct {
	client *azservicebus.Client
	queue  string
}

func NewJobEventSender(client *azservicebus.Client, queue string) *JobEventSender {
	return &JobEventSender{client: client, queue: queue}
}

var _ repository.IJobEventPublisher = (*JobEventSender)(nil)

func (s *JobEventSender) PublishJobEvent(ctx context.Context, evt model.JobEvent) error {
	sender, err := s.client.NewSender(s.queue, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return err
	}
	defer func(sender *azservicebus.Sender, ctx context.Context) {
		if err := sender.Close(ctx); err != nil {
			logger.GetLogger().
				WithField("error", err).
				Error("Error while closing sender.")
		}
	}(sender, context.Background())

	msg, err := NewJobEventMessage(evt)
	if err != nil {
		return err
	}
	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return err
	}
	return nil
}

// NewJobEventMessage builds the queue message, correlated by job id.
func NewJobEventMessage(evt model.JobEvent) (*azservicebus.Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	contentType := "application/json"
	subject := evt.Type
	correlationID := evt.JobID
	return &azservicebus.Message{
		Body:          body,
		ContentType:   &contentType,
		Subject:       &subject,
		CorrelationID: &correlationID,
		ApplicationProperties: map[string]interface{}{
			"owner_id": evt.OwnerID,
			"status":   string(evt.Status),
		},
	}, nil
}
