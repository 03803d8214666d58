package servicebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

type sender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

type receiver interface {
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	DeadLetterMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.DeadLetterOptions) error
	Close(ctx context.Context) error
}

// EventQueue carries notification events through a Service Bus queue.
type EventQueue struct {
	sender   sender
	receiver receiver
	batch    int
}

func NewEventQueue(client *azservicebus.Client, queueName string, batch int) (*EventQueue, error) {
	if client == nil {
		return nil, errors.New("service bus client is nil")
	}
	s, err := client.NewSender(queueName, nil)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while making new sender service bus.")
		return nil, err
	}
	r, err := client.NewReceiverForQueue(queueName, nil)
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return newEventQueue(s, r, batch), nil
}

func newEventQueue(s sender, r receiver, batch int) *EventQueue {
	if batch <= 0 {
		batch = 1
	}
	return &EventQueue{sender: s, receiver: r, batch: batch}
}

var _ repository.IEventQueue = (*EventQueue)(nil)

func (q *EventQueue) Enqueue(ctx context.Context, event model.NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	contentType := "application/json"
	messageID := fmt.Sprintf("%s:%d", event.VideoID, event.Timestamp.Unix())
	err = q.sender.SendMessage(ctx, &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		MessageID:   &messageID,
	}, nil)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return err
	}
	return nil
}

// Run receives batches until ctx is done. Undecodable messages are dead-lettered.
func (q *EventQueue) Run(ctx context.Context, handler repository.EventHandler) error {
	for {
		messages, err := q.receiver.ReceiveMessages(ctx, q.batch, nil)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Error while receiving messages.")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, message := range messages {
			var event model.NotificationEvent
			if err := json.Unmarshal(message.Body, &event); err != nil {
				reason := "undecodable"
				if dlErr := q.receiver.DeadLetterMessage(ctx, message, &azservicebus.DeadLetterOptions{Reason: &reason}); dlErr != nil {
					logger.GetLogger().WithField("error", dlErr).Error("Error while dead-lettering message.")
				}
				continue
			}
			handler(ctx, event)
			if err := q.receiver.CompleteMessage(ctx, message, nil); err != nil {
				logger.GetLogger().WithField("error", err).WithField("videoId", event.VideoID).Error("Error while completing message.")
			}
		}
	}
}

// Close releases the sender and receiver links.
func (q *EventQueue) Close(ctx context.Context) error {
	return errors.Join(q.sender.Close(ctx), q.receiver.Close(ctx))
}
