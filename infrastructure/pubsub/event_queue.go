package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"

	"cloud.google.com/go/pubsub"
)

// EventQueue carries notification events through a Pub/Sub topic and drains them from its subscription.
type EventQueue struct {
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	workers      int
}

// NewEventQueue creates the topic and subscription when they don't exist yet.
func NewEventQueue(ctx context.Context, client *pubsub.Client, topicID, subscriptionID string, workers int) (*EventQueue, error) {
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", topicID).Info("Topic doesn't exist - creating it")
		if topic, err = client.CreateTopic(ctx, topicID); err != nil {
			return nil, err
		}
	}

	sub := client.Subscription(subscriptionID)
	exists, err = sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("subscription", subscriptionID).Info("Subscription doesn't exist - creating it")
		sub, err = client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 60 * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}
	if workers <= 0 {
		workers = 1
	}
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = workers

	return &EventQueue{client: client, topic: topic, subscription: sub, workers: workers}, nil
}

var _ repository.IEventQueue = (*EventQueue)(nil)

func (q *EventQueue) Enqueue(ctx context.Context, event model.NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"channel_id": event.ChannelID,
			"video_id":   event.VideoID,
		},
	}
	serverID, err := q.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.VideoID, err)
	}
	logger.GetLogger().WithField("serverId", serverID).WithField("videoId", event.VideoID).Debug("Message published")
	return nil
}

// Run receives until ctx is done. Undecodable messages are acked and dropped.
func (q *EventQueue) Run(ctx context.Context, handler repository.EventHandler) error {
	logger.GetLogger().WithField("subscription", q.subscription.ID()).WithField("workers", q.workers).Info("PubSub receiver starting...")
	err := q.subscription.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var event model.NotificationEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			logger.GetLogger().WithField("error", err).WithField("messageId", m.ID).Warn("dropping undecodable notification message")
			m.Ack()
			return
		}
		handler(ctx, event)
		m.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop flushes pending publishes.
func (q *EventQueue) Stop() {
	q.topic.Stop()
}
