package repository

import (
	"context"

	"yt-pipeline/domain/model"
)

// EventHandler consumes one notification event.
type EventHandler func(ctx context.Context, event model.NotificationEvent)

// IEventQueue decouples webhook acknowledgement from ingestion.
type IEventQueue interface {
	Enqueue(ctx context.Context, event model.NotificationEvent) error
	// Run drains the queue into handler until ctx is done.
	Run(ctx context.Context, handler EventHandler) error
}
