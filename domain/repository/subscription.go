package repository

import (
	"context"

	"yt-pipeline/domain/model"
)

// ISubscription persists tracked channel leases. Every state transition is written through it.
type ISubscription interface {
	Save(ctx context.Context, sub *model.ChannelSubscription) error
	Delete(ctx context.Context, channelID string) error
	List(ctx context.Context) ([]*model.ChannelSubscription, error)
}
