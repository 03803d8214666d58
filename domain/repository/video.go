package repository

import (
	"context"
	"time"

	"yt-pipeline/domain/model"
)

// IVideoStore is the store gateway for normalized video records.
type IVideoStore interface {
	// Upsert inserts or replaces the record keyed by VideoID. created is true when no record existed.
	Upsert(ctx context.Context, record *model.VideoRecord) (created bool, err error)
	Exists(ctx context.Context, videoID string) (bool, error)
	// CountSince counts a channel's records published at or after cutoff.
	CountSince(ctx context.Context, channelID string, cutoff time.Time) (int64, error)
}
