package repository

import (
	"context"
	"time"

	"yt-pipeline/domain/model"
)

// IDedupCache remembers recently ingested videos to absorb redelivery bursts.
type IDedupCache interface {
	Seen(ctx context.Context, videoID string) (bool, error)
	MarkSeen(ctx context.Context, videoID string, ttl time.Duration) error
}

// ICursorStore checkpoints backfill cursors so an interrupted run can resume.
type ICursorStore interface {
	GetCursor(ctx context.Context, channelID string) (*model.BackfillCursor, error)
	SaveCursor(ctx context.Context, cursor *model.BackfillCursor) error
	DeleteCursor(ctx context.Context, channelID string) error
}
