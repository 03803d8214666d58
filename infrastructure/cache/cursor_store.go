package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"

	"github.com/redis/go-redis/v9"
)

const cursorPrefix = "yt:backfill:cursor:"

// CursorTTL bounds how long an abandoned backfill can still be resumed.
const CursorTTL = 7 * 24 * time.Hour

// CursorStore checkpoints backfill cursors in Redis.
type CursorStore struct {
	client *redis.Client
}

func NewCursorStore(client *redis.Client) repository.ICursorStore {
	return &CursorStore{client: client}
}

// GetCursor returns model.ErrNotFound when no checkpoint exists.
func (s *CursorStore) GetCursor(ctx context.Context, channelID string) (*model.BackfillCursor, error) {
	if s.client == nil {
		return nil, model.ErrNotFound
	}
	raw, err := s.client.Get(ctx, cursorPrefix+channelID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cursor model.BackfillCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, fmt.Errorf("decode cursor for %s: %w", channelID, err)
	}
	return &cursor, nil
}

func (s *CursorStore) SaveCursor(ctx context.Context, cursor *model.BackfillCursor) error {
	if s.client == nil {
		return nil
	}
	cursor.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cursor)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cursorPrefix+cursor.ChannelID, raw, CursorTTL).Err()
}

func (s *CursorStore) DeleteCursor(ctx context.Context, channelID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, cursorPrefix+channelID).Err()
}
