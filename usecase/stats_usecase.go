package usecase

import (
	"context"
	"fmt"
	"time"

	"yt-pipeline/domain/repository"
)

type IStatsUsecase interface {
	// CountSince counts a channel's stored videos published at or after since.
	CountSince(ctx context.Context, channelID string, since time.Time) (int64, error)
}

type statsUsecase struct {
	store repository.IVideoStore
}

func NewStatsUsecase(store repository.IVideoStore) IStatsUsecase {
	return &statsUsecase{store: store}
}

func (u *statsUsecase) CountSince(ctx context.Context, channelID string, since time.Time) (int64, error) {
	n, err := u.store.CountSince(ctx, channelID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("count %s since %s: %w", channelID, since.Format(time.RFC3339), err)
	}
	return n, nil
}
