package repository

import (
	"context"

	"yt-pipeline/domain/model"
)

// IVideoSource defines the remote metadata and listing API used by the pipeline
type IVideoSource interface {
	// GetVideos returns normalized records for the ids the upstream knows about.
	// Ids missing from the map were not found. The status classifies err.
	GetVideos(ctx context.Context, videoIDs []string) (map[string]*model.VideoRecord, model.FetchStatus, error)
	// ListChannelVideos returns one page of a channel's videos, newest first.
	ListChannelVideos(ctx context.Context, channelID, pageToken string, pageSize int64) (*model.ListingPage, model.FetchStatus, error)
}
