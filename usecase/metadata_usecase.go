package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/infrastructure/metrics"
)

// BatchSize is the videos.list id limit.
const BatchSize = 50

// IMetadataFetcher retrieves and normalizes video metadata.
type IMetadataFetcher interface {
	// Fetch returns the record with FetchSuccess, or FetchNotFound and the cause once retries are exhausted.
	Fetch(ctx context.Context, videoID string) (*model.VideoRecord, model.FetchStatus, error)
	// FetchBatch returns the records found, in input order, skipping ids that resolved to not found.
	FetchBatch(ctx context.Context, videoIDs []string) []*model.VideoRecord
}

type metadataFetcher struct {
	source  repository.IVideoSource
	backoff Backoff
}

func NewMetadataFetcher(source repository.IVideoSource, backoff Backoff) IMetadataFetcher {
	return &metadataFetcher{source: source, backoff: backoff}
}

func (f *metadataFetcher) Fetch(ctx context.Context, videoID string) (*model.VideoRecord, model.FetchStatus, error) {
	found, err := f.fetchChunk(ctx, []string{videoID})
	if err != nil {
		return nil, model.FetchNotFound, err
	}
	rec, ok := found[videoID]
	if !ok {
		return nil, model.FetchNotFound, fmt.Errorf("video %s: %w", videoID, model.ErrNotFound)
	}
	return rec, model.FetchSuccess, nil
}

func (f *metadataFetcher) FetchBatch(ctx context.Context, videoIDs []string) []*model.VideoRecord {
	ids := dedupe(videoIDs)
	out := make([]*model.VideoRecord, 0, len(ids))
	for start := 0; start < len(ids); start += BatchSize {
		chunk := ids[start:min(start+BatchSize, len(ids))]
		found, err := f.fetchChunk(ctx, chunk)
		if err != nil {
			logger.GetLogger().WithField("count", len(chunk)).WithField("error", err).Warn("metadata chunk resolved to not found")
			continue
		}
		for _, id := range chunk {
			if rec, ok := found[id]; ok {
				out = append(out, rec)
			}
		}
	}
	return out
}

// fetchChunk retries transient failures; any remaining failure means every id in the chunk is not found.
func (f *metadataFetcher) fetchChunk(ctx context.Context, ids []string) (map[string]*model.VideoRecord, error) {
	var found map[string]*model.VideoRecord
	attempts, err := retry(ctx, f.backoff, func(attempt int) (bool, error) {
		videos, status, err := f.source.GetVideos(ctx, ids)
		metrics.RecordFetch("videos.list", string(status))
		switch status {
		case model.FetchSuccess:
			found = videos
			return false, nil
		case model.FetchTransient:
			logger.GetLogger().WithField("attempt", attempt).WithField("ids", len(ids)).WithField("error", err).Warn("transient metadata error")
			return true, errorOr(err, model.ErrTransient)
		default:
			return false, errorOr(err, model.ErrNotFound)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fetch after %d attempts: %w", attempts, err)
	}

	now := time.Now().UTC()
	for id, rec := range found {
		Normalize(rec)
		rec.IngestedAt = now
		found[id] = rec
	}
	return found, nil
}

// Normalize enforces the stored record shape: canonical URL, capped description and tags, non-negative counts.
func Normalize(rec *model.VideoRecord) {
	rec.URL = model.WatchURL(rec.VideoID)
	if utf8.RuneCountInString(rec.Description) > model.MaxDescriptionLength {
		rec.Description = string([]rune(rec.Description)[:model.MaxDescriptionLength])
	}
	if len(rec.Tags) > model.MaxTags {
		rec.Tags = rec.Tags[:model.MaxTags]
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	rec.ViewCount = max(rec.ViewCount, 0)
	rec.LikeCount = max(rec.LikeCount, 0)
	rec.PublishedAt = rec.PublishedAt.UTC()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func errorOr(err, fallback error) error {
	if err == nil {
		return fallback
	}
	if errors.Is(err, fallback) {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
