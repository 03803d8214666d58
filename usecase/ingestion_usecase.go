package usecase

import (
	"context"
	"errors"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/infrastructure/metrics"

	"golang.org/x/sync/singleflight"
)

// IngestConfig tunes the fetch-and-upsert path.
type IngestConfig struct {
	// SkipExisting checks the store before fetching; off by default so metadata keeps refreshing.
	SkipExisting bool
	// DedupWindow suppresses repeated hub deliveries of a video ingested this recently.
	DedupWindow  time.Duration
	StoreTimeout time.Duration
	StoreBackoff Backoff
	// FlightTimeout bounds one shared fetch-and-upsert of a video.
	FlightTimeout time.Duration
}

type IIngestionUsecase interface {
	Ingest(ctx context.Context, channelID, videoID string) model.IngestOutcome
	// IngestBatch fetches in chunks and upserts each found record. It stops at item boundaries
	// once ctx is done, so len(result) may be shorter than videoIDs.
	IngestBatch(ctx context.Context, channelID string, videoIDs []string) []model.IngestOutcome
	// HandleEvent is the queue worker entry point for hub notifications.
	HandleEvent(ctx context.Context, event model.NotificationEvent)
}

type ingestionUsecase struct {
	fetcher   IMetadataFetcher
	store     repository.IVideoStore
	dedup     repository.IDedupCache
	cfg       IngestConfig
	group     singleflight.Group
	broadcast func(model.IngestEvent)
}

// NewIngestionUsecase wires the pipeline. broadcast, when non-nil, receives every outcome.
func NewIngestionUsecase(fetcher IMetadataFetcher, store repository.IVideoStore, dedup repository.IDedupCache, cfg IngestConfig, broadcast func(model.IngestEvent)) IIngestionUsecase {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = 2 * time.Minute
	}
	return &ingestionUsecase{fetcher: fetcher, store: store, dedup: dedup, cfg: cfg, broadcast: broadcast}
}

func (u *ingestionUsecase) Ingest(ctx context.Context, channelID, videoID string) model.IngestOutcome {
	start := time.Now()
	outcome := u.flight(ctx, videoID, func(flightCtx context.Context) model.IngestOutcome {
		return u.ingest(flightCtx, channelID, videoID)
	})
	u.report(channelID, outcome, time.Since(start))
	return outcome
}

// flight collapses concurrent work on one video. The shared call runs detached from the
// caller that started it, so callers joining it never inherit that caller's cancellation.
func (u *ingestionUsecase) flight(ctx context.Context, videoID string, fn func(context.Context) model.IngestOutcome) model.IngestOutcome {
	v, _, _ := u.group.Do(videoID, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.FlightTimeout)
		defer cancel()
		return fn(flightCtx), nil
	})
	return v.(model.IngestOutcome)
}

func (u *ingestionUsecase) ingest(ctx context.Context, channelID, videoID string) model.IngestOutcome {
	if skip, outcome := u.skipExisting(ctx, videoID); skip {
		return outcome
	}
	rec, status, err := u.fetcher.Fetch(ctx, videoID)
	if status != model.FetchSuccess {
		logger.GetLogger().WithField("channelId", channelID).WithField("videoId", videoID).WithField("error", err).Info("video not found, skipping")
		return model.IngestOutcome{VideoID: videoID, Result: model.IngestSkipped, Err: err}
	}
	return u.upsert(ctx, channelID, rec)
}

func (u *ingestionUsecase) IngestBatch(ctx context.Context, channelID string, videoIDs []string) []model.IngestOutcome {
	ids := dedupe(videoIDs)
	outcomes := make([]model.IngestOutcome, 0, len(ids))

	toFetch := make([]string, 0, len(ids))
	skipped := map[string]model.IngestOutcome{}
	for _, id := range ids {
		if skip, outcome := u.skipExisting(ctx, id); skip {
			skipped[id] = outcome
			continue
		}
		toFetch = append(toFetch, id)
	}

	found := map[string]*model.VideoRecord{}
	if len(toFetch) > 0 {
		for _, rec := range u.fetcher.FetchBatch(ctx, toFetch) {
			found[rec.VideoID] = rec
		}
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		outcome, ok := skipped[id]
		if !ok {
			if rec, hit := found[id]; hit {
				outcome = u.flight(ctx, id, func(flightCtx context.Context) model.IngestOutcome {
					return u.upsert(flightCtx, channelID, rec)
				})
			} else {
				outcome = model.IngestOutcome{VideoID: id, Result: model.IngestSkipped, Err: model.ErrNotFound}
			}
		}
		u.report(channelID, outcome, time.Since(start))
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (u *ingestionUsecase) HandleEvent(ctx context.Context, event model.NotificationEvent) {
	log := logger.GetLogger().WithField("channelId", event.ChannelID).WithField("videoId", event.VideoID)
	if event.Deleted {
		log.Info("video deleted upstream, nothing to ingest")
		return
	}
	if seen, err := u.dedup.Seen(ctx, event.VideoID); err != nil {
		log.WithField("error", err).Warn("dedup lookup failed, ingesting anyway")
	} else if seen {
		log.Debug("duplicate delivery inside dedup window")
		metrics.RecordIngest("duplicate", 0)
		return
	}

	outcome := u.Ingest(ctx, event.ChannelID, event.VideoID)
	if outcome.Result != model.IngestSuccess {
		return
	}
	if err := u.dedup.MarkSeen(ctx, event.VideoID, u.cfg.DedupWindow); err != nil {
		log.WithField("error", err).Warn("failed marking video as seen")
	}
}

func (u *ingestionUsecase) skipExisting(ctx context.Context, videoID string) (bool, model.IngestOutcome) {
	if !u.cfg.SkipExisting {
		return false, model.IngestOutcome{}
	}
	exists, err := u.store.Exists(ctx, videoID)
	if err != nil {
		logger.GetLogger().WithField("videoId", videoID).WithField("error", err).Warn("exists check failed, fetching anyway")
		return false, model.IngestOutcome{}
	}
	if exists {
		return true, model.IngestOutcome{VideoID: videoID, Result: model.IngestSkipped}
	}
	return false, model.IngestOutcome{}
}

// upsert writes on a context detached from ctx so cancellation never lands mid-write.
// Retry waits still honour ctx.
func (u *ingestionUsecase) upsert(ctx context.Context, channelID string, rec *model.VideoRecord) model.IngestOutcome {
	if rec.ChannelID == "" {
		rec.ChannelID = channelID
	}
	writeCtx := context.WithoutCancel(ctx)
	var created bool
	attempts, err := retry(ctx, u.cfg.StoreBackoff, func(attempt int) (bool, error) {
		callCtx, cancel := context.WithTimeout(writeCtx, u.cfg.StoreTimeout)
		defer cancel()
		var err error
		created, err = u.store.Upsert(callCtx, rec)
		if err != nil {
			logger.GetLogger().WithField("videoId", rec.VideoID).WithField("attempt", attempt).WithField("error", err).Warn("upsert failed")
		}
		return true, err
	})
	if err != nil {
		logger.GetLogger().WithField("channelId", channelID).WithField("videoId", rec.VideoID).WithField("attempts", attempts).WithField("error", err).Error("dropping video after store retries")
		return model.IngestOutcome{VideoID: rec.VideoID, Result: model.IngestFailed, Attempts: attempts, Err: err}
	}
	return model.IngestOutcome{VideoID: rec.VideoID, Result: model.IngestSuccess, Created: created, Attempts: attempts}
}

func (u *ingestionUsecase) report(channelID string, outcome model.IngestOutcome, elapsed time.Duration) {
	metrics.RecordIngest(string(outcome.Result), elapsed)
	entry := logger.GetLogger().WithField("channelId", channelID).WithField("videoId", outcome.VideoID).WithField("result", outcome.Result)
	if outcome.Result == model.IngestSuccess {
		entry.WithField("created", outcome.Created).Info("video ingested")
	} else if outcome.Err != nil && !errors.Is(outcome.Err, model.ErrNotFound) {
		entry.WithField("error", outcome.Err).Debug("video not ingested")
	}
	if u.broadcast != nil {
		u.broadcast(model.IngestEvent{Type: "ingest", ChannelID: channelID, VideoID: outcome.VideoID, Result: string(outcome.Result), At: time.Now().UTC()})
	}
}
