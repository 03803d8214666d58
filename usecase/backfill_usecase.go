package usecase

import (
	"context"
	"errors"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/infrastructure/metrics"
)

// PageSize is the search.list maximum.
const PageSize = 50

type IBackfillUsecase interface {
	// LoadHistory enumerates up to target of the channel's newest videos and ingests them.
	// progress, when non-nil, is called after each page with the number of items processed so far.
	LoadHistory(ctx context.Context, channelID string, target int, progress func(processed int)) model.BackfillSummary
	// ResumeHistory continues from the last checkpointed cursor, or starts fresh when none exists.
	ResumeHistory(ctx context.Context, channelID string, target int, progress func(processed int)) model.BackfillSummary
}

type backfillUsecase struct {
	source    repository.IVideoSource
	ingestion IIngestionUsecase
	cursors   repository.ICursorStore
	broadcast func(model.IngestEvent)
	// listBackoff bounds the retries of one listing page; all of them count as a single page call.
	listBackoff Backoff
}

func NewBackfillUsecase(source repository.IVideoSource, ingestion IIngestionUsecase, cursors repository.ICursorStore, listBackoff Backoff, broadcast func(model.IngestEvent)) IBackfillUsecase {
	return &backfillUsecase{source: source, ingestion: ingestion, cursors: cursors, listBackoff: listBackoff, broadcast: broadcast}
}

func (u *backfillUsecase) LoadHistory(ctx context.Context, channelID string, target int, progress func(int)) model.BackfillSummary {
	return u.run(ctx, &model.BackfillCursor{ChannelID: channelID, Target: target}, progress)
}

func (u *backfillUsecase) ResumeHistory(ctx context.Context, channelID string, target int, progress func(int)) model.BackfillSummary {
	cursor, err := u.cursors.GetCursor(ctx, channelID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		cursor = &model.BackfillCursor{ChannelID: channelID, Target: target}
	case err != nil:
		logger.GetLogger().WithField("channelId", channelID).WithField("error", err).Warn("cursor lookup failed, starting from the newest page")
		cursor = &model.BackfillCursor{ChannelID: channelID, Target: target}
	default:
		if target > 0 {
			cursor.Target = target
		}
		logger.GetLogger().WithField("channelId", channelID).WithField("enumerated", cursor.Enumerated).Info("resuming backfill from checkpoint")
	}
	return u.run(ctx, cursor, progress)
}

func (u *backfillUsecase) run(ctx context.Context, cursor *model.BackfillCursor, progress func(int)) model.BackfillSummary {
	start := time.Now()
	channelID := cursor.ChannelID
	log := logger.GetLogger().WithField("channelId", channelID).WithField("target", cursor.Target)
	summary := model.BackfillSummary{ChannelID: channelID, Target: cursor.Target, Enumerated: cursor.Enumerated}

	remaining := cursor.Target - cursor.Enumerated
	maxPages := (remaining + PageSize - 1) / PageSize
	token := cursor.PageToken
	processed := 0
	exhausted := remaining <= 0

	for summary.Pages < maxPages && summary.Enumerated < cursor.Target {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		page, status, attempts, err := u.listPage(ctx, channelID, token)
		summary.Pages++
		if status == model.FetchTransient {
			summary.FailedPages++
			log.WithField("page", summary.Pages).WithField("attempts", attempts).WithField("error", err).Warn("listing page failed, retrying same page")
			continue
		}
		if status != model.FetchSuccess {
			summary.FailedPages++
			log.WithField("page", summary.Pages).WithField("status", status).WithField("error", err).Error("listing failed, stopping backfill")
			break
		}

		ids := page.VideoIDs
		if left := cursor.Target - summary.Enumerated; len(ids) > left {
			ids = ids[:left]
		}
		summary.Enumerated += len(ids)

		outcomes := u.ingestion.IngestBatch(ctx, channelID, ids)
		for _, o := range outcomes {
			switch {
			case o.Result == model.IngestSuccess && o.Created:
				summary.NewRecords++
				metrics.RecordBackfillVideo("new")
			case o.Result == model.IngestSuccess:
				summary.Updated++
				metrics.RecordBackfillVideo("updated")
			case o.Result == model.IngestSkipped:
				summary.Skipped++
				metrics.RecordBackfillVideo("skipped")
			default:
				summary.Failed++
				metrics.RecordBackfillVideo("failed")
			}
		}
		processed += len(outcomes)
		u.report(channelID, processed, cursor.Target, progress)

		if len(outcomes) < len(ids) {
			summary.Cancelled = true
			break
		}
		if page.NextPageToken == "" {
			exhausted = true
			break
		}
		token = page.NextPageToken
		if summary.Enumerated >= cursor.Target {
			break
		}
		u.checkpoint(ctx, &model.BackfillCursor{ChannelID: channelID, PageToken: token, Enumerated: summary.Enumerated, Target: cursor.Target})
	}

	if summary.Enumerated >= cursor.Target {
		exhausted = true
	}
	if exhausted && !summary.Cancelled {
		if err := u.cursors.DeleteCursor(context.WithoutCancel(ctx), channelID); err != nil {
			log.WithField("error", err).Warn("failed clearing backfill cursor")
		}
	}

	summary.Elapsed = time.Since(start)
	log.WithField("enumerated", summary.Enumerated).
		WithField("new", summary.NewRecords).
		WithField("updated", summary.Updated).
		WithField("skipped", summary.Skipped).
		WithField("failed", summary.Failed).
		WithField("pages", summary.Pages).
		WithField("failedPages", summary.FailedPages).
		WithField("cancelled", summary.Cancelled).
		WithField("elapsed", summary.Elapsed.String()).
		Info("backfill finished")
	return summary
}

// listPage fetches one listing page, retrying transient failures with backoff.
func (u *backfillUsecase) listPage(ctx context.Context, channelID, token string) (*model.ListingPage, model.FetchStatus, int, error) {
	var (
		page   *model.ListingPage
		status model.FetchStatus
	)
	attempts, err := retry(ctx, u.listBackoff, func(attempt int) (bool, error) {
		var err error
		page, status, err = u.source.ListChannelVideos(ctx, channelID, token, PageSize)
		metrics.RecordFetch("search.list", string(status))
		if status != model.FetchTransient {
			return false, err
		}
		logger.GetLogger().WithField("channelId", channelID).WithField("attempt", attempt).WithField("error", err).Warn("listing call failed")
		return true, errorOr(err, model.ErrTransient)
	})
	return page, status, attempts, err
}

func (u *backfillUsecase) checkpoint(ctx context.Context, cursor *model.BackfillCursor) {
	if err := u.cursors.SaveCursor(context.WithoutCancel(ctx), cursor); err != nil {
		logger.GetLogger().WithField("channelId", cursor.ChannelID).WithField("error", err).Warn("failed checkpointing backfill cursor")
	}
}

func (u *backfillUsecase) report(channelID string, processed, target int, progress func(int)) {
	if progress != nil {
		progress(processed)
	}
	if u.broadcast != nil {
		u.broadcast(model.IngestEvent{Type: "backfill", ChannelID: channelID, Processed: processed, Target: target, At: time.Now().UTC()})
	}
}
