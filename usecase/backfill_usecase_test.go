package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// pagedSource serves a channel of `available` videos in pages of usecase.PageSize.
type pagedSource struct {
	MockVideoSource
	available int
	calls     int
}

func (s *pagedSource) ListChannelVideos(_ context.Context, _ string, pageToken string, pageSize int64) (*model.ListingPage, model.FetchStatus, error) {
	s.calls++
	offset := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "p%d", &offset)
	}
	end := min(offset+int(pageSize), s.available)
	page := &model.ListingPage{}
	for i := offset; i < end; i++ {
		page.VideoIDs = append(page.VideoIDs, fmt.Sprintf("V%03d", i))
	}
	if end < s.available {
		page.NextPageToken = fmt.Sprintf("p%d", end)
	}
	return page, model.FetchSuccess, nil
}

func ingestAll() *MockIngestion {
	ingestion := new(MockIngestion)
	ingestion.On("IngestBatch", mock.Anything, "C1", mock.Anything).
		Return(func(_ context.Context, _ string, ids []string) []model.IngestOutcome { return succeeded(ids) })
	return ingestion
}

func permissiveCursors() *MockCursorStore {
	cursors := new(MockCursorStore)
	cursors.On("SaveCursor", mock.Anything, mock.Anything).Return(nil)
	cursors.On("DeleteCursor", mock.Anything, mock.Anything).Return(nil)
	return cursors
}

func TestLoadHistory_TargetBeyondAvailable(t *testing.T) {
	source := &pagedSource{available: 100}
	cursors := new(MockCursorStore)
	cursors.On("SaveCursor", mock.Anything, mock.MatchedBy(func(c *model.BackfillCursor) bool {
		return c.PageToken == "p50" && c.Enumerated == 50 && c.Target == 120
	})).Return(nil).Once()
	cursors.On("DeleteCursor", mock.Anything, "C1").Return(nil).Once()

	var progress []int
	summary := usecase.NewBackfillUsecase(source, ingestAll(), cursors, quickBackoff, nil).
		LoadHistory(context.Background(), "C1", 120, func(n int) { progress = append(progress, n) })

	assert.Equal(t, 2, source.calls)
	assert.Equal(t, 100, summary.Enumerated)
	assert.Equal(t, 100, summary.NewRecords)
	assert.Equal(t, 2, summary.Pages)
	assert.False(t, summary.Cancelled)
	assert.Equal(t, []int{50, 100}, progress)
	cursors.AssertExpectations(t)
}

func TestLoadHistory_PageBudget(t *testing.T) {
	tests := []struct {
		target, available, wantCalls, wantItems int
	}{
		{target: 120, available: 100, wantCalls: 2, wantItems: 100},
		{target: 120, available: 1000, wantCalls: 3, wantItems: 120},
		{target: 50, available: 1000, wantCalls: 1, wantItems: 50},
		{target: 51, available: 1000, wantCalls: 2, wantItems: 51},
		{target: 10, available: 3, wantCalls: 1, wantItems: 3},
		{target: 100, available: 0, wantCalls: 1, wantItems: 0},
		{target: 0, available: 100, wantCalls: 0, wantItems: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d of %d", tt.target, tt.available), func(t *testing.T) {
			source := &pagedSource{available: tt.available}
			var ingested int
			ingestion := new(MockIngestion)
			ingestion.On("IngestBatch", mock.Anything, "C1", mock.Anything).
				Return(func(_ context.Context, _ string, ids []string) []model.IngestOutcome {
					ingested += len(ids)
					return succeeded(ids)
				})

			summary := usecase.NewBackfillUsecase(source, ingestion, permissiveCursors(), quickBackoff, nil).
				LoadHistory(context.Background(), "C1", tt.target, nil)

			assert.Equal(t, tt.wantCalls, source.calls)
			assert.LessOrEqual(t, source.calls, (tt.target+usecase.PageSize-1)/usecase.PageSize)
			assert.Equal(t, tt.wantItems, summary.Enumerated)
			assert.Equal(t, tt.wantItems, ingested)
		})
	}
}

func TestLoadHistory_TallyOutcomes(t *testing.T) {
	source := new(MockVideoSource)
	source.On("ListChannelVideos", mock.Anything, "C1", "", int64(usecase.PageSize)).
		Return(&model.ListingPage{VideoIDs: []string{"V1", "V2", "V3", "V4"}}, model.FetchSuccess, nil).Once()
	ingestion := new(MockIngestion)
	ingestion.On("IngestBatch", mock.Anything, "C1", []string{"V1", "V2", "V3", "V4"}).Return([]model.IngestOutcome{
		{VideoID: "V1", Result: model.IngestSuccess, Created: true},
		{VideoID: "V2", Result: model.IngestSuccess},
		{VideoID: "V3", Result: model.IngestSkipped},
		{VideoID: "V4", Result: model.IngestFailed, Err: errors.New("store down")},
	}).Once()

	var events []model.IngestEvent
	summary := usecase.NewBackfillUsecase(source, ingestion, permissiveCursors(), quickBackoff, func(e model.IngestEvent) { events = append(events, e) }).
		LoadHistory(context.Background(), "C1", 10, nil)

	assert.Equal(t, 1, summary.NewRecords)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, events, 1)
	assert.Equal(t, "backfill", events[0].Type)
	assert.Equal(t, 4, events[0].Processed)
	assert.Equal(t, 10, events[0].Target)
}

func TestLoadHistory_TransientListingRetried(t *testing.T) {
	ids := make([]string, usecase.PageSize)
	for i := range ids {
		ids[i] = fmt.Sprintf("V%03d", i)
	}
	source := new(MockVideoSource)
	source.On("ListChannelVideos", mock.Anything, "C1", "", int64(usecase.PageSize)).
		Return(nil, model.FetchTransient, errors.New("429 rateLimitExceeded")).Once()
	source.On("ListChannelVideos", mock.Anything, "C1", "", int64(usecase.PageSize)).
		Return(&model.ListingPage{VideoIDs: ids, NextPageToken: "next"}, model.FetchSuccess, nil).Once()
	cursors := new(MockCursorStore)
	cursors.On("DeleteCursor", mock.Anything, "C1").Return(nil).Once()

	summary := usecase.NewBackfillUsecase(source, ingestAll(), cursors, quickBackoff, nil).LoadHistory(context.Background(), "C1", 50, nil)

	assert.Equal(t, 1, summary.Pages)
	assert.Zero(t, summary.FailedPages)
	assert.Equal(t, 50, summary.Enumerated)
	assert.Equal(t, 50, summary.NewRecords)
	source.AssertNumberOfCalls(t, "ListChannelVideos", 2)
	cursors.AssertExpectations(t)
}

func TestLoadHistory_TransientPageConsumesBudget(t *testing.T) {
	source := new(MockVideoSource)
	source.On("ListChannelVideos", mock.Anything, "C1", "", int64(usecase.PageSize)).
		Return(nil, model.FetchTransient, errors.New("503")).Times(quickBackoff.Attempts)
	source.On("ListChannelVideos", mock.Anything, "C1", "", int64(usecase.PageSize)).
		Return(&model.ListingPage{VideoIDs: []string{"V1"}, NextPageToken: "next"}, model.FetchSuccess, nil).Once()
	ingestion := ingestAll()
	cursors := permissiveCursors()

	summary := usecase.NewBackfillUsecase(source, ingestion, cursors, quickBackoff, nil).LoadHistory(context.Background(), "C1", 60, nil)

	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 1, summary.FailedPages)
	assert.Equal(t, 1, summary.Enumerated)
	source.AssertExpectations(t)
	cursors.AssertNotCalled(t, "DeleteCursor", mock.Anything, mock.Anything)
}

func TestLoadHistory_FatalListingStops(t *testing.T) {
	source := new(MockVideoSource)
	source.On("ListChannelVideos", mock.Anything, "C1", "", int64(usecase.PageSize)).
		Return(nil, model.FetchNotFound, errors.New("channel not found")).Once()
	ingestion := new(MockIngestion)

	summary := usecase.NewBackfillUsecase(source, ingestion, permissiveCursors(), quickBackoff, nil).LoadHistory(context.Background(), "C1", 500, nil)

	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 1, summary.FailedPages)
	assert.Zero(t, summary.Enumerated)
	ingestion.AssertNotCalled(t, "IngestBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadHistory_Cancellation(t *testing.T) {
	t.Run("before the first page", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		source := &pagedSource{available: 100}

		summary := usecase.NewBackfillUsecase(source, ingestAll(), permissiveCursors(), quickBackoff, nil).LoadHistory(ctx, "C1", 100, nil)

		assert.True(t, summary.Cancelled)
		assert.Zero(t, source.calls)
	})

	t.Run("mid page keeps the last checkpoint", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		source := &pagedSource{available: 200}
		ingestion := new(MockIngestion)
		ingestion.On("IngestBatch", mock.Anything, "C1", mock.Anything).
			Return(func(_ context.Context, _ string, ids []string) []model.IngestOutcome { return succeeded(ids) }).Once()
		ingestion.On("IngestBatch", mock.Anything, "C1", mock.Anything).
			Return(func(_ context.Context, _ string, ids []string) []model.IngestOutcome {
				cancel()
				return succeeded(ids[:10])
			}).Once()
		cursors := new(MockCursorStore)
		cursors.On("SaveCursor", mock.Anything, mock.MatchedBy(func(c *model.BackfillCursor) bool { return c.PageToken == "p50" })).Return(nil).Once()

		summary := usecase.NewBackfillUsecase(source, ingestion, cursors, quickBackoff, nil).LoadHistory(ctx, "C1", 200, nil)

		assert.True(t, summary.Cancelled)
		assert.Equal(t, 2, source.calls)
		assert.Equal(t, 60, summary.NewRecords)
		cursors.AssertExpectations(t)
		cursors.AssertNotCalled(t, "DeleteCursor", mock.Anything, mock.Anything)
	})
}

func TestResumeHistory(t *testing.T) {
	t.Run("continues from checkpoint", func(t *testing.T) {
		source := &pagedSource{available: 100}
		cursors := permissiveCursors()
		cursors.On("GetCursor", mock.Anything, "C1").
			Return(&model.BackfillCursor{ChannelID: "C1", PageToken: "p50", Enumerated: 50, Target: 100}, nil).Once()

		summary := usecase.NewBackfillUsecase(source, ingestAll(), cursors, quickBackoff, nil).ResumeHistory(context.Background(), "C1", 0, nil)

		assert.Equal(t, 1, source.calls)
		assert.Equal(t, 100, summary.Enumerated)
		assert.Equal(t, 50, summary.NewRecords)
		cursors.AssertCalled(t, "DeleteCursor", mock.Anything, "C1")
	})

	t.Run("starts fresh without checkpoint", func(t *testing.T) {
		source := &pagedSource{available: 100}
		cursors := permissiveCursors()
		cursors.On("GetCursor", mock.Anything, "C1").Return(nil, model.ErrNotFound).Once()

		summary := usecase.NewBackfillUsecase(source, ingestAll(), cursors, quickBackoff, nil).ResumeHistory(context.Background(), "C1", 30, nil)

		assert.Equal(t, 1, source.calls)
		assert.Equal(t, 30, summary.Enumerated)
	})
}

// gatedLoader blocks each run until release is closed or the run is cancelled.
type gatedLoader struct {
	release chan struct{}
}

func (l *gatedLoader) LoadHistory(ctx context.Context, channelID string, target int, progress func(int)) model.BackfillSummary {
	progress(1)
	select {
	case <-l.release:
		return model.BackfillSummary{ChannelID: channelID, Target: target, Enumerated: target}
	case <-ctx.Done():
		return model.BackfillSummary{ChannelID: channelID, Target: target, Cancelled: true}
	}
}

func (l *gatedLoader) ResumeHistory(ctx context.Context, channelID string, target int, progress func(int)) model.BackfillSummary {
	return l.LoadHistory(ctx, channelID, target, progress)
}

func TestBackfillManager(t *testing.T) {
	ctx := context.Background()

	t.Run("one run per channel", func(t *testing.T) {
		loader := &gatedLoader{release: make(chan struct{})}
		m := usecase.NewBackfillManager(ctx, loader, 100)
		defer m.Shutdown()

		require.NoError(t, m.Start("C1", 0, false))
		assert.ErrorIs(t, m.Start("C1", 10, false), model.ErrBackfillRunning)
		require.NoError(t, m.Start("C2", 10, true))

		status, ok := m.Status("C1")
		require.True(t, ok)
		assert.True(t, status.Running)
		assert.Equal(t, 100, status.Target)

		close(loader.release)
		summary, err := m.Wait(ctx, "C1")
		require.NoError(t, err)
		assert.Equal(t, 100, summary.Enumerated)

		status, _ = m.Status("C1")
		assert.False(t, status.Running)
		require.NoError(t, m.Start("C1", 5, false))
		_, err = m.Wait(ctx, "C1")
		require.NoError(t, err)
	})

	t.Run("cancel", func(t *testing.T) {
		loader := &gatedLoader{release: make(chan struct{})}
		m := usecase.NewBackfillManager(ctx, loader, 100)
		defer m.Shutdown()

		require.NoError(t, m.Start("C1", 0, false))
		require.NoError(t, m.Cancel("C1"))
		summary, err := m.Wait(ctx, "C1")
		require.NoError(t, err)
		assert.True(t, summary.Cancelled)

		assert.ErrorIs(t, m.Cancel("C1"), model.ErrNotFound)
		assert.ErrorIs(t, m.Cancel("C9"), model.ErrNotFound)
		_, ok := m.Status("C9")
		assert.False(t, ok)
	})

	t.Run("shutdown cancels and refuses new runs", func(t *testing.T) {
		loader := &gatedLoader{release: make(chan struct{})}
		m := usecase.NewBackfillManager(ctx, loader, 100)
		require.NoError(t, m.Start("C1", 0, false))

		done := make(chan struct{})
		go func() {
			m.Shutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("shutdown did not return")
		}
		status, _ := m.Status("C1")
		require.NotNil(t, status.Summary)
		assert.True(t, status.Summary.Cancelled)
		assert.ErrorIs(t, m.Start("C1", 0, false), context.Canceled)
	})
}
