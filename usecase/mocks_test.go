package usecase_test

import (
	"context"
	"sync"
	"time"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/usecase"

	"github.com/stretchr/testify/mock"
)

var quickBackoff = usecase.Backoff{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

type MockVideoSource struct {
	mock.Mock
}

func (m *MockVideoSource) GetVideos(ctx context.Context, videoIDs []string) (map[string]*model.VideoRecord, model.FetchStatus, error) {
	args := m.Called(ctx, videoIDs)
	var found map[string]*model.VideoRecord
	if v := args.Get(0); v != nil {
		found = v.(map[string]*model.VideoRecord)
	}
	return found, args.Get(1).(model.FetchStatus), args.Error(2)
}

func (m *MockVideoSource) ListChannelVideos(ctx context.Context, channelID, pageToken string, pageSize int64) (*model.ListingPage, model.FetchStatus, error) {
	args := m.Called(ctx, channelID, pageToken, pageSize)
	var page *model.ListingPage
	if v := args.Get(0); v != nil {
		page = v.(*model.ListingPage)
	}
	return page, args.Get(1).(model.FetchStatus), args.Error(2)
}

type MockVideoStore struct {
	mock.Mock
}

func (m *MockVideoStore) Upsert(ctx context.Context, record *model.VideoRecord) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockVideoStore) Exists(ctx context.Context, videoID string) (bool, error) {
	args := m.Called(ctx, videoID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVideoStore) CountSince(ctx context.Context, channelID string, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, channelID, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// memoryStore keeps the latest record per video, like the unique index on the real collection.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]model.VideoRecord
	writes  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]model.VideoRecord{}}
}

func (s *memoryStore) Upsert(_ context.Context, record *model.VideoRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.records[record.VideoID]
	s.records[record.VideoID] = *record
	s.writes++
	return !existed, nil
}

func (s *memoryStore) Exists(_ context.Context, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[videoID]
	return ok, nil
}

func (s *memoryStore) CountSince(_ context.Context, channelID string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.records {
		if r.ChannelID == channelID && !r.PublishedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

type MockDedupCache struct {
	mock.Mock
}

func (m *MockDedupCache) Seen(ctx context.Context, videoID string) (bool, error) {
	args := m.Called(ctx, videoID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupCache) MarkSeen(ctx context.Context, videoID string, ttl time.Duration) error {
	args := m.Called(ctx, videoID, ttl)
	return args.Error(0)
}

// noDedup never reports a video as seen.
type noDedup struct{}

func (noDedup) Seen(context.Context, string) (bool, error)            { return false, nil }
func (noDedup) MarkSeen(context.Context, string, time.Duration) error { return nil }

type MockHub struct {
	mock.Mock
}

func (m *MockHub) Send(ctx context.Context, req *dto.HubRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type MockCursorStore struct {
	mock.Mock
}

func (m *MockCursorStore) GetCursor(ctx context.Context, channelID string) (*model.BackfillCursor, error) {
	args := m.Called(ctx, channelID)
	var cursor *model.BackfillCursor
	if v := args.Get(0); v != nil {
		cursor = v.(*model.BackfillCursor)
	}
	return cursor, args.Error(1)
}

func (m *MockCursorStore) SaveCursor(ctx context.Context, cursor *model.BackfillCursor) error {
	args := m.Called(ctx, cursor)
	return args.Error(0)
}

func (m *MockCursorStore) DeleteCursor(ctx context.Context, channelID string) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

type MockEventQueue struct {
	mock.Mock
}

func (m *MockEventQueue) Enqueue(ctx context.Context, event model.NotificationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventQueue) Run(ctx context.Context, handler repository.EventHandler) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

type MockIngestion struct {
	mock.Mock
}

func (m *MockIngestion) Ingest(ctx context.Context, channelID, videoID string) model.IngestOutcome {
	args := m.Called(ctx, channelID, videoID)
	return args.Get(0).(model.IngestOutcome)
}

func (m *MockIngestion) IngestBatch(ctx context.Context, channelID string, videoIDs []string) []model.IngestOutcome {
	args := m.Called(ctx, channelID, videoIDs)
	if fn, ok := args.Get(0).(func(context.Context, string, []string) []model.IngestOutcome); ok {
		return fn(ctx, channelID, videoIDs)
	}
	return args.Get(0).([]model.IngestOutcome)
}

func (m *MockIngestion) HandleEvent(ctx context.Context, event model.NotificationEvent) {
	m.Called(ctx, event)
}

func video(id, channelID string) *model.VideoRecord {
	return &model.VideoRecord{
		VideoID:     id,
		ChannelID:   channelID,
		Title:       "title " + id,
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Tags:        []string{"a"},
	}
}

func succeeded(ids []string) []model.IngestOutcome {
	out := make([]model.IngestOutcome, len(ids))
	for i, id := range ids {
		out[i] = model.IngestOutcome{VideoID: id, Result: model.IngestSuccess, Created: true, Attempts: 1}
	}
	return out
}
