package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/persistence"
	"yt-pipeline/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu       sync.Mutex
	requests []*dto.HubRequest
}

func (h *recordingHub) Send(_ context.Context, req *dto.HubRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	return nil
}

func TestSeedChannels_KeepsOperatorUnsubscribes(t *testing.T) {
	hub := &recordingHub{}
	subs := usecase.NewSubscriptionUsecase(hub, persistence.NewSubscriptionRepositoryMemory(), usecase.SubscriptionConfig{
		CallbackURL:  "https://example.test/webhook",
		FeedBaseURL:  "https://www.youtube.com/xml/feeds/videos.xml",
		LeaseSeconds: 864000,
		HubBackoff:   usecase.Backoff{Attempts: 1, Initial: time.Millisecond},
	})
	// C1 was unsubscribed by an operator and persisted in that state.
	_, err := subs.Track(context.Background(), "C1")
	require.NoError(t, err)

	backfills := map[string]int{}
	seedChannels(context.Background(), subs, []model.TrackedChannel{{ChannelID: "C2", BackfillTarget: 25}}, "",
		func(channelID string, target int) { backfills[channelID] = target })

	require.Len(t, hub.requests, 1)
	assert.Equal(t, dto.HubModeSubscribe, hub.requests[0].Mode)
	assert.True(t, strings.HasSuffix(hub.requests[0].Topic, "C2"))

	c1, ok := subs.Get("C1")
	require.True(t, ok)
	assert.Equal(t, model.LeaseStateUnsubscribed, c1.State)
	c2, ok := subs.Get("C2")
	require.True(t, ok)
	assert.Equal(t, model.LeaseStatePendingVerification, c2.State)
	assert.Equal(t, map[string]int{"C2": 25}, backfills)
}

func TestSeedChannels_ReseededChannelSubscribes(t *testing.T) {
	hub := &recordingHub{}
	subs := usecase.NewSubscriptionUsecase(hub, persistence.NewSubscriptionRepositoryMemory(), usecase.SubscriptionConfig{
		CallbackURL:  "https://example.test/webhook",
		FeedBaseURL:  "https://www.youtube.com/xml/feeds/videos.xml",
		LeaseSeconds: 864000,
		HubBackoff:   usecase.Backoff{Attempts: 1, Initial: time.Millisecond},
	})
	_, err := subs.Track(context.Background(), "C1")
	require.NoError(t, err)

	seedChannels(context.Background(), subs, []model.TrackedChannel{{ChannelID: "C1"}}, "", nil)

	require.Len(t, hub.requests, 1)
	c1, _ := subs.Get("C1")
	assert.Equal(t, model.LeaseStatePendingVerification, c1.State)
}
