package servicebus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"yt-pipeline/domain/model"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu         sync.Mutex
	pending    []*azservicebus.ReceivedMessage
	sent       []*azservicebus.Message
	completed  int
	deadLetter int
	closed     int
}

func (f *fakeBus) SendMessage(_ context.Context, m *azservicebus.Message, _ *azservicebus.SendMessageOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	f.pending = append(f.pending, &azservicebus.ReceivedMessage{Body: m.Body})
	return nil
}

func (f *fakeBus) ReceiveMessages(ctx context.Context, max int, _ *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error) {
	for {
		f.mu.Lock()
		if len(f.pending) > 0 {
			n := min(max, len(f.pending))
			out := f.pending[:n]
			f.pending = f.pending[n:]
			f.mu.Unlock()
			return out, nil
		}
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (f *fakeBus) CompleteMessage(context.Context, *azservicebus.ReceivedMessage, *azservicebus.CompleteMessageOptions) error {
	f.mu.Lock()
	f.completed++
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) DeadLetterMessage(context.Context, *azservicebus.ReceivedMessage, *azservicebus.DeadLetterOptions) error {
	f.mu.Lock()
	f.deadLetter++
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) Close(context.Context) error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func TestEventQueueRoundTrip(t *testing.T) {
	bus := &fakeBus{}
	q := newEventQueue(bus, bus, 10)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan model.NotificationEvent, 2)
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, func(_ context.Context, e model.NotificationEvent) { received <- e }) }()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(ctx, model.NotificationEvent{ChannelID: "C1", VideoID: "V1", Timestamp: ts}))

	select {
	case e := <-received:
		assert.Equal(t, "V1", e.VideoID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
	cancel()
	assert.NoError(t, <-done)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.sent, 1)
	assert.Equal(t, "V1:1704067200", *bus.sent[0].MessageID)
	assert.Equal(t, "application/json", *bus.sent[0].ContentType)
	assert.Equal(t, 1, bus.completed)
}

func TestEventQueueDeadLettersGarbage(t *testing.T) {
	bus := &fakeBus{pending: []*azservicebus.ReceivedMessage{{Body: []byte("not json")}}}
	q := newEventQueue(bus, bus, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	called := false
	require.NoError(t, q.Run(ctx, func(context.Context, model.NotificationEvent) { called = true }))

	assert.False(t, called)
	assert.Equal(t, 1, bus.deadLetter)
	assert.Equal(t, 0, bus.completed)
}

func TestEventQueueClose(t *testing.T) {
	bus := &fakeBus{}
	require.NoError(t, newEventQueue(bus, bus, 0).Close(context.Background()))
	assert.Equal(t, 2, bus.closed)
}

func TestNewServiceBusRequiresNamespace(t *testing.T) {
	client, err := NewServiceBus(context.Background(), "")
	assert.Error(t, err)
	assert.Nil(t, client)

	_, err = NewEventQueue(nil, "q", 1)
	assert.Error(t, err)
}

func TestEventPayloadShape(t *testing.T) {
	raw, err := json.Marshal(model.NotificationEvent{ChannelID: "C1", VideoID: "V1"})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "V1", m["video_id"])
	assert.Equal(t, "C1", m["channel_id"])
}
