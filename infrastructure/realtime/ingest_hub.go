package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"yt-pipeline/domain/model"

	"github.com/gin-gonic/gin"
)

// allChannels is the subscription key for streams without a channel filter.
const allChannels = "*"

// Hub fans ingestion and backfill events out to SSE subscribers, optionally filtered by channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[chan model.IngestEvent]struct{}
}

func NewIngestHub() *Hub {
	return &Hub{channels: make(map[string]map[chan model.IngestEvent]struct{})}
}

// Serve streams events until the client disconnects. ?channel_id= narrows the stream.
func (h *Hub) Serve(c *gin.Context) {
	key := c.Query("channel_id")
	if key == "" {
		key = allChannels
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := make(chan model.IngestEvent, 16)
	h.addSubscriber(key, ch)
	defer h.removeSubscriber(key, ch)

	// Initial comment to keep connection open
	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt := <-ch:
			data, _ := json.Marshal(evt)
			_, _ = c.Writer.Write([]byte("event: " + evt.Type + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *Hub) addSubscriber(key string, ch chan model.IngestEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[key] == nil {
		h.channels[key] = make(map[chan model.IngestEvent]struct{})
	}
	h.channels[key][ch] = struct{}{}
}

func (h *Hub) removeSubscriber(key string, ch chan model.IngestEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.channels[key]; subs != nil {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.channels, key)
		}
	}
}

// Broadcast delivers evt to the channel's subscribers and to unfiltered ones. Slow readers miss events.
func (h *Hub) Broadcast(evt model.IngestEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range []string{evt.ChannelID, allChannels} {
		for ch := range h.channels[key] {
			select { // non-blocking
			case ch <- evt:
			default:
			}
		}
	}
}

// Subscribers reports the number of open streams.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.channels {
		n += len(subs)
	}
	return n
}
