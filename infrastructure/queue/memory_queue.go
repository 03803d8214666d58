package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"
)

// MemoryQueue is a bounded in-process queue drained by a fixed worker pool.
type MemoryQueue struct {
	events         chan model.NotificationEvent
	workers        int
	enqueueTimeout time.Duration
}

func NewMemoryQueue(size, workers int, enqueueTimeout time.Duration) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &MemoryQueue{
		events:         make(chan model.NotificationEvent, size),
		workers:        workers,
		enqueueTimeout: enqueueTimeout,
	}
}

var _ repository.IEventQueue = (*MemoryQueue)(nil)

// Enqueue waits up to the enqueue timeout for room and then gives up with model.ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, event model.NotificationEvent) error {
	select {
	case q.events <- event:
		return nil
	default:
	}

	timer := time.NewTimer(q.enqueueTimeout)
	defer timer.Stop()
	select {
	case q.events <- event:
		return nil
	case <-timer.C:
		return fmt.Errorf("enqueue %s: %w", event.VideoID, model.ErrQueueFull)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is done and every worker has returned.
func (q *MemoryQueue) Run(ctx context.Context, handler repository.EventHandler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case event := <-q.events:
					q.handle(ctx, id, handler, event)
				}
			}
		}(i)
	}
	wg.Wait()
	logger.GetLogger().WithField("pending", len(q.events)).Info("memory queue workers stopped")
	return nil
}

func (q *MemoryQueue) handle(ctx context.Context, worker int, handler repository.EventHandler, event model.NotificationEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().WithField("worker", worker).WithField("videoId", event.VideoID).WithField("panic", r).Error("notification handler panicked")
		}
	}()
	handler(ctx, event)
}

// Len reports the number of queued events.
func (q *MemoryQueue) Len() int {
	return len(q.events)
}
