package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/logger"
)

type backfillRun struct {
	cancel   context.CancelFunc
	done     chan struct{}
	progress model.BackfillProgress
}

// BackfillManager runs at most one backfill per channel in the background.
type BackfillManager struct {
	loader        IBackfillUsecase
	defaultTarget int

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
	mu   sync.Mutex
	runs map[string]*backfillRun
}

// NewBackfillManager ties every run to ctx; Shutdown cancels them all.
func NewBackfillManager(ctx context.Context, loader IBackfillUsecase, defaultTarget int) *BackfillManager {
	base, stop := context.WithCancel(ctx)
	return &BackfillManager{
		loader:        loader,
		defaultTarget: defaultTarget,
		base:          base,
		stop:          stop,
		runs:          make(map[string]*backfillRun),
	}
}

// Start launches a backfill. A non-positive target falls back to the configured default.
func (m *BackfillManager) Start(channelID string, target int, resume bool) error {
	if target <= 0 {
		target = m.defaultTarget
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.base.Err() != nil {
		return fmt.Errorf("backfill %s: %w", channelID, m.base.Err())
	}
	if run, ok := m.runs[channelID]; ok && run.progress.Running {
		return fmt.Errorf("backfill %s: %w", channelID, model.ErrBackfillRunning)
	}

	ctx, cancel := context.WithCancel(m.base)
	run := &backfillRun{
		cancel: cancel,
		done:   make(chan struct{}),
		progress: model.BackfillProgress{
			ChannelID: channelID,
			Running:   true,
			Target:    target,
			StartedAt: time.Now().UTC(),
		},
	}
	m.runs[channelID] = run

	progress := func(processed int) {
		m.mu.Lock()
		run.progress.Processed = processed
		m.mu.Unlock()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(run.done)
		defer cancel()

		var summary model.BackfillSummary
		if resume {
			summary = m.loader.ResumeHistory(ctx, channelID, target, progress)
		} else {
			summary = m.loader.LoadHistory(ctx, channelID, target, progress)
		}
		m.mu.Lock()
		run.progress.Running = false
		run.progress.Summary = &summary
		m.mu.Unlock()
	}()

	logger.GetLogger().WithField("channelId", channelID).WithField("target", target).WithField("resume", resume).Info("backfill started")
	return nil
}

// Cancel stops a running backfill at the next item boundary.
func (m *BackfillManager) Cancel(channelID string) error {
	m.mu.Lock()
	run, ok := m.runs[channelID]
	m.mu.Unlock()
	if !ok || !m.running(run) {
		return fmt.Errorf("backfill %s: %w", channelID, model.ErrNotFound)
	}
	run.cancel()
	logger.GetLogger().WithField("channelId", channelID).Info("backfill cancellation requested")
	return nil
}

func (m *BackfillManager) running(run *backfillRun) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return run.progress.Running
}

// Status reports the latest run for a channel, running or finished.
func (m *BackfillManager) Status(channelID string) (model.BackfillProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[channelID]
	if !ok {
		return model.BackfillProgress{}, false
	}
	p := run.progress
	if p.Summary != nil {
		s := *p.Summary
		p.Summary = &s
	}
	return p, true
}

// Wait blocks until the channel's current run finishes or ctx is done.
func (m *BackfillManager) Wait(ctx context.Context, channelID string) (*model.BackfillSummary, error) {
	m.mu.Lock()
	run, ok := m.runs[channelID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("backfill %s: %w", channelID, model.ErrNotFound)
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p, _ := m.Status(channelID)
	return p.Summary, nil
}

// Shutdown cancels every run and waits for them to return.
func (m *BackfillManager) Shutdown() {
	m.stop()
	m.wg.Wait()
}
