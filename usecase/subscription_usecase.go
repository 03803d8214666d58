package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/infrastructure/metrics"
	"yt-pipeline/infrastructure/utils"

	"golang.org/x/sync/singleflight"
)

// SubscriptionConfig holds the lease policy.
type SubscriptionConfig struct {
	CallbackURL           string
	FeedBaseURL           string
	Secret                string
	LeaseSeconds          int64
	RenewalWindowFraction float64
	MaxRenewalFailures    int
	HubBackoff            Backoff
	Now                   func() time.Time
}

type ISubscriptionUsecase interface {
	// Track adds a channel to the tracked set in state unsubscribed. Tracking twice is a no-op.
	Track(ctx context.Context, channelID string) (*model.ChannelSubscription, error)
	// EnsureSubscribed requests a lease; activation only happens on hub verification.
	EnsureSubscribed(ctx context.Context, channelID, callbackURL string) error
	// RenewDue scans a snapshot of tracked subscriptions and yields one outcome per subscription it touched.
	RenewDue(ctx context.Context) iter.Seq[model.RenewalOutcome]
	Unsubscribe(ctx context.Context, channelID string) error
	// ConfirmVerification applies a hub verification and returns the challenge to echo.
	ConfirmVerification(ctx context.Context, v *dto.HubVerification) (string, error)
	Remove(ctx context.Context, channelID string) error
	List() []*model.ChannelSubscription
	Get(channelID string) (*model.ChannelSubscription, bool)
	Load(ctx context.Context) error
	RunRenewalLoop(ctx context.Context, interval time.Duration) error
}

type subscriptionUsecase struct {
	hub   repository.IHub
	store repository.ISubscription
	cfg   SubscriptionConfig

	mu    sync.RWMutex
	subs  map[string]*model.ChannelSubscription
	locks sync.Map // channel id -> *sync.Mutex
	group singleflight.Group
}

func NewSubscriptionUsecase(hub repository.IHub, store repository.ISubscription, cfg SubscriptionConfig) ISubscriptionUsecase {
	if cfg.RenewalWindowFraction <= 0 || cfg.RenewalWindowFraction >= 1 {
		cfg.RenewalWindowFraction = 0.1
	}
	if cfg.MaxRenewalFailures <= 0 {
		cfg.MaxRenewalFailures = 3
	}
	if cfg.Now == nil {
		cfg.Now = utils.GetCurrentTime
	}
	return &subscriptionUsecase{
		hub:   hub,
		store: store,
		cfg:   cfg,
		subs:  make(map[string]*model.ChannelSubscription),
	}
}

func (u *subscriptionUsecase) lock(channelID string) func() {
	m, _ := u.locks.LoadOrStore(channelID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (u *subscriptionUsecase) get(channelID string) *model.ChannelSubscription {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.subs[channelID]
}

// save persists a transition and publishes it in memory. Callers hold the channel lock.
func (u *subscriptionUsecase) save(ctx context.Context, sub *model.ChannelSubscription) error {
	sub.UpdatedAt = u.cfg.Now()
	if err := u.store.Save(context.WithoutCancel(ctx), sub); err != nil {
		logger.GetLogger().WithField("channelId", sub.ChannelID).WithField("state", sub.State).WithField("error", err).Error("failed persisting subscription")
		return err
	}
	u.mu.Lock()
	u.subs[sub.ChannelID] = sub
	u.mu.Unlock()
	return nil
}

func (u *subscriptionUsecase) Load(ctx context.Context) error {
	list, err := u.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	u.mu.Lock()
	for _, sub := range list {
		u.subs[sub.ChannelID] = sub
	}
	u.mu.Unlock()
	logger.GetLogger().WithField("count", len(list)).Info("subscriptions loaded")
	return nil
}

func (u *subscriptionUsecase) Track(ctx context.Context, channelID string) (*model.ChannelSubscription, error) {
	if channelID == "" {
		return nil, fmt.Errorf("empty channel id: %w", model.ErrInvalidPayload)
	}
	unlock := u.lock(channelID)
	defer unlock()
	return u.track(ctx, channelID)
}

func (u *subscriptionUsecase) track(ctx context.Context, channelID string) (*model.ChannelSubscription, error) {
	if sub := u.get(channelID); sub != nil {
		return sub.Clone(), nil
	}
	sub := model.NewChannelSubscription(channelID, u.cfg.FeedBaseURL, u.cfg.CallbackURL, u.cfg.LeaseSeconds)
	if err := u.save(ctx, sub); err != nil {
		return nil, err
	}
	logger.GetLogger().WithField("channelId", channelID).Info("channel tracked")
	return sub.Clone(), nil
}

func (u *subscriptionUsecase) EnsureSubscribed(ctx context.Context, channelID, callbackURL string) error {
	unlock := u.lock(channelID)
	defer unlock()

	current, err := u.track(ctx, channelID)
	if err != nil {
		return err
	}
	now := u.cfg.Now()
	if current.State == model.LeaseStateActive && !current.InRenewalWindow(now, u.window(current)) {
		return nil
	}
	sub := current.Clone()
	if callbackURL != "" {
		sub.CallbackURL = callbackURL
	}
	renewal := sub.State == model.LeaseStateActive || sub.State == model.LeaseStateExpiring
	_, err = u.subscribe(ctx, sub, renewal)
	return err
}

// subscribe sends a subscribe request with retries and records the resulting transition.
func (u *subscriptionUsecase) subscribe(ctx context.Context, sub *model.ChannelSubscription, renewal bool) (int, error) {
	log := logger.GetLogger().WithField("channelId", sub.ChannelID).WithField("renewal", renewal)
	req := &dto.HubRequest{
		Callback:     sub.CallbackURL,
		Topic:        sub.TopicURL,
		Mode:         dto.HubModeSubscribe,
		Verify:       dto.HubVerifyAsync,
		LeaseSeconds: sub.LeaseSeconds,
		Secret:       u.cfg.Secret,
	}
	attempts, err := u.send(ctx, req)

	now := u.cfg.Now()
	sub.LastRenewalAttemptAt = &now
	if err == nil {
		sub.VerifyPending = true
		sub.UnsubscribePending = false
		sub.SetError(nil)
		if renewal {
			sub.State = model.LeaseStateExpiring
		} else {
			sub.State = model.LeaseStatePendingVerification
		}
		log.WithField("attempts", attempts).Info("hub accepted subscribe request")
	} else {
		sub.RenewalFailures++
		sub.VerifyPending = false
		sub.SetError(err)
		if !renewal || sub.RenewalFailures >= u.cfg.MaxRenewalFailures {
			sub.State = model.LeaseStateExpired
			log.WithField("attempts", attempts).WithField("failures", sub.RenewalFailures).WithField("error", err).Error("subscription expired, operator must re-subscribe")
		} else {
			log.WithField("attempts", attempts).WithField("failures", sub.RenewalFailures).WithField("error", err).Warn("renewal cycle failed")
		}
	}
	if saveErr := u.save(ctx, sub); saveErr != nil && err == nil {
		err = saveErr
	}
	return attempts, err
}

func (u *subscriptionUsecase) send(ctx context.Context, req *dto.HubRequest) (int, error) {
	return retry(ctx, u.cfg.HubBackoff, func(attempt int) (bool, error) {
		err := u.hub.Send(ctx, req)
		if err != nil {
			logger.GetLogger().WithField("topic", req.Topic).WithField("mode", req.Mode).WithField("attempt", attempt).WithField("error", err).Warn("hub request failed")
		}
		return true, err
	})
}

func (u *subscriptionUsecase) window(sub *model.ChannelSubscription) time.Duration {
	return time.Duration(float64(sub.Lease()) * u.cfg.RenewalWindowFraction)
}

func (u *subscriptionUsecase) RenewDue(ctx context.Context) iter.Seq[model.RenewalOutcome] {
	return func(yield func(model.RenewalOutcome) bool) {
		for _, sub := range u.List() {
			if ctx.Err() != nil {
				return
			}
			v, _, _ := u.group.Do(sub.ChannelID, func() (any, error) {
				return u.renew(ctx, sub.ChannelID), nil
			})
			outcome := v.(model.RenewalOutcome)
			if outcome.Status == model.RenewalSkipped {
				continue
			}
			if !yield(outcome) {
				return
			}
		}
	}
}

func (u *subscriptionUsecase) renew(ctx context.Context, channelID string) model.RenewalOutcome {
	unlock := u.lock(channelID)
	defer unlock()

	skipped := model.RenewalOutcome{ChannelID: channelID, Status: model.RenewalSkipped}
	current := u.get(channelID)
	if current == nil {
		return skipped
	}
	now := u.cfg.Now()
	switch current.State {
	case model.LeaseStateActive, model.LeaseStateExpiring:
	default:
		return skipped
	}

	sub := current.Clone()
	lapsed := sub.LeaseExpiresAt != nil && !now.Before(*sub.LeaseExpiresAt)
	if sub.UnsubscribePending {
		if !lapsed {
			return skipped
		}
		// The hub never confirmed the unsubscribe; the lease ran out anyway.
		sub.State = model.LeaseStateUnsubscribed
		sub.LeaseExpiresAt = nil
		sub.UnsubscribePending = false
		sub.VerifyPending = false
		_ = u.save(ctx, sub)
		metrics.RecordRenewal(string(model.RenewalExpired))
		logger.GetLogger().WithField("channelId", channelID).Warn("unsubscribe never verified, lease lapsed")
		return model.RenewalOutcome{ChannelID: channelID, Status: model.RenewalExpired}
	}
	if lapsed {
		sub.State = model.LeaseStateExpired
		sub.VerifyPending = false
		sub.SetError(errors.New("lease lapsed before renewal was verified"))
		_ = u.save(ctx, sub)
		metrics.RecordRenewal(string(model.RenewalExpired))
		logger.GetLogger().WithField("channelId", channelID).WithField("expiredAt", sub.LeaseExpiresAt).Error("lease lapsed, operator must re-subscribe")
		return model.RenewalOutcome{ChannelID: channelID, Status: model.RenewalExpired}
	}
	// An accepted renewal is waiting for the hub to verify it.
	if sub.VerifyPending || !sub.InRenewalWindow(now, u.window(sub)) {
		return skipped
	}

	sub.State = model.LeaseStateExpiring
	attempts, err := u.subscribe(ctx, sub, true)
	outcome := model.RenewalOutcome{ChannelID: channelID, Status: model.RenewalRenewed, Attempts: attempts, Err: err}
	switch {
	case err == nil:
	case sub.State == model.LeaseStateExpired:
		outcome.Status = model.RenewalExpired
	default:
		outcome.Status = model.RenewalFailed
	}
	metrics.RecordRenewal(string(outcome.Status))
	return outcome
}

func (u *subscriptionUsecase) Unsubscribe(ctx context.Context, channelID string) error {
	unlock := u.lock(channelID)
	defer unlock()

	current := u.get(channelID)
	if current == nil {
		return fmt.Errorf("unsubscribe %s: %w", channelID, model.ErrSubscriptionGone)
	}
	sub := current.Clone()
	_, err := u.send(ctx, &dto.HubRequest{
		Callback: sub.CallbackURL,
		Topic:    sub.TopicURL,
		Mode:     dto.HubModeUnsubscribe,
		Verify:   dto.HubVerifyAsync,
	})
	if err != nil {
		sub.SetError(err)
		_ = u.save(ctx, sub)
		return fmt.Errorf("unsubscribe %s: %w", channelID, err)
	}
	sub.UnsubscribePending = true
	sub.SetError(nil)
	logger.GetLogger().WithField("channelId", channelID).Info("hub accepted unsubscribe request")
	return u.save(ctx, sub)
}

func (u *subscriptionUsecase) ConfirmVerification(ctx context.Context, v *dto.HubVerification) (string, error) {
	switch v.Mode {
	case dto.HubModeSubscribe, dto.HubModeUnsubscribe:
		if v.Challenge == "" {
			return "", fmt.Errorf("missing hub.challenge: %w", model.ErrInvalidPayload)
		}
	case dto.HubModeDenied:
	default:
		return "", fmt.Errorf("mode %q: %w", v.Mode, model.ErrUnsupportedMode)
	}

	channelID, err := model.ChannelIDFromTopic(v.Topic)
	if err != nil {
		return "", err
	}
	unlock := u.lock(channelID)
	defer unlock()

	current := u.get(channelID)
	if current == nil {
		return "", fmt.Errorf("channel %s not tracked: %w", channelID, model.ErrUnknownTopic)
	}
	sub := current.Clone()
	now := u.cfg.Now()
	log := logger.GetLogger().WithField("channelId", channelID).WithField("mode", v.Mode)

	switch v.Mode {
	case dto.HubModeSubscribe:
		if !sub.VerifyPending {
			return "", fmt.Errorf("no pending subscribe for %s: %w", channelID, model.ErrUnknownTopic)
		}
		lease := sub.Lease()
		if granted := time.Duration(v.LeaseSeconds) * time.Second; granted > 0 && granted < lease {
			lease = granted
		}
		expires := now.Add(lease)
		sub.State = model.LeaseStateActive
		sub.LeaseExpiresAt = &expires
		sub.RenewalFailures = 0
		sub.VerifyPending = false
		sub.SetError(nil)
		log.WithField("expiresAt", expires).Info("subscription verified")
	case dto.HubModeUnsubscribe:
		if !sub.UnsubscribePending {
			return "", fmt.Errorf("no pending unsubscribe for %s: %w", channelID, model.ErrUnknownTopic)
		}
		sub.State = model.LeaseStateUnsubscribed
		sub.LeaseExpiresAt = nil
		sub.UnsubscribePending = false
		sub.VerifyPending = false
		log.Info("unsubscribe verified")
	case dto.HubModeDenied:
		reason := v.Reason
		if reason == "" {
			reason = "denied by hub"
		}
		sub.State = model.LeaseStateExpired
		sub.VerifyPending = false
		sub.SetError(fmt.Errorf("%w: %s", model.ErrHubRejected, reason))
		log.WithField("reason", reason).Error("hub denied subscription")
	}
	if err := u.save(ctx, sub); err != nil {
		return "", err
	}
	return v.Challenge, nil
}

func (u *subscriptionUsecase) Remove(ctx context.Context, channelID string) error {
	unlock := u.lock(channelID)
	defer unlock()

	current := u.get(channelID)
	if current == nil {
		return fmt.Errorf("remove %s: %w", channelID, model.ErrSubscriptionGone)
	}
	if current.HoldsLease() {
		_, err := u.send(ctx, &dto.HubRequest{
			Callback: current.CallbackURL,
			Topic:    current.TopicURL,
			Mode:     dto.HubModeUnsubscribe,
			Verify:   dto.HubVerifyAsync,
		})
		if err != nil {
			logger.GetLogger().WithField("channelId", channelID).WithField("error", err).Warn("unsubscribe on remove failed, lease will lapse on its own")
		}
	}
	if err := u.store.Delete(ctx, channelID); err != nil {
		return fmt.Errorf("remove %s: %w", channelID, err)
	}
	u.mu.Lock()
	delete(u.subs, channelID)
	u.mu.Unlock()
	logger.GetLogger().WithField("channelId", channelID).Info("channel removed")
	return nil
}

func (u *subscriptionUsecase) List() []*model.ChannelSubscription {
	u.mu.RLock()
	list := make([]*model.ChannelSubscription, 0, len(u.subs))
	for _, sub := range u.subs {
		list = append(list, sub.Clone())
	}
	u.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ChannelID < list[j].ChannelID })
	return list
}

func (u *subscriptionUsecase) Get(channelID string) (*model.ChannelSubscription, bool) {
	sub := u.get(channelID)
	if sub == nil {
		return nil, false
	}
	return sub.Clone(), true
}

// RunRenewalLoop scans immediately and then on every tick until ctx is done.
func (u *subscriptionUsecase) RunRenewalLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		u.scan(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (u *subscriptionUsecase) scan(ctx context.Context) {
	start := time.Now()
	counts := map[model.RenewalStatus]int{}
	for outcome := range u.RenewDue(ctx) {
		counts[outcome.Status]++
	}

	list := u.List()
	states := map[string]int{}
	for _, sub := range list {
		states[string(sub.State)]++
	}
	metrics.SetSubscriptionStates(states)

	logger.GetLogger().
		WithField("renewed", counts[model.RenewalRenewed]).
		WithField("failed", counts[model.RenewalFailed]).
		WithField("expired", counts[model.RenewalExpired]).
		WithField("tracked", len(list)).
		WithField("elapsed", time.Since(start).String()).
		Info("renewal scan finished")
}
