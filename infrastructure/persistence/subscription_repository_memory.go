package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
)

// SubscriptionRepositoryMemory keeps leases in process; they are lost on restart.
type SubscriptionRepositoryMemory struct {
	mu   sync.RWMutex
	subs map[string]*model.ChannelSubscription
}

func NewSubscriptionRepositoryMemory() repository.ISubscription {
	return &SubscriptionRepositoryMemory{subs: make(map[string]*model.ChannelSubscription)}
}

func (r *SubscriptionRepositoryMemory) Save(_ context.Context, sub *model.ChannelSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	r.mu.Lock()
	r.subs[sub.ChannelID] = sub.Clone()
	r.mu.Unlock()
	return nil
}

func (r *SubscriptionRepositoryMemory) Delete(_ context.Context, channelID string) error {
	r.mu.Lock()
	delete(r.subs, channelID)
	r.mu.Unlock()
	return nil
}

func (r *SubscriptionRepositoryMemory) List(_ context.Context) ([]*model.ChannelSubscription, error) {
	r.mu.RLock()
	list := make([]*model.ChannelSubscription, 0, len(r.subs))
	for _, s := range r.subs {
		list = append(list, s.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ChannelID < list[j].ChannelID })
	return list, nil
}
