package model

import (
	"fmt"
	"net/url"
	"time"
)

// LeaseState is the lifecycle state of a hub lease.
type LeaseState string

const (
	LeaseStateUnsubscribed        LeaseState = "unsubscribed"
	LeaseStatePendingVerification LeaseState = "pending_verification"
	LeaseStateActive              LeaseState = "active"
	LeaseStateExpiring            LeaseState = "expiring"
	LeaseStateExpired             LeaseState = "expired"
)

// ChannelSubscription represents one hub lease for one tracked channel.
type ChannelSubscription struct {
	ChannelID            string     `json:"channel_id"`
	TopicURL             string     `json:"topic_url"`
	CallbackURL          string     `json:"callback_url"`
	State                LeaseState `json:"state"`
	LeaseSeconds         int64      `json:"lease_seconds"`
	LeaseExpiresAt       *time.Time `json:"lease_expires_at,omitempty"`
	LastRenewalAttemptAt *time.Time `json:"last_renewal_attempt_at,omitempty"`
	RenewalFailures      int        `json:"renewal_failures"`
	VerifyPending        bool       `json:"verify_pending"`
	UnsubscribePending   bool       `json:"unsubscribe_pending"`
	LastError            *string    `json:"last_error,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewChannelSubscription creates an unsubscribed lease for a channel.
func NewChannelSubscription(channelID, feedBaseURL, callbackURL string, leaseSeconds int64) *ChannelSubscription {
	now := time.Now().UTC()
	return &ChannelSubscription{
		ChannelID:    channelID,
		TopicURL:     TopicURL(feedBaseURL, channelID),
		CallbackURL:  callbackURL,
		State:        LeaseStateUnsubscribed,
		LeaseSeconds: leaseSeconds,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Lease returns the requested lease duration.
func (s *ChannelSubscription) Lease() time.Duration {
	return time.Duration(s.LeaseSeconds) * time.Second
}

// HoldsLease reports whether the subscription counts as the channel's single live lease.
func (s *ChannelSubscription) HoldsLease() bool {
	switch s.State {
	case LeaseStatePendingVerification, LeaseStateActive, LeaseStateExpiring:
		return true
	}
	return false
}

// InRenewalWindow reports whether the lease expiry is within window of now.
func (s *ChannelSubscription) InRenewalWindow(now time.Time, window time.Duration) bool {
	if s.LeaseExpiresAt == nil {
		return false
	}
	return !now.Add(window).Before(*s.LeaseExpiresAt)
}

// SetError records the last failure reason, or clears it when err is nil.
func (s *ChannelSubscription) SetError(err error) {
	if err == nil {
		s.LastError = nil
		return
	}
	msg := err.Error()
	s.LastError = &msg
}

// Clone returns a deep copy so callers never share pointer fields.
func (s *ChannelSubscription) Clone() *ChannelSubscription {
	c := *s
	if s.LeaseExpiresAt != nil {
		t := *s.LeaseExpiresAt
		c.LeaseExpiresAt = &t
	}
	if s.LastRenewalAttemptAt != nil {
		t := *s.LastRenewalAttemptAt
		c.LastRenewalAttemptAt = &t
	}
	if s.LastError != nil {
		e := *s.LastError
		c.LastError = &e
	}
	return &c
}

// TopicURL derives the hub topic for a channel: <feed-base>?channel_id=<id>.
func TopicURL(feedBaseURL, channelID string) string {
	return fmt.Sprintf("%s?channel_id=%s", feedBaseURL, url.QueryEscape(channelID))
}

// ChannelIDFromTopic extracts the channel id from a topic URL.
func ChannelIDFromTopic(topic string) (string, error) {
	u, err := url.Parse(topic)
	if err != nil {
		return "", fmt.Errorf("parse topic %q: %w", topic, err)
	}
	id := u.Query().Get("channel_id")
	if id == "" {
		return "", fmt.Errorf("topic %q has no channel_id: %w", topic, ErrUnknownTopic)
	}
	return id, nil
}

// RenewalStatus is the outcome of one subscription's renewal step.
type RenewalStatus string

const (
	RenewalRenewed RenewalStatus = "renewed"
	RenewalFailed  RenewalStatus = "failed"
	RenewalExpired RenewalStatus = "expired"
	RenewalSkipped RenewalStatus = "skipped"
)

// RenewalOutcome is yielded by a renewal scan for each subscription it touched.
type RenewalOutcome struct {
	ChannelID string
	Status    RenewalStatus
	Attempts  int
	Err       error
}
