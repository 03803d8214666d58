package model

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownTopic     = errors.New("unknown topic")
	ErrUnsupportedMode  = errors.New("unsupported hub mode")
	ErrInvalidPayload   = errors.New("invalid notification payload")
	ErrInvalidSignature = errors.New("invalid hub signature")
	ErrHubRejected      = errors.New("hub rejected request")
	ErrQueueFull        = errors.New("notification queue full")
	ErrBackfillRunning  = errors.New("backfill already running")
	ErrSubscriptionGone = errors.New("subscription not tracked")
	ErrTransient        = errors.New("transient upstream error")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
