package model

import "time"

// FetchStatus is the explicit result variant of a remote metadata call.
type FetchStatus string

const (
	FetchSuccess   FetchStatus = "success"
	FetchNotFound  FetchStatus = "not_found"
	FetchTransient FetchStatus = "transient"
	FetchFatal     FetchStatus = "fatal"
)

// IngestResult is the result of ingesting one video.
type IngestResult string

const (
	IngestSuccess IngestResult = "success"
	IngestSkipped IngestResult = "skipped"
	IngestFailed  IngestResult = "failed"
)

// IngestOutcome carries the result of one ingestion plus whether it created a new record.
type IngestOutcome struct {
	VideoID  string
	Result   IngestResult
	Created  bool
	Attempts int
	Err      error
}

// IngestEvent is broadcast to operator streams as ingestion and backfill progress.
type IngestEvent struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id"`
	VideoID   string    `json:"video_id,omitempty"`
	Result    string    `json:"result,omitempty"`
	Processed int       `json:"processed,omitempty"`
	Target    int       `json:"target,omitempty"`
	At        time.Time `json:"at"`
}
