package model

import "time"

// BackfillCursor is the resumable pagination state of one channel's history enumeration.
type BackfillCursor struct {
	ChannelID  string    `json:"channel_id"`
	PageToken  string    `json:"page_token"`
	Enumerated int       `json:"enumerated"`
	Target     int       `json:"target"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListingPage is one page of a channel listing, newest first.
type ListingPage struct {
	VideoIDs      []string
	NextPageToken string
}

// BackfillSummary is reported when a backfill finishes or is cancelled.
type BackfillSummary struct {
	ChannelID   string        `json:"channel_id"`
	Target      int           `json:"target"`
	Enumerated  int           `json:"enumerated"`
	NewRecords  int           `json:"new_records"`
	Updated     int           `json:"updated"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Pages       int           `json:"pages"`
	FailedPages int           `json:"failed_pages"`
	Elapsed     time.Duration `json:"elapsed"`
	Cancelled   bool          `json:"cancelled"`
}

// BackfillProgress is a point-in-time view of a running or finished backfill.
type BackfillProgress struct {
	ChannelID string           `json:"channel_id"`
	Running   bool             `json:"running"`
	Processed int              `json:"processed"`
	Target    int              `json:"target"`
	StartedAt time.Time        `json:"started_at"`
	Summary   *BackfillSummary `json:"summary,omitempty"`
}

// TrackedChannel is one entry of the channel seed list.
type TrackedChannel struct {
	ChannelID      string
	Name           string
	BackfillTarget int
}
