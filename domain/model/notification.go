package model

import "time"

// NotificationEvent is a validated (channel, video, timestamp) triple taken from a hub push.
// It lives only for the handling of one webhook call and its queued ingestion.
type NotificationEvent struct {
	ChannelID  string    `json:"channel_id"`
	VideoID    string    `json:"video_id"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
	Deleted    bool      `json:"deleted,omitempty"`
}
