package model

import "time"

const (
	// MaxDescriptionLength caps the stored description, in runes.
	MaxDescriptionLength = 500
	// MaxTags caps the number of stored tags.
	MaxTags = 10
	// WatchURLPrefix is the canonical URL prefix for a video.
	WatchURLPrefix = "https://www.youtube.com/watch?v="
)

// VideoRecord is the normalized metadata persisted per video.
// A record is always the result of the most recent successful fetch for its VideoID.
type VideoRecord struct {
	VideoID      string    `json:"video_id" bson:"video_id"`
	Title        string    `json:"title" bson:"title"`
	URL          string    `json:"url" bson:"url"`
	PublishedAt  time.Time `json:"upload_date" bson:"upload_date"`
	ViewCount    int64     `json:"view_count" bson:"view_count"`
	LikeCount    int64     `json:"like_count" bson:"like_count"`
	Description  string    `json:"description" bson:"description"`
	ChannelID    string    `json:"channel_id" bson:"channel_id"`
	ChannelTitle string    `json:"channel_title" bson:"channel_title"`
	Tags         []string  `json:"tags" bson:"tags"`
	Duration     string    `json:"duration" bson:"duration"`
	IngestedAt   time.Time `json:"ingested_at" bson:"ingested_at"`
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return WatchURLPrefix + videoID
}
