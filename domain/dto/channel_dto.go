package dto

// ChannelRequest adds a channel to the tracked set.
type ChannelRequest struct {
	ChannelID      string `json:"channel_id" binding:"required"`
	BackfillTarget int    `json:"backfill_target,omitempty"`
}

// BackfillRequest starts a backfill for a channel.
type BackfillRequest struct {
	Target int  `json:"target,omitempty"`
	Resume bool `json:"resume,omitempty"`
}

// ChannelCountResponse answers a countSince query.
type ChannelCountResponse struct {
	ChannelID string `json:"channel_id"`
	Since     string `json:"since"`
	Count     int64  `json:"count"`
}
