package dto

// NotificationJSON is the JSON form of a change notification, used for replays.
type NotificationJSON struct {
	VideoID   string `json:"video_id"`
	ChannelID string `json:"channel_id"`
	Timestamp string `json:"timestamp"`
}

// WebhookAck is returned once a notification has been accepted for processing.
type WebhookAck struct {
	Status   string   `json:"status"`
	Accepted int      `json:"accepted"`
	VideoIDs []string `json:"video_ids,omitempty"`
}

// Res is the generic operator API response envelope.
type Res struct {
	ResponseCode    string      `json:"responseCode"`
	ResponseMessage string      `json:"responseMessage"`
	Data            interface{} `json:"data,omitempty"`
}
