package dto

const (
	HubModeSubscribe   = "subscribe"
	HubModeUnsubscribe = "unsubscribe"
	HubModeDenied      = "denied"
	HubVerifyAsync     = "async"
)

// HubRequest is the form posted to the hub for subscribe/renew/unsubscribe.
type HubRequest struct {
	Callback     string `url:"hub.callback"`
	Topic        string `url:"hub.topic"`
	Mode         string `url:"hub.mode"`
	Verify       string `url:"hub.verify"`
	LeaseSeconds int64  `url:"hub.lease_seconds,omitempty"`
	Secret       string `url:"hub.secret,omitempty"`
}

// HubVerification is the query the hub sends to confirm a (un)subscribe.
type HubVerification struct {
	Mode         string `form:"hub.mode"`
	Topic        string `form:"hub.topic"`
	Challenge    string `form:"hub.challenge"`
	LeaseSeconds int64  `form:"hub.lease_seconds"`
	Reason       string `form:"hub.reason"`
}
