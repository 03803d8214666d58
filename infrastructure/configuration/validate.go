package configuration

import (
	"errors"
	"fmt"
	"net/url"

	"yt-pipeline/domain/model"
)

// Validate reports every configuration problem that must stop the process from serving.
func Validate(c *Config) error {
	var errs []error
	yt := GetYouTubeConfig()
	if c.YouTube.APIKey == "" && !yt.HasOAuth() {
		errs = append(errs, errors.New("youtube: api key or oauth tokens required (YOUTUBE_API_KEY)"))
	}
	if err := requireURL("hub.url", c.Hub.URL); err != nil {
		errs = append(errs, err)
	}
	if err := requireURL("hub.callbackBaseURL", c.Hub.CallbackBaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := requireURL("hub.feedBaseURL", c.Hub.FeedBaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Hub.LeaseSeconds <= 0 {
		errs = append(errs, fmt.Errorf("hub.leaseSeconds must be positive, got %d", c.Hub.LeaseSeconds))
	}
	if c.Hub.RenewalWindowFraction <= 0 || c.Hub.RenewalWindowFraction >= 1 {
		errs = append(errs, fmt.Errorf("hub.renewalWindowFraction must be in (0,1), got %v", c.Hub.RenewalWindowFraction))
	}
	if c.Hub.RenewalIntervalSecond <= 0 {
		errs = append(errs, fmt.Errorf("hub.renewalIntervalSecond must be positive, got %d", c.Hub.RenewalIntervalSecond))
	}
	if c.Database.Mongo.Host == "" {
		errs = append(errs, errors.New("database.mongo.host is required (MONGO_HOST)"))
	}
	switch c.Queue.Driver {
	case "memory":
	case "pubsub":
		if c.Pubsub.ProjectID == "" || c.Pubsub.Topic == "" || c.Pubsub.Subscription == "" {
			errs = append(errs, errors.New("queue.driver=pubsub requires pubsub.projectID, topic and subscription"))
		}
	case "servicebus":
		if c.ServiceBus.Namespace == "" {
			errs = append(errs, errors.New("queue.driver=servicebus requires serviceBus.namespace"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.driver %q", c.Queue.Driver))
	}
	switch c.Subscription.Store {
	case "memory", "postgres", "mssql":
	default:
		errs = append(errs, fmt.Errorf("unknown subscription.store %q", c.Subscription.Store))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", model.ErrInvalidConfig, errors.Join(errs...))
}

func requireURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}
