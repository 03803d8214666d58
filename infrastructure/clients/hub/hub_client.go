package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"

	"github.com/google/go-querystring/query"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Config holds the hub endpoint and breaker tuning.
type Config struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HTTPClient       *http.Client
}

type Client struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[int]
}

// NewHubClient returns a hub client. Only 202 and 204 count as accepted.
func NewHubClient(cfg Config) repository.IHub {
	return newClient(cfg)
}

func newClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "websub-hub",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A hub rejection is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || isRejection(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.GetLogger().WithField("breaker", name).WithField("from", from.String()).WithField("to", to.String()).Warn("hub circuit breaker state changed")
		},
	}
	return &Client{
		url:     cfg.URL,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[int](settings),
	}
}

type rejection struct {
	status int
	body   string
}

func (r *rejection) Error() string {
	return fmt.Sprintf("%s: status %d: %s", model.ErrHubRejected, r.status, r.body)
}

func (r *rejection) Unwrap() error { return model.ErrHubRejected }

func isRejection(err error) bool {
	_, ok := err.(*rejection)
	return ok
}

func (c *Client) Send(ctx context.Context, req *dto.HubRequest) error {
	form, err := query.Values(req)
	if err != nil {
		return fmt.Errorf("encode hub form: %w", err)
	}

	status, err := c.breaker.Execute(func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
		if err != nil {
			return 0, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted, http.StatusNoContent:
			return resp.StatusCode, nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp.StatusCode, fmt.Errorf("hub returned %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), model.ErrTransient)
		}
		return resp.StatusCode, &rejection{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	})
	if err != nil {
		return fmt.Errorf("hub %s %s: %w", req.Mode, req.Topic, err)
	}

	logger.GetLogger().WithField("mode", req.Mode).WithField("topic", req.Topic).WithField("status", status).Debug("hub accepted request")
	return nil
}
