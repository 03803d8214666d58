package usecase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/infrastructure/metrics"
	"yt-pipeline/infrastructure/utils"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const videoGUIDPrefix = "yt:video:"

type INotificationUsecase interface {
	// Parse turns a push body into events. Any event without both ids fails the whole body.
	Parse(contentType string, body []byte) ([]model.NotificationEvent, error)
	// VerifySignature checks X-Hub-Signature when a secret is configured.
	VerifySignature(signature string, body []byte) error
	// Accept enqueues events and returns the video ids that were queued. A full queue drops the event.
	Accept(ctx context.Context, events []model.NotificationEvent) []string
}

type notificationUsecase struct {
	queue          repository.IEventQueue
	secret         string
	enqueueTimeout time.Duration
	now            func() time.Time
}

func NewNotificationUsecase(queue repository.IEventQueue, secret string, enqueueTimeout time.Duration) INotificationUsecase {
	if enqueueTimeout <= 0 {
		enqueueTimeout = 100 * time.Millisecond
	}
	return &notificationUsecase{
		queue:          queue,
		secret:         secret,
		enqueueTimeout: enqueueTimeout,
		now:            utils.GetCurrentTime,
	}
}

func (u *notificationUsecase) Parse(contentType string, body []byte) ([]model.NotificationEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body: %w", model.ErrInvalidPayload)
	}
	if strings.Contains(contentType, "json") || trimmed[0] == '{' {
		return u.parseJSON(trimmed)
	}
	return u.parseFeed(trimmed)
}

func (u *notificationUsecase) parseJSON(body []byte) ([]model.NotificationEvent, error) {
	var n dto.NotificationJSON
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode json: %w: %w", model.ErrInvalidPayload, err)
	}
	received := u.now()
	ev := model.NotificationEvent{ChannelID: n.ChannelID, VideoID: n.VideoID, Timestamp: received, ReceivedAt: received}
	if n.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, n.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", n.Timestamp, model.ErrInvalidPayload)
		}
		ev.Timestamp = ts.UTC()
	}
	if err := validEvent(ev); err != nil {
		return nil, err
	}
	return []model.NotificationEvent{ev}, nil
}

func (u *notificationUsecase) parseFeed(body []byte) ([]model.NotificationEvent, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w: %w", model.ErrInvalidPayload, err)
	}
	received := u.now()
	events := make([]model.NotificationEvent, 0, len(feed.Items))

	for _, item := range feed.Items {
		ev := model.NotificationEvent{
			VideoID:    firstExt(item.Extensions, "yt", "videoId"),
			ChannelID:  firstExt(item.Extensions, "yt", "channelId"),
			Timestamp:  received,
			ReceivedAt: received,
		}
		if ev.VideoID == "" {
			ev.VideoID = strings.TrimPrefix(item.GUID, videoGUIDPrefix)
		}
		switch {
		case item.UpdatedParsed != nil:
			ev.Timestamp = item.UpdatedParsed.UTC()
		case item.PublishedParsed != nil:
			ev.Timestamp = item.PublishedParsed.UTC()
		}
		if err := validEvent(ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	for _, tomb := range feed.Extensions["at"]["deleted-entry"] {
		ev := model.NotificationEvent{
			VideoID:    strings.TrimPrefix(tomb.Attrs["ref"], videoGUIDPrefix),
			Timestamp:  received,
			ReceivedAt: received,
			Deleted:    true,
		}
		if when, err := time.Parse(time.RFC3339, tomb.Attrs["when"]); err == nil {
			ev.Timestamp = when.UTC()
		}
		for _, by := range tomb.Children["by"] {
			for _, uri := range by.Children["uri"] {
				ev.ChannelID = channelFromURI(uri.Value)
			}
		}
		if err := validEvent(ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("feed has no entries: %w", model.ErrInvalidPayload)
	}
	return events, nil
}

func validEvent(ev model.NotificationEvent) error {
	if ev.VideoID == "" || ev.ChannelID == "" {
		return fmt.Errorf("missing video or channel id: %w", model.ErrInvalidPayload)
	}
	return nil
}

func firstExt(exts ext.Extensions, space, name string) string {
	for _, e := range exts[space][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// channelFromURI extracts UC... from https://www.youtube.com/channel/UC...
func channelFromURI(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !strings.Contains(u.Path, "/channel/") {
		return ""
	}
	return path.Base(u.Path)
}

func (u *notificationUsecase) VerifySignature(signature string, body []byte) error {
	if u.secret == "" {
		return nil
	}
	algo, digest, ok := strings.Cut(signature, "=")
	if !ok || algo != "sha1" {
		return fmt.Errorf("signature %q: %w", signature, model.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("signature digest: %w", model.ErrInvalidSignature)
	}
	mac := hmac.New(sha1.New, []byte(u.secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return model.ErrInvalidSignature
	}
	return nil
}

func (u *notificationUsecase) Accept(ctx context.Context, events []model.NotificationEvent) []string {
	accepted := make([]string, 0, len(events))
	for _, ev := range events {
		log := logger.GetLogger().WithField("channelId", ev.ChannelID).WithField("videoId", ev.VideoID).WithField("deleted", ev.Deleted)
		enqueueCtx, cancel := context.WithTimeout(ctx, u.enqueueTimeout)
		err := u.queue.Enqueue(enqueueCtx, ev)
		cancel()
		if err != nil {
			if errors.Is(err, model.ErrQueueFull) || errors.Is(err, context.DeadlineExceeded) {
				metrics.RecordQueueDrop()
			}
			metrics.RecordNotification("dropped")
			log.WithField("error", err).Error("failed enqueueing notification, dropping")
			continue
		}
		metrics.RecordNotification("accepted")
		log.Info("notification accepted")
		accepted = append(accepted, ev.VideoID)
	}
	return accepted
}
