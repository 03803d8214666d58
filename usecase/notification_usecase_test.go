package usecase_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"testing"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const atomPush = `<?xml version='1.0' encoding='UTF-8'?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <link rel="hub" href="https://pubsubhubbub.appspot.com"/>
  <link rel="self" href="https://www.youtube.com/xml/feeds/videos.xml?channel_id=C1"/>
  <title>YouTube video feed</title>
  <updated>2024-05-01T12:00:05.000000+00:00</updated>
  <entry>
    <id>yt:video:V1</id>
    <yt:videoId>V1</yt:videoId>
    <yt:channelId>C1</yt:channelId>
    <title>Video title</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=V1"/>
    <author>
      <name>Channel title</name>
      <uri>https://www.youtube.com/channel/C1</uri>
    </author>
    <published>2024-05-01T11:59:00+00:00</published>
    <updated>2024-05-01T12:00:05.000000+00:00</updated>
  </entry>
</feed>`

const atomTombstone = `<?xml version='1.0' encoding='UTF-8'?>
<feed xmlns:at="http://purl.org/atompub/tombstones/1.0" xmlns="http://www.w3.org/2005/Atom">
  <at:deleted-entry ref="yt:video:V7" when="2024-05-02T08:00:00+00:00">
    <link href="https://www.youtube.com/watch?v=V7"/>
    <at:by>
      <name>Channel title</name>
      <uri>https://www.youtube.com/channel/C1</uri>
    </at:by>
  </at:deleted-entry>
</feed>`

func TestNotification_ParseAtom(t *testing.T) {
	u := usecase.NewNotificationUsecase(new(MockEventQueue), "", 0)

	events, err := u.Parse("application/atom+xml", []byte(atomPush))

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "V1", events[0].VideoID)
	assert.Equal(t, "C1", events[0].ChannelID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC), events[0].Timestamp)
	assert.False(t, events[0].Deleted)
	assert.False(t, events[0].ReceivedAt.IsZero())
}

func TestNotification_ParseTombstone(t *testing.T) {
	u := usecase.NewNotificationUsecase(new(MockEventQueue), "", 0)

	events, err := u.Parse("application/atom+xml", []byte(atomTombstone))

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "V7", events[0].VideoID)
	assert.Equal(t, "C1", events[0].ChannelID)
	assert.True(t, events[0].Deleted)
	assert.Equal(t, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), events[0].Timestamp)
}

func TestNotification_ParseJSON(t *testing.T) {
	u := usecase.NewNotificationUsecase(new(MockEventQueue), "", 0)

	events, err := u.Parse("application/json", []byte(`{"video_id":"V1","channel_id":"C1","timestamp":"2024-05-01T12:00:00Z"}`))

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.NotificationEvent{
		ChannelID:  "C1",
		VideoID:    "V1",
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ReceivedAt: events[0].ReceivedAt,
	}, events[0])
}

func TestNotification_ParseMalformed(t *testing.T) {
	u := usecase.NewNotificationUsecase(new(MockEventQueue), "", 0)

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"empty", "application/atom+xml", "  "},
		{"not xml", "application/atom+xml", "<feed><entry>"},
		{"not json", "application/json", `{"video_id":`},
		{"json missing video", "application/json", `{"channel_id":"C1"}`},
		{"json bad timestamp", "application/json", `{"video_id":"V1","channel_id":"C1","timestamp":"yesterday"}`},
		{"entry missing channel", "application/atom+xml", `<feed xmlns="http://www.w3.org/2005/Atom"><entry><id>yt:video:V1</id><title>x</title></entry></feed>`},
		{"feed without entries", "application/atom+xml", `<feed xmlns="http://www.w3.org/2005/Atom"><title>x</title></feed>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := u.Parse(tt.contentType, []byte(tt.body))
			assert.Nil(t, events)
			assert.ErrorIs(t, err, model.ErrInvalidPayload)
		})
	}
}

func TestNotification_VerifySignature(t *testing.T) {
	body := []byte(atomPush)
	mac := hmac.New(sha1.New, []byte("s3cret"))
	mac.Write(body)
	valid := "sha1=" + hex.EncodeToString(mac.Sum(nil))

	signed := usecase.NewNotificationUsecase(new(MockEventQueue), "s3cret", 0)
	assert.NoError(t, signed.VerifySignature(valid, body))
	assert.ErrorIs(t, signed.VerifySignature(valid, append(body, ' ')), model.ErrInvalidSignature)
	assert.ErrorIs(t, signed.VerifySignature("", body), model.ErrInvalidSignature)
	assert.ErrorIs(t, signed.VerifySignature("sha256=00", body), model.ErrInvalidSignature)
	assert.ErrorIs(t, signed.VerifySignature("sha1=zz", body), model.ErrInvalidSignature)

	unsigned := usecase.NewNotificationUsecase(new(MockEventQueue), "", 0)
	assert.NoError(t, unsigned.VerifySignature("", body))
}

func TestNotification_Accept(t *testing.T) {
	queue := new(MockEventQueue)
	v1 := model.NotificationEvent{ChannelID: "C1", VideoID: "V1"}
	v2 := model.NotificationEvent{ChannelID: "C1", VideoID: "V2"}
	queue.On("Enqueue", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), v1).Return(nil).Once()
	queue.On("Enqueue", mock.Anything, v2).Return(model.ErrQueueFull).Once()

	accepted := usecase.NewNotificationUsecase(queue, "", 50*time.Millisecond).Accept(context.Background(), []model.NotificationEvent{v1, v2})

	assert.Equal(t, []string{"V1"}, accepted)
	queue.AssertExpectations(t)
}
