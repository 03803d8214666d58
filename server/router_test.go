package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/persistence"
	"yt-pipeline/infrastructure/queue"
	"yt-pipeline/infrastructure/realtime"
	"yt-pipeline/infrastructure/utils"
	httpHandler "yt-pipeline/interfaces/http"
	"yt-pipeline/server"
	"yt-pipeline/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHub struct{}

func (nopHub) Send(context.Context, *dto.HubRequest) error { return nil }

type nopStore struct{}

func (nopStore) Upsert(context.Context, *model.VideoRecord) (bool, error) { return true, nil }
func (nopStore) Exists(context.Context, string) (bool, error)             { return false, nil }
func (nopStore) CountSince(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func newRouter(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	subs := usecase.NewSubscriptionUsecase(nopHub{}, persistence.NewSubscriptionRepositoryMemory(), usecase.SubscriptionConfig{
		FeedBaseURL: "https://www.youtube.com/xml/feeds/videos.xml", LeaseSeconds: 864000,
	})
	manager := usecase.NewBackfillManager(context.Background(), usecase.NewBackfillUsecase(nil, nil, nil, usecase.Backoff{}, nil), 10)
	t.Cleanup(manager.Shutdown)
	return server.InitiateRouter(
		httpHandler.NewWebhookHandler(subs, usecase.NewNotificationUsecase(queue.NewMemoryQueue(1, 1, time.Millisecond), "", 0)),
		httpHandler.NewChannelHandler(subs, usecase.NewStatsUsecase(nopStore{}), manager, ""),
		httpHandler.NewBackfillHandler(subs, manager),
		httpHandler.NewHealthHandler(subs),
		realtime.NewIngestHub(),
		"secret",
		origins,
	)
}

func TestRouter(t *testing.T) {
	r := newRouter(t, nil)

	get := func(path, authorization string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/healthz", ""))
	assert.Equal(t, http.StatusOK, get("/metrics", ""))
	assert.Equal(t, http.StatusBadRequest, get("/webhook", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/api/channels", ""))

	token, err := utils.GenerateToken(map[string]interface{}{"operator": "ops"}, "secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get("/api/channels", "Bearer "+token))
	assert.Equal(t, http.StatusNotFound, get("/api/channels/C1", "Bearer "+token))
}

func TestRouter_Cors(t *testing.T) {
	r := newRouter(t, []string{"https://ops.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/api/channels", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
