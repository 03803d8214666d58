package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/usecase"

	"github.com/gin-gonic/gin"
)

type IChannelHandler interface {
	List(c *gin.Context)
	Get(c *gin.Context)
	Add(c *gin.Context)
	Remove(c *gin.Context)
	Subscribe(c *gin.Context)
	Unsubscribe(c *gin.Context)
	CountSince(c *gin.Context)
}

type ChannelHandler struct {
	subscriptionUsecase usecase.ISubscriptionUsecase
	statsUsecase        usecase.IStatsUsecase
	backfillManager     *usecase.BackfillManager
	callbackURL         string
}

func NewChannelHandler(subscriptionUsecase usecase.ISubscriptionUsecase, statsUsecase usecase.IStatsUsecase, backfillManager *usecase.BackfillManager, callbackURL string) IChannelHandler {
	return &ChannelHandler{
		subscriptionUsecase: subscriptionUsecase,
		statsUsecase:        statsUsecase,
		backfillManager:     backfillManager,
		callbackURL:         callbackURL,
	}
}

// List handles GET /api/channels
func (h *ChannelHandler) List(c *gin.Context) {
	ok(c, http.StatusOK, "OK", h.subscriptionUsecase.List())
}

// Get handles GET /api/channels/:channelId
func (h *ChannelHandler) Get(c *gin.Context) {
	sub, found := h.subscriptionUsecase.Get(c.Param("channelId"))
	if !found {
		fail(c, fmt.Errorf("channel %s: %w", c.Param("channelId"), model.ErrSubscriptionGone))
		return
	}
	ok(c, http.StatusOK, "OK", sub)
}

// Add handles POST /api/channels: track, subscribe and optionally start a backfill.
func (h *ChannelHandler) Add(c *gin.Context) {
	var req dto.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithField("error", err).Error(ErrorUnmarshal)
		fail(c, fmt.Errorf("%s: %w", ErrorUnmarshal, model.ErrInvalidPayload))
		return
	}
	if _, err := h.subscriptionUsecase.Track(c.Request.Context(), req.ChannelID); err != nil {
		fail(c, err)
		return
	}
	if err := h.subscriptionUsecase.EnsureSubscribed(c.Request.Context(), req.ChannelID, h.callbackURL); err != nil {
		fail(c, err)
		return
	}
	if req.BackfillTarget > 0 && h.backfillManager != nil {
		if err := h.backfillManager.Start(req.ChannelID, req.BackfillTarget, false); err != nil {
			logger.GetLogger().WithField("channelId", req.ChannelID).WithField("error", err).Warn("backfill not started")
		}
	}
	sub, _ := h.subscriptionUsecase.Get(req.ChannelID)
	ok(c, http.StatusCreated, "Channel tracked", sub)
}

// Remove handles DELETE /api/channels/:channelId
func (h *ChannelHandler) Remove(c *gin.Context) {
	channelID := c.Param("channelId")
	if h.backfillManager != nil {
		_ = h.backfillManager.Cancel(channelID)
	}
	if err := h.subscriptionUsecase.Remove(c.Request.Context(), channelID); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Channel removed", nil)
}

// Subscribe handles POST /api/channels/:channelId/subscribe and re-subscribes expired leases.
func (h *ChannelHandler) Subscribe(c *gin.Context) {
	channelID := c.Param("channelId")
	if _, found := h.subscriptionUsecase.Get(channelID); !found {
		fail(c, fmt.Errorf("channel %s: %w", channelID, model.ErrSubscriptionGone))
		return
	}
	if err := h.subscriptionUsecase.EnsureSubscribed(c.Request.Context(), channelID, h.callbackURL); err != nil {
		fail(c, err)
		return
	}
	sub, _ := h.subscriptionUsecase.Get(channelID)
	ok(c, http.StatusAccepted, "Subscribe requested", sub)
}

// Unsubscribe handles POST /api/channels/:channelId/unsubscribe
func (h *ChannelHandler) Unsubscribe(c *gin.Context) {
	channelID := c.Param("channelId")
	if err := h.subscriptionUsecase.Unsubscribe(c.Request.Context(), channelID); err != nil {
		fail(c, err)
		return
	}
	sub, _ := h.subscriptionUsecase.Get(channelID)
	ok(c, http.StatusAccepted, "Unsubscribe requested", sub)
}

// CountSince handles GET /api/channels/:channelId/count?since=<RFC3339>|days=<n>
func (h *ChannelHandler) CountSince(c *gin.Context) {
	channelID := c.Param("channelId")
	since, err := parseSince(c.Query("since"), c.Query("days"), time.Now().UTC())
	if err != nil {
		fail(c, err)
		return
	}
	n, err := h.statsUsecase.CountSince(c.Request.Context(), channelID, since)
	if err != nil {
		logger.GetLogger().WithField("channelId", channelID).WithField("error", err).Error("count failed")
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "OK", dto.ChannelCountResponse{ChannelID: channelID, Since: since.Format(time.RFC3339), Count: n})
}

func parseSince(since, days string, now time.Time) (time.Time, error) {
	switch {
	case since != "":
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return time.Time{}, fmt.Errorf("since %q: %w", since, model.ErrInvalidPayload)
		}
		return t, nil
	case days != "":
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("days %q: %w", days, model.ErrInvalidPayload)
		}
		return now.AddDate(0, 0, -n), nil
	default:
		return now.AddDate(0, 0, -7), nil
	}
}
