package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/usecase"

	"github.com/gin-gonic/gin"
)

type IBackfillHandler interface {
	Start(c *gin.Context)
	Cancel(c *gin.Context)
	Status(c *gin.Context)
}

type BackfillHandler struct {
	subscriptionUsecase usecase.ISubscriptionUsecase
	backfillManager     *usecase.BackfillManager
}

func NewBackfillHandler(subscriptionUsecase usecase.ISubscriptionUsecase, backfillManager *usecase.BackfillManager) IBackfillHandler {
	return &BackfillHandler{subscriptionUsecase: subscriptionUsecase, backfillManager: backfillManager}
}

// Start handles POST /api/channels/:channelId/backfill. An empty body uses the default target.
func (h *BackfillHandler) Start(c *gin.Context) {
	channelID := c.Param("channelId")
	var req dto.BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, fmt.Errorf("%s: %w", ErrorUnmarshal, model.ErrInvalidPayload))
		return
	}
	if req.Target < 0 {
		fail(c, fmt.Errorf("negative target: %w", model.ErrInvalidPayload))
		return
	}
	if _, found := h.subscriptionUsecase.Get(channelID); !found {
		fail(c, fmt.Errorf("channel %s: %w", channelID, model.ErrSubscriptionGone))
		return
	}
	if err := h.backfillManager.Start(channelID, req.Target, req.Resume); err != nil {
		fail(c, err)
		return
	}
	status, _ := h.backfillManager.Status(channelID)
	ok(c, http.StatusAccepted, "Backfill started", status)
}

// Cancel handles DELETE /api/channels/:channelId/backfill
func (h *BackfillHandler) Cancel(c *gin.Context) {
	if err := h.backfillManager.Cancel(c.Param("channelId")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, "Backfill cancelling", nil)
}

// Status handles GET /api/channels/:channelId/backfill
func (h *BackfillHandler) Status(c *gin.Context) {
	status, found := h.backfillManager.Status(c.Param("channelId"))
	if !found {
		fail(c, fmt.Errorf("backfill %s: %w", c.Param("channelId"), model.ErrNotFound))
		return
	}
	ok(c, http.StatusOK, "OK", status)
}
