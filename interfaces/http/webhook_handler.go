package http

import (
	"errors"
	"io"
	"net/http"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/logger"
	"yt-pipeline/infrastructure/metrics"
	"yt-pipeline/usecase"

	"github.com/gin-gonic/gin"
)

// MaxNotificationBytes bounds a single hub push body.
const MaxNotificationBytes = 1 << 20

type IWebhookHandler interface {
	Verify(c *gin.Context)
	Receive(c *gin.Context)
}

type WebhookHandler struct {
	subscriptionUsecase usecase.ISubscriptionUsecase
	notificationUsecase usecase.INotificationUsecase
}

func NewWebhookHandler(subscriptionUsecase usecase.ISubscriptionUsecase, notificationUsecase usecase.INotificationUsecase) IWebhookHandler {
	return &WebhookHandler{subscriptionUsecase: subscriptionUsecase, notificationUsecase: notificationUsecase}
}

// Verify answers hub intent verification on GET /webhook.
func (h *WebhookHandler) Verify(c *gin.Context) {
	var req dto.HubVerification
	if err := c.ShouldBindQuery(&req); err != nil || req.Mode == "" || req.Topic == "" {
		logger.GetLogger().WithField("query", c.Request.URL.RawQuery).WithField("error", err).Warn("malformed verification request")
		c.String(http.StatusBadRequest, "malformed verification request")
		return
	}

	challenge, err := h.subscriptionUsecase.ConfirmVerification(c.Request.Context(), &req)
	if err != nil {
		status := verificationStatus(err)
		logger.GetLogger().WithField("mode", req.Mode).WithField("topic", req.Topic).WithField("status", status).WithField("error", err).Warn("verification refused")
		c.String(status, http.StatusText(status))
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(challenge))
}

func verificationStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrUnknownTopic):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnsupportedMode), errors.Is(err, model.ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Receive accepts a content notification on POST /webhook and queues it for ingestion.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxNotificationBytes))
	if err != nil {
		metrics.RecordNotification("invalid")
		logger.GetLogger().WithField("error", err).Warn("failed reading notification body")
		c.JSON(http.StatusBadRequest, dto.WebhookAck{Status: "invalid"})
		return
	}

	if err := h.notificationUsecase.VerifySignature(c.GetHeader("X-Hub-Signature"), body); err != nil {
		metrics.RecordNotification("bad_signature")
		logger.GetLogger().WithField("error", err).Warn("notification signature mismatch, dropping")
		c.JSON(http.StatusAccepted, dto.WebhookAck{Status: "ignored"})
		return
	}

	events, err := h.notificationUsecase.Parse(c.ContentType(), body)
	if err != nil {
		metrics.RecordNotification("invalid")
		logger.GetLogger().WithField("contentType", c.ContentType()).WithField("error", err).Warn("malformed notification")
		c.JSON(http.StatusBadRequest, dto.WebhookAck{Status: "invalid"})
		return
	}

	accepted := h.notificationUsecase.Accept(c.Request.Context(), events)
	c.JSON(http.StatusAccepted, dto.WebhookAck{Status: "accepted", Accepted: len(accepted), VideoIDs: accepted})
}
