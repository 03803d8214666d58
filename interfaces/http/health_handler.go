package http

import (
	"net/http"

	"yt-pipeline/usecase"

	"github.com/gin-gonic/gin"
)

const (
	ErrorUnmarshal = "Error while unmarshal"
)

type IHealthHandler interface {
	Healthz(c *gin.Context)
}

type HealthHandler struct {
	subscriptionUsecase usecase.ISubscriptionUsecase
}

func NewHealthHandler(subscriptionUsecase usecase.ISubscriptionUsecase) IHealthHandler {
	return &HealthHandler{subscriptionUsecase: subscriptionUsecase}
}

// Healthz returns OK with a per-state count of tracked leases.
func (h *HealthHandler) Healthz(ctx *gin.Context) {
	states := map[string]int{}
	for _, sub := range h.subscriptionUsecase.List() {
		states[string(sub.State)]++
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "subscriptions": states})
}
