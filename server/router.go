package server

import (
	"time"

	"yt-pipeline/infrastructure/realtime"
	httpHandler "yt-pipeline/interfaces/http"
	"yt-pipeline/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func InitiateRouter(
	webhookHandler httpHandler.IWebhookHandler,
	channelHandler httpHandler.IChannelHandler,
	backfillHandler httpHandler.IBackfillHandler,
	healthHandler httpHandler.IHealthHandler,
	ingestHub *realtime.Hub,
	secretKey string,
	allowOrigins []string,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	corsConfig := cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	// Hub callback: verification and content distribution.
	router.GET("/webhook", webhookHandler.Verify)
	router.POST("/webhook", webhookHandler.Receive)

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))

	channels := api.Group("/channels")
	{
		channels.GET("", channelHandler.List)
		channels.POST("", channelHandler.Add)
		channels.GET("/:channelId", channelHandler.Get)
		channels.DELETE("/:channelId", channelHandler.Remove)
		channels.POST("/:channelId/subscribe", channelHandler.Subscribe)
		channels.POST("/:channelId/unsubscribe", channelHandler.Unsubscribe)
		channels.GET("/:channelId/count", channelHandler.CountSince)

		channels.POST("/:channelId/backfill", backfillHandler.Start)
		channels.GET("/:channelId/backfill", backfillHandler.Status)
		channels.DELETE("/:channelId/backfill", backfillHandler.Cancel)
	}

	if ingestHub != nil {
		api.GET("/stream", ingestHub.Serve)
	}

	return router
}
