package http

import (
	"context"
	"errors"
	"net/http"

	"yt-pipeline/domain/dto"
	"yt-pipeline/domain/model"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, dto.Res{ResponseCode: "00", ResponseMessage: message, Data: data})
}

func fail(c *gin.Context, err error) {
	status := errorStatus(err)
	c.JSON(status, dto.Res{ResponseCode: http.StatusText(status), ResponseMessage: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrSubscriptionGone), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrBackfillRunning):
		return http.StatusConflict
	case errors.Is(err, model.ErrHubRejected), errors.Is(err, model.ErrTransient):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
