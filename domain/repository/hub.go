package repository

import (
	"context"

	"yt-pipeline/domain/dto"
)

// IHub sends subscription requests to a WebSub hub.
type IHub interface {
	// Send returns nil only when the hub accepted the request.
	Send(ctx context.Context, req *dto.HubRequest) error
}
