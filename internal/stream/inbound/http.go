package inbound

import (
	"log/slog"
	"net/http"

	"github.com/shandysiswandi/gostream/internal/pkg/router"
)

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.GET("/api/v1/stream/topics", end.ListTopics)
	r.POST("/api/v1/stream/topics", end.CreateTopics)
	r.POST("/api/v1/stream/messages", end.Publish)
}

// RegisterPushEndpoint mounts the Pub/Sub push handler at path. A nil handler
// means the receiver pulls, so nothing is mounted.
func RegisterPushEndpoint(r *router.Router, path string, h http.Handler) {
	if h == nil || path == "" {
		return
	}

	slog.Info("mounting push endpoint", "path", path)
	r.Raw(http.MethodPost, path, h)
}
