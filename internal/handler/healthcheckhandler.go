package handler

import (
	"net/http"
	"time"

	"github.com/neboloop/architect/internal/httputil"
	"github.com/neboloop/architect/internal/svc"
	"github.com/neboloop/architect/internal/types"
)

func HealthCheckHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := svcCtx.Version
		if version == "" {
			version = "dev"
		}
		httputil.OkJSON(w, &types.HealthResponse{
			Status:    "healthy",
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
