package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

// LivezHandler answers 200 whenever the process is serving.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}
