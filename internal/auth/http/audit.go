package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

type AuditHandler struct {
	AuditService *service.AuditService
}

// HandleList handles GET /auditlogs?limit=N. Entries come newest first.
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			authsdk.ErrInvalidRequest.WithMessage("limit must be a non-negative integer").WriteError(w)
			return
		}
		limit = n
	}

	entries, err := h.AuditService.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]authsdk.AuditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSDKAuditEntry(e))
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.AuditLogsResponse{AuditLogs: out})
}
