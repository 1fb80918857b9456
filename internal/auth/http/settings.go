package http

import (
	"net/http"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

type SettingsHandler struct {
	SettingsService *service.SettingsService
}

// HandleList handles GET /settings.
func (h *SettingsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	settings, err := h.SettingsService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]authsdk.Setting, 0, len(settings))
	for _, s := range settings {
		out = append(out, toSDKSetting(s))
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.SettingsResponse{Settings: out})
}

// HandlePut handles PUT /settings/{key}.
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PutSettingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	s, err := h.SettingsService.Put(r.Context(), actor(r), r.PathValue("key"), req.Value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSDKSetting(s))
}
