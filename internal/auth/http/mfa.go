package http

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

// MFAHandler handles the TOTP enrollment, challenge and disable endpoints.
// The target user defaults to the caller.
type MFAHandler struct {
	MFAService   *service.MFAService
	UserService  *service.UserService
	TokenService *service.TokenService
	Cookies      CookieConfig
}

// selfTarget resolves the _id of a request that may only act on the caller.
func selfTarget(r *http.Request, id string) (string, bool) {
	caller := httpx.UserIDFromContext(r.Context())
	id = strings.TrimSpace(id)
	if id == "" {
		return caller, true
	}
	return id, id == caller
}

// HandleStart handles POST /users/startMfaSetup.
func (h *MFAHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFASetupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	userID, ok := selfTarget(r, req.ID)
	if !ok {
		authsdk.ErrForbidden.WriteError(w)
		return
	}

	enr, err := h.MFAService.StartEnrollment(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASetupResponse{Base32: enr.Secret, OTPURL: enr.URL})
}

// HandleFinish handles POST /users/finishMfaSetup.
func (h *MFAHandler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	h.handleCode(w, r, h.MFAService.FinishEnrollment, "MFA enabled")
}

// HandleValidate handles POST /users/validateOtp.
func (h *MFAHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	h.handleCode(w, r, h.MFAService.VerifyLogin, "OTP verified")
}

// handleCode runs accept for the submitted code and, on success, re-issues
// the cookies so the new MFA state is in the tokens.
func (h *MFAHandler) handleCode(
	w http.ResponseWriter,
	r *http.Request,
	accept func(ctx context.Context, userID, code string) error,
	message string,
) {
	ctx := r.Context()

	var req authsdk.MFATokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		authsdk.ErrInvalidRequest.WithMessage("token is required").WriteError(w)
		return
	}
	userID, ok := selfTarget(r, req.ID)
	if !ok {
		authsdk.ErrForbidden.WriteError(w)
		return
	}

	if err := accept(ctx, userID, strings.TrimSpace(req.Token)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.reissue(w, r, userID, message)
}

// HandleDisable handles POST /users/disableMfa. Administrators may disable
// another user's MFA; the response then carries only a message.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := httpx.UserIDFromContext(ctx)

	var req authsdk.DisableMFARequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.ExecUserID != "" && req.ExecUserID != caller {
		authsdk.ErrForbidden.WriteError(w)
		return
	}
	target := strings.TrimSpace(req.ID)
	if target == "" {
		target = caller
	}
	if target != caller && !slices.Contains(httpx.RolesFromContext(ctx), domain.AdminRole) {
		authsdk.ErrForbidden.WriteError(w)
		return
	}

	if err := h.MFAService.Disable(ctx, target, caller); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if target != caller {
		httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "MFA disabled"})
		return
	}
	h.reissue(w, r, caller, "MFA disabled")
}

func (h *MFAHandler) reissue(w http.ResponseWriter, r *http.Request, userID, message string) {
	ctx := r.Context()

	user, err := h.UserService.GetUserByID(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	pair, err := h.TokenService.Issue(ctx, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.SetTokens(w, pair)
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: toSDKUser(user), Message: message})
}
