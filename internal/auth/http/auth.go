package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
)

// AuthHandler serves login, logout and the silent refresh.
type AuthHandler struct {
	TokenService *service.TokenService
	UserService  *service.UserService
	Audit        *service.AuditService
	Cookies      CookieConfig
}

// HandleLogin handles POST /auth/login. On success both token cookies are
// set and the user is returned so the client can route on the MFA flags.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if strings.TrimSpace(req.UserName) == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WithMessage("userName and password are required").WriteError(w)
		return
	}

	user, err := h.UserService.Login(ctx, req.UserName, req.Password)
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
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{
		User:    toSDKUser(user),
		Message: "Login successful",
	})
}

// HandleLogout handles GET /auth/logout. It always succeeds: the cookies
// are expired whether or not they named a live session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var userID string
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		id, err := h.TokenService.RevokeByToken(ctx, c.Value)
		if err != nil {
			log.Error("logout: revoke failed", "err", err)
		}
		userID = id
	}
	if userID == "" {
		// No usable refresh cookie; fall back to the access cookie.
		if c, err := r.Cookie(httpx.AccessTokenCookie); err == nil {
			if claims, err := h.TokenService.ValidateAccess(ctx, c.Value); err == nil {
				userID = claims.Subject
				if err := h.TokenService.Revoke(ctx, userID); err != nil {
					log.Error("logout: revoke failed", "err", err)
				}
			}
		}
	}

	if userID != "" {
		if u, err := h.UserService.GetUserByID(ctx, userID); err == nil {
			h.Audit.Info(ctx, u.Username, "User logged out")
		}
	}

	h.Cookies.Clear(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Logged out"})
}

// HandleRefresh handles GET /auth/createNewAccessToken. The user is reloaded
// so the new access token reflects role, lock and MFA changes.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var token string
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		token = c.Value
	}

	res, err := h.TokenService.Refresh(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			if token != "" {
				h.Audit.Warn(ctx, "anonymous", "Refresh token rejected")
			}
			h.Cookies.Clear(w)
		}
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.SetTokens(w, res.Tokens)
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: toSDKUser(res.User)})
}
