package http

import (
	"net/http"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

// actor names the caller in audit entries.
func actor(r *http.Request) string {
	if c, ok := httpx.ClaimsFromContext(r.Context()); ok && c.Username != "" {
		return c.Username
	}
	return httpx.UserIDFromContext(r.Context())
}

// UsersHandler is the user administration API.
type UsersHandler struct {
	UserService *service.UserService
}

// HandleList handles GET /users.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserService.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UsersResponse{Users: toSDKUsers(users)})
}

// HandleGet handles GET /users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.UserService.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: toSDKUser(user)})
}

// HandleCreate handles POST /users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.UserService.CreateUser(r.Context(), actor(r), service.CreateUserInput{
		Name:          req.Name,
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		Roles:         req.Roles,
		MFAEnforced:   req.MFAEnforced,
		EmailVerified: req.EmailVerified,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{User: toSDKUser(user), Message: "User created"})
}

// HandleUpdate handles PUT /users/{id}. Only the fields present in the body
// change.
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.UserService.UpdateUser(r.Context(), actor(r), r.PathValue("id"), service.UpdateUserInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		Roles:         req.Roles,
		MFAEnforced:   req.MFAEnforced,
		EmailVerified: req.EmailVerified,
		AccountLocked: req.AccountLocked,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: toSDKUser(user), Message: "User updated"})
}

// HandleDelete handles DELETE /users/{id}.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	callerID := httpx.UserIDFromContext(r.Context())
	if err := h.UserService.DeleteUser(r.Context(), callerID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "User deleted"})
}
