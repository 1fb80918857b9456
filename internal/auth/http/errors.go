package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/pkg/authsdk"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
)

// apiErrorFor maps a service error onto the wire error. Anything it does
// not recognise is a server error.
func apiErrorFor(err error) *authsdk.APIError {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return authsdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrAccountLocked):
		return authsdk.ErrAccountLocked
	case errors.Is(err, service.ErrInvalidToken):
		return authsdk.ErrUnauthorized
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return authsdk.ErrInvalidRefreshToken
	case errors.Is(err, service.ErrInvalidOTP):
		return authsdk.ErrInvalidOTP
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		return authsdk.ErrMFAAlreadyEnabled
	case errors.Is(err, service.ErrMFANotPending):
		return authsdk.ErrMFANotPending
	case errors.Is(err, service.ErrMFANotEnabled):
		return authsdk.ErrMFANotEnabled
	case errors.Is(err, service.ErrForbidden):
		return authsdk.ErrForbidden
	case errors.Is(err, service.ErrUserNotFound):
		return authsdk.ErrNotFound.WithMessage("user not found")
	case errors.Is(err, store.ErrNotFound):
		return authsdk.ErrNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return authsdk.ErrInvalidRequest.WithMessage(detail(err, service.ErrInvalidInput))
	case errors.Is(err, service.ErrConflict):
		return authsdk.ErrConflict.WithMessage(detail(err, service.ErrConflict))
	default:
		return authsdk.ErrServerError
	}
}

// detail strips the sentinel prefix from a wrapped message.
func detail(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apiErrorFor(err)
	log := slogx.FromContext(r.Context())
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	} else {
		log.Debug("request rejected", "code", apiErr.Code, "err", err)
	}
	apiErr.WriteError(w)
}
