package httpx

import (
	"net/http"
	"slices"
)

// RequireRole passes only callers whose roles contain role exactly. It must
// run after AuthnMiddleware.
func RequireRole(role string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(RolesFromContext(r.Context()), role) {
				WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCompleteSession rejects callers with an outstanding MFA step:
// enrollment is enforced but missing, or MFA is on but this session has not
// passed an OTP check yet.
func RequireCompleteSession() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			if !c.SessionComplete() {
				WriteError(w, http.StatusForbidden, "mfa_required", "multi-factor authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOTPVerified rejects sessions that have MFA on but have not passed
// an OTP check yet. Sessions without MFA pass, so an enforced user can still
// enroll.
func RequireOTPVerified() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			if c.OTPOutstanding() {
				WriteError(w, http.StatusForbidden, "mfa_required", "multi-factor authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
