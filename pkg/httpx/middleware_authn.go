package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/tenantadmin/pkg/jwtx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
)

// AccessTokenCookie carries the access JWT. It is the only place the
// gateway looks for credentials; headers are ignored.
const AccessTokenCookie = "accessToken"

// AuthnMiddleware verifies the access cookie and injects the claims into the
// request context. Every failure produces the same 401 body.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cookie, err := r.Cookie(AccessTokenCookie)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w)
				return
			}

			claims, err := v.Verify(cookie.Value)
			if err != nil {
				slogx.FromContext(ctx).Debug("access token rejected", "err", err)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
}
