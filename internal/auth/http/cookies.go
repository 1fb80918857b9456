package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
)

const RefreshTokenCookie = "refreshToken"

// CookieConfig controls the attributes of the token cookies. Both cookies
// are always HttpOnly and SameSite=Strict.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (c CookieConfig) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// SetTokens writes whichever tokens pair carries.
func (c CookieConfig) SetTokens(w http.ResponseWriter, pair domain.TokenPair) {
	if pair.AccessToken != "" {
		http.SetCookie(w, c.cookie(httpx.AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt))
	}
	if pair.RefreshToken != "" {
		http.SetCookie(w, c.cookie(RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt))
	}
}

// Clear expires both token cookies.
func (c CookieConfig) Clear(w http.ResponseWriter) {
	for _, name := range []string{httpx.AccessTokenCookie, RefreshTokenCookie} {
		ck := c.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}
