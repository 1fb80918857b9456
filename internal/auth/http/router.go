package http

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
)

// LimiterFactory builds the limiter behind one rate limited route. name is
// unique per route.
type LimiterFactory func(name string, cfg httpx.RateLimitConfig) httpx.Limiter

// RouterConfig carries the knobs the router needs beyond its services.
type RouterConfig struct {
	BuildVersion string
	Cookies      CookieConfig

	// EnforceMFA puts RequireCompleteSession in front of the admin routes.
	EnforceMFA bool

	CORSOrigins []string

	// NewLimiter defaults to in-memory token buckets.
	NewLimiter LimiterFactory

	// Gatherer backs /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer

	// TrustedProxies may set X-Forwarded-For. Empty means rate limits key on
	// the connection address alone.
	TrustedProxies []netip.Prefix
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	cfg       RouterConfig
	clientIP  httpx.KeyExtractor
	startTime time.Time
	logger    *slog.Logger
	store     store.Store

	TokenService    *service.TokenService
	UserService     *service.UserService
	MFAService      *service.MFAService
	RolesService    *service.RolesService
	SettingsService *service.SettingsService
	AuditService    *service.AuditService
	Metrics         *metrics.Metrics
}

func NewRouter(cfg RouterConfig, st store.Store, logger *slog.Logger) *Router {
	if cfg.NewLimiter == nil {
		cfg.NewLimiter = func(_ string, c httpx.RateLimitConfig) httpx.Limiter {
			return httpx.NewMemoryLimiter(c)
		}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	r := &Router{
		Mux:       http.NewServeMux(),
		cfg:       cfg,
		clientIP:  httpx.ClientIPKeyExtractor(cfg.TrustedProxies),
		startTime: time.Now(),
		store:     st,
		logger:    logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.CORS(cfg.CORSOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerUsers()
	r.registerRoles()
	r.registerSettings()
	r.registerAudit()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limit builds a rate limit middleware with its own limiter. Rejections are
// counted under name.
func (r *Router) limit(name string, cfg httpx.RateLimitConfig, key httpx.KeyExtractor) httpx.Middleware {
	return httpx.RateLimitMiddleware(r.cfg.NewLimiter(name, cfg), key,
		httpx.WithRejectHook(func(*http.Request) { r.Metrics.RateLimited(name) }),
	)
}

// authenticated is the chain for routes any logged in user may call.
func (r *Router) authenticated(h http.HandlerFunc, name string, cfg httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.TokenService.AccessVerifier),
		r.limit(name, cfg, httpx.UserIDKeyExtractor),
	)
}

// adminChain returns the middleware for one group of administration routes.
// Routes in a group share a rate limit bucket per user.
func (r *Router) adminChain(name string) func(http.HandlerFunc) http.Handler {
	mws := []httpx.Middleware{
		httpx.AuthnMiddleware(r.TokenService.AccessVerifier),
		httpx.RequireRole(domain.AdminRole),
	}
	if r.cfg.EnforceMFA {
		mws = append(mws, httpx.RequireCompleteSession())
	}
	mws = append(mws, r.limit(name, httpx.ModerateLimit, httpx.UserIDKeyExtractor))
	return func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, mws...)
	}
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		TokenService: r.TokenService,
		UserService:  r.UserService,
		Audit:        r.AuditService,
		Cookies:      r.cfg.Cookies,
	}

	// Brute force protection: one bucket per client address and user name,
	// plus a wider one per user name that holds however many addresses the
	// guesses come from.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			r.limit("login_user", httpx.ModerateLimit, httpx.JSONFieldKeyExtractor("userName")),
			r.limit("login", httpx.StrictLimit,
				httpx.CompositeKeyExtractor("|", r.clientIP, httpx.JSONFieldKeyExtractor("userName"))),
		),
	)
	r.Mux.Handle("GET /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.limit("logout", httpx.LenientLimit, r.clientIP),
		),
	)
	r.Mux.Handle("GET /auth/createNewAccessToken",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			r.limit("refresh", httpx.LenientLimit, r.clientIP),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		MFAService:   r.MFAService,
		UserService:  r.UserService,
		TokenService: r.TokenService,
		Cookies:      r.cfg.Cookies,
	}

	r.Mux.Handle("POST /users/startMfaSetup", r.authenticated(h.HandleStart, "mfa_start", httpx.ModerateLimit))
	// OTP guessing is the attack here; both code endpoints get the strict profile.
	r.Mux.Handle("POST /users/finishMfaSetup", r.authenticated(h.HandleFinish, "mfa_finish", httpx.StrictLimit))
	r.Mux.Handle("POST /users/validateOtp", r.authenticated(h.HandleValidate, "mfa_validate", httpx.StrictLimit))
	// Turning MFA off is only possible from a session that has passed it.
	r.Mux.Handle("POST /users/disableMfa", httpx.Chain(http.HandlerFunc(h.HandleDisable),
		httpx.AuthnMiddleware(r.TokenService.AccessVerifier),
		httpx.RequireOTPVerified(),
		r.limit("mfa_disable", httpx.ModerateLimit, httpx.UserIDKeyExtractor),
	))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{UserService: r.UserService}
	secured := r.adminChain("users")

	r.Mux.Handle("GET /users", secured(h.HandleList))
	r.Mux.Handle("POST /users", secured(h.HandleCreate))
	r.Mux.Handle("GET /users/{id}", secured(h.HandleGet))
	r.Mux.Handle("PUT /users/{id}", secured(h.HandleUpdate))
	r.Mux.Handle("DELETE /users/{id}", secured(h.HandleDelete))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{RolesService: r.RolesService}
	secured := r.adminChain("roles")

	r.Mux.Handle("GET /roles", secured(h.HandleList))
	r.Mux.Handle("POST /roles", secured(h.HandleCreate))
	r.Mux.Handle("DELETE /roles/{name}", secured(h.HandleDelete))
}

func (r *Router) registerSettings() {
	h := &SettingsHandler{SettingsService: r.SettingsService}
	secured := r.adminChain("settings")

	r.Mux.Handle("GET /settings", secured(h.HandleList))
	r.Mux.Handle("PUT /settings/{key}", secured(h.HandlePut))
}

func (r *Router) registerAudit() {
	h := &AuditHandler{AuditService: r.AuditService}

	r.Mux.Handle("GET /auditlogs", r.adminChain("auditlogs")(h.HandleList))
}

func (r *Router) registerSystem() {
	// Probes are polled often; they get the lenient profile.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.cfg.BuildVersion),
			r.limit("livez", httpx.LenientLimit, r.clientIP),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.cfg.BuildVersion, r.store, r.TokenService.AccessSigner),
			r.limit("readyz", httpx.LenientLimit, r.clientIP),
		),
	)
	r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.cfg.Gatherer, promhttp.HandlerOpts{}))
}
