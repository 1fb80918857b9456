package authsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// State is where the client session stands. Only StateActive may render
// protected routes.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateMfaPending   // MFA enforced but not enrolled
	StateMfaChallenge // MFA enrolled but not verified this session
	StateActive
	StateServiceUnavailable
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateMfaPending:
		return "mfa_pending"
	case StateMfaChallenge:
		return "mfa_challenge"
	case StateActive:
		return "active"
	case StateServiceUnavailable:
		return "service_unavailable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Well known client routes used as redirect targets.
const (
	LoginPath       = "/login"
	HomePath        = "/"
	MFASetupPath    = "/mfa/setup"
	MFAVerifyPath   = "/mfa/verify"
	UnavailablePath = "/unavailable"
)

type Requirement int

const (
	RequireNonAuthenticated Requirement = iota
	RequireAuthenticated
)

type Route struct {
	Path    string
	Require Requirement
}

// Decision is the outcome of a route check. When Allow is false the caller
// navigates to Redirect.
type Decision struct {
	Allow    bool
	Redirect string
}

var errSessionEnded = errors.New("authsdk: session ended")

type GuardConfig struct {
	Client *SDKClient
	Store  SessionStore // defaults to a MemoryStore
	Clock  clockwork.Clock
	Logger *slog.Logger

	IdleThreshold time.Duration // defaults to DefaultIdleThreshold
	WarningLead   time.Duration // defaults to DefaultWarningLead

	// OnIdleWarning is called with the countdown left before logout.
	OnIdleWarning func(remaining time.Duration)
	// OnIdleTimeout is called after the guard has logged out for inactivity.
	OnIdleTimeout func()
	// OnStateChange observes every transition.
	OnStateChange func(from, to State)
}

// Guard is the client-side session: it owns the auth state, the idle timer
// and the refresh-and-replay logic for authenticated requests. All methods
// are safe for concurrent use.
type Guard struct {
	client *SDKClient
	store  SessionStore
	logger *slog.Logger
	idle   *IdleTimer

	onIdleTimeout func()
	onStateChange func(from, to State)

	refreshGroup singleflight.Group

	mu      sync.Mutex
	state   State
	user    *User
	gen     uint64
	sessCtx context.Context
	cancel  context.CancelFunc
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WarningLead == 0 {
		cfg.WarningLead = DefaultWarningLead
	}
	g := &Guard{
		client:        cfg.Client,
		store:         cfg.Store,
		logger:        cfg.Logger,
		onIdleTimeout: cfg.OnIdleTimeout,
		onStateChange: cfg.OnStateChange,
		state:         StateAnonymous,
	}
	g.sessCtx, g.cancel = context.WithCancel(context.Background())
	g.idle = NewIdleTimer(cfg.Clock, cfg.IdleThreshold, cfg.WarningLead, cfg.OnIdleWarning, g.idleTimeout)
	return g
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// User returns a copy of the current user, or nil when anonymous.
func (g *Guard) User() *User {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return nil
	}
	u := *g.user
	return &u
}

// IdleTimer exposes the timer so a UI can show the countdown.
func (g *Guard) IdleTimer() *IdleTimer { return g.idle }

// Restore picks up a persisted session, for example after an app restart.
func (g *Guard) Restore(ctx context.Context) error {
	u, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if u == nil {
		g.setState(StateAnonymous)
		return nil
	}
	g.adopt(*u)
	return nil
}

// Login authenticates and moves to the state the user's MFA flags call for.
// Any previous session is dropped first, whether or not the new login works.
func (g *Guard) Login(ctx context.Context, username, password string) error {
	g.endSession()
	if err := g.store.Clear(ctx); err != nil {
		g.logger.Debug("clear previous session", slog.Any("error", err))
	}
	g.setState(StateAuthenticating)

	u, err := g.client.Login(ctx, username, password)
	if err != nil {
		if IsRetryable(err) {
			g.setState(StateServiceUnavailable)
		} else {
			g.setState(StateAnonymous)
		}
		return err
	}

	if err := g.store.Save(ctx, *u); err != nil {
		g.setState(StateAnonymous)
		return fmt.Errorf("save session: %w", err)
	}
	g.adopt(*u)
	return nil
}

// StartEnrollment begins TOTP setup for the current user.
func (g *Guard) StartEnrollment(ctx context.Context) (*MFASetupResponse, error) {
	u := g.User()
	if u == nil {
		return nil, ErrUnauthorized
	}
	var resp *MFASetupResponse
	err := g.call(ctx, func() (err error) {
		resp, err = g.client.StartMFASetup(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// FinishEnrollment submits the first code. An invalid code leaves the state
// alone so the user can try again.
func (g *Guard) FinishEnrollment(ctx context.Context, code string) error {
	u := g.User()
	if u == nil {
		return ErrUnauthorized
	}
	var updated *User
	err := g.call(ctx, func() (err error) {
		updated, err = g.client.FinishMFASetup(ctx, u.ID, code)
		return err
	})
	return g.afterOTP(ctx, updated, err)
}

// VerifyOTP completes the MFA challenge for this session.
func (g *Guard) VerifyOTP(ctx context.Context, code string) error {
	u := g.User()
	if u == nil {
		return ErrUnauthorized
	}
	var updated *User
	err := g.call(ctx, func() (err error) {
		updated, err = g.client.ValidateOTP(ctx, u.ID, code)
		return err
	})
	return g.afterOTP(ctx, updated, err)
}

func (g *Guard) afterOTP(ctx context.Context, u *User, err error) error {
	if err != nil {
		return err
	}
	if err := g.store.Save(ctx, *u); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	g.adopt(*u)
	return nil
}

// DisableMFA turns off the current user's MFA.
func (g *Guard) DisableMFA(ctx context.Context) error {
	u := g.User()
	if u == nil {
		return ErrUnauthorized
	}
	var updated *User
	err := g.call(ctx, func() (err error) {
		updated, err = g.client.DisableMFA(ctx, u.ID, u.ID)
		return err
	})
	if err != nil {
		return err
	}
	if updated != nil {
		return g.afterOTP(ctx, updated, nil)
	}
	return nil
}

// call runs one typed client call with the recovery Do applies to raw
// requests: a 401 triggers one shared refresh and one retry, and a second
// 401 ends the session.
func (g *Guard) call(ctx context.Context, op func() error) error {
	err := op()
	if errors.Is(err, ErrUnauthorized) {
		if err := g.refresh(ctx); err != nil {
			return err
		}
		err = op()
		if errors.Is(err, ErrUnauthorized) {
			g.forceLogout(ctx, "unauthorized after refresh")
			return ErrUnauthorized
		}
	}
	if IsRetryable(err) {
		g.setState(StateServiceUnavailable)
		return err
	}
	g.recoverState()
	return err
}

// Check decides whether route may be shown in the current state.
func (g *Guard) Check(route Route) Decision {
	switch g.State() {
	case StateActive:
		if route.Require == RequireNonAuthenticated {
			return Decision{Redirect: HomePath}
		}
		return Decision{Allow: true}
	case StateMfaPending:
		if route.Path == MFASetupPath {
			return Decision{Allow: true}
		}
		return Decision{Redirect: MFASetupPath}
	case StateMfaChallenge:
		if route.Path == MFAVerifyPath {
			return Decision{Allow: true}
		}
		return Decision{Redirect: MFAVerifyPath}
	case StateServiceUnavailable:
		if route.Path == UnavailablePath {
			return Decision{Allow: true}
		}
		return Decision{Redirect: UnavailablePath}
	default:
		if route.Require == RequireAuthenticated {
			return Decision{Redirect: LoginPath}
		}
		return Decision{Allow: true}
	}
}

// RecordActivity restarts the idle window while the session is active.
func (g *Guard) RecordActivity() {
	if g.State() == StateActive {
		g.idle.Reset()
	}
}

// Do sends an authenticated request. A 401 triggers one silent refresh and
// one replay; concurrent callers share the refresh. Requests with a body
// must have GetBody set, which http.NewRequest does for the common readers.
func (g *Guard) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := g.attempt(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	if err := g.refresh(ctx); err != nil {
		return nil, err
	}

	resp, err = g.attempt(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		g.forceLogout(ctx, "unauthorized after refresh")
		return nil, ErrUnauthorized
	}
	return resp, nil
}

func (g *Guard) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		r.Body = body
	}

	resp, err := g.client.send(r)
	if err != nil {
		g.noteFailure(err)
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		drain(resp)
		g.setState(StateServiceUnavailable)
		return nil, ErrRateLimited
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		drain(resp)
		g.setState(StateServiceUnavailable)
		return nil, ErrServiceUnavailable
	}
	g.recoverState()
	return resp, nil
}

// recoverState leaves StateServiceUnavailable once the service answers again.
func (g *Guard) recoverState() {
	if g.State() != StateServiceUnavailable {
		return
	}
	if u := g.User(); u != nil {
		g.adopt(*u)
		return
	}
	g.setState(StateAnonymous)
}

// refresh runs at most one refresh at a time. The call is bound to the
// session context, so Logout aborts it, and a result that lands after the
// session ended is thrown away.
func (g *Guard) refresh(ctx context.Context) error {
	g.mu.Lock()
	gen, sessCtx := g.gen, g.sessCtx
	g.mu.Unlock()

	ch := g.refreshGroup.DoChan(fmt.Sprintf("refresh-%d", gen), func() (any, error) {
		u, err := g.client.RefreshAccessToken(sessCtx)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		current := g.gen == gen
		g.mu.Unlock()
		if !current {
			return nil, errSessionEnded
		}
		if err := g.store.Save(sessCtx, *u); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		g.adopt(*u)
		return u, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	switch {
	case res.Err == nil:
		return nil
	case IsRetryable(res.Err):
		g.setState(StateServiceUnavailable)
		return res.Err
	case errors.Is(res.Err, errSessionEnded), errors.Is(res.Err, context.Canceled):
		return ErrUnauthorized
	default:
		g.logger.Debug("refresh failed", slog.Any("error", res.Err))
		g.forceLogout(ctx, "refresh rejected")
		return ErrInvalidRefreshToken
	}
}

// Logout ends the session: timers and any in-flight refresh are cancelled,
// the server is told (best effort) and the stored user is cleared.
func (g *Guard) Logout(ctx context.Context) error {
	g.endSession()
	if err := g.client.Logout(ctx); err != nil {
		g.logger.Debug("logout request failed", slog.Any("error", err))
	}
	return g.finishLogout(ctx)
}

func (g *Guard) forceLogout(ctx context.Context, reason string) {
	g.logger.Info("session ended", slog.String("reason", reason))
	g.endSession()
	_ = g.finishLogout(ctx)
}

func (g *Guard) finishLogout(ctx context.Context) error {
	err := g.store.Clear(ctx)
	g.setState(StateAnonymous)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (g *Guard) idleTimeout() {
	_ = g.Logout(context.Background())
	if g.onIdleTimeout != nil {
		g.onIdleTimeout()
	}
}

// endSession invalidates the current session context and generation.
func (g *Guard) endSession() {
	g.idle.Cancel()
	g.mu.Lock()
	g.cancel()
	g.gen++
	g.user = nil
	g.sessCtx, g.cancel = context.WithCancel(context.Background())
	g.mu.Unlock()
}

// adopt records u as the current user and derives the state from its MFA
// flags.
func (g *Guard) adopt(u User) {
	next := stateFor(u)
	g.mu.Lock()
	g.user = &u
	g.mu.Unlock()

	g.setState(next)
	if next == StateActive {
		if !g.idle.Armed() {
			g.idle.Start()
		}
	} else {
		g.idle.Cancel()
	}
}

func (g *Guard) noteFailure(err error) {
	if IsRetryable(err) {
		g.setState(StateServiceUnavailable)
	}
}

func (g *Guard) setState(next State) {
	g.mu.Lock()
	prev := g.state
	g.state = next
	cb := g.onStateChange
	g.mu.Unlock()
	if cb != nil && prev != next {
		cb(prev, next)
	}
}

func stateFor(u User) State {
	switch {
	case u.MFAEnforced && !u.MFAEnabled:
		return StateMfaPending
	case u.MFAEnabled && !u.MFAVerified:
		return StateMfaChallenge
	default:
		return StateActive
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
