/*
Package authsdk is the Go client for the tenantadmin auth service.

# SDKClient and Guard

SDKClient wraps the HTTP endpoints. The service only ever hands tokens out as
HTTP-only cookies, so the client keeps them in a cookie jar:

	client := authsdk.NewSDKClient("https://admin.example.com")
	user, err := client.Login(ctx, "ada", "secret")

Guard is the session on top of it. It tracks where the user stands
(anonymous, waiting on MFA, active), answers route checks, logs out after a
period of inactivity, and recovers from an expired access token with one
silent refresh:

	g := authsdk.NewGuard(authsdk.GuardConfig{Client: client})
	if err := g.Login(ctx, "ada", "secret"); err != nil { ... }

	switch g.State() {
	case authsdk.StateMfaChallenge:
		err = g.VerifyOTP(ctx, code)
	case authsdk.StateMfaPending:
		setup, err := g.StartEnrollment(ctx)
		...
	}

	d := g.Check(authsdk.Route{Path: "/users", Require: authsdk.RequireAuthenticated})
	if !d.Allow {
		navigate(d.Redirect)
	}

	req, _ := http.NewRequest(http.MethodGet, client.BaseURL+"/users", nil)
	resp, err := g.Do(ctx, req)

# Errors

Every failure from the service is an *APIError. Compare with errors.Is
against the predefined values:

	if errors.Is(err, authsdk.ErrInvalidOTP) {
		// ask again
	}

ErrInvalidRefreshToken ends the session. ErrRateLimited and
ErrServiceUnavailable move the Guard to StateServiceUnavailable without
logging out.
*/
package authsdk
