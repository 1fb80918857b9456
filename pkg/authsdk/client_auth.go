package authsdk

import (
	"context"
	"net/http"
)

// Login posts credentials. On success the service sets the token cookies
// and returns the user with the MFA flags that decide where to go next.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", LoginRequest{UserName: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Logout revokes the refresh token and clears the cookies.
func (c *SDKClient) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/auth/logout", nil, nil)
}

// RefreshAccessToken trades the refresh cookie for a new access cookie and
// returns the user as the new token describes them.
func (c *SDKClient) RefreshAccessToken(ctx context.Context) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodGet, "/auth/createNewAccessToken", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}
