package authsdk

import (
	"context"
	"net/http"
)

// StartMFASetup begins TOTP enrollment. An empty userID means the caller.
func (c *SDKClient) StartMFASetup(ctx context.Context, userID string) (*MFASetupResponse, error) {
	var resp MFASetupResponse
	if err := c.call(ctx, http.MethodPost, "/users/startMfaSetup", MFASetupRequest{ID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FinishMFASetup completes enrollment with the first code from the
// authenticator. The service re-issues the cookies.
func (c *SDKClient) FinishMFASetup(ctx context.Context, userID, token string) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodPost, "/users/finishMfaSetup", MFATokenRequest{ID: userID, Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// ValidateOTP completes the second factor for this session.
func (c *SDKClient) ValidateOTP(ctx context.Context, userID, token string) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodPost, "/users/validateOtp", MFATokenRequest{ID: userID, Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// DisableMFA turns MFA off for userID. Disabling another user needs the
// admins role. The returned user is only set for a self-disable.
func (c *SDKClient) DisableMFA(ctx context.Context, userID, execUserID string) (*User, error) {
	var resp UserResponse
	if err := c.call(ctx, http.MethodPost, "/users/disableMfa", DisableMFARequest{ID: userID, ExecUserID: execUserID}, &resp); err != nil {
		return nil, err
	}
	if resp.User.ID == "" {
		return nil, nil
	}
	return &resp.User, nil
}
