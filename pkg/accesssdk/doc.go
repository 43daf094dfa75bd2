/*
Package accesssdk is a Go client for the Ledgerdrop access service.

# SDKClient vs Session

SDKClient covers the public endpoints: password reset, invite redemption,
sign-in, bootstrap and health. Signing in, or redeeming an invite, yields a
Session that carries the bearer token for the authenticated endpoints:

	client := accesssdk.NewSDKClient("https://access.ledgerdrop.example")

	// Ask for a reset link. The answer is the same whether or not the
	// address has an account.
	err := client.RequestPasswordReset(ctx, "user@example.com")

	// Sign in and invite a client to the firm.
	session, err := client.Login(ctx, "admin@example.com", password)
	invite, err := session.Invite(ctx, accesssdk.InviteRequest{
		FirmID: firmID,
		Role:   accesssdk.RoleClient,
		Email:  "client@example.com",
	})

Sessions do not refresh. Once the server rejects the token, sign in again.

# Errors

Every non-2xx answer is returned as *APIError. Use the helpers to branch on
the common cases:

	err := client.RedeemPasswordReset(ctx, token, newPassword)
	switch {
	case accesssdk.IsInvalidToken(err):
		// expired, already used, superseded or never issued
	case accesssdk.IsDownstreamFailure(err):
		// the token is spent; request a new one
	}

Invalid request bodies carry the offending fields in APIError.Fields.

# Thread Safety

SDKClient and Session are safe for concurrent use.
*/
package accesssdk
