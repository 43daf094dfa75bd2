package domain

import (
	"strings"
	"time"
)

// Purpose scopes what redeeming a token is allowed to do.
type Purpose string

const (
	PurposePasswordReset    Purpose = "password-reset"
	PurposeInviteAccountant Purpose = "invite-accountant"
	PurposeInviteClient     Purpose = "invite-client"
)

const (
	PasswordResetTTL = time.Hour
	InviteTTL        = 48 * time.Hour
)

// ParsePurpose returns the purpose named by s.
func ParsePurpose(s string) (Purpose, bool) {
	switch p := Purpose(strings.TrimSpace(s)); p {
	case PurposePasswordReset, PurposeInviteAccountant, PurposeInviteClient:
		return p, true
	}
	return "", false
}

// IsInvite reports whether the purpose creates an account on redemption.
func (p Purpose) IsInvite() bool {
	return p == PurposeInviteAccountant || p == PurposeInviteClient
}

// InvitePurpose maps the role being granted to the invite purpose carrying it.
func InvitePurpose(role Role) (Purpose, bool) {
	switch role {
	case RoleAccountant:
		return PurposeInviteAccountant, true
	case RoleClient:
		return PurposeInviteClient, true
	}
	return "", false
}

// Token is a single-use credential. Only the digest of the secret is stored.
// Rows never change after insert except for the one ConsumedAt write.
type Token struct {
	ID           string
	SubjectID    string
	Purpose      Purpose
	SecretDigest string
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
	CreatedAt    time.Time

	// Invite payload, empty for password resets. Redemption uses these and
	// never values supplied by the redeemer.
	FirmID      string
	Role        Role
	TargetEmail string
	CreatedBy   string
}

// Consumed reports whether the token has been redeemed.
func (t Token) Consumed() bool { return t.ConsumedAt != nil }

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// InviteSubject keys invites by firm and address so invites from different
// firms to the same person do not supersede each other.
func InviteSubject(firmID, email string) string {
	return firmID + "/" + NormalizeEmail(email)
}
