package accesssdk

import "time"

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error            string       `json:"error"`
	ErrorDescription string       `json:"error_description"`
	Fields           []FieldError `json:"fields,omitempty"`
}

// Firm roles an invite can grant.
const (
	RoleAccountant = "accountant"
	RoleClient     = "client"
)

// Token purposes accepted by RedeemInvite.
const (
	PurposeInviteAccountant = "invite-accountant"
	PurposeInviteClient     = "invite-client"
)

// InvitePurpose returns the purpose that matches an invite role.
func InvitePurpose(role string) string {
	if role == RoleAccountant {
		return PurposeInviteAccountant
	}
	return PurposeInviteClient
}

// ============================================================================
// Password Reset
// ============================================================================

type PasswordResetResponse struct {
	Status string `json:"status"`

	// ResetLink is only filled by development deployments.
	ResetLink string `json:"reset_link,omitempty"`
}

// ============================================================================
// Invites
// ============================================================================

type InviteRequest struct {
	FirmID string `json:"firm_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
}

type InviteResponse struct {
	InviteToken string    `json:"invite_token"`
	InviteLink  string    `json:"invite_link"`
	ExpiresAt   time.Time `json:"expires_at"`

	// DeliveryError is set when the email could not be sent. The invite is
	// still valid and the link can be passed on by other means.
	DeliveryError string `json:"delivery_error,omitempty"`
}

type InviteRedeemRequest struct {
	Token       string `json:"token"`
	Purpose     string `json:"purpose"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type InviteRedeemResponse struct {
	UserID           string     `json:"user_id"`
	FirmID           string     `json:"firm_id"`
	Role             string     `json:"role"`
	SessionToken     string     `json:"session_token,omitempty"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

// ============================================================================
// Sessions
// ============================================================================

type SessionResponse struct {
	SessionToken string    `json:"session_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Membership struct {
	FirmID string `json:"firm_id"`
	Role   string `json:"role"`
}

type MeResponse struct {
	UserID         string       `json:"user_id"`
	Email          string       `json:"email"`
	DisplayName    string       `json:"display_name"`
	SessionID      string       `json:"session_id"`
	ActiveSessions int          `json:"active_sessions"`
	Memberships    []Membership `json:"memberships"`
}

// ============================================================================
// Bootstrap & Health
// ============================================================================

type BootstrapRequest struct {
	FirmName         string `json:"firm_name"`
	AdminEmail       string `json:"admin_email"`
	AdminDisplayName string `json:"admin_display_name"`
	AdminPassword    string `json:"admin_password"`
}

type BootstrapResponse struct {
	FirmID      string `json:"firm_id"`
	AdminUserID string `json:"admin_user_id"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}
