package http

import "time"

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type PasswordResetResponse struct {
	Status string `json:"status"`

	// ResetLink is only present when link exposure is enabled for development.
	ResetLink string `json:"reset_link,omitempty"`
}

type PasswordResetRedeemRequest struct {
	Token       string `json:"token" validate:"required,notblank"`
	NewPassword string `json:"new_password" validate:"required"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type InviteRequest struct {
	FirmID string `json:"firm_id" validate:"required,notblank"`
	Role   string `json:"role" validate:"required,oneof=accountant client"`
	Email  string `json:"email" validate:"required,email,max=254"`
}

type InviteResponse struct {
	InviteToken   string    `json:"invite_token"`
	InviteLink    string    `json:"invite_link"`
	ExpiresAt     time.Time `json:"expires_at"`
	DeliveryError string    `json:"delivery_error,omitempty"`
}

// InviteRedeemRequest accepts firm_id and role so links that echo them back
// keep working. They never influence the grant.
type InviteRedeemRequest struct {
	Token       string `json:"token" validate:"required,notblank"`
	Purpose     string `json:"purpose" validate:"required,oneof=invite-accountant invite-client"`
	DisplayName string `json:"display_name" validate:"required,notblank,max=100"`
	Password    string `json:"password" validate:"required"`
	FirmID      string `json:"firm_id,omitempty"`
	Role        string `json:"role,omitempty"`
}

type InviteRedeemResponse struct {
	UserID           string     `json:"user_id"`
	FirmID           string     `json:"firm_id"`
	Role             string     `json:"role"`
	SessionToken     string     `json:"session_token,omitempty"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

type SessionResponse struct {
	SessionToken string    `json:"session_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type MembershipResponse struct {
	FirmID string `json:"firm_id"`
	Role   string `json:"role"`
}

type MeResponse struct {
	UserID         string               `json:"user_id"`
	Email          string               `json:"email"`
	DisplayName    string               `json:"display_name"`
	SessionID      string               `json:"session_id"`
	ActiveSessions int                  `json:"active_sessions"`
	Memberships    []MembershipResponse `json:"memberships"`
}

type BootstrapRequest struct {
	FirmName         string `json:"firm_name" validate:"required,notblank,max=200"`
	AdminEmail       string `json:"admin_email" validate:"required,email,max=254"`
	AdminDisplayName string `json:"admin_display_name" validate:"required,notblank,max=100"`
	AdminPassword    string `json:"admin_password" validate:"required"`
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
