package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
)

// Notifier delivers redemption links out of band. Implementations must not
// retry internally; the caller decides what a failure means.
type Notifier interface {
	SendPasswordReset(ctx context.Context, n PasswordResetNotice) error
	SendInvite(ctx context.Context, n InviteNotice) error
}

type PasswordResetNotice struct {
	To          string
	DisplayName string
	Link        string
	ExpiresAt   time.Time
}

type InviteNotice struct {
	To        string
	FirmName  string
	Role      domain.Role
	InvitedBy string
	Link      string
	ExpiresAt time.Time
}

// Metrics receives lifecycle events. A nil Metrics on a service is valid.
type Metrics interface {
	TokenIssued(purpose domain.Purpose)
	TokenRedeemed(purpose domain.Purpose, outcome string)
	Delivery(kind string, err error)
	SessionsRevoked(n int64)
}

// Redemption outcomes reported to Metrics.
const (
	OutcomeSuccess          = "success"
	OutcomeInvalid          = "invalid"
	OutcomeDownstreamFailed = "downstream_failed"
)

type nopMetrics struct{}

func (nopMetrics) TokenIssued(domain.Purpose)           {}
func (nopMetrics) TokenRedeemed(domain.Purpose, string) {}
func (nopMetrics) Delivery(string, error)               {}
func (nopMetrics) SessionsRevoked(int64)                {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
