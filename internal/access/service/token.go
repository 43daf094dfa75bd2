package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/idx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 256

	maxDisplayNameLength   = 100
	defaultDeliveryTimeout = 15 * time.Second
)

// Redemption link paths, relative to TokenConfig.PublicOrigin.
const (
	ResetPath  = "/reset-password"
	InvitePath = "/accept-invite"
)

type TokenConfig struct {
	// PublicOrigin is the scheme and host redemption links point at.
	PublicOrigin string

	ResetTTL  time.Duration
	InviteTTL time.Duration

	// ExposeResetLinks lets callers of RequestPasswordReset see the link.
	// It leaks account existence and must stay off outside development.
	ExposeResetLinks bool

	// DeliveryTimeout bounds a single notification attempt.
	DeliveryTimeout time.Duration
}

// SessionManager is the part of SessionService the token lifecycle needs.
type SessionManager interface {
	Create(ctx context.Context, userID string) (SessionGrant, error)
	RevokeAll(ctx context.Context, userID string) error
}

// TokenService issues and redeems password-reset and invite tokens.
type TokenService struct {
	Store     store.Store
	Generator SecretGenerator
	Notifier  Notifier
	Sessions  SessionManager
	Hasher    *cryptox.PasswordHasher
	Metrics   Metrics
	Config    TokenConfig

	// Now defaults to time.Now.
	Now func() time.Time
}

// IssueResult is returned by both issuance operations. Token and Link hold
// the raw secret and are empty when nothing was issued.
type IssueResult struct {
	Token     string
	Link      string
	ExpiresAt time.Time

	// DeliveryErr is set when the notification failed. The token is still
	// valid and can be handed over manually.
	DeliveryErr error
}

type InviteRequest struct {
	FirmID string
	Role   domain.Role
	Email  string
}

// AccountDetails is what an invitee supplies when redeeming. FirmID and Role
// are accepted for compatibility with older links but never used; the grant
// always comes from the token.
type AccountDetails struct {
	DisplayName string
	Password    string
	FirmID      string
	Role        domain.Role
}

type InviteRedemption struct {
	User       domain.User
	Membership domain.Membership

	// Session is nil if the account was created but signing in failed.
	Session *SessionGrant
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TokenService) ttl(p domain.Purpose) time.Duration {
	if p == domain.PurposePasswordReset {
		if s.Config.ResetTTL > 0 {
			return s.Config.ResetTTL
		}
		return domain.PasswordResetTTL
	}
	if s.Config.InviteTTL > 0 {
		return s.Config.InviteTTL
	}
	return domain.InviteTTL
}

// RequestPasswordReset issues a reset token for the account registered under
// email and mails the link. An unknown address yields an empty result and no
// error, indistinguishable at the API from a successful request.
func (s *TokenService) RequestPasswordReset(ctx context.Context, email string) (IssueResult, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate input
	email, err := normalizeEmail(email)
	if err != nil {
		return IssueResult{}, err
	}

	// 2. Resolve subject
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("password reset requested for unknown email")
		return IssueResult{}, nil
	}
	if err != nil {
		log.Error("failed to look up user for password reset", slog.Any("error", err))
		return IssueResult{}, err
	}

	// 3. Supersede, generate and store
	tok, raw, err := s.issue(ctx, domain.Token{
		SubjectID: user.ID,
		Purpose:   domain.PurposePasswordReset,
	})
	if err != nil {
		return IssueResult{}, err
	}

	res := IssueResult{
		Token:     raw,
		Link:      s.link(ResetPath, url.Values{"token": {raw}}),
		ExpiresAt: tok.ExpiresAt,
	}

	// 4. Deliver out of band; failure does not undo issuance
	res.DeliveryErr = s.deliver(ctx, "password_reset", func(ctx context.Context) error {
		return s.Notifier.SendPasswordReset(ctx, PasswordResetNotice{
			To:          user.Email,
			DisplayName: user.DisplayName,
			Link:        res.Link,
			ExpiresAt:   res.ExpiresAt,
		})
	})

	log.Info("password reset issued",
		slog.String("user_id", user.ID),
		slog.String("token_id", tok.ID),
		slog.Bool("delivered", res.DeliveryErr == nil),
	)
	return res, nil
}

// IssueInvite issues an invite for req.Email to join req.FirmID with req.Role.
// The caller must be a firm admin of that firm.
func (s *TokenService) IssueInvite(ctx context.Context, caller Principal, req InviteRequest) (IssueResult, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate input
	purpose, ok := domain.InvitePurpose(req.Role)
	if !ok {
		return IssueResult{}, fmt.Errorf("%w: role must be %q or %q", ErrInvalidInput, domain.RoleAccountant, domain.RoleClient)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return IssueResult{}, err
	}
	if strings.TrimSpace(req.FirmID) == "" {
		return IssueResult{}, fmt.Errorf("%w: firm is required", ErrInvalidInput)
	}

	// 2. Caller must administer the firm
	membership, err := s.Store.Memberships().GetMembership(ctx, req.FirmID, caller.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && membership.Role != domain.RoleFirmAdmin) {
		log.Warn("invite attempted without firm admin membership",
			slog.String("user_id", caller.UserID),
			slog.String("firm_id", req.FirmID),
		)
		return IssueResult{}, ErrUnauthorized
	}
	if err != nil {
		log.Error("failed to check membership", slog.Any("error", err))
		return IssueResult{}, err
	}

	firm, err := s.Store.Firms().GetFirmByID(ctx, req.FirmID)
	if err != nil {
		log.Error("failed to load firm", slog.Any("error", err))
		return IssueResult{}, err
	}
	inviter, err := s.Store.Users().GetUserByID(ctx, caller.UserID)
	if err != nil {
		log.Error("failed to load inviter", slog.Any("error", err))
		return IssueResult{}, err
	}

	// 3. Invites create accounts, so the address must be free
	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return IssueResult{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to check email availability", slog.Any("error", err))
		return IssueResult{}, err
	}

	// 4. Supersede, generate and store with the grant as payload
	tok, raw, err := s.issue(ctx, domain.Token{
		SubjectID:   domain.InviteSubject(firm.ID, email),
		Purpose:     purpose,
		FirmID:      firm.ID,
		Role:        req.Role,
		TargetEmail: email,
		CreatedBy:   caller.UserID,
	})
	if err != nil {
		return IssueResult{}, err
	}

	res := IssueResult{
		Token: raw,
		Link: s.link(InvitePath, url.Values{
			"token": {raw},
			"role":  {string(req.Role)},
			"firm":  {firm.ID},
		}),
		ExpiresAt: tok.ExpiresAt,
	}

	// 5. Deliver out of band
	res.DeliveryErr = s.deliver(ctx, "invite", func(ctx context.Context) error {
		return s.Notifier.SendInvite(ctx, InviteNotice{
			To:        email,
			FirmName:  firm.Name,
			Role:      req.Role,
			InvitedBy: inviter.DisplayName,
			Link:      res.Link,
			ExpiresAt: res.ExpiresAt,
		})
	})

	log.Info("invite issued",
		slog.String("token_id", tok.ID),
		slog.String("firm_id", firm.ID),
		slog.String("role", string(req.Role)),
		slog.String("created_by", caller.UserID),
		slog.Bool("delivered", res.DeliveryErr == nil),
	)
	return res, nil
}

// issue supersedes active tokens for the subject and purpose of t, then
// stores a fresh one. Invalidate and insert are separate statements, so
// concurrent issuers race and the last insert wins.
func (s *TokenService) issue(ctx context.Context, t domain.Token) (domain.Token, string, error) {
	log := slogx.FromContext(ctx)

	if err := s.Store.Tokens().InvalidateActive(ctx, t.SubjectID, t.Purpose); err != nil {
		log.Error("failed to invalidate active tokens", slog.Any("error", err))
		return domain.Token{}, "", err
	}

	now := s.now()
	t.CreatedAt = now
	t.ExpiresAt = now.Add(s.ttl(t.Purpose))

	// A digest collision is retried once with a fresh secret.
	for attempt := 1; ; attempt++ {
		secret, err := s.Generator.Generate()
		if err != nil {
			log.Error("failed to generate token secret", slog.Any("error", err))
			return domain.Token{}, "", fmt.Errorf("%w: %v", ErrGeneration, err)
		}

		t.ID = idx.New().String()
		t.SecretDigest = secret.Digest

		err = s.Store.Tokens().Insert(ctx, t)
		if err == nil {
			metricsOrNop(s.Metrics).TokenIssued(t.Purpose)
			return t, secret.Raw, nil
		}
		if !errors.Is(err, store.ErrDuplicateDigest) {
			log.Error("failed to store token", slog.Any("error", err))
			return domain.Token{}, "", err
		}
		if attempt == 2 {
			log.Error("token digest collided twice")
			return domain.Token{}, "", fmt.Errorf("%w: repeated digest collision", ErrGeneration)
		}
		log.Warn("token digest collision, regenerating")
	}
}

// deliver runs send with a bounded timeout that survives the caller
// disconnecting, and returns the failure wrapped in ErrDelivery.
func (s *TokenService) deliver(ctx context.Context, kind string, send func(context.Context) error) error {
	timeout := s.Config.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := send(dctx)
	metricsOrNop(s.Metrics).Delivery(kind, err)
	if err == nil {
		return nil
	}

	slogx.FromContext(ctx).Warn("notification delivery failed",
		slog.String("kind", kind),
		slog.Any("error", err),
	)
	if errors.Is(err, ErrDelivery) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDelivery, err)
}

func (s *TokenService) link(path string, q url.Values) string {
	return strings.TrimRight(s.Config.PublicOrigin, "/") + path + "?" + q.Encode()
}

// RedeemPasswordReset sets newPassword on the account the token was issued
// for and revokes every session of that account.
func (s *TokenService) RedeemPasswordReset(ctx context.Context, raw, newPassword string) error {
	log := slogx.FromContext(ctx)
	metrics := metricsOrNop(s.Metrics)
	purpose := domain.PurposePasswordReset

	// 1. Reject bad input before touching the token
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	// 2. Look up by digest and check purpose
	tok, err := s.lookup(ctx, raw, purpose)
	if err != nil {
		metrics.TokenRedeemed(purpose, OutcomeInvalid)
		return err
	}

	// 3. Hash first so a hashing failure cannot burn the token
	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return err
	}

	// 4. Consume atomically; from here on the token is spent
	if err := s.consume(ctx, tok); err != nil {
		metrics.TokenRedeemed(purpose, OutcomeInvalid)
		return err
	}

	// 5. Side effects
	if err := s.Store.Users().UpdatePasswordHash(ctx, tok.SubjectID, hash, s.now()); err != nil {
		log.Error("password reset consumed but credential update failed",
			slog.String("token_id", tok.ID),
			slog.String("user_id", tok.SubjectID),
			slog.Any("error", err),
		)
		metrics.TokenRedeemed(purpose, OutcomeDownstreamFailed)
		return fmt.Errorf("%w: %v", ErrDownstreamUpdate, err)
	}
	if err := s.Sessions.RevokeAll(ctx, tok.SubjectID); err != nil {
		log.Error("password changed but session revocation failed",
			slog.String("token_id", tok.ID),
			slog.String("user_id", tok.SubjectID),
			slog.Any("error", err),
		)
		metrics.TokenRedeemed(purpose, OutcomeDownstreamFailed)
		return fmt.Errorf("%w: %v", ErrDownstreamUpdate, err)
	}

	metrics.TokenRedeemed(purpose, OutcomeSuccess)
	log.Info("password reset redeemed",
		slog.String("token_id", tok.ID),
		slog.String("user_id", tok.SubjectID),
	)
	return nil
}

// RedeemInvite creates the invitee's account and firm membership from the
// token payload and signs the new user in.
func (s *TokenService) RedeemInvite(ctx context.Context, raw string, purpose domain.Purpose, details AccountDetails) (InviteRedemption, error) {
	log := slogx.FromContext(ctx)
	metrics := metricsOrNop(s.Metrics)

	// 1. Reject bad input before touching the token
	if !purpose.IsInvite() {
		return InviteRedemption{}, fmt.Errorf("%w: not an invite purpose", ErrInvalidInput)
	}
	displayName := strings.TrimSpace(details.DisplayName)
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return InviteRedemption{}, fmt.Errorf("%w: display name must be 1-%d characters", ErrInvalidInput, maxDisplayNameLength)
	}
	if err := ValidatePassword(details.Password); err != nil {
		return InviteRedemption{}, err
	}

	// 2. Look up by digest and check purpose
	tok, err := s.lookup(ctx, raw, purpose)
	if err != nil {
		metrics.TokenRedeemed(purpose, OutcomeInvalid)
		return InviteRedemption{}, err
	}

	if (details.FirmID != "" && details.FirmID != tok.FirmID) || (details.Role != "" && details.Role != tok.Role) {
		log.Warn("invite redemption supplied a different grant, ignoring it",
			slog.String("token_id", tok.ID),
			slog.String("token_firm_id", tok.FirmID),
			slog.String("supplied_firm_id", details.FirmID),
			slog.String("supplied_role", string(details.Role)),
		)
	}

	// 3. The account cannot be created if the address was registered since
	// issuance; check before consuming so the invite is not burned.
	if _, err := s.Store.Users().GetUserByEmail(ctx, tok.TargetEmail); err == nil {
		return InviteRedemption{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to check email availability", slog.Any("error", err))
		return InviteRedemption{}, err
	}

	hash, err := s.Hasher.Hash(details.Password)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return InviteRedemption{}, err
	}

	// 4. Consume atomically
	if err := s.consume(ctx, tok); err != nil {
		metrics.TokenRedeemed(purpose, OutcomeInvalid)
		return InviteRedemption{}, err
	}

	// 5. Account and membership in one transaction, grant from the token only
	now := s.now()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        tok.TargetEmail,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	membership := domain.Membership{
		FirmID:    tok.FirmID,
		UserID:    user.ID,
		Role:      tok.Role,
		CreatedAt: now,
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := tx.Memberships().CreateMembership(ctx, membership); err != nil {
			return fmt.Errorf("create membership: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("invite consumed but account creation failed",
			slog.String("token_id", tok.ID),
			slog.String("firm_id", tok.FirmID),
			slog.Any("error", err),
		)
		metrics.TokenRedeemed(purpose, OutcomeDownstreamFailed)
		return InviteRedemption{}, fmt.Errorf("%w: %v", ErrDownstreamUpdate, err)
	}
	metrics.TokenRedeemed(purpose, OutcomeSuccess)

	out := InviteRedemption{User: user, Membership: membership}

	// 6. First session; the account exists either way
	grant, err := s.Sessions.Create(ctx, user.ID)
	if err != nil {
		log.Error("account created but first session failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	} else {
		out.Session = &grant
	}

	log.Info("invite redeemed",
		slog.String("token_id", tok.ID),
		slog.String("user_id", user.ID),
		slog.String("firm_id", membership.FirmID),
		slog.String("role", string(membership.Role)),
	)
	return out, nil
}

// lookup resolves raw to a redeemable-looking token of the given purpose.
// Consume remains the authority on whether it can actually be spent.
func (s *TokenService) lookup(ctx context.Context, raw string, purpose domain.Purpose) (domain.Token, error) {
	log := slogx.FromContext(ctx)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Token{}, ErrInvalidToken
	}

	tok, err := s.Store.Tokens().FindByDigest(ctx, cryptox.FingerprintToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		log.Info("redemption rejected", slog.String("reason", "not_found"))
		return domain.Token{}, ErrInvalidToken
	}
	if err != nil {
		log.Error("failed to look up token", slog.Any("error", err))
		return domain.Token{}, err
	}

	reason := ""
	switch {
	case tok.Purpose != purpose:
		reason = "purpose_mismatch"
	case tok.Consumed():
		reason = "already_consumed"
	case tok.Expired(s.now()):
		reason = "expired"
	}
	if reason != "" {
		log.Info("redemption rejected",
			slog.String("reason", reason),
			slog.String("token_id", tok.ID),
		)
		return domain.Token{}, ErrInvalidToken
	}
	return tok, nil
}

func (s *TokenService) consume(ctx context.Context, tok domain.Token) error {
	err := s.Store.Tokens().Consume(ctx, tok.ID, s.now())
	if err == nil {
		return nil
	}

	reason := ""
	switch {
	case errors.Is(err, store.ErrAlreadyConsumed):
		reason = "already_consumed"
	case errors.Is(err, store.ErrExpired):
		reason = "expired"
	case errors.Is(err, store.ErrNotFound):
		reason = "superseded"
	default:
		slogx.FromContext(ctx).Error("failed to consume token",
			slog.String("token_id", tok.ID),
			slog.Any("error", err),
		)
		return err
	}
	slogx.FromContext(ctx).Info("redemption rejected",
		slog.String("reason", reason),
		slog.String("token_id", tok.ID),
	)
	return ErrInvalidToken
}

// ValidatePassword enforces the password policy.
func ValidatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < MinPasswordLength || len(pw) > MaxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, MinPasswordLength, MaxPasswordLength)
	}
	if strings.TrimSpace(pw) == "" {
		return fmt.Errorf("%w: password must not be blank", ErrInvalidInput)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = domain.NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > 254 {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}
