package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/idx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/jwtx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID    string
	SessionID string
}

// SessionGrant is a freshly created session and its bearer token.
type SessionGrant struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// SessionService creates, validates and revokes sessions. A bearer token is
// only honoured while its session row exists, so deleting rows revokes it.
type SessionService struct {
	Store    store.Store
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Issuer   string
	TTL      time.Duration
	Hasher   *cryptox.PasswordHasher
	Metrics  Metrics

	// Now defaults to time.Now.
	Now func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SessionService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return jwtx.DefaultSessionTTL
}

// Login checks the password and opens a new session.
func (s *SessionService) Login(ctx context.Context, email, password string) (SessionGrant, error) {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		// Spend the same hashing time as a real check.
		_ = s.Hasher.Verify(password, s.dummy())
		return SessionGrant{}, ErrInvalidCredentials
	}
	if err != nil {
		log.Error("failed to look up user for login", slog.Any("error", err))
		return SessionGrant{}, err
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			log.Error("stored password hash is unusable",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
		return SessionGrant{}, ErrInvalidCredentials
	}

	grant, err := s.Create(ctx, user.ID)
	if err != nil {
		return SessionGrant{}, err
	}

	// A password reset may have landed between the check above and the
	// session insert, after its RevokeAll already ran. Drop the session if
	// the hash we verified is no longer current.
	current, err := s.Store.Users().GetUserByID(ctx, user.ID)
	if err != nil || current.PasswordHash != user.PasswordHash {
		_ = s.Store.Sessions().DeleteSession(ctx, grant.SessionID)
		if err != nil {
			log.Error("failed to recheck credentials after login", slog.Any("error", err))
			return SessionGrant{}, err
		}
		log.Info("login raced a password change, session dropped", slog.String("user_id", user.ID))
		return SessionGrant{}, ErrInvalidCredentials
	}
	return grant, nil
}

func (s *SessionService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}

// Create opens a session for userID and signs its bearer token.
func (s *SessionService) Create(ctx context.Context, userID string) (SessionGrant, error) {
	now := s.now()
	sess := domain.Session{
		ID:        idx.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return SessionGrant{}, fmt.Errorf("create session: %w", err)
	}

	token, err := s.Signer.Sign(jwtx.NewSessionClaims(userID, sess.ID, s.Issuer, s.ttl(), now))
	if err != nil {
		_ = s.Store.Sessions().DeleteSession(ctx, sess.ID)
		return SessionGrant{}, fmt.Errorf("sign session token: %w", err)
	}

	slogx.FromContext(ctx).Debug("session created",
		slog.String("user_id", userID),
		slog.String("session_id", sess.ID),
	)
	return SessionGrant{Token: token, SessionID: sess.ID, ExpiresAt: sess.ExpiresAt}, nil
}

// Authenticate resolves a bearer token to its principal. Every failure is
// reported as ErrUnauthorized.
func (s *SessionService) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	now := s.now()

	claims, err := s.Verifier.Verify(bearer, now)
	if err != nil {
		slogx.FromContext(ctx).Debug("bearer verification failed", slog.Any("error", err))
		return Principal{}, ErrUnauthorized
	}
	if claims.SID == "" || claims.Subject == "" {
		return Principal{}, ErrUnauthorized
	}

	sess, err := s.Store.Sessions().GetSessionByID(ctx, claims.SID)
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, ErrUnauthorized
	}
	if err != nil {
		slogx.FromContext(ctx).Error("failed to load session", slog.Any("error", err))
		return Principal{}, err
	}
	if sess.UserID != claims.Subject || !sess.Active(now) {
		return Principal{}, ErrUnauthorized
	}

	return Principal{UserID: sess.UserID, SessionID: sess.ID}, nil
}

// Logout ends a single session.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	return s.Store.Sessions().DeleteSession(ctx, sessionID)
}

// RevokeAll deletes every session of the user.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	n, err := s.Store.Sessions().DeleteUserSessions(ctx, userID)
	if err != nil {
		return err
	}
	metricsOrNop(s.Metrics).SessionsRevoked(n)
	slogx.FromContext(ctx).Info("sessions revoked",
		slog.String("user_id", userID),
		slog.Int64("count", n),
	)
	return nil
}

// ActiveSessions counts the user's unexpired sessions.
func (s *SessionService) ActiveSessions(ctx context.Context, userID string) (int, error) {
	return s.Store.Sessions().CountActiveUserSessions(ctx, userID, s.now())
}

// Account returns the user and their firm memberships.
func (s *SessionService) Account(ctx context.Context, userID string) (domain.User, []domain.Membership, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, nil, ErrUnauthorized
	}
	if err != nil {
		return domain.User{}, nil, err
	}
	memberships, err := s.Store.Memberships().ListMembershipsByUser(ctx, userID)
	if err != nil {
		return domain.User{}, nil, err
	}
	return user, memberships, nil
}
