// Package storetest is a conformance suite every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Run exercises newStore against the store contract. newStore must return a
// fresh, migrated store for every call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("FirmsAndMemberships", func(t *testing.T) { testFirms(t, newStore(t)) })
	t.Run("TokenInsertAndFind", func(t *testing.T) { testTokenInsertFind(t, newStore(t)) })
	t.Run("TokenDuplicateDigest", func(t *testing.T) { testTokenDuplicateDigest(t, newStore(t)) })
	t.Run("TokenInvalidateActive", func(t *testing.T) { testTokenInvalidate(t, newStore(t)) })
	t.Run("TokenConsume", func(t *testing.T) { testTokenConsume(t, newStore(t)) })
	t.Run("TokenConsumeConcurrent", func(t *testing.T) { testTokenConsumeConcurrent(t, newStore(t)) })
	t.Run("TokenDeleteExpired", func(t *testing.T) { testTokenDeleteExpired(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("WithTxCommit", func(t *testing.T) { testWithTxCommit(t, newStore(t)) })
}

// Times are truncated to milliseconds, the coarsest resolution any driver stores.
func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func seedUser(t *testing.T, s store.Store, email string) domain.User {
	t.Helper()
	ts := now()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: "$argon2id$placeholder",
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func newToken(t *testing.T, subject string, purpose domain.Purpose, expiresAt time.Time) domain.Token {
	t.Helper()
	secret, err := cryptox.NewSecret()
	require.NoError(t, err)
	return domain.Token{
		ID:           idx.New().String(),
		SubjectID:    subject,
		Purpose:      purpose,
		SecretDigest: secret.Digest,
		ExpiresAt:    expiresAt,
		CreatedAt:    now(),
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u := seedUser(t, s, "user@x.com")

	empty, err = s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)

	got, err := s.Users().GetUserByEmail(ctx, "user@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Millisecond)

	dup := u
	dup.ID = idx.New().String()
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	later := now().Add(time.Minute)
	require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "$argon2id$new", later))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "$argon2id$new", got.PasswordHash)
	require.WithinDuration(t, later, got.UpdatedAt, time.Millisecond)

	require.ErrorIs(t, s.Users().UpdatePasswordHash(ctx, "missing", "h", later), store.ErrNotFound)
	_, err = s.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Users().GetUserByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testFirms(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "admin@firm.com")

	f1 := domain.Firm{ID: idx.New().String(), Name: "Firm One", CreatedAt: now()}
	f2 := domain.Firm{ID: idx.New().String(), Name: "Firm Two", CreatedAt: now().Add(time.Second)}
	require.NoError(t, s.Firms().CreateFirm(ctx, f1))
	require.NoError(t, s.Firms().CreateFirm(ctx, f2))

	got, err := s.Firms().GetFirmByID(ctx, f1.ID)
	require.NoError(t, err)
	require.Equal(t, "Firm One", got.Name)

	_, err = s.Firms().GetFirmByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	m1 := domain.Membership{FirmID: f1.ID, UserID: u.ID, Role: domain.RoleFirmAdmin, CreatedAt: f1.CreatedAt}
	m2 := domain.Membership{FirmID: f2.ID, UserID: u.ID, Role: domain.RoleClient, CreatedAt: f2.CreatedAt}
	require.NoError(t, s.Memberships().CreateMembership(ctx, m1))
	require.NoError(t, s.Memberships().CreateMembership(ctx, m2))
	require.ErrorIs(t, s.Memberships().CreateMembership(ctx, m1), store.ErrAlreadyExists)

	m, err := s.Memberships().GetMembership(ctx, f1.ID, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleFirmAdmin, m.Role)

	_, err = s.Memberships().GetMembership(ctx, f1.ID, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.Memberships().ListMembershipsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, f1.ID, list[0].FirmID)
	require.Equal(t, domain.RoleClient, list[1].Role)
}

func testTokenInsertFind(t *testing.T, s store.Store) {
	ctx := context.Background()

	tok := newToken(t, "f1/bob@x.com", domain.PurposeInviteClient, now().Add(domain.InviteTTL))
	tok.FirmID = "f1"
	tok.Role = domain.RoleClient
	tok.TargetEmail = "bob@x.com"
	tok.CreatedBy = "admin"
	require.NoError(t, s.Tokens().Insert(ctx, tok))

	got, err := s.Tokens().FindByDigest(ctx, tok.SecretDigest)
	require.NoError(t, err)
	require.Equal(t, tok.ID, got.ID)
	require.Equal(t, tok.SubjectID, got.SubjectID)
	require.Equal(t, domain.PurposeInviteClient, got.Purpose)
	require.Equal(t, "f1", got.FirmID)
	require.Equal(t, domain.RoleClient, got.Role)
	require.Equal(t, "bob@x.com", got.TargetEmail)
	require.Equal(t, "admin", got.CreatedBy)
	require.Nil(t, got.ConsumedAt)
	require.WithinDuration(t, tok.ExpiresAt, got.ExpiresAt, time.Millisecond)

	_, err = s.Tokens().FindByDigest(ctx, "unknown")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testTokenDuplicateDigest(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := newToken(t, "u1", domain.PurposePasswordReset, now().Add(time.Hour))
	require.NoError(t, s.Tokens().Insert(ctx, a))

	b := newToken(t, "u2", domain.PurposePasswordReset, now().Add(time.Hour))
	b.SecretDigest = a.SecretDigest
	require.ErrorIs(t, s.Tokens().Insert(ctx, b), store.ErrDuplicateDigest)
}

func testTokenInvalidate(t *testing.T, s store.Store) {
	ctx := context.Background()
	exp := now().Add(time.Hour)

	// no-op on an unknown subject
	require.NoError(t, s.Tokens().InvalidateActive(ctx, "nobody", domain.PurposePasswordReset))

	spent := newToken(t, "u1", domain.PurposePasswordReset, exp)
	active := newToken(t, "u1", domain.PurposePasswordReset, exp)
	otherPurpose := newToken(t, "u1", domain.PurposeInviteClient, exp)
	otherSubject := newToken(t, "u2", domain.PurposePasswordReset, exp)
	for _, tok := range []domain.Token{spent, active, otherPurpose, otherSubject} {
		require.NoError(t, s.Tokens().Insert(ctx, tok))
	}
	require.NoError(t, s.Tokens().Consume(ctx, spent.ID, now()))

	require.NoError(t, s.Tokens().InvalidateActive(ctx, "u1", domain.PurposePasswordReset))

	_, err := s.Tokens().FindByDigest(ctx, active.SecretDigest)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Tokens().FindByDigest(ctx, spent.SecretDigest)
	require.NoError(t, err, "consumed tokens are kept for audit")
	require.NotNil(t, got.ConsumedAt)

	for _, tok := range []domain.Token{otherPurpose, otherSubject} {
		_, err := s.Tokens().FindByDigest(ctx, tok.SecretDigest)
		require.NoError(t, err)
	}
}

func testTokenConsume(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()

	tok := newToken(t, "u1", domain.PurposePasswordReset, ts.Add(time.Hour))
	require.NoError(t, s.Tokens().Insert(ctx, tok))

	require.NoError(t, s.Tokens().Consume(ctx, tok.ID, ts))
	require.ErrorIs(t, s.Tokens().Consume(ctx, tok.ID, ts), store.ErrAlreadyConsumed)

	got, err := s.Tokens().FindByDigest(ctx, tok.SecretDigest)
	require.NoError(t, err)
	require.NotNil(t, got.ConsumedAt)
	require.WithinDuration(t, ts, *got.ConsumedAt, time.Millisecond)

	expired := newToken(t, "u2", domain.PurposePasswordReset, ts.Add(time.Hour))
	require.NoError(t, s.Tokens().Insert(ctx, expired))
	require.ErrorIs(t, s.Tokens().Consume(ctx, expired.ID, ts.Add(time.Hour)), store.ErrExpired)
	require.ErrorIs(t, s.Tokens().Consume(ctx, expired.ID, ts.Add(2*time.Hour)), store.ErrExpired)

	got, err = s.Tokens().FindByDigest(ctx, expired.SecretDigest)
	require.NoError(t, err)
	require.Nil(t, got.ConsumedAt, "a failed consume never writes")

	require.ErrorIs(t, s.Tokens().Consume(ctx, "missing", ts), store.ErrNotFound)
}

func testTokenConsumeConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()

	tok := newToken(t, "u1", domain.PurposePasswordReset, ts.Add(time.Hour))
	require.NoError(t, s.Tokens().Insert(ctx, tok))

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		losses  int
		unknown []error
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.Tokens().Consume(ctx, tok.ID, ts)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrAlreadyConsumed):
				losses++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unknown)
	require.Equal(t, 1, wins, "exactly one caller may consume the token")
	require.Equal(t, callers-1, losses)
}

func testTokenDeleteExpired(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()

	old := newToken(t, "u1", domain.PurposePasswordReset, ts.Add(-48*time.Hour))
	fresh := newToken(t, "u2", domain.PurposePasswordReset, ts.Add(time.Hour))
	require.NoError(t, s.Tokens().Insert(ctx, old))
	require.NoError(t, s.Tokens().Insert(ctx, fresh))

	n, err := s.Tokens().DeleteExpired(ctx, ts.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.Tokens().FindByDigest(ctx, old.SecretDigest)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Tokens().FindByDigest(ctx, fresh.SecretDigest)
	require.NoError(t, err)
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()
	u := seedUser(t, s, "user@x.com")
	other := seedUser(t, s, "other@x.com")

	mk := func(userID string, exp time.Time) domain.Session {
		sess := domain.Session{ID: idx.New().String(), UserID: userID, ExpiresAt: exp, CreatedAt: ts}
		require.NoError(t, s.Sessions().CreateSession(ctx, sess))
		return sess
	}
	a := mk(u.ID, ts.Add(time.Hour))
	mk(u.ID, ts.Add(time.Hour))
	mk(u.ID, ts.Add(-time.Minute))
	keep := mk(other.ID, ts.Add(time.Hour))

	got, err := s.Sessions().GetSessionByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)

	n, err := s.Sessions().CountActiveUserSessions(ctx, u.ID, ts)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.Sessions().DeleteSession(ctx, a.ID))
	_, err = s.Sessions().GetSessionByID(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	expired, err := s.Sessions().DeleteExpiredSessions(ctx, ts)
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	revoked, err := s.Sessions().DeleteUserSessions(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, revoked)

	n, err = s.Sessions().CountActiveUserSessions(ctx, u.ID, ts)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.Sessions().GetSessionByID(ctx, keep.ID)
	require.NoError(t, err, "other users keep their sessions")
}

func testWithTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		f := domain.Firm{ID: "f-rollback", Name: "Gone", CreatedAt: now()}
		require.NoError(t, tx.Firms().CreateFirm(ctx, f))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Firms().GetFirmByID(ctx, "f-rollback")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testWithTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()
	userID := idx.New().String()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Firms().CreateFirm(ctx, domain.Firm{ID: "f-commit", Name: "Kept", CreatedAt: ts}); err != nil {
			return err
		}
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID: userID, Email: "tx@x.com", DisplayName: "Tx", PasswordHash: "h", CreatedAt: ts, UpdatedAt: ts,
		}); err != nil {
			return err
		}
		return tx.Memberships().CreateMembership(ctx, domain.Membership{
			FirmID: "f-commit", UserID: userID, Role: domain.RoleAccountant, CreatedAt: ts,
		})
	})
	require.NoError(t, err)

	m, err := s.Memberships().GetMembership(ctx, "f-commit", userID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAccountant, m.Role)
}
