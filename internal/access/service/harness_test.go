package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store/drivers/memory"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store/drivers/sqlite"
	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/idx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep concurrent redemption tests fast
var testHashParams = cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu     sync.Mutex
	resets []PasswordResetNotice
	invite []InviteNotice
	err    error
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, notice PasswordResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, notice)
	return n.err
}

func (n *fakeNotifier) SendInvite(_ context.Context, notice InviteNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invite = append(n.invite, notice)
	return n.err
}

// countingStore counts token inserts on top of a real store.
type countingStore struct {
	store.Store
	inserts atomic.Int64
}

func (s *countingStore) Tokens() store.Tokens {
	return countingTokens{Tokens: s.Store.Tokens(), n: &s.inserts}
}

type countingTokens struct {
	store.Tokens
	n *atomic.Int64
}

func (t countingTokens) Insert(ctx context.Context, tok domain.Token) error {
	err := t.Tokens.Insert(ctx, tok)
	if err == nil {
		t.n.Add(1)
	}
	return err
}

type harness struct {
	store    *countingStore
	clock    *clock
	notifier *fakeNotifier
	hasher   *cryptox.PasswordHasher
	sessions *SessionService
	tokens   *TokenService
}

type storeFactory struct {
	name string
	open func(t *testing.T) store.Store
}

var storeFactories = []storeFactory{
	{"memory", func(t *testing.T) store.Store { return memory.NewStore() }},
	{"sqlite", func(t *testing.T) store.Store {
		s, err := sqlite.NewStore(":memory:")
		require.NoError(t, err)
		require.NoError(t, s.ApplyMigrations())
		t.Cleanup(func() { _ = s.Close() })
		return s
	}},
}

// forEachStore runs fn once per store driver.
func forEachStore(t *testing.T, fn func(t *testing.T, h *harness)) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			fn(t, newHarness(t, f.open(t)))
		})
	}
}

func newHarness(t *testing.T, st store.Store) *harness {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test-key", priv)
	require.NoError(t, err)

	h := &harness{
		store:    &countingStore{Store: st},
		clock:    newClock(),
		notifier: &fakeNotifier{},
		hasher:   cryptox.NewPasswordHasherWithParams("test-pepper", testHashParams),
	}
	h.sessions = &SessionService{
		Store:    h.store,
		Signer:   signer,
		Verifier: jwtx.NewVerifierEdDSA("test-key", signer.Public(), "ledgerdrop-test"),
		Issuer:   "ledgerdrop-test",
		TTL:      12 * time.Hour,
		Hasher:   h.hasher,
		Now:      h.clock.Now,
	}
	h.tokens = &TokenService{
		Store:     h.store,
		Generator: RandomSecrets{},
		Notifier:  h.notifier,
		Sessions:  h.sessions,
		Hasher:    h.hasher,
		Config:    TokenConfig{PublicOrigin: "https://app.ledgerdrop.test"},
		Now:       h.clock.Now,
	}
	return h
}

func (h *harness) seedUser(t *testing.T, email, password string) domain.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)

	now := h.clock.Now()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		DisplayName:  "Seeded " + email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, h.store.Users().CreateUser(context.Background(), u))
	return u
}

func (h *harness) seedFirm(t *testing.T, name string) domain.Firm {
	t.Helper()
	f := domain.Firm{ID: idx.New().String(), Name: name, CreatedAt: h.clock.Now()}
	require.NoError(t, h.store.Firms().CreateFirm(context.Background(), f))
	return f
}

func (h *harness) seedMember(t *testing.T, firm domain.Firm, email string, role domain.Role) Principal {
	t.Helper()
	u := h.seedUser(t, email, "correct horse")
	require.NoError(t, h.store.Memberships().CreateMembership(context.Background(), domain.Membership{
		FirmID: firm.ID, UserID: u.ID, Role: role, CreatedAt: h.clock.Now(),
	}))
	return Principal{UserID: u.ID}
}

func (h *harness) tokenByRaw(t *testing.T, raw string) domain.Token {
	t.Helper()
	tok, err := h.store.Tokens().FindByDigest(context.Background(), cryptox.FingerprintToken(raw))
	require.NoError(t, err)
	return tok
}
