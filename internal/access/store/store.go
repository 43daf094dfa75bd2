package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrAlreadyExists   = errors.New("store: already exists")
	ErrDuplicateDigest = errors.New("store: duplicate token digest")
	ErrAlreadyConsumed = errors.New("store: token already consumed")
	ErrExpired         = errors.New("store: token expired")
)

// Repos exposes the sub-repositories. Both Store and Tx provide them so the
// same code can run inside or outside a transaction.
type Repos interface {
	Users() Users
	Firms() Firms
	Memberships() Memberships
	Tokens() Tokens
	Sessions() Sessions
}

// Store is the root data access interface implemented by the sqlite,
// postgres and memory drivers.
type Store interface {
	Repos

	ApplyMigrations() error

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. Tx has no WithTx of its own, so
	// transactions cannot be nested.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is the transaction-scoped view handed to WithTx callbacks.
type Tx interface {
	Repos
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already normalized address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Firms interface {
	CreateFirm(ctx context.Context, f domain.Firm) error
	GetFirmByID(ctx context.Context, id string) (domain.Firm, error)
}

type Memberships interface {
	// CreateMembership returns ErrAlreadyExists when the user already
	// belongs to the firm.
	CreateMembership(ctx context.Context, m domain.Membership) error
	GetMembership(ctx context.Context, firmID, userID string) (domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]domain.Membership, error)
}

type Tokens interface {
	// InvalidateActive removes every unconsumed token for subject+purpose.
	// Consumed tokens are kept for audit. No-op when there are none.
	InvalidateActive(ctx context.Context, subjectID string, purpose domain.Purpose) error

	// Insert stores t, returning ErrDuplicateDigest if the digest is taken.
	Insert(ctx context.Context, t domain.Token) error

	FindByDigest(ctx context.Context, digest string) (domain.Token, error)

	// Consume marks the token spent in a single conditional write: it
	// succeeds only if the token is unconsumed and expires after now.
	// Otherwise it returns ErrAlreadyConsumed, ErrExpired or ErrNotFound.
	// Of any number of concurrent callers at most one succeeds.
	Consume(ctx context.Context, id string, now time.Time) error

	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// DeleteUserSessions revokes every session of the user.
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)

	CountActiveUserSessions(ctx context.Context, userID string, now time.Time) (int, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
