// Package memory is an in-process store.Store used by tests and local
// development. Transactions work on a copy of the data that replaces the
// live state on commit.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
)

type membershipKey struct{ firmID, userID string }

type data struct {
	users       map[string]domain.User
	firms       map[string]domain.Firm
	memberships map[membershipKey]domain.Membership
	tokens      map[string]domain.Token
	sessions    map[string]domain.Session
}

func newData() *data {
	return &data{
		users:       map[string]domain.User{},
		firms:       map[string]domain.Firm{},
		memberships: map[membershipKey]domain.Membership{},
		tokens:      map[string]domain.Token{},
		sessions:    map[string]domain.Session{},
	}
}

func (d *data) clone() *data {
	return &data{
		users:       maps.Clone(d.users),
		firms:       maps.Clone(d.firms),
		memberships: maps.Clone(d.memberships),
		tokens:      maps.Clone(d.tokens),
		sessions:    maps.Clone(d.sessions),
	}
}

// Store guards all data with a single mutex, which also makes Consume an
// atomic compare-and-set.
type Store struct {
	mu   sync.Mutex
	data *data
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{data: newData()}
}

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// WithTx holds the store lock for the duration of fn, so transactions are
// serialized with each other and with every non-transactional call.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.data.clone()
	if err := fn(view{d: working, lock: noLock{}}); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) live() view { return view{d: nil, s: s, lock: &s.mu} }

func (s *Store) Users() store.Users             { return s.live().Users() }
func (s *Store) Firms() store.Firms             { return s.live().Firms() }
func (s *Store) Memberships() store.Memberships { return s.live().Memberships() }
func (s *Store) Tokens() store.Tokens           { return s.live().Tokens() }
func (s *Store) Sessions() store.Sessions       { return s.live().Sessions() }

// view is a set of repos over either the live data (locking per call) or a
// transaction's working copy (already locked).
type view struct {
	d    *data
	s    *Store
	lock sync.Locker
}

// with runs fn against the data under the view's lock.
func (v view) with(fn func(d *data) error) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	d := v.d
	if d == nil {
		d = v.s.data
	}
	return fn(d)
}

func (v view) Users() store.Users             { return usersRepo{v} }
func (v view) Firms() store.Firms             { return firmsRepo{v} }
func (v view) Memberships() store.Memberships { return membershipsRepo{v} }
func (v view) Tokens() store.Tokens           { return tokensRepo{v} }
func (v view) Sessions() store.Sessions       { return sessionsRepo{v} }

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}
