package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
)

type usersRepo struct{ v view }

func (r usersRepo) GetUserByID(_ context.Context, id string) (u domain.User, err error) {
	err = r.v.with(func(d *data) error {
		var ok bool
		if u, ok = d.users[id]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return u, err
}

func (r usersRepo) GetUserByEmail(_ context.Context, email string) (u domain.User, err error) {
	err = r.v.with(func(d *data) error {
		for _, candidate := range d.users {
			if candidate.Email == email {
				u = candidate
				return nil
			}
		}
		return store.ErrNotFound
	})
	return u, err
}

func (r usersRepo) CreateUser(_ context.Context, u domain.User) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.users[u.ID]; ok {
			return store.ErrAlreadyExists
		}
		for _, existing := range d.users {
			if existing.Email == u.Email {
				return store.ErrAlreadyExists
			}
		}
		d.users[u.ID] = u
		return nil
	})
}

func (r usersRepo) UpdatePasswordHash(_ context.Context, userID, hash string, now time.Time) error {
	return r.v.with(func(d *data) error {
		u, ok := d.users[userID]
		if !ok {
			return store.ErrNotFound
		}
		u.PasswordHash = hash
		u.UpdatedAt = now
		d.users[userID] = u
		return nil
	})
}

func (r usersRepo) IsEmpty(context.Context) (empty bool, err error) {
	err = r.v.with(func(d *data) error {
		empty = len(d.users) == 0
		return nil
	})
	return empty, err
}

type firmsRepo struct{ v view }

func (r firmsRepo) CreateFirm(_ context.Context, f domain.Firm) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.firms[f.ID]; ok {
			return store.ErrAlreadyExists
		}
		d.firms[f.ID] = f
		return nil
	})
}

func (r firmsRepo) GetFirmByID(_ context.Context, id string) (f domain.Firm, err error) {
	err = r.v.with(func(d *data) error {
		var ok bool
		if f, ok = d.firms[id]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return f, err
}

type membershipsRepo struct{ v view }

func (r membershipsRepo) CreateMembership(_ context.Context, m domain.Membership) error {
	return r.v.with(func(d *data) error {
		key := membershipKey{m.FirmID, m.UserID}
		if _, ok := d.memberships[key]; ok {
			return store.ErrAlreadyExists
		}
		if _, ok := d.firms[m.FirmID]; !ok {
			return store.ErrNotFound
		}
		if _, ok := d.users[m.UserID]; !ok {
			return store.ErrNotFound
		}
		d.memberships[key] = m
		return nil
	})
}

func (r membershipsRepo) GetMembership(_ context.Context, firmID, userID string) (m domain.Membership, err error) {
	err = r.v.with(func(d *data) error {
		var ok bool
		if m, ok = d.memberships[membershipKey{firmID, userID}]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return m, err
}

func (r membershipsRepo) ListMembershipsByUser(_ context.Context, userID string) (out []domain.Membership, err error) {
	err = r.v.with(func(d *data) error {
		for _, m := range d.memberships {
			if m.UserID == userID {
				out = append(out, m)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Membership) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.FirmID, b.FirmID)
	})
	return out, err
}

type tokensRepo struct{ v view }

func (r tokensRepo) InvalidateActive(_ context.Context, subjectID string, purpose domain.Purpose) error {
	return r.v.with(func(d *data) error {
		for id, t := range d.tokens {
			if t.SubjectID == subjectID && t.Purpose == purpose && !t.Consumed() {
				delete(d.tokens, id)
			}
		}
		return nil
	})
}

func (r tokensRepo) Insert(_ context.Context, t domain.Token) error {
	return r.v.with(func(d *data) error {
		for _, existing := range d.tokens {
			if existing.SecretDigest == t.SecretDigest {
				return store.ErrDuplicateDigest
			}
		}
		if _, ok := d.tokens[t.ID]; ok {
			return store.ErrAlreadyExists
		}
		t.ConsumedAt = nil
		d.tokens[t.ID] = t
		return nil
	})
}

func (r tokensRepo) FindByDigest(_ context.Context, digest string) (t domain.Token, err error) {
	err = r.v.with(func(d *data) error {
		for _, candidate := range d.tokens {
			if candidate.SecretDigest == digest {
				t = candidate
				return nil
			}
		}
		return store.ErrNotFound
	})
	return t, err
}

func (r tokensRepo) Consume(_ context.Context, id string, now time.Time) error {
	return r.v.with(func(d *data) error {
		t, ok := d.tokens[id]
		switch {
		case !ok:
			return store.ErrNotFound
		case t.Consumed():
			return store.ErrAlreadyConsumed
		case t.Expired(now):
			return store.ErrExpired
		}
		consumedAt := now
		t.ConsumedAt = &consumedAt
		d.tokens[id] = t
		return nil
	})
}

func (r tokensRepo) DeleteExpired(_ context.Context, before time.Time) (n int64, err error) {
	err = r.v.with(func(d *data) error {
		for id, t := range d.tokens {
			if t.ExpiresAt.Before(before) {
				delete(d.tokens, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type sessionsRepo struct{ v view }

func (r sessionsRepo) CreateSession(_ context.Context, s domain.Session) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.sessions[s.ID]; ok {
			return store.ErrAlreadyExists
		}
		if _, ok := d.users[s.UserID]; !ok {
			return store.ErrNotFound
		}
		d.sessions[s.ID] = s
		return nil
	})
}

func (r sessionsRepo) GetSessionByID(_ context.Context, id string) (s domain.Session, err error) {
	err = r.v.with(func(d *data) error {
		var ok bool
		if s, ok = d.sessions[id]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return s, err
}

func (r sessionsRepo) DeleteSession(_ context.Context, id string) error {
	return r.v.with(func(d *data) error {
		delete(d.sessions, id)
		return nil
	})
}

func (r sessionsRepo) DeleteUserSessions(_ context.Context, userID string) (n int64, err error) {
	err = r.v.with(func(d *data) error {
		for id, s := range d.sessions {
			if s.UserID == userID {
				delete(d.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r sessionsRepo) CountActiveUserSessions(_ context.Context, userID string, now time.Time) (n int, err error) {
	err = r.v.with(func(d *data) error {
		for _, s := range d.sessions {
			if s.UserID == userID && s.Active(now) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r sessionsRepo) DeleteExpiredSessions(_ context.Context, now time.Time) (n int64, err error) {
	err = r.v.with(func(d *data) error {
		for id, s := range d.sessions {
			if !s.Active(now) {
				delete(d.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
