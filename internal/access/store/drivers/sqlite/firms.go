package sqlite

import (
	"context"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
)

type firmsRepo struct {
	q DBTX
}

func (r *firmsRepo) CreateFirm(ctx context.Context, f domain.Firm) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO firms (id, name, created_at) VALUES (?, ?, ?)`,
		f.ID, f.Name, toMillis(f.CreatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *firmsRepo) GetFirmByID(ctx context.Context, id string) (domain.Firm, error) {
	var (
		f         domain.Firm
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM firms WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &createdAt)
	if err != nil {
		return domain.Firm{}, mapNotFound(err)
	}
	f.CreatedAt = fromMillis(createdAt)
	return f, nil
}

type membershipsRepo struct {
	q DBTX
}

func (r *membershipsRepo) CreateMembership(ctx context.Context, m domain.Membership) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO memberships (firm_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
		m.FirmID, m.UserID, string(m.Role), toMillis(m.CreatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *membershipsRepo) GetMembership(ctx context.Context, firmID, userID string) (domain.Membership, error) {
	var (
		m         domain.Membership
		role      string
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT firm_id, user_id, role, created_at FROM memberships WHERE firm_id = ? AND user_id = ?`,
		firmID, userID,
	).Scan(&m.FirmID, &m.UserID, &role, &createdAt)
	if err != nil {
		return domain.Membership{}, mapNotFound(err)
	}
	m.Role = domain.Role(role)
	m.CreatedAt = fromMillis(createdAt)
	return m, nil
}

func (r *membershipsRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT firm_id, user_id, role, created_at FROM memberships WHERE user_id = ? ORDER BY created_at, firm_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		var (
			m         domain.Membership
			role      string
			createdAt int64
		)
		if err := rows.Scan(&m.FirmID, &m.UserID, &role, &createdAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
