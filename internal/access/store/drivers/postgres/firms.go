package postgres

import (
	"context"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/jackc/pgx/v5"
)

type firmsRepo struct {
	q DBTX
}

func (r *firmsRepo) CreateFirm(ctx context.Context, f domain.Firm) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO firms (id, name, created_at) VALUES ($1, $2, $3)`,
		f.ID, f.Name, f.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *firmsRepo) GetFirmByID(ctx context.Context, id string) (domain.Firm, error) {
	var f domain.Firm
	err := r.q.QueryRow(ctx, `SELECT id, name, created_at FROM firms WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.CreatedAt)
	if err != nil {
		return domain.Firm{}, mapNotFound(err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

type membershipsRepo struct {
	q DBTX
}

func scanMembership(row pgx.Row) (domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	if err := row.Scan(&m.FirmID, &m.UserID, &role, &m.CreatedAt); err != nil {
		return domain.Membership{}, err
	}
	m.Role = domain.Role(role)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (r *membershipsRepo) CreateMembership(ctx context.Context, m domain.Membership) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO memberships (firm_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)`,
		m.FirmID, m.UserID, string(m.Role), m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *membershipsRepo) GetMembership(ctx context.Context, firmID, userID string) (domain.Membership, error) {
	m, err := scanMembership(r.q.QueryRow(ctx,
		`SELECT firm_id, user_id, role, created_at FROM memberships WHERE firm_id = $1 AND user_id = $2`,
		firmID, userID,
	))
	return m, mapNotFound(err)
}

func (r *membershipsRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	rows, err := r.q.Query(ctx,
		`SELECT firm_id, user_id, role, created_at FROM memberships WHERE user_id = $1 ORDER BY created_at, firm_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
