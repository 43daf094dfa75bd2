package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/jackc/pgx/v5"
)

type tokensRepo struct {
	q DBTX
}

const tokenColumns = `id, subject_id, purpose, secret_digest, expires_at, consumed_at, created_at,
	firm_id, role, target_email, created_by`

func (r *tokensRepo) InvalidateActive(ctx context.Context, subjectID string, purpose domain.Purpose) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM tokens WHERE subject_id = $1 AND purpose = $2 AND consumed_at IS NULL`,
		subjectID, string(purpose),
	)
	return err
}

func (r *tokensRepo) Insert(ctx context.Context, t domain.Token) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO tokens (`+tokenColumns+`)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8, $9, $10)`,
		t.ID, t.SubjectID, string(t.Purpose), t.SecretDigest, t.ExpiresAt, t.CreatedAt,
		t.FirmID, string(t.Role), t.TargetEmail, t.CreatedBy,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateDigest
	}
	return err
}

func (r *tokensRepo) FindByDigest(ctx context.Context, digest string) (domain.Token, error) {
	return scanToken(r.q.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE secret_digest = $1`, digest))
}

// Consume relies on row locking: concurrent updates of the same row are
// serialized and the loser re-evaluates the WHERE clause against the
// committed consumed_at.
func (r *tokensRepo) Consume(ctx context.Context, id string, now time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE tokens SET consumed_at = $1
		 WHERE id = $2 AND consumed_at IS NULL AND expires_at > $1`,
		now, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	t, err := scanToken(r.q.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id))
	if err != nil {
		return err
	}
	if t.Consumed() {
		return store.ErrAlreadyConsumed
	}
	return store.ErrExpired
}

func (r *tokensRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (domain.Token, error) {
	var (
		t             domain.Token
		purpose, role string
		consumedAt    *time.Time
	)
	err := row.Scan(
		&t.ID, &t.SubjectID, &purpose, &t.SecretDigest, &t.ExpiresAt, &consumedAt, &t.CreatedAt,
		&t.FirmID, &role, &t.TargetEmail, &t.CreatedBy,
	)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}
	t.Purpose = domain.Purpose(purpose)
	t.Role = domain.Role(role)
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if consumedAt != nil {
		c := consumedAt.UTC()
		t.ConsumedAt = &c
	}
	return t, nil
}
