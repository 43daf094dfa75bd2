package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
)

type tokensRepo struct {
	q DBTX
}

const tokenColumns = `id, subject_id, purpose, secret_digest, expires_at, consumed_at, created_at,
	firm_id, role, target_email, created_by`

func (r *tokensRepo) InvalidateActive(ctx context.Context, subjectID string, purpose domain.Purpose) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM tokens WHERE subject_id = ? AND purpose = ? AND consumed_at IS NULL`,
		subjectID, string(purpose),
	)
	return err
}

func (r *tokensRepo) Insert(ctx context.Context, t domain.Token) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`,
		t.ID, t.SubjectID, string(t.Purpose), t.SecretDigest,
		toMillis(t.ExpiresAt), toMillis(t.CreatedAt),
		t.FirmID, string(t.Role), t.TargetEmail, t.CreatedBy,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateDigest
	}
	return err
}

func (r *tokensRepo) FindByDigest(ctx context.Context, digest string) (domain.Token, error) {
	return r.scan(r.q.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE secret_digest = ?`, digest))
}

func (r *tokensRepo) Consume(ctx context.Context, id string, now time.Time) error {
	ms := toMillis(now)
	res, err := r.q.ExecContext(ctx,
		`UPDATE tokens SET consumed_at = ?
		 WHERE id = ? AND consumed_at IS NULL AND expires_at > ?`,
		ms, id, ms,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Lost the race or the token was never redeemable; find out which.
	t, err := r.scan(r.q.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if t.Consumed() {
		return store.ErrAlreadyConsumed
	}
	return store.ErrExpired
}

func (r *tokensRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *tokensRepo) scan(row *sql.Row) (domain.Token, error) {
	var (
		t                    domain.Token
		purpose, role        string
		expiresAt, createdAt int64
		consumedAt           sql.NullInt64
	)
	err := row.Scan(
		&t.ID, &t.SubjectID, &purpose, &t.SecretDigest, &expiresAt, &consumedAt, &createdAt,
		&t.FirmID, &role, &t.TargetEmail, &t.CreatedBy,
	)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}
	t.Purpose = domain.Purpose(purpose)
	t.Role = domain.Role(role)
	t.ExpiresAt = fromMillis(expiresAt)
	t.ConsumedAt = fromNullMillis(consumedAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}
