package authinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

const refreshTokenColumns = `id, token_hash, family_id, kind, principal_id, application_id,
	issued_at, expires_at, revoked_at, replaced_by_id`

// PostgresTokenRepository stores refresh tokens in the refresh_tokens table
type PostgresTokenRepository struct {
	db *sqlx.DB
}

func NewPostgresTokenRepository(db *sqlx.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

func (r *PostgresTokenRepository) Save(ctx context.Context, token *auth.RefreshToken) error {
	return insertRefreshToken(ctx, r.db, token)
}

func (r *PostgresTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var token auth.RefreshToken
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrRefreshTokenNotFound()
		}
		return nil, errx.Wrap(err, "failed to find refresh token", errx.TypeInternal)
	}
	return &token, nil
}

// Rotate locks the old row so a concurrent redemption waits and then sees it revoked
func (r *PostgresTokenRepository) Rotate(ctx context.Context, oldHash string, next *auth.RefreshToken, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	var old auth.RefreshToken
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &old, query, oldHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrRefreshTokenNotFound()
		}
		return errx.Wrap(err, "failed to lock refresh token", errx.TypeInternal)
	}

	if old.IsRevoked() {
		return auth.ErrRefreshTokenRevoked()
	}
	if old.IsExpired(now) {
		return auth.ErrInvalidOrExpiredRefreshToken()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1, replaced_by_id = $2 WHERE id = $3`,
		now, next.ID, old.ID,
	); err != nil {
		return errx.Wrap(err, "failed to revoke refresh token", errx.TypeInternal)
	}

	if err := insertRefreshToken(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit refresh token rotation", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresTokenRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) error {
	err := r.revokeUntilSettled(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE family_id = $2 AND revoked_at IS NULL`,
		now, familyID,
	)
	if err != nil {
		return errx.Wrap(err, "failed to revoke refresh token family", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresTokenRepository) RevokeAllForPrincipal(ctx context.Context, kind kernel.PrincipalKind, principalID string, now time.Time) error {
	err := r.revokeUntilSettled(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE kind = $2 AND principal_id = $3 AND revoked_at IS NULL`,
		now, kind, principalID,
	)
	if err != nil {
		return errx.Wrap(err, "failed to revoke refresh tokens", errx.TypeInternal)
	}
	return nil
}

// revokeUntilSettled repeats the update until a pass after the first touches
// no rows. A rotation holding a row lock commits its replacement outside the
// first statement's snapshot; the next pass revokes it.
func (r *PostgresTokenRepository) revokeUntilSettled(ctx context.Context, query string, args ...any) error {
	for pass := 0; pass < maxRevokePasses; pass++ {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 && pass > 0 {
			return nil
		}
	}
	return nil
}

func (r *PostgresTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired refresh tokens", errx.TypeInternal)
	}
	return res.RowsAffected()
}

func insertRefreshToken(ctx context.Context, exec sqlx.ExtContext, token *auth.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
		VALUES (:id, :token_hash, :family_id, :kind, :principal_id, :application_id,
			:issued_at, :expires_at, :revoked_at, :replaced_by_id)`

	if _, err := sqlx.NamedExecContext(ctx, exec, query, token); err != nil {
		return errx.Wrap(err, "failed to insert refresh token", errx.TypeInternal)
	}
	return nil
}
