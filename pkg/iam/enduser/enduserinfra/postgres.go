package enduserinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, application_id, email, password_hash, first_name, last_name,
	is_email_verified, is_active, created_at, updated_at, last_login_at`

// PostgresUserRepository stores end users in the end_users table
type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *enduser.EndUser) error {
	query := `INSERT INTO end_users (` + userColumns + `)
		VALUES (:id, :application_id, :email, :password_hash, :first_name, :last_name,
			:is_email_verified, :is_active, :created_at, :updated_at, :last_login_at)`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return enduser.ErrEmailTaken()
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID) (*enduser.EndUser, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM end_users WHERE application_id = $1 AND id = $2`, appID, id)
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, appID kernel.ApplicationID, email string) (*enduser.EndUser, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM end_users WHERE application_id = $1 AND email = $2`, appID, enduser.NormalizeEmail(email))
}

func (r *PostgresUserRepository) UpdateLastLogin(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID, at time.Time) error {
	return r.exec(ctx, `UPDATE end_users SET last_login_at = $1, updated_at = $1 WHERE application_id = $2 AND id = $3`, at, appID, id)
}

func (r *PostgresUserRepository) UpdatePasswordHash(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID, hash password.HashedPassword) error {
	return r.exec(ctx, `UPDATE end_users SET password_hash = $1 WHERE application_id = $2 AND id = $3`, hash, appID, id)
}

func (r *PostgresUserRepository) MarkEmailVerified(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID, at time.Time) error {
	return r.exec(ctx, `UPDATE end_users SET is_email_verified = TRUE, updated_at = $1 WHERE application_id = $2 AND id = $3`, at, appID, id)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...any) (*enduser.EndUser, error) {
	var u enduser.EndUser
	if err := r.db.GetContext(ctx, &u, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, enduser.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user", errx.TypeInternal)
	}
	return &u, nil
}

func (r *PostgresUserRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errx.Wrap(err, "failed to update user", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read affected rows", errx.TypeInternal)
	}
	if rows == 0 {
		return enduser.ErrNotFound()
	}
	return nil
}
