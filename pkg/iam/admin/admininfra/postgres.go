package admininfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

const adminColumns = `id, email, password_hash, created_at, last_login_at`

// PostgresAdminRepository stores the operator account in the admins table
type PostgresAdminRepository struct {
	db *sqlx.DB
}

func NewPostgresAdminRepository(db *sqlx.DB) *PostgresAdminRepository {
	return &PostgresAdminRepository{db: db}
}

func (r *PostgresAdminRepository) FindByID(ctx context.Context, id kernel.AdminID) (*admin.Admin, error) {
	return r.findOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id)
}

func (r *PostgresAdminRepository) FindByEmail(ctx context.Context, email string) (*admin.Admin, error) {
	return r.findOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, admin.NormalizeEmail(email))
}

func (r *PostgresAdminRepository) findOne(ctx context.Context, query string, arg any) (*admin.Admin, error) {
	var a admin.Admin
	if err := r.db.GetContext(ctx, &a, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, admin.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find admin", errx.TypeInternal)
	}
	return &a, nil
}

func (r *PostgresAdminRepository) ReplaceAll(ctx context.Context, a admin.Admin) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM admins`)
	if err != nil {
		return 0, errx.Wrap(err, "failed to remove previous admins", errx.TypeInternal)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to read affected rows", errx.TypeInternal)
	}

	query := `
		INSERT INTO admins (id, email, password_hash, created_at, last_login_at)
		VALUES (:id, :email, :password_hash, :created_at, :last_login_at)`
	if _, err := tx.NamedExecContext(ctx, query, a); err != nil {
		return 0, errx.Wrap(err, "failed to create admin", errx.TypeInternal)
	}

	if err := tx.Commit(); err != nil {
		return 0, errx.Wrap(err, "failed to commit admin", errx.TypeInternal)
	}
	return int(removed), nil
}

func (r *PostgresAdminRepository) UpdateLastLogin(ctx context.Context, id kernel.AdminID, at time.Time) error {
	return r.exec(ctx, `UPDATE admins SET last_login_at = $1 WHERE id = $2`, at, id)
}

func (r *PostgresAdminRepository) UpdatePasswordHash(ctx context.Context, id kernel.AdminID, hash password.HashedPassword) error {
	return r.exec(ctx, `UPDATE admins SET password_hash = $1 WHERE id = $2`, hash, id)
}

func (r *PostgresAdminRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errx.Wrap(err, "failed to update admin", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read affected rows", errx.TypeInternal)
	}
	if rows == 0 {
		return admin.ErrNotFound()
	}
	return nil
}
