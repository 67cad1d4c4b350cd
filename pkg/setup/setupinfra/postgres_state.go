package setupinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
	"github.com/jmoiron/sqlx"
)

const setupStateColumns = `current_step, is_complete, is_database_configured,
	is_email_configured, is_admin_created, completed_at, updated_at`

// PostgresStateRepository keeps the setup state in the single row id=1 of
// setup_state. MarkComplete is a conditional UPDATE, so it is safe across
// processes sharing the database.
type PostgresStateRepository struct {
	db *sqlx.DB
}

func NewPostgresStateRepository(db *sqlx.DB) *PostgresStateRepository {
	return &PostgresStateRepository{db: db}
}

func (r *PostgresStateRepository) Load(ctx context.Context) (setup.State, error) {
	var state setup.State
	query := `SELECT ` + setupStateColumns + ` FROM setup_state WHERE id = 1`

	if err := r.db.GetContext(ctx, &state, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return setup.NewState(), nil
		}
		return setup.State{}, errx.Wrap(err, "failed to load setup state", errx.TypeInternal)
	}
	return state, nil
}

func (r *PostgresStateRepository) SaveProgress(ctx context.Context, state setup.State) error {
	query := `
		INSERT INTO setup_state (id, current_step, is_complete, is_database_configured,
			is_email_configured, is_admin_created, completed_at, updated_at)
		VALUES (1, $1, FALSE, $2, $3, $4, NULL, $5)
		ON CONFLICT (id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			is_database_configured = EXCLUDED.is_database_configured,
			is_email_configured = EXCLUDED.is_email_configured,
			is_admin_created = EXCLUDED.is_admin_created,
			updated_at = EXCLUDED.updated_at
		WHERE setup_state.is_complete = FALSE`

	result, err := r.db.ExecContext(ctx, query,
		state.CurrentStep, state.IsDatabaseConfigured, state.IsEmailConfigured,
		state.IsAdminCreated, state.UpdatedAt,
	)
	if err != nil {
		return errx.Wrap(err, "failed to save setup progress", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read affected rows", errx.TypeInternal)
	}
	if rows == 0 {
		return setup.ErrAlreadyComplete()
	}
	return nil
}

func (r *PostgresStateRepository) MarkComplete(ctx context.Context, state setup.State) (bool, error) {
	query := `
		INSERT INTO setup_state (id, current_step, is_complete, is_database_configured,
			is_email_configured, is_admin_created, completed_at, updated_at)
		VALUES (1, $1, TRUE, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			is_complete = TRUE,
			is_database_configured = EXCLUDED.is_database_configured,
			is_email_configured = EXCLUDED.is_email_configured,
			is_admin_created = EXCLUDED.is_admin_created,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
		WHERE setup_state.is_complete = FALSE`

	result, err := r.db.ExecContext(ctx, query,
		state.CurrentStep, state.IsDatabaseConfigured, state.IsEmailConfigured,
		state.IsAdminCreated, state.CompletedAt, state.UpdatedAt,
	)
	if err != nil {
		return false, errx.Wrap(err, "failed to mark setup complete", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errx.Wrap(err, "failed to read affected rows", errx.TypeInternal)
	}
	return rows == 1, nil
}
