package applicationinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/iam/secret"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const applicationColumns = `id, name, slug, public_key, secret_key, is_active,
	email_settings, oauth_settings, created_at, updated_at, deactivated_at`

const uniqueViolation = "23505"

// applicationRow is the sealed form of an application as stored
type applicationRow struct {
	ID            kernel.ApplicationID `db:"id"`
	Name          string               `db:"name"`
	Slug          string               `db:"slug"`
	PublicKey     string               `db:"public_key"`
	SecretKey     string               `db:"secret_key"`
	IsActive      bool                 `db:"is_active"`
	EmailSettings []byte               `db:"email_settings"`
	OAuthSettings []byte               `db:"oauth_settings"`
	CreatedAt     time.Time            `db:"created_at"`
	UpdatedAt     time.Time            `db:"updated_at"`
	DeactivatedAt *time.Time           `db:"deactivated_at"`
}

// PostgresApplicationRepository stores tenants in the applications table.
// Secret key, email provider secret and OAuth client secrets are sealed
// with the cipher before they reach the database.
type PostgresApplicationRepository struct {
	db     *sqlx.DB
	cipher secret.Cipher
}

func NewPostgresApplicationRepository(db *sqlx.DB, cipher secret.Cipher) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{db: db, cipher: cipher}
}

func (r *PostgresApplicationRepository) Save(ctx context.Context, app *application.Application) error {
	row, err := seal(r.cipher, app)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES (:id, :name, :slug, :public_key, :secret_key, :is_active,
			:email_settings, :oauth_settings, :created_at, :updated_at, :deactivated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			secret_key = EXCLUDED.secret_key,
			is_active = EXCLUDED.is_active,
			email_settings = EXCLUDED.email_settings,
			oauth_settings = EXCLUDED.oauth_settings,
			updated_at = EXCLUDED.updated_at,
			deactivated_at = EXCLUDED.deactivated_at`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return application.ErrSlugTaken().WithDetail("slug", app.Slug)
		}
		return errx.Wrap(err, "failed to save application", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresApplicationRepository) FindByID(ctx context.Context, id kernel.ApplicationID) (*application.Application, error) {
	return r.findOne(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
}

func (r *PostgresApplicationRepository) FindByPublicKey(ctx context.Context, publicKey string) (*application.Application, error) {
	return r.findOne(ctx, `SELECT `+applicationColumns+` FROM applications WHERE public_key = $1`, publicKey)
}

func (r *PostgresApplicationRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM applications WHERE slug = $1)`, slug); err != nil {
		return false, errx.Wrap(err, "failed to check application slug", errx.TypeInternal)
	}
	return exists, nil
}

func (r *PostgresApplicationRepository) List(ctx context.Context, opts kernel.PaginationOptions) ([]*application.Application, int, error) {
	opts = opts.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM applications`); err != nil {
		return nil, 0, errx.Wrap(err, "failed to count applications", errx.TypeInternal)
	}

	var rows []applicationRow
	query := `SELECT ` + applicationColumns + ` FROM applications ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, opts.PageSize, opts.Offset()); err != nil {
		return nil, 0, errx.Wrap(err, "failed to list applications", errx.TypeInternal)
	}

	apps := make([]*application.Application, 0, len(rows))
	for _, row := range rows {
		app, err := open(r.cipher, row)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, app)
	}
	return apps, total, nil
}

// ReencryptStale re-seals every application that still carries a value
// sealed with a retired key. It returns the number of rows rewritten.
func (r *PostgresApplicationRepository) ReencryptStale(ctx context.Context) (int, error) {
	rotating, ok := r.cipher.(secret.RotatingCipher)
	if !ok {
		return 0, nil
	}

	var rows []applicationRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+applicationColumns+` FROM applications`); err != nil {
		return 0, errx.Wrap(err, "failed to list applications", errx.TypeInternal)
	}

	rewritten := 0
	for _, row := range rows {
		stale, err := row.isStale(rotating)
		if err != nil {
			return rewritten, err
		}
		if !stale {
			continue
		}

		app, err := open(r.cipher, row)
		if err != nil {
			return rewritten, err
		}
		if err := r.Save(ctx, app); err != nil {
			return rewritten, err
		}
		rewritten++
	}

	if rewritten > 0 {
		logx.WithContext(ctx).WithField("count", rewritten).Info("Re-encrypted application secrets")
	}
	return rewritten, nil
}

func (r *PostgresApplicationRepository) findOne(ctx context.Context, query string, arg any) (*application.Application, error) {
	var row applicationRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, application.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find application", errx.TypeInternal)
	}
	return open(r.cipher, row)
}

// ============================================================================
// Sealing
// ============================================================================

func seal(c secret.Cipher, app *application.Application) (applicationRow, error) {
	row := applicationRow{
		ID:            app.ID,
		Name:          app.Name,
		Slug:          app.Slug,
		PublicKey:     app.PublicKey,
		IsActive:      app.IsActive,
		CreatedAt:     app.CreatedAt,
		UpdatedAt:     app.UpdatedAt,
		DeactivatedAt: app.DeactivatedAt,
	}

	var err error
	if row.SecretKey, err = c.Encrypt(app.SecretKey); err != nil {
		return row, err
	}

	if app.EmailSettings != nil {
		settings := *app.EmailSettings
		if settings.SecretAccessKey, err = secret.EncryptOptional(c, settings.SecretAccessKey); err != nil {
			return row, err
		}
		if row.EmailSettings, err = json.Marshal(settings); err != nil {
			return row, errx.Wrap(err, "failed to encode email settings", errx.TypeInternal)
		}
	}

	oauth := make(application.OAuthSettings, len(app.OAuthSettings))
	for provider, settings := range app.OAuthSettings {
		if settings.ClientSecret, err = secret.EncryptOptional(c, settings.ClientSecret); err != nil {
			return row, err
		}
		oauth[provider] = settings
	}
	if row.OAuthSettings, err = json.Marshal(oauth); err != nil {
		return row, errx.Wrap(err, "failed to encode oauth settings", errx.TypeInternal)
	}

	return row, nil
}

func open(c secret.Cipher, row applicationRow) (*application.Application, error) {
	app := &application.Application{
		ID:            row.ID,
		Name:          row.Name,
		Slug:          row.Slug,
		PublicKey:     row.PublicKey,
		IsActive:      row.IsActive,
		OAuthSettings: application.OAuthSettings{},
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		DeactivatedAt: row.DeactivatedAt,
	}

	var err error
	if app.SecretKey, err = c.Decrypt(row.SecretKey); err != nil {
		return nil, err
	}

	if len(row.EmailSettings) > 0 {
		var settings application.EmailSettings
		if err := json.Unmarshal(row.EmailSettings, &settings); err != nil {
			return nil, errx.Wrap(err, "failed to decode email settings", errx.TypeInternal)
		}
		if settings.SecretAccessKey, err = secret.DecryptOptional(c, settings.SecretAccessKey); err != nil {
			return nil, err
		}
		app.EmailSettings = &settings
	}

	if len(row.OAuthSettings) > 0 {
		var sealed map[iam.OAuthProvider]application.OAuthProviderSettings
		if err := json.Unmarshal(row.OAuthSettings, &sealed); err != nil {
			return nil, errx.Wrap(err, "failed to decode oauth settings", errx.TypeInternal)
		}
		for provider, settings := range sealed {
			if settings.ClientSecret, err = secret.DecryptOptional(c, settings.ClientSecret); err != nil {
				return nil, err
			}
			app.OAuthSettings[provider] = settings
		}
	}

	return app, nil
}

func (row applicationRow) isStale(c secret.RotatingCipher) (bool, error) {
	if c.NeedsReencrypt(row.SecretKey) {
		return true, nil
	}

	if len(row.EmailSettings) > 0 {
		var settings application.EmailSettings
		if err := json.Unmarshal(row.EmailSettings, &settings); err != nil {
			return false, errx.Wrap(err, "failed to decode email settings", errx.TypeInternal)
		}
		if settings.SecretAccessKey != "" && c.NeedsReencrypt(settings.SecretAccessKey) {
			return true, nil
		}
	}

	if len(row.OAuthSettings) > 0 {
		var oauth map[iam.OAuthProvider]application.OAuthProviderSettings
		if err := json.Unmarshal(row.OAuthSettings, &oauth); err != nil {
			return false, errx.Wrap(err, "failed to decode oauth settings", errx.TypeInternal)
		}
		for _, settings := range oauth {
			if settings.ClientSecret != "" && c.NeedsReencrypt(settings.ClientSecret) {
				return true, nil
			}
		}
	}

	return false, nil
}
