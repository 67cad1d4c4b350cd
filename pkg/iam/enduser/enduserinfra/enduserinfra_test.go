package enduserinfra_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application/applicationinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser/enduserinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"id", "application_id", "email", "password_hash", "first_name", "last_name",
	"is_email_verified", "is_active", "created_at", "updated_at", "last_login_at",
}

func newPostgresRepo(t *testing.T) (*enduserinfra.PostgresUserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return enduserinfra.NewPostgresUserRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresUserRepository_FindScopedByApplication(t *testing.T) {
	repo, mock := newPostgresRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM end_users WHERE application_id = \$1 AND email = \$2`).
		WithArgs("app-1", "jane@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"user-1", "app-1", "jane@example.com", "$argon2id$hash", "Jane", "", false, true, now, now, nil,
		))

	u, err := repo.FindByEmail(context.Background(), "app-1", " Jane@Example.com")
	require.NoError(t, err)
	assert.Equal(t, kernel.UserID("user-1"), u.ID)
	assert.Equal(t, kernel.ApplicationID("app-1"), u.ApplicationID)
	assert.Nil(t, u.LastLoginAt)

	mock.ExpectQuery(`SELECT .+ FROM end_users WHERE application_id = \$1 AND id = \$2`).
		WithArgs("app-2", "user-1").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindByID(context.Background(), "app-2", "user-1")
	assert.True(t, errx.IsCode(err, enduser.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newPostgresRepo(t)
	user := enduser.NewEndUser("app-1", "jane@example.com", "$argon2id$hash", "Jane", "Doe", time.Now())

	mock.ExpectExec(`INSERT INTO end_users`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), user))

	mock.ExpectExec(`INSERT INTO end_users`).WillReturnError(&pq.Error{Code: "23505"})
	err := repo.Create(context.Background(), user)
	assert.True(t, errx.IsCode(err, enduser.CodeEmailTaken))
}

func TestPostgresUserRepository_UpdateMissing(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	mock.ExpectExec(`UPDATE end_users SET last_login_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLastLogin(context.Background(), "app-1", "ghost", time.Now())
	assert.True(t, errx.IsCode(err, enduser.CodeNotFound))
}

func TestMemoryUserRepository_Isolation(t *testing.T) {
	ctx := context.Background()
	repo := enduserinfra.NewMemoryUserRepository()
	user := enduser.NewEndUser("app-1", "jane@example.com", "$argon2id$hash", "", "", time.Now())
	require.NoError(t, repo.Create(ctx, user))

	dup := enduser.NewEndUser("app-1", "JANE@example.com", "$argon2id$hash", "", "", time.Now())
	assert.True(t, errx.IsCode(repo.Create(ctx, dup), enduser.CodeEmailTaken))

	other := enduser.NewEndUser("app-2", "jane@example.com", "$argon2id$hash", "", "", time.Now())
	require.NoError(t, repo.Create(ctx, other))

	_, err := repo.FindByID(ctx, "app-2", user.ID)
	assert.True(t, errx.IsCode(err, enduser.CodeNotFound))
	assert.True(t, errx.IsCode(repo.UpdateLastLogin(ctx, "app-2", user.ID, time.Now()), enduser.CodeNotFound))
}

type capturingNotifier struct {
	template string
	data     any
	msg      notifx.EmailMessage
	tags     map[string]string
}

func (n *capturingNotifier) SendEmail(_ context.Context, msg notifx.EmailMessage, _ ...notifx.Option) error {
	n.msg = msg
	return nil
}

func (n *capturingNotifier) SendTemplatedEmail(_ context.Context, name string, data any, msg notifx.EmailMessage, opts ...notifx.Option) error {
	n.template = name
	n.data = data
	n.msg = msg
	n.tags = notifx.ApplySendOptions(opts).Tags
	return nil
}

func TestTenantMailer(t *testing.T) {
	ctx := context.Background()
	apps := applicationinfra.NewMemoryApplicationRepository()
	keys, err := application.GenerateKeys()
	require.NoError(t, err)

	plain := application.NewApplication("Plain", "plain", keys, time.Now())
	require.NoError(t, apps.Save(ctx, plain))

	keys2, err := application.GenerateKeys()
	require.NoError(t, err)
	custom := application.NewApplication("Custom", "custom", keys2, time.Now())
	custom.SetEmailSettings(application.EmailSettings{Provider: "ses", FromAddress: "hi@custom.test", Region: "eu-west-1"}, time.Now())
	require.NoError(t, apps.Save(ctx, custom))

	fallback := &capturingNotifier{}
	tenantNotifier := &capturingNotifier{}
	var built notifx.ProviderConfig
	mailer := enduserinfra.NewTenantMailer(apps, fallback).WithFactory(
		func(_ context.Context, cfg notifx.ProviderConfig) (notifx.Notifier, error) {
			built = cfg
			return tenantNotifier, nil
		},
	)

	user := enduser.NewEndUser(plain.ID, "jane@example.com", "", "Jane", "", time.Now())
	require.NoError(t, mailer.SendWelcome(ctx, plain.TenantContext(), *user))
	assert.Equal(t, notifx.TemplateWelcome, fallback.template)
	assert.Equal(t, []string{"jane@example.com"}, fallback.msg.To)
	assert.Equal(t, "Welcome to Plain", fallback.msg.Subject)
	assert.Equal(t, "welcome", fallback.tags["event"])

	user = enduser.NewEndUser(custom.ID, "bob@example.com", "", "Bob", "", time.Now())
	require.NoError(t, mailer.SendWelcome(ctx, custom.TenantContext(), *user))
	assert.Equal(t, "ses", built.Provider)
	assert.Equal(t, "eu-west-1", built.Region)
	assert.Equal(t, []string{"bob@example.com"}, tenantNotifier.msg.To)
	assert.Equal(t, custom.ID.String(), tenantNotifier.tags["application_id"])
}

func TestTenantMailer_NoFallbackSkips(t *testing.T) {
	ctx := context.Background()
	apps := applicationinfra.NewMemoryApplicationRepository()
	keys, _ := application.GenerateKeys()
	app := application.NewApplication("Plain", "plain", keys, time.Now())
	require.NoError(t, apps.Save(ctx, app))

	mailer := enduserinfra.NewTenantMailer(apps, nil)
	user := enduser.NewEndUser(app.ID, "jane@example.com", "", "", "", time.Now())
	assert.NoError(t, mailer.SendWelcome(ctx, app.TenantContext(), *user))
}

func TestTenantMailer_SendCode(t *testing.T) {
	ctx := context.Background()
	apps := applicationinfra.NewMemoryApplicationRepository()
	keys, err := application.GenerateKeys()
	require.NoError(t, err)
	app := application.NewApplication("Plain", "plain", keys, time.Now())
	require.NoError(t, apps.Save(ctx, app))

	fallback := &capturingNotifier{}
	mailer := enduserinfra.NewTenantMailer(apps, fallback)
	require.NoError(t, mailer.SendCode(ctx, app.TenantContext(), "jane@example.com", "123456", otp.PurposeEmailVerification))

	assert.Equal(t, notifx.TemplateVerificationCode, fallback.template)
	assert.Equal(t, []string{"jane@example.com"}, fallback.msg.To)
	assert.Equal(t, "123456", fallback.data.(map[string]any)["Code"])
	assert.Equal(t, "email_verification", fallback.tags["event"])

	silent := enduserinfra.NewTenantMailer(apps, nil)
	err = silent.SendCode(ctx, app.TenantContext(), "jane@example.com", "123456", otp.PurposeEmailVerification)
	assert.Equal(t, errx.TypeUnavailable, errx.TypeOf(err))
}

func TestPostgresUserRepository_MarkEmailVerified(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	mock.ExpectExec(`UPDATE end_users SET is_email_verified = TRUE`).
		WithArgs(sqlmock.AnyArg(), "app-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkEmailVerified(context.Background(), "app-1", "user-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
