package setupsrv_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin/admininfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin/adminsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
	"github.com/Abraxas-365/tenantauth/pkg/setup/setupinfra"
	"github.com/Abraxas-365/tenantauth/pkg/setup/setupsrv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDatabase struct {
	mu    sync.Mutex
	err   error
	dsns  []string
	delay time.Duration
}

func (p *stubDatabase) Ping(_ context.Context, dsn string) error {
	time.Sleep(p.delay)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dsns = append(p.dsns, dsn)
	return p.err
}

type stubEmail struct {
	err        error
	recipients []string
}

func (p *stubEmail) SendProbe(_ context.Context, _ setup.EmailSettings, recipient string) error {
	p.recipients = append(p.recipients, recipient)
	return p.err
}

type failingProvisioner struct{ err error }

func (p failingProvisioner) ProvisionAdmin(context.Context, string, string, password.HashedPassword) error {
	return p.err
}

type memoryConfigStore struct {
	mu    sync.Mutex
	saved []setup.PersistedConfig
}

func (s *memoryConfigStore) Save(_ context.Context, cfg setup.PersistedConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, cfg)
	return nil
}

func (s *memoryConfigStore) Load(context.Context) (*setup.PersistedConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil, nil
	}
	cfg := s.saved[len(s.saved)-1]
	return &cfg, nil
}

// flakyConfigStore rejects Save until failures runs out
type flakyConfigStore struct {
	memoryConfigStore
	failures int
}

func (s *flakyConfigStore) Save(ctx context.Context, cfg setup.PersistedConfig) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("disk full")
	}
	s.mu.Unlock()
	return s.memoryConfigStore.Save(ctx, cfg)
}

type completionRecorder struct {
	metrics.Nop
	mu       sync.Mutex
	outcomes []string
}

func (r *completionRecorder) RecordSetupCompletion(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	service  *setupsrv.Service
	states   *setupinfra.MemoryStateRepository
	database *stubDatabase
	email    *stubEmail
	admins   *admininfra.MemoryAdminRepository
	configs  *memoryConfigStore
	recorder *completionRecorder
	hasher   *password.Argon2idHasher
}

func newFixture(t *testing.T, cfg config.SetupConfig) *fixture {
	t.Helper()
	f := &fixture{
		states:   setupinfra.NewMemoryStateRepository(),
		database: &stubDatabase{},
		email:    &stubEmail{},
		admins:   admininfra.NewMemoryAdminRepository(),
		configs:  &memoryConfigStore{},
		recorder: &completionRecorder{},
		hasher:   password.NewArgon2idHasher(password.TestParams(), password.MinLength),
	}
	f.service = setupsrv.NewService(setupsrv.Deps{
		States:   f.states,
		Database: f.database,
		Email:    f.email,
		Admins:   admininfra.NewRepositoryProvisioner(f.admins),
		Configs:  f.configs,
		Hasher:   f.hasher,
		Metrics:  f.recorder,
	}, cfg)
	return f
}

func completeRequest() setup.CompleteRequest {
	return setup.CompleteRequest{
		Database: setup.DatabaseSettings{Host: "localhost", Name: "auth", User: "svc", Password: "pw"},
		Email:    setup.EmailSettings{Provider: "console", FromAddress: "noreply@example.com"},
		Admin:    setup.AdminSettings{Email: "admin@example.com", Password: "Sup3rSecret!"},
	}
}

func TestCompleteSetup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{})
	assert.False(t, f.service.IsSetupComplete(ctx))

	result, err := f.service.CompleteSetup(ctx, completeRequest())
	require.NoError(t, err)
	assert.True(t, result.RestartRequired)
	assert.False(t, result.Status.IsSetupRequired)
	assert.Equal(t, setup.StepComplete, result.Status.CurrentStep)
	assert.True(t, result.Status.Progress.IsAdminCreated)

	assert.True(t, f.service.IsSetupComplete(ctx))

	state, err := f.states.Load(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsComplete)
	assert.NotNil(t, state.CompletedAt)

	require.Len(t, f.configs.saved, 1)
	assert.Equal(t, completeRequest().Database.DSN(), f.configs.saved[0].DatabaseURL)

	stored, err := f.admins.FindByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3rSecret!", string(stored.PasswordHash))
	assert.Equal(t, []string{metrics.OutcomeSuccess}, f.recorder.outcomes)
}

func TestCompleteSetup_SecondCallRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{})

	_, err := f.service.CompleteSetup(ctx, completeRequest())
	require.NoError(t, err)

	req := completeRequest()
	req.Admin.Email = "intruder@example.com"
	_, err = f.service.CompleteSetup(ctx, req)
	assert.True(t, errx.IsCode(err, setup.CodeAlreadyComplete))

	_, err = f.admins.FindByEmail(ctx, "intruder@example.com")
	assert.True(t, errx.IsCode(err, admin.CodeNotFound))
	assert.Len(t, f.configs.saved, 1)
}

func TestCompleteSetup_ConcurrentCallersOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{})
	f.database.delay = 20 * time.Millisecond

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.CompleteSetup(ctx, completeRequest())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errx.IsCode(err, setup.CodeAlreadyComplete):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, rejected)
	assert.Len(t, f.configs.saved, 1)
}

func TestCompleteSetup_DatabaseFailureLeavesSetupOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{})
	f.database.err = errors.New("connection refused")

	_, err := f.service.CompleteSetup(ctx, completeRequest())
	assert.True(t, errx.IsCode(err, setup.CodeDatabaseConnectionFailed))
	assert.False(t, f.service.IsSetupComplete(ctx))
	assert.Empty(t, f.configs.saved)

	f.database.err = nil
	_, err = f.service.CompleteSetup(ctx, completeRequest())
	require.NoError(t, err)
	assert.True(t, f.service.IsSetupComplete(ctx))
	assert.Equal(t, []string{metrics.OutcomeFailure, metrics.OutcomeSuccess}, f.recorder.outcomes)
}

func TestCompleteSetup_ProvisioningFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	states := setupinfra.NewMemoryStateRepository()
	configs := &memoryConfigStore{}
	deps := setupsrv.Deps{
		States:   states,
		Database: &stubDatabase{},
		Email:    &stubEmail{},
		Admins:   failingProvisioner{err: errors.New("migration failed")},
		Configs:  configs,
		Hasher:   password.NewArgon2idHasher(password.TestParams(), password.MinLength),
	}

	_, err := setupsrv.NewService(deps, config.SetupConfig{}).CompleteSetup(ctx, completeRequest())
	assert.True(t, errx.IsCode(err, setup.CodeProvisioningFailed))

	state, err := states.Load(ctx)
	require.NoError(t, err)
	assert.False(t, state.IsComplete)
	assert.Equal(t, setup.StepAdminAccountCreation, state.CurrentStep)

	deps.Admins = admininfra.NewRepositoryProvisioner(admininfra.NewMemoryAdminRepository())
	_, err = setupsrv.NewService(deps, config.SetupConfig{}).CompleteSetup(ctx, completeRequest())
	require.NoError(t, err)
	assert.Len(t, configs.saved, 1)
}

func TestCompleteSetup_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{})

	req := completeRequest()
	req.Admin.Password = "short"
	_, err := f.service.CompleteSetup(ctx, req)
	assert.True(t, errx.IsCode(err, errx.CodeValidationFailed))
	assert.Empty(t, f.database.dsns)
}

func TestCompleteSetup_BootstrapAdminFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{
		AdminBootstrapEmail:    "ops@example.com",
		AdminBootstrapPassword: "B00tstrap-Pass",
	})

	req := completeRequest()
	req.Admin = setup.AdminSettings{}
	_, err := f.service.CompleteSetup(ctx, req)
	require.NoError(t, err)

	stored, err := f.admins.FindByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.True(t, f.hasher.Verify(stored.PasswordHash, "B00tstrap-Pass"))
}

func TestProbesNeverAdvanceState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{ProbeTimeout: time.Second})

	assert.True(t, f.service.TestDatabaseConnection(ctx, completeRequest().Database))
	assert.True(t, f.service.TestEmailConnection(ctx, completeRequest().Email, "ops@example.com"))
	assert.Equal(t, []string{"ops@example.com"}, f.email.recipients)

	f.database.err = errors.New("timeout")
	f.email.err = errors.New("rejected")
	assert.False(t, f.service.TestDatabaseConnection(ctx, completeRequest().Database))
	assert.False(t, f.service.TestEmailConnection(ctx, completeRequest().Email, "ops@example.com"))

	status, err := f.service.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsSetupRequired)
	assert.Equal(t, setup.StepDatabaseConfiguration, status.CurrentStep)
	assert.False(t, status.Progress.IsDatabaseConfigured)
}

type activeApps struct{}

func (activeApps) IsApplicationActive(context.Context, kernel.ApplicationID) (bool, error) {
	return true, nil
}

func TestCompletedSetupAdminCanLogIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.SetupConfig{})
	_, err := f.service.CompleteSetup(ctx, completeRequest())
	require.NoError(t, err)

	ttl := 15 * time.Minute
	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		Secret:         "0123456789abcdef0123456789abcdef",
		AccessTokenTTL: ttl,
	})
	tokens := authsrv.NewTokenManager(jwtSvc, authinfra.NewMemoryTokenRepository(), activeApps{}, nil, nil, time.Hour)
	login := adminsrv.NewAdminAuthService(f.admins, tokens, f.hasher, authinfra.NewLogxAuditService(), nil)

	before := time.Now()
	pair, err := login.Login(ctx, admin.LoginRequest{Email: "admin@example.com", Password: "Sup3rSecret!"}, "127.0.0.1", "test")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.WithinDuration(t, before.Add(ttl), pair.AccessExpiresAt, 5*time.Second)

	_, err = login.Login(ctx, admin.LoginRequest{Email: "admin@example.com", Password: "wrong-password"}, "127.0.0.1", "test")
	assert.True(t, errx.IsCode(err, iam.CodeInvalidCredentials))
}

func TestCompleteSetup_RetryAfterSaveFailureReplacesAdmin(t *testing.T) {
	ctx := context.Background()
	admins := admininfra.NewMemoryAdminRepository()
	hasher := password.NewArgon2idHasher(password.TestParams(), password.MinLength)
	configs := &flakyConfigStore{failures: 2}
	service := setupsrv.NewService(setupsrv.Deps{
		States:   setupinfra.NewMemoryStateRepository(),
		Database: &stubDatabase{},
		Email:    &stubEmail{},
		Admins:   admininfra.NewRepositoryProvisioner(admins),
		Configs:  configs,
		Hasher:   hasher,
	}, config.SetupConfig{})

	first := completeRequest()
	first.Admin.Password = "FirstPassw0rd!"
	_, err := service.CompleteSetup(ctx, first)
	require.Error(t, err)
	assert.False(t, service.IsSetupComplete(ctx))

	second := completeRequest()
	second.Admin.Email = "other@example.com"
	second.Admin.Password = "OtherPassw0rd!"
	_, err = service.CompleteSetup(ctx, second)
	require.Error(t, err)

	result, err := service.CompleteSetup(ctx, completeRequest())
	require.NoError(t, err)
	assert.True(t, result.RestartRequired)

	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		Secret:         "0123456789abcdef0123456789abcdef",
		AccessTokenTTL: time.Minute,
	})
	tokens := authsrv.NewTokenManager(jwtSvc, authinfra.NewMemoryTokenRepository(), activeApps{}, nil, nil, time.Hour)
	login := adminsrv.NewAdminAuthService(admins, tokens, hasher, authinfra.NewLogxAuditService(), nil)

	_, err = login.Login(ctx, admin.LoginRequest{Email: "admin@example.com", Password: "Sup3rSecret!"}, "", "")
	require.NoError(t, err)

	_, err = login.Login(ctx, admin.LoginRequest{Email: "admin@example.com", Password: "FirstPassw0rd!"}, "", "")
	assert.True(t, errx.IsCode(err, iam.CodeInvalidCredentials))

	_, err = admins.FindByEmail(ctx, "other@example.com")
	assert.True(t, errx.IsCode(err, admin.CodeNotFound))
}
