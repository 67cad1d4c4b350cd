package setupsrv

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
)

const restartMessage = "Setup complete. Restart the service to apply the new configuration."

// Service drives the one-time setup wizard
type Service struct {
	states   setup.StateRepository
	database setup.DatabaseProber
	email    setup.EmailProber
	admins   setup.AdminProvisioner
	configs  setup.ConfigStore
	hasher   password.Hasher
	metrics  metrics.Recorder
	cfg      config.SetupConfig

	complete atomic.Bool
	running  atomic.Bool
	now      func() time.Time
}

// Deps are the collaborators of the wizard
type Deps struct {
	States   setup.StateRepository
	Database setup.DatabaseProber
	Email    setup.EmailProber
	Admins   setup.AdminProvisioner
	Configs  setup.ConfigStore
	Hasher   password.Hasher
	Metrics  metrics.Recorder
}

func NewService(deps Deps, cfg config.SetupConfig) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Service{
		states:   deps.States,
		database: deps.Database,
		email:    deps.Email,
		admins:   deps.Admins,
		configs:  deps.Configs,
		hasher:   deps.Hasher,
		metrics:  deps.Metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IsSetupComplete is polled on every gated request. Once true it is cached
// for the life of the process.
func (s *Service) IsSetupComplete(ctx context.Context) bool {
	if s.complete.Load() {
		return true
	}

	state, err := s.states.Load(ctx)
	if err != nil {
		logx.WithContext(ctx).WithError(err).Error("Failed to load setup state")
		return false
	}
	if state.IsComplete {
		s.complete.Store(true)
	}
	return state.IsComplete
}

// Status reports the wizard position and checklist
func (s *Service) Status(ctx context.Context) (*setup.Status, error) {
	state, err := s.states.Load(ctx)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load setup state", errx.TypeInternal)
	}
	status := state.Status()
	return &status, nil
}

// TestDatabaseConnection pings the submitted database. It never advances the wizard.
func (s *Service) TestDatabaseConnection(ctx context.Context, settings setup.DatabaseSettings) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	if err := s.database.Ping(ctx, settings.DSN()); err != nil {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"host":     settings.Host,
			"database": settings.Name,
		}).WithError(err).Warn("Database connection test failed")
		return false
	}
	return true
}

// TestEmailConnection sends a probe email to recipient. It never advances the wizard.
func (s *Service) TestEmailConnection(ctx context.Context, settings setup.EmailSettings, recipient string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	if err := s.email.SendProbe(ctx, settings, recipient); err != nil {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"provider":  settings.Provider,
			"recipient": recipient,
		}).WithError(err).Warn("Email connection test failed")
		return false
	}
	return true
}

// CompleteSetup performs the single mutating transition. Exactly one caller
// can succeed per deployment; every other caller gets SETUP_ALREADY_COMPLETE.
func (s *Service) CompleteSetup(ctx context.Context, req setup.CompleteRequest) (*setup.CompleteResult, error) {
	req.Admin = s.withBootstrapAdmin(req.Admin)
	if err := req.Validate(); err != nil {
		s.metrics.RecordSetupCompletion(metrics.OutcomeFailure)
		return nil, err
	}

	if s.complete.Load() || !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordSetupCompletion(metrics.OutcomeAlreadyComplete)
		return nil, setup.ErrAlreadyComplete()
	}

	result, err := s.runCompletion(ctx, req)
	if err != nil {
		s.running.Store(false)
		if errx.IsCode(err, setup.CodeAlreadyComplete) {
			s.metrics.RecordSetupCompletion(metrics.OutcomeAlreadyComplete)
		} else {
			s.metrics.RecordSetupCompletion(metrics.OutcomeFailure)
		}
		return nil, err
	}

	s.metrics.RecordSetupCompletion(metrics.OutcomeSuccess)
	return result, nil
}

func (s *Service) runCompletion(ctx context.Context, req setup.CompleteRequest) (*setup.CompleteResult, error) {
	state, err := s.states.Load(ctx)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load setup state", errx.TypeInternal)
	}
	if state.IsComplete {
		s.complete.Store(true)
		return nil, setup.ErrAlreadyComplete()
	}

	dsn := req.Database.DSN()
	if !s.TestDatabaseConnection(ctx, req.Database) {
		return nil, setup.ErrDatabaseConnectionFailed()
	}
	if err := s.advance(ctx, &state, setup.StepEmailConfiguration); err != nil {
		return nil, err
	}
	if err := s.advance(ctx, &state, setup.StepAdminAccountCreation); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Admin.Password)
	if err != nil {
		return nil, err
	}
	if err := s.admins.ProvisionAdmin(ctx, dsn, req.Admin.Email, hash); err != nil {
		return nil, setup.ErrProvisioningFailed(err)
	}

	now := s.now().UTC()
	if err := s.configs.Save(ctx, setup.PersistedConfig{
		DatabaseURL: dsn,
		Email:       req.Email,
		CompletedAt: now,
	}); err != nil {
		return nil, errx.Wrap(err, "failed to persist setup configuration", errx.TypeInternal)
	}

	if err := state.Advance(setup.StepComplete, now); err != nil {
		return nil, err
	}
	won, err := s.states.MarkComplete(ctx, state)
	if err != nil {
		return nil, errx.Wrap(err, "failed to mark setup complete", errx.TypeInternal)
	}
	if !won {
		s.complete.Store(true)
		return nil, setup.ErrAlreadyComplete()
	}
	s.complete.Store(true)

	logx.WithContext(ctx).WithFields(logx.Fields{
		"admin_email":    req.Admin.Email,
		"email_provider": req.Email.ProviderConfig().Normalized(),
	}).Info("Setup completed, restart required")

	return &setup.CompleteResult{
		Status:          state.Status(),
		RestartRequired: true,
		Message:         restartMessage,
	}, nil
}

// advance moves the wizard forward unless an earlier attempt already got there
func (s *Service) advance(ctx context.Context, state *setup.State, to setup.Step) error {
	if state.Reached(to) {
		return nil
	}
	if err := state.AdvanceTo(to, s.now().UTC()); err != nil {
		return err
	}
	if err := s.states.SaveProgress(ctx, *state); err != nil {
		if errx.IsCode(err, setup.CodeAlreadyComplete) {
			return err
		}
		return errx.Wrap(err, "failed to save setup progress", errx.TypeInternal)
	}
	return nil
}

func (s *Service) withBootstrapAdmin(admin setup.AdminSettings) setup.AdminSettings {
	if admin.Email == "" {
		admin.Email = s.cfg.AdminBootstrapEmail
	}
	if admin.Password == "" {
		admin.Password = s.cfg.AdminBootstrapPassword
	}
	return admin
}
