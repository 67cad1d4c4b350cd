package setup

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
)

// StateRepository persists the setup singleton
type StateRepository interface {
	// Load returns NewState() when nothing has been persisted yet
	Load(ctx context.Context) (State, error)

	// SaveProgress stores an incomplete state. It fails with ALREADY_COMPLETE
	// once the persisted state is complete.
	SaveProgress(ctx context.Context, state State) error

	// MarkComplete stores a complete state only if the persisted one is not
	// complete yet. It reports whether this call won.
	MarkComplete(ctx context.Context, state State) (bool, error)
}

// DatabaseProber checks that a connection string reaches a live database
type DatabaseProber interface {
	Ping(ctx context.Context, dsn string) error
}

// EmailProber sends a test message through the submitted provider
type EmailProber interface {
	SendProbe(ctx context.Context, settings EmailSettings, recipient string) error
}

// AdminProvisioner prepares the submitted database and creates the admin
// account in it. Creating an admin that already exists is a no-op.
type AdminProvisioner interface {
	ProvisionAdmin(ctx context.Context, dsn string, email string, hash password.HashedPassword) error
}

// PersistedConfig is what a restarted process reads to reach its database
type PersistedConfig struct {
	DatabaseURL string        `json:"database_url"`
	Email       EmailSettings `json:"email"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ApplyTo fills the database URL and the outbound email settings of a process
// that booted without DATABASE_URL
func (p PersistedConfig) ApplyTo(cfg *config.Config) {
	if cfg.Database.IsConfigured() {
		return
	}
	cfg.Database.URL = p.DatabaseURL
	cfg.Notifx.Provider = p.Email.ProviderConfig().Normalized()
	cfg.Notifx.FromAddress = p.Email.FromAddress
	if p.Email.FromName != "" {
		cfg.Notifx.FromName = p.Email.FromName
	}
	if p.Email.Region != "" {
		cfg.Notifx.AWSRegion = p.Email.Region
	}
	cfg.Notifx.AWSAccessKeyID = p.Email.AccessKeyID
	cfg.Notifx.AWSSecretAccessKey = p.Email.SecretAccessKey
}

// ConfigStore persists the configuration chosen during setup
type ConfigStore interface {
	Save(ctx context.Context, cfg PersistedConfig) error

	// Load returns nil when setup has never written a configuration
	Load(ctx context.Context) (*PersistedConfig, error)
}
