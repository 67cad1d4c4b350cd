// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, setup storage,
// keyring, metrics) and composes the setup and IAM contexts.
package main

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/database"
	"github.com/Abraxas-365/tenantauth/pkg/fsx"
	"github.com/Abraxas-365/tenantauth/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin/admininfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/iam/secret"
	"github.com/Abraxas-365/tenantauth/pkg/jobx"
	"github.com/Abraxas-365/tenantauth/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx/notifxprovider"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
	"github.com/Abraxas-365/tenantauth/pkg/setup/setupapi"
	"github.com/Abraxas-365/tenantauth/pkg/setup/setupinfra"
	"github.com/Abraxas-365/tenantauth/pkg/setup/setupsrv"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const serviceName = "TenantAuth"

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB         *sqlx.DB
	Redis      *redis.Client
	StateFS    fsx.FileSystem
	Keyring    *secret.Keyring
	Registry   *prometheus.Registry
	Metrics    *metrics.Collector
	Notifier   notifx.Notifier
	SetupStore setup.ConfigStore
	Jobs       *jobx.Client

	// Bounded-context containers
	Setup         *setupsrv.Service
	SetupHandlers *setupapi.SetupHandlers
	Gate          setup.Checker
	IAM           *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")
	ctx := context.Background()

	// 1. Keyring. Keys come from configuration only.
	keyring, err := secret.NewKeyringFromConfig(c.Config.Encryption)
	if err != nil {
		logx.Fatalf("Failed to load encryption keys: %v", err)
	}
	c.Keyring = keyring
	logx.Infof("  ✅ Keyring loaded (primary key: %s)", keyring.PrimaryKeyID())

	// 2. Setup storage, then the configuration a previous setup persisted
	stateFS, err := fsxlocal.NewLocalFileSystem(c.Config.Setup.StateDir)
	if err != nil {
		logx.Fatalf("Failed to initialize setup state directory: %v", err)
	}
	c.StateFS = stateFS
	c.SetupStore = setupinfra.NewFileConfigStore(stateFS, keyring)
	logx.Infof("  ✅ Setup storage configured (path: %s)", stateFS.GetBasePath())

	if !c.Config.Database.IsConfigured() {
		persisted, err := c.SetupStore.Load(ctx)
		if err != nil {
			logx.Fatalf("Failed to read persisted setup configuration: %v", err)
		}
		if persisted != nil {
			persisted.ApplyTo(c.Config)
			logx.Info("  ✅ Using configuration persisted by setup")
		}
	}

	// 3. Database
	if c.Config.Database.IsConfigured() {
		if err := database.RunMigrations(c.Config.Database.URL); err != nil {
			logx.Fatalf("Failed to run migrations: %v", err)
		}
		db, err := database.Open(ctx, c.Config.Database)
		if err != nil {
			logx.Fatalf("Failed to connect to database: %v", err)
		}
		c.DB = db
		logx.Info("  ✅ Database connected")
	} else {
		logx.Warn("  ⚠️  No database configured, waiting for setup")
	}

	// 4. Redis
	if c.Config.Redis.Enabled {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Address(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := c.Redis.Ping(ctx).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v", err)
		}
		logx.Info("  ✅ Redis connected")

		if c.Config.Jobx.Enabled {
			jobsCfg := c.Config.Jobx
			c.Jobs = jobx.NewClient(
				jobxredis.NewRedisQueue(c.Redis, jobsCfg.Retention),
				jobx.WithQueues(jobsCfg.Queues...),
				jobx.WithConcurrency(jobsCfg.Concurrency),
				jobx.WithPollInterval(jobsCfg.PollInterval),
				jobx.WithShutdownTimeout(jobsCfg.ShutdownTimeout),
				jobx.WithDequeueTimeout(jobsCfg.DequeueTimeout),
				jobx.WithDefaultRetryDelay(jobsCfg.DefaultRetryDelay),
			)
			logx.Infof("  ✅ Job queue configured (queues: %v)", jobsCfg.Queues)
		}
	}

	// 5. Metrics
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewCollector(c.Registry)

	// 6. Service-wide email
	notifier, err := notifxprovider.NewClient(ctx, notifx.ProviderConfig{
		Provider:        c.Config.Notifx.Provider,
		FromAddress:     c.Config.Notifx.FromAddress,
		FromName:        c.Config.Notifx.FromName,
		Region:          c.Config.Notifx.AWSRegion,
		AccessKeyID:     c.Config.Notifx.AWSAccessKeyID,
		SecretAccessKey: c.Config.Notifx.AWSSecretAccessKey,

		ConfigurationSet: c.Config.Notifx.SESConfigurationSet,
	})
	if err != nil {
		logx.WithError(err).Warn("  ⚠️  Email provider unavailable, welcome emails disabled")
	} else {
		c.Notifier = notifier
		logx.Infof("  ✅ Email provider configured (%s)", c.Config.Notifx.Provider)
	}

	logx.Info("✅ Infrastructure initialized")
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	c.Setup = setupsrv.NewService(setupsrv.Deps{
		States:   c.newStateRepository(),
		Database: setupinfra.NewPostgresProber(),
		Email:    setupinfra.NewNotifxProber(serviceName),
		Admins:   c.newProvisioner(),
		Configs:  c.SetupStore,
		Hasher:   password.NewArgon2idHasher(password.DefaultParams(), password.MinLength),
		Metrics:  c.Metrics,
	}, c.Config.Setup)
	c.SetupHandlers = setupapi.NewSetupHandlers(c.Setup)
	c.Gate = setup.BootGate{Wizard: c.Setup, DatabaseReady: c.DB != nil}
	logx.Info("  ✅ Setup module initialized")

	c.IAM = iamcontainer.New(iamcontainer.Deps{
		DB:       c.DB,
		Redis:    c.Redis,
		Cfg:      c.Config,
		Cipher:   c.Keyring,
		Setup:    c.Gate,
		Notifier: c.Notifier,
		Metrics:  c.Metrics,
		Jobs:     c.Jobs,
	})
}

func (c *Container) newStateRepository() setup.StateRepository {
	if c.Config.Setup.StateStore == "postgres" && c.DB != nil {
		logx.Info("  ✅ Using Postgres setup state")
		return setupinfra.NewPostgresStateRepository(c.DB)
	}
	return setupinfra.NewFileStateRepository(c.StateFS)
}

// newProvisioner creates the admin in the live database when there is one,
// otherwise in the database submitted to the wizard
func (c *Container) newProvisioner() setup.AdminProvisioner {
	if c.DB != nil {
		return admininfra.NewRepositoryProvisioner(admininfra.NewPostgresAdminRepository(c.DB))
	}
	return admininfra.NewPostgresProvisioner()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")
	c.IAM.StartBackgroundServices(ctx)

	if c.Jobs != nil {
		go func() {
			if err := c.Jobs.Start(ctx); err != nil {
				logx.WithError(err).Error("Job workers stopped")
			}
		}()
		logx.Info("  ✅ Job workers started")
	}
}

// Health reports each dependency. Missing optional dependencies are omitted.
func (c *Container) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	health := map[string]string{}
	if c.DB != nil {
		health["db"] = "healthy"
		if err := c.DB.PingContext(ctx); err != nil {
			health["db"] = "unhealthy"
		}
	}
	if c.Redis != nil {
		health["redis"] = "healthy"
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			health["redis"] = "unhealthy"
		}
	}
	return health
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
