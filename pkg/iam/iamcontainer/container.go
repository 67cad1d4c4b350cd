package iamcontainer

import (
	"context"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin/adminapi"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin/admininfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin/adminsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application/applicationapi"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application/applicationinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application/applicationsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser/enduserapi"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser/enduserinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser/endusersrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp/otpinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/iam/secret"
	"github.com/Abraxas-365/tenantauth/pkg/jobx"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// ---------------------------------------------------------------------------

type Deps struct {
	// DB is nil until setup has configured a database. Repositories fall back
	// to process memory, and the setup gate keeps every route closed.
	DB    *sqlx.DB
	Redis *redis.Client
	Cfg   *config.Config

	Cipher   secret.Cipher
	Setup    setup.Checker
	Notifier notifx.Notifier
	Metrics  metrics.Recorder

	// Jobs is nil when there is no queue. Welcome emails are then sent inline.
	Jobs *jobx.Client
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	// Services
	ApplicationService *applicationsrv.ApplicationService
	EndUserService     *endusersrv.Service
	AdminAuthService   *adminsrv.AdminAuthService
	OTPService         *otpsrv.OTPService
	TokenManager       *authsrv.TokenManager
	KeyRegistry        *applicationsrv.KeyRegistry

	// Handlers
	ApplicationHandlers *applicationapi.ApplicationHandlers
	EndUserHandlers     *enduserapi.EndUserHandlers
	AdminAuthHandlers   *adminapi.AdminAuthHandlers

	// Middleware
	TokenMiddleware  *auth.TokenMiddleware
	TenantMiddleware *application.TenantMiddleware

	// Background services
	CleanupService *authinfra.CleanupService

	setup  setup.Checker
	reseal resealer
}

type resealer interface {
	ReencryptStale(ctx context.Context) (int, error)
}

// ---------------------------------------------------------------------------
// New: infra → repos → services → handlers → middleware.
// ---------------------------------------------------------------------------

func New(deps Deps) *Container {
	logx.Info("🔧 Initializing IAM container...")

	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	c := &Container{setup: deps.Setup}

	// ── Repositories ─────────────────────────────────────────────────────

	var (
		appRepo   application.ApplicationRepository
		userRepo  enduser.UserRepository
		adminRepo admin.AdminRepository
	)
	if deps.DB != nil {
		pgApps := applicationinfra.NewPostgresApplicationRepository(deps.DB, deps.Cipher)
		appRepo = pgApps
		c.reseal = pgApps
		userRepo = enduserinfra.NewPostgresUserRepository(deps.DB)
		adminRepo = admininfra.NewPostgresAdminRepository(deps.DB)
		logx.Info("  ✅ Using Postgres repositories")
	} else {
		appRepo = applicationinfra.NewMemoryApplicationRepository()
		userRepo = enduserinfra.NewMemoryUserRepository()
		adminRepo = admininfra.NewMemoryAdminRepository()
		logx.Warn("  ⚠️  No database configured, using in-memory repositories until setup completes")
	}

	tokenRepo := newTokenRepository(deps)

	var otpRepo otp.Repository = otpinfra.NewMemoryRepository()
	if deps.Redis != nil {
		otpRepo = otpinfra.NewRedisRepository(deps.Redis)
	}

	var tenantCache application.TenantCache
	if deps.Redis != nil && deps.Cfg.TenantCache.TTL > 0 {
		tenantCache = applicationinfra.NewRedisTenantCache(deps.Redis, deps.Cfg.TenantCache.TTL)
		logx.Info("  ✅ Redis tenant cache enabled")
	}

	// ── Infrastructure services ──────────────────────────────────────────

	hasher := password.NewArgon2idHasher(password.DefaultParams(), password.MinLength)
	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		Secret:         deps.Cfg.Auth.JWTSecret,
		Issuer:         deps.Cfg.Auth.Issuer,
		Audience:       deps.Cfg.Auth.Audience,
		AccessTokenTTL: deps.Cfg.Auth.AccessTokenTTL,
	})
	auditService := authinfra.NewLogxAuditService()
	mailer := enduserinfra.NewTenantMailer(appRepo, deps.Notifier)

	var welcome enduser.WelcomeMailer = mailer
	if deps.Jobs != nil {
		deps.Jobs.Register(enduserinfra.WelcomeEmailJob, enduserinfra.WelcomeJobHandler(mailer))
		welcome = enduserinfra.NewQueuedWelcomeMailer(deps.Jobs)
		logx.Info("  ✅ Welcome emails go through the job queue")
	}

	// ── Domain services ──────────────────────────────────────────────────

	c.KeyRegistry = applicationsrv.NewKeyRegistry(appRepo, tenantCache)

	c.TokenManager = authsrv.NewTokenManager(
		jwtSvc,
		tokenRepo,
		c.KeyRegistry,
		auditService,
		deps.Metrics,
		deps.Cfg.Auth.RefreshTokenTTL,
	)

	c.ApplicationService = applicationsrv.NewApplicationService(appRepo, c.KeyRegistry)
	c.OTPService = otpsrv.NewOTPService(otpRepo, mailer)

	c.EndUserService = endusersrv.NewService(
		userRepo,
		c.TokenManager,
		hasher,
		welcome,
		auditService,
		deps.Metrics,
	).WithVerification(c.OTPService)

	c.AdminAuthService = adminsrv.NewAdminAuthService(
		adminRepo,
		c.TokenManager,
		hasher,
		auditService,
		deps.Metrics,
	)

	// ── Handlers ─────────────────────────────────────────────────────────

	c.ApplicationHandlers = applicationapi.NewApplicationHandlers(c.ApplicationService)
	c.EndUserHandlers = enduserapi.NewEndUserHandlers(c.EndUserService)
	c.AdminAuthHandlers = adminapi.NewAdminAuthHandlers(c.AdminAuthService)

	// ── Middleware ───────────────────────────────────────────────────────

	c.TokenMiddleware = auth.NewTokenMiddleware(c.TokenManager)
	c.TenantMiddleware = application.NewTenantMiddleware(deps.Setup, c.KeyRegistry, c.KeyRegistry, deps.Metrics)

	// ── Background services ──────────────────────────────────────────────

	c.CleanupService = authinfra.NewCleanupService(tokenRepo, deps.Cfg.Auth.CleanupInterval)

	logx.Info("✅ IAM container initialized")
	return c
}

func newTokenRepository(deps Deps) auth.TokenRepository {
	switch deps.Cfg.Auth.RefreshTokenStore {
	case "redis":
		if deps.Redis != nil {
			logx.Info("  ✅ Using Redis refresh token store")
			return authinfra.NewRedisTokenRepository(deps.Redis)
		}
		logx.Warn("  ⚠️  Redis refresh token store requested without Redis, using memory")
	case "postgres":
		if deps.DB != nil {
			return authinfra.NewPostgresTokenRepository(deps.DB)
		}
	}
	logx.Warn("  ⚠️  Using in-memory refresh token store (not recommended for production)")
	return authinfra.NewMemoryTokenRepository()
}

// RegisterRoutes mounts every IAM route. Admin routes sit behind the setup
// gate, tenant routes resolve the tenant first, which runs the same gate.
func (c *Container) RegisterRoutes(router fiber.Router) {
	gate := setup.RequireComplete(c.setup)

	c.AdminAuthHandlers.RegisterRoutes(router, gate, c.TokenMiddleware)
	c.ApplicationHandlers.RegisterRoutes(router, gate, c.TokenMiddleware)
	c.EndUserHandlers.RegisterRoutes(router, c.TenantMiddleware, c.TokenMiddleware)
}

// StartBackgroundServices starts the refresh token cleanup and reseals any
// tenant secrets still under a retired master key.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	go c.CleanupService.Start(ctx)
	logx.Info("  ✅ IAM cleanup service started")

	if c.reseal == nil {
		return
	}
	go func() {
		count, err := c.reseal.ReencryptStale(ctx)
		if err != nil {
			logx.WithError(err).Error("Failed to re-encrypt application secrets")
			return
		}
		if count > 0 {
			logx.WithField("applications", count).Info("Re-encrypted application secrets under the primary key")
		}
	}()
}
