package application

import (
	"strings"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
	"github.com/gofiber/fiber/v2"
)

const (
	HeaderPublicKey = "X-Public-Key"
	HeaderSecretKey = "X-Secret-Key"
	ParamPublicKey  = "publicKey"
)

// TenantMiddleware scopes requests to exactly one application
type TenantMiddleware struct {
	setup    setup.Checker
	resolver Resolver
	secrets  SecretAuthenticator
	metrics  metrics.Recorder
}

func NewTenantMiddleware(checker setup.Checker, resolver Resolver, secrets SecretAuthenticator, recorder metrics.Recorder) *TenantMiddleware {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &TenantMiddleware{
		setup:    checker,
		resolver: resolver,
		secrets:  secrets,
		metrics:  recorder,
	}
}

// ResolveTenant runs before any token check. Order: setup gate, key
// extraction, lookup, active check.
func (m *TenantMiddleware) ResolveTenant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if !m.setup.IsSetupComplete(ctx) {
			m.metrics.RecordTenantResolution(metrics.OutcomeBlocked)
			return setup.ErrIsRequired()
		}

		publicKey := ExtractPublicKey(c)
		if publicKey == "" {
			m.metrics.RecordTenantResolution(metrics.OutcomeMissing)
			return ErrInvalidTenantKey().WithDetail("reason", "missing "+HeaderPublicKey)
		}

		tenant, err := m.resolver.Resolve(ctx, publicKey)
		if err != nil {
			if errx.IsCode(err, CodeNotFound) {
				m.metrics.RecordTenantResolution(metrics.OutcomeNotFound)
				return ErrInvalidTenantKey()
			}
			m.metrics.RecordTenantResolution(metrics.OutcomeFailure)
			return err
		}

		if !tenant.IsActive {
			m.metrics.RecordTenantResolution(metrics.OutcomeInactive)
			return ErrInactive()
		}

		m.metrics.RecordTenantResolution(metrics.OutcomeSuccess)
		c.Locals(kernel.TenantContextKey, tenant)
		c.SetUserContext(kernel.WithTenant(ctx, *tenant))
		return c.Next()
	}
}

// RequireSecretKey authenticates server-to-server calls. Must run after ResolveTenant.
func (m *TenantMiddleware) RequireSecretKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenant, ok := GetTenant(c)
		if !ok {
			return ErrInvalidTenantKey()
		}

		candidate := strings.TrimSpace(c.Get(HeaderSecretKey))
		if candidate == "" || !m.secrets.Authenticate(c.UserContext(), tenant.PublicKey, candidate) {
			return ErrInvalidSecretKey()
		}
		return c.Next()
	}
}

// ExtractPublicKey reads the X-Public-Key header, falling back to the
// :publicKey path parameter
func ExtractPublicKey(c *fiber.Ctx) string {
	if key := strings.TrimSpace(c.Get(HeaderPublicKey)); key != "" {
		return key
	}
	return strings.TrimSpace(c.Params(ParamPublicKey))
}

// GetTenant returns the tenant attached by ResolveTenant
func GetTenant(c *fiber.Ctx) (*kernel.TenantContext, bool) {
	tenant, ok := c.Locals(kernel.TenantContextKey).(*kernel.TenantContext)
	return tenant, ok && tenant != nil
}
