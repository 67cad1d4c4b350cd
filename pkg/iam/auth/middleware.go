package auth

import (
	"strings"

	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// TokenMiddleware authenticates bearer access tokens on fiber routes
type TokenMiddleware struct {
	authenticator Authenticator
}

// NewTokenMiddleware creates the middleware
func NewTokenMiddleware(authenticator Authenticator) *TokenMiddleware {
	return &TokenMiddleware{authenticator: authenticator}
}

// RequireAdmin accepts only admin tokens
func (am *TokenMiddleware) RequireAdmin() fiber.Handler {
	return am.require(kernel.PrincipalAdmin)
}

// RequireEndUser accepts only end-user tokens issued for the tenant the
// request was resolved to. Must run after the tenant resolver.
func (am *TokenMiddleware) RequireEndUser() fiber.Handler {
	return am.require(kernel.PrincipalEndUser)
}

func (am *TokenMiddleware) require(kind kernel.PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractBearerToken(c)
		if token == "" {
			return ErrMissingCredentials()
		}

		principal, err := am.authenticator.Authenticate(c.UserContext(), token, kind)
		if err != nil {
			return err
		}

		if kind == kernel.PrincipalEndUser {
			tenant, ok := c.Locals(kernel.TenantContextKey).(*kernel.TenantContext)
			if !ok || tenant == nil {
				return iam.ErrUnauthorized().WithDetail("reason", "tenant not resolved")
			}
			if tenant.ApplicationID != principal.ApplicationID {
				return iam.ErrAccessDenied().WithDetail("reason", "token was issued for another application")
			}
		}

		authContext := principal.AuthContext()
		c.Locals(kernel.AuthContextKey, &authContext)
		c.SetUserContext(kernel.WithAuth(c.UserContext(), authContext))

		return c.Next()
	}
}

// ExtractBearerToken reads "Authorization: Bearer <token>", falling back to
// the access_token cookie
func ExtractBearerToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Cookies("access_token")
}

// GetAuthContext returns the principal attached by the middleware
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(kernel.AuthContextKey).(*kernel.AuthContext)
	return ac, ok && ac != nil
}
