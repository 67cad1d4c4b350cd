package auth_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator struct {
	principals map[string]auth.Principal
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string, kind kernel.PrincipalKind) (*auth.Principal, error) {
	p, ok := s.principals[token]
	if !ok {
		return nil, auth.ErrTokenSignatureInvalid()
	}
	if p.Kind != kind {
		return nil, auth.ErrPrincipalKindMismatch()
	}
	return &p, nil
}

func newMiddlewareApp(tenant *kernel.TenantContext) *fiber.App {
	mw := auth.NewTokenMiddleware(&stubAuthenticator{principals: map[string]auth.Principal{
		"admin-token": auth.NewAdminPrincipal("admin-1", "admin@example.com"),
		"user-token":  auth.NewEndUserPrincipal("app-1", "user-1", "jane@example.com"),
	}})

	app := fiber.New(fiber.Config{ErrorHandler: errx.Respond})
	withTenant := func(c *fiber.Ctx) error {
		if tenant != nil {
			c.Locals(kernel.TenantContextKey, tenant)
		}
		return c.Next()
	}
	whoami := func(c *fiber.Ctx) error {
		ac, ok := auth.GetAuthContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(ac)
	}

	app.Get("/admin", mw.RequireAdmin(), whoami)
	app.Get("/user", withTenant, mw.RequireEndUser(), whoami)
	return app
}

func doRequest(t *testing.T, app *fiber.App, path, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestTokenMiddleware(t *testing.T) {
	app := newMiddlewareApp(&kernel.TenantContext{ApplicationID: "app-1", IsActive: true})

	t.Run("admin token on admin route", func(t *testing.T) {
		status, body := doRequest(t, app, "/admin", "admin-token")
		assert.Equal(t, 200, status)
		assert.Equal(t, "admin", body["kind"])
	})

	t.Run("missing credentials", func(t *testing.T) {
		status, body := doRequest(t, app, "/admin", "")
		assert.Equal(t, 401, status)
		assert.Equal(t, "AUTH_MISSING_CREDENTIALS", body["code"])
	})

	t.Run("end user token on admin route", func(t *testing.T) {
		status, body := doRequest(t, app, "/admin", "user-token")
		assert.Equal(t, 401, status)
		assert.Equal(t, "AUTH_PRINCIPAL_KIND_MISMATCH", body["code"])
	})

	t.Run("admin token on end user route", func(t *testing.T) {
		status, body := doRequest(t, app, "/user", "admin-token")
		assert.Equal(t, 401, status)
		assert.Equal(t, "AUTH_PRINCIPAL_KIND_MISMATCH", body["code"])
	})

	t.Run("end user token on end user route", func(t *testing.T) {
		status, body := doRequest(t, app, "/user", "user-token")
		assert.Equal(t, 200, status)
		assert.Equal(t, "app-1", body["application_id"])
	})
}

func TestTokenMiddleware_TenantMismatch(t *testing.T) {
	app := newMiddlewareApp(&kernel.TenantContext{ApplicationID: "app-2", IsActive: true})

	status, body := doRequest(t, app, "/user", "user-token")
	assert.Equal(t, 403, status)
	assert.Equal(t, "IAM_ACCESS_DENIED", body["code"])
}

func TestTokenMiddleware_CookieFallback(t *testing.T) {
	app := newMiddlewareApp(nil)

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Cookie", "access_token=admin-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
