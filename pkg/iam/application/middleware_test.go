package application_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct{ complete bool }

func (s stubChecker) IsSetupComplete(context.Context) bool { return s.complete }

type stubResolver struct {
	tenants map[string]kernel.TenantContext
	calls   int
}

func (s *stubResolver) Resolve(_ context.Context, publicKey string) (*kernel.TenantContext, error) {
	s.calls++
	tenant, ok := s.tenants[publicKey]
	if !ok {
		return nil, application.ErrNotFound()
	}
	return &tenant, nil
}

type stubSecrets struct{ secrets map[string]string }

func (s stubSecrets) Authenticate(_ context.Context, publicKey, candidate string) bool {
	return s.secrets[publicKey] != "" && s.secrets[publicKey] == candidate
}

func newTenantApp(complete bool) (*fiber.App, *stubResolver) {
	resolver := &stubResolver{tenants: map[string]kernel.TenantContext{
		"pk_live_active":   {ApplicationID: "app-1", PublicKey: "pk_live_active", Slug: "shop", IsActive: true},
		"pk_live_inactive": {ApplicationID: "app-2", PublicKey: "pk_live_inactive", Slug: "old", IsActive: false},
	}}
	mw := application.NewTenantMiddleware(
		stubChecker{complete: complete},
		resolver,
		stubSecrets{secrets: map[string]string{"pk_live_active": "sk_live_right"}},
		nil,
	)

	app := fiber.New(fiber.Config{ErrorHandler: errx.Respond})
	whoami := func(c *fiber.Ctx) error {
		tenant, ok := kernel.TenantFromContext(c.UserContext())
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(tenant)
	}

	app.Get("/tenant", mw.ResolveTenant(), whoami)
	app.Get("/tenant/:publicKey", mw.ResolveTenant(), whoami)
	app.Get("/server", mw.ResolveTenant(), mw.RequireSecretKey(), whoami)
	return app, resolver
}

func call(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestResolveTenant(t *testing.T) {
	app, _ := newTenantApp(true)

	t.Run("active key from header", func(t *testing.T) {
		status, body := call(t, app, "/tenant", map[string]string{application.HeaderPublicKey: "pk_live_active"})
		assert.Equal(t, 200, status)
		assert.Equal(t, "app-1", body["application_id"])
	})

	t.Run("key from path parameter", func(t *testing.T) {
		status, body := call(t, app, "/tenant/pk_live_active", nil)
		assert.Equal(t, 200, status)
		assert.Equal(t, "shop", body["slug"])
	})

	t.Run("missing key", func(t *testing.T) {
		status, body := call(t, app, "/tenant", nil)
		assert.Equal(t, 401, status)
		assert.Equal(t, "APPLICATION_INVALID_TENANT_KEY", body["code"])
	})

	t.Run("unknown key", func(t *testing.T) {
		status, body := call(t, app, "/tenant", map[string]string{application.HeaderPublicKey: "pk_live_nope"})
		assert.Equal(t, 401, status)
		assert.Equal(t, "APPLICATION_INVALID_TENANT_KEY", body["code"])
	})

	t.Run("inactive application", func(t *testing.T) {
		status, body := call(t, app, "/tenant", map[string]string{application.HeaderPublicKey: "pk_live_inactive"})
		assert.Equal(t, 403, status)
		assert.Equal(t, "APPLICATION_INACTIVE", body["code"])
	})
}

func TestResolveTenant_SetupGateComesFirst(t *testing.T) {
	app, resolver := newTenantApp(false)

	for _, headers := range []map[string]string{
		nil,
		{application.HeaderPublicKey: "pk_live_active"},
		{application.HeaderPublicKey: "pk_live_nope"},
	} {
		status, body := call(t, app, "/tenant", headers)
		assert.Equal(t, 503, status)
		assert.Equal(t, "SETUP_IS_REQUIRED", body["code"])
	}
	assert.Zero(t, resolver.calls)
}

func TestRequireSecretKey(t *testing.T) {
	app, _ := newTenantApp(true)

	status, _ := call(t, app, "/server", map[string]string{
		application.HeaderPublicKey: "pk_live_active",
		application.HeaderSecretKey: "sk_live_right",
	})
	assert.Equal(t, 200, status)

	status, body := call(t, app, "/server", map[string]string{
		application.HeaderPublicKey: "pk_live_active",
		application.HeaderSecretKey: "sk_live_wrong",
	})
	assert.Equal(t, 401, status)
	assert.Equal(t, "APPLICATION_INVALID_SECRET_KEY", body["code"])

	status, body = call(t, app, "/server", map[string]string{application.HeaderPublicKey: "pk_live_active"})
	assert.Equal(t, 401, status)
	assert.Equal(t, "APPLICATION_INVALID_SECRET_KEY", body["code"])
}
