package setupapi_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
	"github.com/Abraxas-365/tenantauth/pkg/setup/setupapi"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWizard struct {
	complete   bool
	probeOK    bool
	completeFn func(req setup.CompleteRequest) (*setup.CompleteResult, error)
}

func (w *fakeWizard) IsSetupComplete(context.Context) bool { return w.complete }

func (w *fakeWizard) Status(context.Context) (*setup.Status, error) {
	status := setup.NewState().Status()
	status.IsSetupRequired = !w.complete
	return &status, nil
}

func (w *fakeWizard) TestDatabaseConnection(context.Context, setup.DatabaseSettings) bool {
	return w.probeOK
}

func (w *fakeWizard) TestEmailConnection(context.Context, setup.EmailSettings, string) bool {
	return w.probeOK
}

func (w *fakeWizard) CompleteSetup(_ context.Context, req setup.CompleteRequest) (*setup.CompleteResult, error) {
	return w.completeFn(req)
}

func newApp(w *fakeWizard) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: errx.Respond})
	setupapi.NewSetupHandlers(w).RegisterRoutes(app)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestStatus(t *testing.T) {
	app := newApp(&fakeWizard{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/setup/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status setup.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.IsSetupRequired)
	assert.Equal(t, setup.StepDatabaseConfiguration, status.CurrentStep)
}

func TestProbeRoutes(t *testing.T) {
	app := newApp(&fakeWizard{probeOK: false})

	code, body := post(t, app, "/api/setup/database/test", `{"database":{"host":"db","name":"auth","user":"svc"}}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, false, body["success"])

	code, body = post(t, app, "/api/setup/email/test", `{"email":{"provider":"console"},"recipient":"not-an-email"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])

	app = newApp(&fakeWizard{probeOK: true})
	code, body = post(t, app, "/api/setup/email/test", `{"email":{"provider":"console"},"recipient":"ops@example.com"}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, true, body["success"])
}

func TestComplete(t *testing.T) {
	var got setup.CompleteRequest
	app := newApp(&fakeWizard{completeFn: func(req setup.CompleteRequest) (*setup.CompleteResult, error) {
		got = req
		return &setup.CompleteResult{RestartRequired: true, Message: "done"}, nil
	}})

	code, body := post(t, app, "/api/setup/complete",
		`{"database":{"host":"db","name":"auth","user":"svc"},"email":{"provider":"console","from_address":"noreply@example.com"},"admin":{"email":"admin@example.com","password":"Sup3rSecret!"}}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, true, body["restart_required"])
	assert.Equal(t, "admin@example.com", got.Admin.Email)
	assert.Equal(t, "db", got.Database.Host)
}

func TestWizardClosesAfterCompletion(t *testing.T) {
	app := newApp(&fakeWizard{complete: true, probeOK: true})

	for _, path := range []string{"/api/setup/database/test", "/api/setup/email/test", "/api/setup/complete"} {
		code, body := post(t, app, path, `{}`)
		assert.Equal(t, fiber.StatusConflict, code, path)
		assert.Equal(t, "SETUP_ALREADY_COMPLETE", body["code"], path)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/setup/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
