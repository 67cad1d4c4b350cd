package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordLogin("admin", metrics.OutcomeSuccess)
	c.RecordLogin("admin", metrics.OutcomeFailure)
	c.RecordLogin("admin", metrics.OutcomeFailure)
	c.RecordRefreshReuse("end_user")
	c.RecordTenantResolution(metrics.OutcomeInactive)

	count, err := testutil.GatherAndCount(reg, "tenantauth_logins_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			values[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), values["tenantauth_logins_total"])
	assert.Equal(t, float64(1), values["tenantauth_refresh_token_reuse_total"])
	assert.Equal(t, float64(1), values["tenantauth_tenant_resolutions_total"])
}

func TestHandler_ServesScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.RecordSetupCompletion(metrics.OutcomeSuccess)

	app := fiber.New()
	app.Get("/metrics", metrics.Handler(reg))

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `tenantauth_setup_completions_total{outcome="success"} 1`)
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r metrics.Recorder = metrics.Nop{}
	r.RecordLogin("admin", metrics.OutcomeSuccess)
}
