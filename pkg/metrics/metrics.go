// Package metrics collects Prometheus counters for authentication, tenant
// resolution and setup.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeNotFound        = "not_found"
	OutcomeInactive        = "inactive"
	OutcomeMissing         = "missing"
	OutcomeBlocked         = "setup_required"
	OutcomeAlreadyComplete = "already_complete"
)

// Recorder is what services depend on
type Recorder interface {
	RecordLogin(kind string, outcome string)
	RecordRefresh(kind string, outcome string)
	RecordRefreshReuse(kind string)
	RecordTenantResolution(outcome string)
	RecordSetupCompletion(outcome string)
}

// Collector is the Prometheus Recorder
type Collector struct {
	logins            *prometheus.CounterVec
	refreshes         *prometheus.CounterVec
	refreshReuse      *prometheus.CounterVec
	tenantResolutions *prometheus.CounterVec
	setupCompletions  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantauth_logins_total",
			Help: "Login attempts by principal kind and outcome",
		}, []string{"kind", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantauth_token_refreshes_total",
			Help: "Refresh token redemptions by principal kind and outcome",
		}, []string{"kind", "outcome"}),
		refreshReuse: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantauth_refresh_token_reuse_total",
			Help: "Redemptions of an already rotated refresh token",
		}, []string{"kind"}),
		tenantResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantauth_tenant_resolutions_total",
			Help: "Tenant key resolutions at the request boundary by outcome",
		}, []string{"outcome"}),
		setupCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantauth_setup_completions_total",
			Help: "CompleteSetup calls by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.logins,
		c.refreshes,
		c.refreshReuse,
		c.tenantResolutions,
		c.setupCompletions,
	)

	return c
}

func (c *Collector) RecordLogin(kind string, outcome string) {
	c.logins.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordRefresh(kind string, outcome string) {
	c.refreshes.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordRefreshReuse(kind string) {
	c.refreshReuse.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordTenantResolution(outcome string) {
	c.tenantResolutions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordSetupCompletion(outcome string) {
	c.setupCompletions.WithLabelValues(outcome).Inc()
}

// Nop discards everything
type Nop struct{}

func (Nop) RecordLogin(string, string)    {}
func (Nop) RecordRefresh(string, string)  {}
func (Nop) RecordRefreshReuse(string)     {}
func (Nop) RecordTenantResolution(string) {}
func (Nop) RecordSetupCompletion(string)  {}

// Handler serves the Prometheus scrape endpoint on fiber
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
