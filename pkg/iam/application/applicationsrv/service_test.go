package applicationsrv_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application/applicationinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application/applicationsrv"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-process TenantCache that records invalidations
type mapCache struct {
	mu          sync.Mutex
	byKey       map[string]kernel.TenantContext
	invalidated []kernel.ApplicationID
}

func newMapCache() *mapCache {
	return &mapCache{byKey: make(map[string]kernel.TenantContext)}
}

func (c *mapCache) GetByPublicKey(_ context.Context, publicKey string) (*kernel.TenantContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tenant, ok := c.byKey[publicKey]
	return &tenant, ok
}

func (c *mapCache) GetByID(_ context.Context, id kernel.ApplicationID) (*kernel.TenantContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tenant, ok := c.byKey["id:"+id.String()]
	return &tenant, ok
}

func (c *mapCache) Set(_ context.Context, tenant kernel.TenantContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[tenant.PublicKey] = tenant
	c.byKey["id:"+tenant.ApplicationID.String()] = tenant
}

func (c *mapCache) Invalidate(_ context.Context, tenant kernel.TenantContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byKey, tenant.PublicKey)
	delete(c.byKey, "id:"+tenant.ApplicationID.String())
	c.invalidated = append(c.invalidated, tenant.ApplicationID)
}

type fixture struct {
	repo     *applicationinfra.MemoryApplicationRepository
	cache    *mapCache
	registry *applicationsrv.KeyRegistry
	service  *applicationsrv.ApplicationService
}

func newFixture() *fixture {
	repo := applicationinfra.NewMemoryApplicationRepository()
	cache := newMapCache()
	registry := applicationsrv.NewKeyRegistry(repo, cache)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := applicationsrv.NewApplicationService(repo, registry).WithClock(func() time.Time { return now })
	return &fixture{repo: repo, cache: cache, registry: registry, service: service}
}

func (f *fixture) create(t *testing.T, name string) *application.CreatedApplicationDTO {
	t.Helper()
	created, err := f.service.Create(context.Background(), application.CreateApplicationRequest{Name: name})
	require.NoError(t, err)
	return created
}

func TestApplicationService_Create(t *testing.T) {
	f := newFixture()

	created := f.create(t, "My Shop")
	assert.Equal(t, "my-shop", created.Application.Slug)
	assert.True(t, created.Application.IsActive)
	assert.NotEmpty(t, created.SecretKey)
	assert.NotEmpty(t, created.Message)

	stored, err := f.repo.FindByID(context.Background(), created.Application.ID)
	require.NoError(t, err)
	assert.Equal(t, created.SecretKey, stored.SecretKey)
}

func TestApplicationService_CreateDisambiguatesSlugs(t *testing.T) {
	f := newFixture()

	assert.Equal(t, "my-shop", f.create(t, "My Shop").Application.Slug)
	assert.Equal(t, "my-shop-2", f.create(t, "my shop").Application.Slug)
	assert.Equal(t, "my-shop-3", f.create(t, "MY SHOP!").Application.Slug)
}

func TestApplicationService_CreateValidates(t *testing.T) {
	f := newFixture()

	_, err := f.service.Create(context.Background(), application.CreateApplicationRequest{Name: "  "})
	assert.True(t, errx.IsCode(err, errx.CodeValidationFailed))
}

func TestApplicationService_GetKeysMasksSecret(t *testing.T) {
	f := newFixture()
	created := f.create(t, "Shop")

	keys, err := f.service.GetKeys(context.Background(), created.Application.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Application.PublicKey, keys.PublicKey)
	assert.Equal(t, application.Mask(created.SecretKey), keys.MaskedSecretKey)
	assert.NotContains(t, keys.MaskedSecretKey, created.SecretKey[:20])

	_, err = f.service.GetKeys(context.Background(), "missing")
	assert.True(t, errx.IsCode(err, application.CodeNotFound))
}

func TestApplicationService_List(t *testing.T) {
	f := newFixture()
	for _, name := range []string{"One", "Two", "Three"} {
		f.create(t, name)
	}

	page, err := f.service.List(context.Background(), kernel.PaginationOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Page.Total)
	assert.Equal(t, 2, page.Page.Pages)
	assert.True(t, page.HasNext())

	page, err = f.service.List(context.Background(), kernel.PaginationOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasNext())
}

func TestApplicationService_DeactivateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	created := f.create(t, "Shop")

	tenant, err := f.registry.Resolve(ctx, created.Application.PublicKey)
	require.NoError(t, err)
	assert.True(t, tenant.IsActive)

	dto, err := f.service.Deactivate(ctx, created.Application.ID)
	require.NoError(t, err)
	assert.False(t, dto.IsActive)
	assert.Contains(t, f.cache.invalidated, created.Application.ID)

	tenant, err = f.registry.Resolve(ctx, created.Application.PublicKey)
	require.NoError(t, err)
	assert.False(t, tenant.IsActive)

	active, err := f.registry.IsApplicationActive(ctx, created.Application.ID)
	require.NoError(t, err)
	assert.False(t, active)

	dto, err = f.service.Activate(ctx, created.Application.ID)
	require.NoError(t, err)
	assert.True(t, dto.IsActive)
}

func TestApplicationService_RegenerateSecret(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	created := f.create(t, "Shop")

	rotated, err := f.service.RegenerateSecret(ctx, created.Application.ID)
	require.NoError(t, err)
	assert.NotEqual(t, created.SecretKey, rotated.SecretKey)
	assert.Equal(t, created.Application.PublicKey, rotated.Application.PublicKey)

	assert.False(t, f.registry.Authenticate(ctx, created.Application.PublicKey, created.SecretKey))
	assert.True(t, f.registry.Authenticate(ctx, created.Application.PublicKey, rotated.SecretKey))
}

func TestApplicationService_UpdateEmailSettingsKeepsSecret(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	created := f.create(t, "Shop")

	_, err := f.service.UpdateEmailSettings(ctx, created.Application.ID, application.UpdateEmailSettingsRequest{
		Provider: "ses", FromAddress: "no-reply@shop.test", Region: "us-east-1",
		AccessKeyID: "AKIA", SecretAccessKey: "aws-secret",
	})
	require.NoError(t, err)

	dto, err := f.service.UpdateEmailSettings(ctx, created.Application.ID, application.UpdateEmailSettingsRequest{
		Provider: "ses", FromAddress: "hello@shop.test", Region: "eu-west-1", AccessKeyID: "AKIA",
	})
	require.NoError(t, err)
	assert.True(t, dto.Email.HasSecret)

	stored, err := f.repo.FindByID(ctx, created.Application.ID)
	require.NoError(t, err)
	assert.Equal(t, "aws-secret", stored.EmailSettings.SecretAccessKey)
	assert.Equal(t, "eu-west-1", stored.EmailSettings.Region)
}

func TestApplicationService_UpdateOAuthProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	created := f.create(t, "Shop")

	_, err := f.service.UpdateOAuthProvider(ctx, created.Application.ID, "myspace", application.UpdateOAuthProviderRequest{})
	assert.True(t, errx.IsCode(err, application.CodeInvalidProvider))

	_, err = f.service.UpdateOAuthProvider(ctx, created.Application.ID, "google", application.UpdateOAuthProviderRequest{
		Enabled: true, ClientID: "client",
	})
	assert.True(t, errx.IsCode(err, errx.CodeValidationFailed), "first enable needs a secret")

	dto, err := f.service.UpdateOAuthProvider(ctx, created.Application.ID, "google", application.UpdateOAuthProviderRequest{
		Enabled: true, ClientID: "client", ClientSecret: "shh",
	})
	require.NoError(t, err)
	assert.True(t, dto.OAuthProviders[iam.OAuthProviderGoogle].Enabled)
	assert.True(t, dto.OAuthProviders[iam.OAuthProviderGoogle].HasClientSecret)
}

func TestKeyRegistry_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	created := f.create(t, "Shop")
	publicKey := created.Application.PublicKey

	assert.True(t, f.registry.Authenticate(ctx, publicKey, created.SecretKey))
	assert.False(t, f.registry.Authenticate(ctx, publicKey, created.SecretKey+"x"))
	assert.False(t, f.registry.Authenticate(ctx, publicKey, ""))
	assert.False(t, f.registry.Authenticate(ctx, "pk_live_unknown", created.SecretKey))

	_, err := f.service.Deactivate(ctx, created.Application.ID)
	require.NoError(t, err)
	assert.False(t, f.registry.Authenticate(ctx, publicKey, created.SecretKey))
}

func TestKeyRegistry_ResolveUnknown(t *testing.T) {
	f := newFixture()

	_, err := f.registry.Resolve(context.Background(), "pk_live_unknown")
	assert.True(t, errx.IsCode(err, application.CodeNotFound))

	active, err := f.registry.IsApplicationActive(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, active)
}
