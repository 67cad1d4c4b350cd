package applicationsrv

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
)

// KeyRegistry resolves and authenticates tenant keys. It also answers the
// token manager's "is this application still active" question.
type KeyRegistry struct {
	repo  application.ApplicationRepository
	cache application.TenantCache
}

func NewKeyRegistry(repo application.ApplicationRepository, cache application.TenantCache) *KeyRegistry {
	if cache == nil {
		cache = NopTenantCache{}
	}
	return &KeyRegistry{repo: repo, cache: cache}
}

// Resolve returns the tenant projection for publicKey or APPLICATION_NOT_FOUND
func (r *KeyRegistry) Resolve(ctx context.Context, publicKey string) (*kernel.TenantContext, error) {
	if tenant, ok := r.cache.GetByPublicKey(ctx, publicKey); ok {
		return tenant, nil
	}

	app, err := r.repo.FindByPublicKey(ctx, publicKey)
	if err != nil {
		return nil, err
	}

	tenant := app.TenantContext()
	r.cache.Set(ctx, tenant)
	return &tenant, nil
}

// Authenticate checks secretCandidate against the stored secret of publicKey.
// The stored secret is decrypted once per call and compared in constant time.
func (r *KeyRegistry) Authenticate(ctx context.Context, publicKey, secretCandidate string) bool {
	app, err := r.repo.FindByPublicKey(ctx, publicKey)
	if err != nil {
		if !errx.IsCode(err, application.CodeNotFound) {
			logx.WithContext(ctx).WithError(err).Warn("Secret key check failed to load application")
		}
		return false
	}
	if !app.IsActive || app.SecretKey == "" {
		return false
	}

	stored := sha256.Sum256([]byte(app.SecretKey))
	candidate := sha256.Sum256([]byte(secretCandidate))
	return subtle.ConstantTimeCompare(stored[:], candidate[:]) == 1
}

// IsApplicationActive reports false for unknown applications
func (r *KeyRegistry) IsApplicationActive(ctx context.Context, id kernel.ApplicationID) (bool, error) {
	if tenant, ok := r.cache.GetByID(ctx, id); ok {
		return tenant.IsActive, nil
	}

	app, err := r.repo.FindByID(ctx, id)
	if err != nil {
		if errx.IsCode(err, application.CodeNotFound) {
			return false, nil
		}
		return false, err
	}

	r.cache.Set(ctx, app.TenantContext())
	return app.IsActive, nil
}

// Invalidate drops the cached projection after a status or key change
func (r *KeyRegistry) Invalidate(ctx context.Context, app *application.Application) {
	r.cache.Invalidate(ctx, app.TenantContext())
}

// NopTenantCache never hits
type NopTenantCache struct{}

func (NopTenantCache) GetByPublicKey(context.Context, string) (*kernel.TenantContext, bool) {
	return nil, false
}

func (NopTenantCache) GetByID(context.Context, kernel.ApplicationID) (*kernel.TenantContext, bool) {
	return nil, false
}

func (NopTenantCache) Set(context.Context, kernel.TenantContext)        {}
func (NopTenantCache) Invalidate(context.Context, kernel.TenantContext) {}
