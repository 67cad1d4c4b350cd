package application

import (
	"context"

	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// ApplicationRepository persists tenants. Implementations seal secrets
// before write and open them after read; callers only see plaintext.
type ApplicationRepository interface {
	Save(ctx context.Context, app *Application) error
	FindByID(ctx context.Context, id kernel.ApplicationID) (*Application, error)
	FindByPublicKey(ctx context.Context, publicKey string) (*Application, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)

	// List returns one page, newest first, and the total count
	List(ctx context.Context, opts kernel.PaginationOptions) ([]*Application, int, error)
}

// TenantCache caches the resolved projection of an application
type TenantCache interface {
	GetByPublicKey(ctx context.Context, publicKey string) (*kernel.TenantContext, bool)
	GetByID(ctx context.Context, id kernel.ApplicationID) (*kernel.TenantContext, bool)
	Set(ctx context.Context, tenant kernel.TenantContext)
	Invalidate(ctx context.Context, tenant kernel.TenantContext)
}

// Resolver maps a public key to its tenant
type Resolver interface {
	Resolve(ctx context.Context, publicKey string) (*kernel.TenantContext, error)
}

// SecretAuthenticator checks a server-to-server secret key
type SecretAuthenticator interface {
	Authenticate(ctx context.Context, publicKey, secretCandidate string) bool
}
