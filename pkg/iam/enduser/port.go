package enduser

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// UserRepository persists end users. Every method is scoped by application id.
type UserRepository interface {
	Create(ctx context.Context, user *EndUser) error
	FindByID(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID) (*EndUser, error)
	FindByEmail(ctx context.Context, appID kernel.ApplicationID, email string) (*EndUser, error)
	UpdateLastLogin(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID, hash password.HashedPassword) error
	MarkEmailVerified(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID, at time.Time) error
}

// WelcomeMailer notifies a newly registered user. Failures never block registration.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, tenant kernel.TenantContext, user EndUser) error
}
