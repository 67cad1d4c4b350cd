package admin

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

type AdminRepository interface {
	FindByID(ctx context.Context, id kernel.AdminID) (*Admin, error)
	FindByEmail(ctx context.Context, email string) (*Admin, error)

	// ReplaceAll makes admin the only operator account, removing any left by an
	// earlier setup attempt. It reports how many accounts were removed.
	ReplaceAll(ctx context.Context, admin Admin) (int, error)

	UpdateLastLogin(ctx context.Context, id kernel.AdminID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id kernel.AdminID, hash password.HashedPassword) error
}
