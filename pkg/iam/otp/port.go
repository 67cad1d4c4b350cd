package otp

import (
	"context"

	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// Repository keeps the latest code per application, contact and purpose.
// Save replaces any earlier code for the same key.
type Repository interface {
	Save(ctx context.Context, otp *OTP) error
	FindLatest(ctx context.Context, appID kernel.ApplicationID, contact string, purpose Purpose) (*OTP, error)
	Update(ctx context.Context, otp *OTP) error
}

// Sender delivers a code to a contact on behalf of a tenant
type Sender interface {
	SendCode(ctx context.Context, tenant kernel.TenantContext, contact, code string, purpose Purpose) error
}
