package otpsrv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp/otpinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shop = kernel.TenantContext{ApplicationID: "app-shop", Name: "Shop", Slug: "shop", IsActive: true}

type capturingSender struct {
	codes []string
	err   error
}

func (s *capturingSender) SendCode(_ context.Context, _ kernel.TenantContext, _, code string, _ otp.Purpose) error {
	s.codes = append(s.codes, code)
	return s.err
}

func (s *capturingSender) last() string {
	return s.codes[len(s.codes)-1]
}

type fixture struct {
	service *otpsrv.OTPService
	sender  *capturingSender
	now     time.Time
}

func newFixture() *fixture {
	f := &fixture{sender: &capturingSender{}, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.service = otpsrv.NewOTPService(otpinfra.NewMemoryRepository(), f.sender).WithClock(func() time.Time { return f.now })
	return f
}

func TestGenerateAndVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.service.GenerateOTP(ctx, shop, "jane@example.com", otp.PurposeEmailVerification)
	require.NoError(t, err)
	require.Len(t, f.sender.codes, 1)

	verified, err := f.service.VerifyOTP(ctx, shop.ApplicationID, "jane@example.com", otp.PurposeEmailVerification, f.sender.last())
	require.NoError(t, err)
	assert.NotNil(t, verified.VerifiedAt)

	_, err = f.service.VerifyOTP(ctx, shop.ApplicationID, "jane@example.com", otp.PurposeEmailVerification, f.sender.last())
	assert.True(t, errx.IsCode(err, otp.CodeOTPAlreadyUsed))
}

func TestGenerate_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.service.GenerateOTP(ctx, shop, "jane@example.com", otp.PurposeEmailVerification)
	require.NoError(t, err)

	_, err = f.service.GenerateOTP(ctx, shop, "jane@example.com", otp.PurposeEmailVerification)
	assert.True(t, errx.IsCode(err, otp.CodeTooManyRequests))

	f.now = f.now.Add(otp.ResendInterval)
	_, err = f.service.GenerateOTP(ctx, shop, "jane@example.com", otp.PurposeEmailVerification)
	require.NoError(t, err)
	require.Len(t, f.sender.codes, 2)

	// only the newest code is accepted
	if f.sender.codes[0] != f.sender.codes[1] {
		_, err = f.service.VerifyOTP(ctx, shop.ApplicationID, "jane@example.com", otp.PurposeEmailVerification, f.sender.codes[0])
		assert.True(t, errx.IsCode(err, otp.CodeInvalidOTP))
	}
	_, err = f.service.VerifyOTP(ctx, shop.ApplicationID, "jane@example.com", otp.PurposeEmailVerification, f.sender.last())
	assert.NoError(t, err)
}

func TestVerify_AttemptsArePersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.service.GenerateOTP(ctx, shop, "jane@example.com", otp.PurposeEmailVerification)
	require.NoError(t, err)

	for i := 0; i < otp.MaxAttempts; i++ {
		_, err = f.service.VerifyOTP(ctx, shop.ApplicationID, "jane@example.com", otp.PurposeEmailVerification, "wrong")
		assert.True(t, errx.IsCode(err, otp.CodeInvalidOTP))
	}

	_, err = f.service.VerifyOTP(ctx, shop.ApplicationID, "jane@example.com", otp.PurposeEmailVerification, f.sender.last())
	assert.True(t, errx.IsCode(err, otp.CodeTooManyAttempts))
}

func TestVerify_UnknownContact(t *testing.T) {
	f := newFixture()
	_, err := f.service.VerifyOTP(context.Background(), shop.ApplicationID, "ghost@example.com", otp.PurposeEmailVerification, "123456")
	assert.True(t, errx.IsCode(err, otp.CodeInvalidOTP))
}

func TestGenerate_SendFailure(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("smtp down")

	_, err := f.service.GenerateOTP(context.Background(), shop, "jane@example.com", otp.PurposeEmailVerification)
	require.Error(t, err)
	assert.Equal(t, errx.TypeExternal, errx.TypeOf(err))
}
