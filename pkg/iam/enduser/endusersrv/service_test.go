package endusersrv_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser/enduserinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser/endusersrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp/otpinfra"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type activeApps struct{}

func (activeApps) IsApplicationActive(context.Context, kernel.ApplicationID) (bool, error) {
	return true, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) SendWelcome(_ context.Context, tenant kernel.TenantContext, user enduser.EndUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, tenant.Slug+":"+user.Email)
	return m.err
}

var (
	shop  = kernel.TenantContext{ApplicationID: "app-shop", PublicKey: "pk_live_shop", Name: "Shop", Slug: "shop", IsActive: true}
	forum = kernel.TenantContext{ApplicationID: "app-forum", PublicKey: "pk_live_forum", Name: "Forum", Slug: "forum", IsActive: true}
)

type fixture struct {
	service *endusersrv.Service
	repo    *enduserinfra.MemoryUserRepository
	mailer  *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := enduserinfra.NewMemoryUserRepository()
	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		Secret:         "0123456789abcdef0123456789abcdef",
		AccessTokenTTL: 15 * time.Minute,
	})
	tokens := authsrv.NewTokenManager(jwtSvc, authinfra.NewMemoryTokenRepository(), activeApps{}, nil, nil, time.Hour)
	mailer := &recordingMailer{}
	hasher := password.NewArgon2idHasher(password.TestParams(), password.MinLength)

	return &fixture{
		service: endusersrv.NewService(repo, tokens, hasher, mailer, authinfra.NewLogxAuditService(), nil),
		repo:    repo,
		mailer:  mailer,
	}
}

func (f *fixture) register(t *testing.T, tenant kernel.TenantContext, email string) *enduser.AuthResponse {
	t.Helper()
	resp, err := f.service.Register(context.Background(), tenant, enduser.RegisterRequest{
		Email: email, Password: "Sup3rSecret!", FirstName: "Jane",
	}, "127.0.0.1", "test")
	require.NoError(t, err)
	return resp
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	resp := f.register(t, shop, " Jane@Example.com ")
	assert.Equal(t, "jane@example.com", resp.User.Email)
	assert.Equal(t, shop.ApplicationID, resp.User.ApplicationID)
	assert.True(t, resp.User.IsActive)
	assert.False(t, resp.User.IsEmailVerified)
	require.NotNil(t, resp.Tokens)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)
	assert.Equal(t, []string{"shop:jane@example.com"}, f.mailer.sent)
}

func TestRegister_EmailUniquePerApplication(t *testing.T) {
	f := newFixture(t)
	f.register(t, shop, "jane@example.com")

	_, err := f.service.Register(context.Background(), shop, enduser.RegisterRequest{
		Email: "JANE@example.com", Password: "An0therSecret!",
	}, "", "")
	assert.True(t, errx.IsCode(err, enduser.CodeEmailTaken))

	other := f.register(t, forum, "jane@example.com")
	assert.Equal(t, forum.ApplicationID, other.User.ApplicationID)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Register(context.Background(), shop, enduser.RegisterRequest{Email: "nope", Password: "short"}, "", "")
	assert.True(t, errx.IsCode(err, errx.CodeValidationFailed))
	assert.Empty(t, f.mailer.sent)
}

func TestRegister_MailerFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")

	resp := f.register(t, shop, "jane@example.com")
	assert.NotEmpty(t, resp.Tokens.AccessToken)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, shop, "jane@example.com")

	resp, err := f.service.Login(ctx, shop, enduser.LoginRequest{Email: "jane@example.com", Password: "Sup3rSecret!"}, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Tokens.AccessToken)

	stored, err := f.repo.FindByEmail(ctx, shop.ApplicationID, "jane@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, shop, "jane@example.com")

	_, wrongPassword := f.service.Login(ctx, shop, enduser.LoginRequest{Email: "jane@example.com", Password: "wrong-password"}, "", "")
	_, unknownEmail := f.service.Login(ctx, shop, enduser.LoginRequest{Email: "ghost@example.com", Password: "Sup3rSecret!"}, "", "")
	_, otherTenant := f.service.Login(ctx, forum, enduser.LoginRequest{Email: "jane@example.com", Password: "Sup3rSecret!"}, "", "")

	for _, err := range []error{wrongPassword, unknownEmail, otherTenant} {
		require.Error(t, err)
		assert.True(t, errx.IsCode(err, iam.CodeInvalidCredentials))
		assert.Equal(t, wrongPassword.Error(), err.Error())
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := f.register(t, shop, "jane@example.com")

	pair, err := f.service.Refresh(ctx, shop, reg.Tokens.RefreshToken, "")
	require.NoError(t, err)
	assert.NotEqual(t, reg.Tokens.RefreshToken, pair.RefreshToken)

	_, err = f.service.Refresh(ctx, shop, reg.Tokens.RefreshToken, "")
	assert.True(t, errx.IsCode(err, auth.CodeInvalidOrExpiredRefreshToken), "rotated token is single use")

	_, err = f.service.Refresh(ctx, shop, pair.RefreshToken, "")
	assert.True(t, errx.IsCode(err, auth.CodeInvalidOrExpiredRefreshToken), "reuse revoked the family")
}

func TestRefresh_OtherTenantRejected(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, shop, "jane@example.com")

	_, err := f.service.Refresh(context.Background(), forum, reg.Tokens.RefreshToken, "")
	assert.True(t, errx.IsCode(err, auth.CodeInvalidOrExpiredRefreshToken))
}

func TestLogout_RevokesRefreshTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := f.register(t, shop, "jane@example.com")

	ac := &kernel.AuthContext{
		Kind:          kernel.PrincipalEndUser,
		PrincipalID:   reg.User.ID.String(),
		ApplicationID: shop.ApplicationID,
		Email:         reg.User.Email,
	}
	require.NoError(t, f.service.Logout(ctx, ac, ""))

	_, err := f.service.Refresh(ctx, shop, reg.Tokens.RefreshToken, "")
	assert.True(t, errx.IsCode(err, auth.CodeInvalidOrExpiredRefreshToken))

	err = f.service.Logout(ctx, &kernel.AuthContext{Kind: kernel.PrincipalAdmin, PrincipalID: "admin-1"}, "")
	assert.True(t, errx.IsCode(err, iam.CodeUnauthorized))
}

func TestMeAndGetForServer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := f.register(t, shop, "jane@example.com")

	me, err := f.service.Me(ctx, &kernel.AuthContext{
		Kind:          kernel.PrincipalEndUser,
		PrincipalID:   reg.User.ID.String(),
		ApplicationID: shop.ApplicationID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane", me.FirstName)

	got, err := f.service.GetForServer(ctx, shop.ApplicationID, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, got.ID)

	_, err = f.service.GetForServer(ctx, forum.ApplicationID, reg.User.ID)
	assert.True(t, errx.IsCode(err, enduser.CodeNotFound))
}

type capturingCodes struct {
	codes map[string]string
}

func (c *capturingCodes) SendCode(_ context.Context, _ kernel.TenantContext, contact, code string, _ otp.Purpose) error {
	c.codes[contact] = code
	return nil
}

func TestEmailVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sender := &capturingCodes{codes: map[string]string{}}
	f.service.WithVerification(otpsrv.NewOTPService(otpinfra.NewMemoryRepository(), sender))

	reg := f.register(t, shop, "jane@example.com")
	assert.False(t, reg.User.IsEmailVerified)
	ac := &kernel.AuthContext{Kind: kernel.PrincipalEndUser, PrincipalID: reg.User.ID.String(), ApplicationID: shop.ApplicationID}

	require.NoError(t, f.service.RequestEmailVerification(ctx, shop, ac))
	code := sender.codes["jane@example.com"]
	require.NotEmpty(t, code)

	_, err := f.service.VerifyEmail(ctx, forum, ac, enduser.VerifyEmailRequest{Code: code})
	assert.True(t, errx.IsCode(err, iam.CodeUnauthorized))

	_, err = f.service.VerifyEmail(ctx, shop, ac, enduser.VerifyEmailRequest{})
	assert.True(t, errx.IsCode(err, errx.CodeValidationFailed))

	user, err := f.service.VerifyEmail(ctx, shop, ac, enduser.VerifyEmailRequest{Code: code})
	require.NoError(t, err)
	assert.True(t, user.IsEmailVerified)

	stored, err := f.repo.FindByID(ctx, shop.ApplicationID, reg.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)

	err = f.service.RequestEmailVerification(ctx, shop, ac)
	assert.True(t, errx.IsCode(err, enduser.CodeVerified))
}

func TestEmailVerification_Disabled(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, shop, "jane@example.com")
	ac := &kernel.AuthContext{Kind: kernel.PrincipalEndUser, PrincipalID: reg.User.ID.String(), ApplicationID: shop.ApplicationID}

	err := f.service.RequestEmailVerification(context.Background(), shop, ac)
	assert.Equal(t, errx.TypeUnavailable, errx.TypeOf(err))
}
