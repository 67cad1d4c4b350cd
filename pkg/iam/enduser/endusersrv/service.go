package endusersrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp/otpsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
)

// Service authenticates the end users of one tenant at a time
type Service struct {
	repo    enduser.UserRepository
	tokens  *authsrv.TokenManager
	hasher  password.TimingSafeHasher
	mailer  enduser.WelcomeMailer
	audit   auth.AuditService
	metrics metrics.Recorder
	codes   *otpsrv.OTPService
	now     func() time.Time
}

// NewService wires the end user service. mailer and audit may be nil.
func NewService(
	repo enduser.UserRepository,
	tokens *authsrv.TokenManager,
	hasher password.TimingSafeHasher,
	mailer enduser.WelcomeMailer,
	audit auth.AuditService,
	recorder metrics.Recorder,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		repo:    repo,
		tokens:  tokens,
		hasher:  hasher,
		mailer:  mailer,
		audit:   audit,
		metrics: recorder,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithVerification enables email verification codes
func (s *Service) WithVerification(codes *otpsrv.OTPService) *Service {
	s.codes = codes
	return s
}

// Register creates a user under tenant and logs it in
func (s *Service) Register(ctx context.Context, tenant kernel.TenantContext, req enduser.RegisterRequest, ip, userAgent string) (*enduser.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := enduser.NormalizeEmail(req.Email)
	if _, err := s.repo.FindByEmail(ctx, tenant.ApplicationID, email); err == nil {
		return nil, enduser.ErrEmailTaken()
	} else if !errx.IsCode(err, enduser.CodeNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := enduser.NewEndUser(tenant.ApplicationID, email, hash, req.FirstName, req.LastName, s.now().UTC())
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user.Principal(), nil)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.LogAccountCreated(ctx, user.Principal(), ip)
	}
	s.sendWelcome(ctx, tenant, *user)

	return &enduser.AuthResponse{User: user.ToDTO(), Tokens: pair}, nil
}

// Login verifies credentials within tenant. Unknown email and wrong password
// fail identically.
func (s *Service) Login(ctx context.Context, tenant kernel.TenantContext, req enduser.LoginRequest, ip, userAgent string) (*enduser.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := enduser.NormalizeEmail(req.Email)
	user, err := s.repo.FindByEmail(ctx, tenant.ApplicationID, email)
	if err != nil {
		if !errx.IsCode(err, enduser.CodeNotFound) {
			return nil, err
		}
		s.hasher.VerifyDummy(req.Password)
		s.recordLogin(ctx, tenant.ApplicationID, "", email, false, ip, userAgent)
		return nil, iam.ErrInvalidCredentials()
	}

	if !s.hasher.Verify(user.PasswordHash, req.Password) {
		s.recordLogin(ctx, tenant.ApplicationID, user.ID.String(), email, false, ip, userAgent)
		return nil, iam.ErrInvalidCredentials()
	}
	if !user.IsActive {
		s.recordLogin(ctx, tenant.ApplicationID, user.ID.String(), email, false, ip, userAgent)
		return nil, enduser.ErrInactive()
	}

	pair, err := s.tokens.IssuePair(ctx, user.Principal(), nil)
	if err != nil {
		return nil, err
	}

	s.afterLogin(ctx, user, req.Password)
	s.recordLogin(ctx, tenant.ApplicationID, user.ID.String(), email, true, ip, userAgent)
	return &enduser.AuthResponse{User: user.ToDTO(), Tokens: pair}, nil
}

// Refresh rotates a refresh token. The token must belong to tenant.
func (s *Service) Refresh(ctx context.Context, tenant kernel.TenantContext, rawRefresh, ip string) (*auth.TokenPair, error) {
	load := func(ctx context.Context, principal auth.Principal) (auth.Principal, map[string]any, error) {
		if principal.ApplicationID != tenant.ApplicationID {
			return auth.Principal{}, nil, auth.ErrInvalidOrExpiredRefreshToken()
		}
		user, err := s.repo.FindByID(ctx, tenant.ApplicationID, kernel.UserID(principal.ID))
		if err != nil {
			if errx.IsCode(err, enduser.CodeNotFound) {
				return auth.Principal{}, nil, auth.ErrInvalidOrExpiredRefreshToken()
			}
			return auth.Principal{}, nil, err
		}
		if !user.IsActive {
			return auth.Principal{}, nil, enduser.ErrInactive()
		}
		return user.Principal(), nil, nil
	}

	pair, principal, err := s.tokens.Refresh(ctx, rawRefresh, kernel.PrincipalEndUser, load)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.LogTokenRefresh(ctx, *principal, ip)
	}
	return pair, nil
}

// Logout revokes every refresh token of the authenticated user
func (s *Service) Logout(ctx context.Context, ac *kernel.AuthContext, ip string) error {
	if ac == nil || ac.Kind != kernel.PrincipalEndUser {
		return iam.ErrUnauthorized()
	}
	if err := s.tokens.RevokeAll(ctx, kernel.PrincipalEndUser, ac.PrincipalID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogLogout(ctx, auth.NewEndUserPrincipal(ac.ApplicationID, kernel.UserID(ac.PrincipalID), ac.Email), ip)
	}
	return nil
}

// Me returns the authenticated user
func (s *Service) Me(ctx context.Context, ac *kernel.AuthContext) (*enduser.EndUserDTO, error) {
	if ac == nil || ac.Kind != kernel.PrincipalEndUser {
		return nil, iam.ErrUnauthorized()
	}
	return s.GetForServer(ctx, ac.ApplicationID, kernel.UserID(ac.PrincipalID))
}

// GetForServer looks a user up for a tenant backend authenticated by secret key
func (s *Service) GetForServer(ctx context.Context, appID kernel.ApplicationID, id kernel.UserID) (*enduser.EndUserDTO, error) {
	user, err := s.repo.FindByID(ctx, appID, id)
	if err != nil {
		return nil, err
	}
	dto := user.ToDTO()
	return &dto, nil
}

// RequestEmailVerification sends a fresh code to the authenticated user
func (s *Service) RequestEmailVerification(ctx context.Context, tenant kernel.TenantContext, ac *kernel.AuthContext) error {
	user, err := s.verificationTarget(ctx, tenant, ac)
	if err != nil {
		return err
	}
	_, err = s.codes.GenerateOTP(ctx, tenant, user.Email, otp.PurposeEmailVerification)
	return err
}

// VerifyEmail marks the user's email verified when code matches
func (s *Service) VerifyEmail(ctx context.Context, tenant kernel.TenantContext, ac *kernel.AuthContext, req enduser.VerifyEmailRequest) (*enduser.EndUserDTO, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, err := s.verificationTarget(ctx, tenant, ac)
	if err != nil {
		return nil, err
	}

	if _, err := s.codes.VerifyOTP(ctx, tenant.ApplicationID, user.Email, otp.PurposeEmailVerification, req.Code); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.MarkEmailVerified(ctx, tenant.ApplicationID, user.ID, now); err != nil {
		return nil, err
	}
	user.IsEmailVerified = true
	user.UpdatedAt = now

	dto := user.ToDTO()
	return &dto, nil
}

func (s *Service) verificationTarget(ctx context.Context, tenant kernel.TenantContext, ac *kernel.AuthContext) (*enduser.EndUser, error) {
	if ac == nil || ac.Kind != kernel.PrincipalEndUser || ac.ApplicationID != tenant.ApplicationID {
		return nil, iam.ErrUnauthorized()
	}
	if s.codes == nil {
		return nil, errx.New("email verification is not enabled", errx.TypeUnavailable)
	}
	user, err := s.repo.FindByID(ctx, tenant.ApplicationID, kernel.UserID(ac.PrincipalID))
	if err != nil {
		return nil, err
	}
	if user.IsEmailVerified {
		return nil, enduser.ErrAlreadyVerified()
	}
	return user, nil
}

func (s *Service) afterLogin(ctx context.Context, user *enduser.EndUser, plaintext string) {
	if err := s.repo.UpdateLastLogin(ctx, user.ApplicationID, user.ID, s.now().UTC()); err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Failed to update user last login")
	}

	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, user.ApplicationID, user.ID, hash); err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Failed to upgrade user password hash")
	}
}

func (s *Service) sendWelcome(ctx context.Context, tenant kernel.TenantContext, user enduser.EndUser) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendWelcome(ctx, tenant, user); err != nil {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"application_id": tenant.ApplicationID,
			"user_id":        user.ID,
		}).WithError(err).Warn("Failed to send welcome email")
	}
}

func (s *Service) recordLogin(ctx context.Context, appID kernel.ApplicationID, userID, email string, success bool, ip, userAgent string) {
	outcome := metrics.OutcomeFailure
	if success {
		outcome = metrics.OutcomeSuccess
	}
	s.metrics.RecordLogin(kernel.PrincipalEndUser.String(), outcome)

	if s.audit != nil {
		s.audit.LogLoginAttempt(ctx, kernel.PrincipalEndUser, userID, appID, email, success, ip, userAgent)
	}
}
