package adminsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
)

// AdminAuthService authenticates the operator account
type AdminAuthService struct {
	repo    admin.AdminRepository
	tokens  *authsrv.TokenManager
	hasher  password.TimingSafeHasher
	audit   auth.AuditService
	metrics metrics.Recorder
	now     func() time.Time
}

func NewAdminAuthService(
	repo admin.AdminRepository,
	tokens *authsrv.TokenManager,
	hasher password.TimingSafeHasher,
	audit auth.AuditService,
	recorder metrics.Recorder,
) *AdminAuthService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AdminAuthService{
		repo:    repo,
		tokens:  tokens,
		hasher:  hasher,
		audit:   audit,
		metrics: recorder,
		now:     time.Now,
	}
}

// Login verifies the credentials and starts a token family. Unknown email and
// wrong password fail identically.
func (s *AdminAuthService) Login(ctx context.Context, req admin.LoginRequest, ip, userAgent string) (*auth.TokenPair, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := admin.NormalizeEmail(req.Email)
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errx.IsCode(err, admin.CodeNotFound) {
			return nil, err
		}
		s.hasher.VerifyDummy(req.Password)
		s.recordLogin(ctx, "", email, false, ip, userAgent)
		return nil, iam.ErrInvalidCredentials()
	}

	if !s.hasher.Verify(account.PasswordHash, req.Password) {
		s.recordLogin(ctx, account.ID.String(), email, false, ip, userAgent)
		return nil, iam.ErrInvalidCredentials()
	}

	pair, err := s.tokens.IssuePair(ctx, account.Principal(), nil)
	if err != nil {
		return nil, err
	}

	s.afterLogin(ctx, account, req.Password)
	s.recordLogin(ctx, account.ID.String(), email, true, ip, userAgent)
	return pair, nil
}

// Refresh rotates an admin refresh token
func (s *AdminAuthService) Refresh(ctx context.Context, rawRefresh string, ip string) (*auth.TokenPair, error) {
	pair, principal, err := s.tokens.Refresh(ctx, rawRefresh, kernel.PrincipalAdmin, s.loadPrincipal)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.LogTokenRefresh(ctx, *principal, ip)
	}
	return pair, nil
}

// Logout revokes every refresh token the admin holds
func (s *AdminAuthService) Logout(ctx context.Context, ac *kernel.AuthContext, ip string) error {
	if !ac.IsAdmin() {
		return iam.ErrUnauthorized()
	}
	if err := s.tokens.RevokeAll(ctx, kernel.PrincipalAdmin, ac.PrincipalID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogLogout(ctx, auth.NewAdminPrincipal(kernel.AdminID(ac.PrincipalID), ac.Email), ip)
	}
	return nil
}

// Me returns the authenticated admin
func (s *AdminAuthService) Me(ctx context.Context, ac *kernel.AuthContext) (*admin.AdminDTO, error) {
	if !ac.IsAdmin() {
		return nil, iam.ErrUnauthorized()
	}
	account, err := s.repo.FindByID(ctx, kernel.AdminID(ac.PrincipalID))
	if err != nil {
		return nil, err
	}
	dto := account.ToDTO()
	return &dto, nil
}

// loadPrincipal re-reads the admin at refresh time so a removed account stops refreshing
func (s *AdminAuthService) loadPrincipal(ctx context.Context, principal auth.Principal) (auth.Principal, map[string]any, error) {
	account, err := s.repo.FindByID(ctx, kernel.AdminID(principal.ID))
	if err != nil {
		if errx.IsCode(err, admin.CodeNotFound) {
			return auth.Principal{}, nil, auth.ErrInvalidOrExpiredRefreshToken()
		}
		return auth.Principal{}, nil, err
	}
	return account.Principal(), nil, nil
}

// afterLogin records the login time and upgrades weak hashes. Failures are logged only.
func (s *AdminAuthService) afterLogin(ctx context.Context, account *admin.Admin, plaintext string) {
	if err := s.repo.UpdateLastLogin(ctx, account.ID, s.now().UTC()); err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Failed to update admin last login")
	}

	if !s.hasher.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Failed to upgrade admin password hash")
	}
}

func (s *AdminAuthService) recordLogin(ctx context.Context, adminID, email string, success bool, ip, userAgent string) {
	outcome := metrics.OutcomeFailure
	if success {
		outcome = metrics.OutcomeSuccess
	}
	s.metrics.RecordLogin(kernel.PrincipalAdmin.String(), outcome)

	if s.audit != nil {
		s.audit.LogLoginAttempt(ctx, kernel.PrincipalAdmin, adminID, "", email, success, ip, userAgent)
	}
}
