package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) LogLoginAttempt(ctx context.Context, kind kernel.PrincipalKind, principalID string, appID kernel.ApplicationID, email string, success bool, ip string, userAgent string) {
	entry := logx.WithFields(logx.Fields{
		"audit_event":    "login_attempt",
		"principal_kind": kind,
		"principal_id":   principalID,
		"application_id": appID,
		"email":          email,
		"success":        success,
		"ip":             ip,
		"user_agent":     userAgent,
		"timestamp":      time.Now(),
	}).WithContext(ctx)

	if success {
		entry.Info("Audit: login attempt")
		return
	}
	entry.Warn("Audit: login attempt")
}

func (s *LogxAuditService) LogLogout(ctx context.Context, principal auth.Principal, ip string) {
	logx.WithFields(principalFields("logout", principal)).
		WithField("ip", ip).
		WithContext(ctx).
		Info("Audit: logout")
}

func (s *LogxAuditService) LogTokenRefresh(ctx context.Context, principal auth.Principal, ip string) {
	logx.WithFields(principalFields("token_refresh", principal)).
		WithField("ip", ip).
		WithContext(ctx).
		Info("Audit: token refresh")
}

func (s *LogxAuditService) LogRefreshTokenReuse(ctx context.Context, principal auth.Principal, familyID string) {
	logx.WithFields(principalFields("refresh_token_reuse", principal)).
		WithField("family_id", familyID).
		WithContext(ctx).
		Warn("Audit: rotated refresh token presented again, family revoked")
}

func (s *LogxAuditService) LogAccountCreated(ctx context.Context, principal auth.Principal, ip string) {
	logx.WithFields(principalFields("account_created", principal)).
		WithField("ip", ip).
		WithContext(ctx).
		Info("Audit: account created")
}

func principalFields(event string, principal auth.Principal) logx.Fields {
	return logx.Fields{
		"audit_event":    event,
		"principal_kind": principal.Kind,
		"principal_id":   principal.ID,
		"application_id": principal.ApplicationID,
		"timestamp":      time.Now(),
	}
}
