package authsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/google/uuid"
)

// PrincipalLoader re-reads a principal at refresh time. It fails when the
// principal may no longer receive tokens, and returns the claims to embed.
type PrincipalLoader func(ctx context.Context, principal auth.Principal) (auth.Principal, map[string]any, error)

// TokenManager issues, rotates and validates token pairs for both principal kinds
type TokenManager struct {
	tokens     auth.TokenService
	repo       auth.TokenRepository
	apps       auth.ApplicationChecker
	audit      auth.AuditService
	metrics    metrics.Recorder
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager wires the manager. apps may be nil when no end users are served.
func NewTokenManager(
	tokens auth.TokenService,
	repo auth.TokenRepository,
	apps auth.ApplicationChecker,
	audit auth.AuditService,
	recorder metrics.Recorder,
	refreshTTL time.Duration,
) *TokenManager {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &TokenManager{
		tokens:     tokens,
		repo:       repo,
		apps:       apps,
		audit:      audit,
		metrics:    recorder,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source, for tests
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// IssuePair starts a new refresh-token family for principal
func (m *TokenManager) IssuePair(ctx context.Context, principal auth.Principal, extraClaims map[string]any) (*auth.TokenPair, error) {
	pair, record, err := m.mint(principal, extraClaims, uuid.NewString())
	if err != nil {
		return nil, err
	}

	if err := m.repo.Save(ctx, record); err != nil {
		return nil, errx.Wrap(err, "failed to store refresh token", errx.TypeInternal)
	}

	return pair, nil
}

// Refresh redeems rawRefresh for a new pair and rotates it. Redeeming a token
// that was already rotated revokes its whole family.
func (m *TokenManager) Refresh(ctx context.Context, rawRefresh string, kind kernel.PrincipalKind, load PrincipalLoader) (*auth.TokenPair, *auth.Principal, error) {
	if rawRefresh == "" {
		return nil, nil, auth.ErrInvalidOrExpiredRefreshToken()
	}

	hash := auth.HashRefreshToken(rawRefresh)
	now := m.now()

	record, err := m.repo.FindByHash(ctx, hash)
	if err != nil {
		if errx.IsCode(err, auth.CodeRefreshTokenNotFound) {
			m.metrics.RecordRefresh(kind.String(), metrics.OutcomeFailure)
			return nil, nil, auth.ErrInvalidOrExpiredRefreshToken()
		}
		return nil, nil, err
	}

	if record.Kind != kind {
		m.metrics.RecordRefresh(kind.String(), metrics.OutcomeFailure)
		return nil, nil, auth.ErrInvalidOrExpiredRefreshToken()
	}

	if record.IsRevoked() {
		if record.WasRotated() {
			m.revokeFamily(ctx, record, now)
		}
		m.metrics.RecordRefresh(kind.String(), metrics.OutcomeFailure)
		return nil, nil, auth.ErrInvalidOrExpiredRefreshToken()
	}

	if record.IsExpired(now) {
		m.metrics.RecordRefresh(kind.String(), metrics.OutcomeFailure)
		return nil, nil, auth.ErrInvalidOrExpiredRefreshToken()
	}

	principal := record.Principal()
	var extra map[string]any
	if load != nil {
		principal, extra, err = load(ctx, principal)
		if err != nil {
			m.metrics.RecordRefresh(kind.String(), metrics.OutcomeFailure)
			return nil, nil, err
		}
	}

	if err := m.ensureApplicationActive(ctx, principal); err != nil {
		m.metrics.RecordRefresh(kind.String(), metrics.OutcomeFailure)
		return nil, nil, err
	}

	pair, next, err := m.mint(principal, extra, record.FamilyID)
	if err != nil {
		return nil, nil, err
	}

	if err := m.repo.Rotate(ctx, hash, next, now); err != nil {
		m.metrics.RecordRefresh(kind.String(), metrics.OutcomeFailure)
		switch {
		case errx.IsCode(err, auth.CodeRefreshTokenRevoked):
			// lost a concurrent redemption of the same token
			m.revokeFamily(ctx, record, now)
			return nil, nil, auth.ErrInvalidOrExpiredRefreshToken()
		case errx.IsCode(err, auth.CodeRefreshTokenNotFound), errx.IsCode(err, auth.CodeInvalidOrExpiredRefreshToken):
			return nil, nil, auth.ErrInvalidOrExpiredRefreshToken()
		default:
			return nil, nil, errx.Wrap(err, "failed to rotate refresh token", errx.TypeInternal)
		}
	}

	m.metrics.RecordRefresh(kind.String(), metrics.OutcomeSuccess)
	return pair, &principal, nil
}

// Authenticate validates an access token and enforces the principal kind tag.
// End-user tokens are rejected once their application is deactivated.
func (m *TokenManager) Authenticate(ctx context.Context, accessToken string, kind kernel.PrincipalKind) (*auth.Principal, error) {
	claims, err := m.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	if claims.Kind != kind {
		return nil, auth.ErrPrincipalKindMismatch().
			WithDetail("expected", kind).
			WithDetail("actual", claims.Kind)
	}

	principal := claims.Principal()
	if err := m.ensureApplicationActive(ctx, principal); err != nil {
		return nil, err
	}

	return &principal, nil
}

// RevokeAll revokes every refresh token the principal holds
func (m *TokenManager) RevokeAll(ctx context.Context, kind kernel.PrincipalKind, principalID string) error {
	if err := m.repo.RevokeAllForPrincipal(ctx, kind, principalID, m.now()); err != nil {
		return errx.Wrap(err, "failed to revoke refresh tokens", errx.TypeInternal)
	}
	return nil
}

// mint signs an access token and generates the next refresh token of familyID
func (m *TokenManager) mint(principal auth.Principal, extra map[string]any, familyID string) (*auth.TokenPair, *auth.RefreshToken, error) {
	access, accessExp, err := m.tokens.IssueAccessToken(principal, extra)
	if err != nil {
		return nil, nil, err
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, nil, err
	}

	now := m.now()
	record := &auth.RefreshToken{
		ID:            uuid.NewString(),
		TokenHash:     hash,
		FamilyID:      familyID,
		Kind:          principal.Kind,
		PrincipalID:   principal.ID,
		ApplicationID: principal.ApplicationID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(m.refreshTTL),
	}

	pair := &auth.TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		TokenType:        "Bearer",
		ExpiresIn:        int(m.tokens.AccessTokenTTL().Seconds()),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}

	return pair, record, nil
}

func (m *TokenManager) ensureApplicationActive(ctx context.Context, principal auth.Principal) error {
	if principal.Kind != kernel.PrincipalEndUser {
		return nil
	}
	if m.apps == nil {
		return nil
	}

	active, err := m.apps.IsApplicationActive(ctx, principal.ApplicationID)
	if err != nil {
		return err
	}
	if !active {
		return iam.ErrAccessDenied().WithDetail("reason", "application is inactive")
	}
	return nil
}

func (m *TokenManager) revokeFamily(ctx context.Context, record *auth.RefreshToken, now time.Time) {
	principal := record.Principal()

	m.metrics.RecordRefreshReuse(record.Kind.String())
	if m.audit != nil {
		m.audit.LogRefreshTokenReuse(ctx, principal, record.FamilyID)
	}

	if err := m.repo.RevokeFamily(ctx, record.FamilyID, now); err != nil {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"family_id":    record.FamilyID,
			"principal_id": record.PrincipalID,
		}).WithError(err).Error("Failed to revoke refresh token family")
	}
}
