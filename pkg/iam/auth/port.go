package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// TokenService signs and validates stateless access tokens
type TokenService interface {
	IssueAccessToken(principal Principal, extraClaims map[string]any) (token string, expiresAt time.Time, err error)
	ValidateAccessToken(token string) (*TokenClaims, error)
	AccessTokenTTL() time.Duration
}

// TokenRepository persists refresh-token records.
//
// Rotate must be atomic: it reads the record for oldHash, fails with
// AUTH_REFRESH_TOKEN_REVOKED if it is already revoked, with
// AUTH_INVALID_OR_EXPIRED_REFRESH_TOKEN if it has expired, otherwise marks it
// revoked and replaced by next and stores next. Two concurrent rotations of
// the same token must never both succeed.
type TokenRepository interface {
	Save(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, next *RefreshToken, now time.Time) error
	RevokeFamily(ctx context.Context, familyID string, now time.Time) error
	RevokeAllForPrincipal(ctx context.Context, kind kernel.PrincipalKind, principalID string, now time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ApplicationChecker reports whether an end user's application still accepts logins
type ApplicationChecker interface {
	IsApplicationActive(ctx context.Context, appID kernel.ApplicationID) (bool, error)
}

// Authenticator validates an access token for one principal kind
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string, kind kernel.PrincipalKind) (*Principal, error)
}

// AuditService defines the contract for authentication audit logging
type AuditService interface {
	LogLoginAttempt(ctx context.Context, kind kernel.PrincipalKind, principalID string, appID kernel.ApplicationID, email string, success bool, ip string, userAgent string)
	LogLogout(ctx context.Context, principal Principal, ip string)
	LogTokenRefresh(ctx context.Context, principal Principal, ip string)
	LogRefreshTokenReuse(ctx context.Context, principal Principal, familyID string)
	LogAccountCreated(ctx context.Context, principal Principal, ip string)
}
