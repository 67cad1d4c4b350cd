package auth

import (
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures access-token signing
type JWTConfig struct {
	Secret         string
	Issuer         string
	Audience       string
	AccessTokenTTL time.Duration
}

// JWTService implements TokenService with HS256 JWTs
type JWTService struct {
	secretKey      []byte
	issuer         string
	audience       string
	accessTokenTTL time.Duration
	now            func() time.Time
}

// NewJWTService creates the access-token service. Unset values fall back to defaults.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "tenantauth"
	}
	if cfg.Audience == "" {
		cfg.Audience = "tenantauth-api"
	}

	return &JWTService{
		secretKey:      []byte(cfg.Secret),
		issuer:         cfg.Issuer,
		audience:       cfg.Audience,
		accessTokenTTL: cfg.AccessTokenTTL,
		now:            time.Now,
	}
}

// WithClock replaces the time source, for tests
func (j *JWTService) WithClock(now func() time.Time) *JWTService {
	j.now = now
	return j
}

// JWTClaims is the signed payload. The kind tag decides which routes accept the token.
type JWTClaims struct {
	Kind          kernel.PrincipalKind `json:"knd"`
	ApplicationID kernel.ApplicationID `json:"app,omitempty"`
	Email         string               `json:"email,omitempty"`
	Extra         map[string]any       `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

func (j *JWTService) AccessTokenTTL() time.Duration {
	return j.accessTokenTTL
}

// IssueAccessToken signs a token for principal. extraClaims travel under "ext"
// and can never override the registered or identity claims.
func (j *JWTService) IssueAccessToken(principal Principal, extraClaims map[string]any) (string, time.Time, error) {
	if !principal.IsValid() {
		return "", time.Time{}, ErrTokenGenerationFailed().WithDetail("reason", "invalid principal")
	}

	now := j.now()
	expiresAt := now.Add(j.accessTokenTTL)

	claims := JWTClaims{
		Kind:          principal.Kind,
		ApplicationID: principal.ApplicationID,
		Email:         principal.Email,
		Extra:         extraClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   principal.ID,
			Audience:  jwt.ClaimStrings{j.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, ErrTokenGenerationFailed().WithCause(err)
	}

	return signed, expiresAt, nil
}

// ValidateAccessToken verifies signature, issuer, audience and expiry.
// An expired token is IAM_INVALID_TOKEN; anything else is AUTH_TOKEN_SIGNATURE_INVALID.
func (j *JWTService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(*jwt.Token) (any, error) {
		return j.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, iam.ErrInvalidToken().WithCause(err)
		}
		return nil, ErrTokenSignatureInvalid().WithCause(err)
	}

	jwtClaims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenSignatureInvalid()
	}

	claims := &TokenClaims{
		Kind:          jwtClaims.Kind,
		PrincipalID:   jwtClaims.Subject,
		ApplicationID: jwtClaims.ApplicationID,
		Email:         jwtClaims.Email,
		Extra:         jwtClaims.Extra,
		ExpiresAt:     jwtClaims.ExpiresAt.Time,
	}
	if jwtClaims.IssuedAt != nil {
		claims.IssuedAt = jwtClaims.IssuedAt.Time
	}

	if !claims.Principal().IsValid() {
		return nil, ErrTokenSignatureInvalid().WithDetail("reason", "inconsistent principal claims")
	}

	return claims, nil
}
