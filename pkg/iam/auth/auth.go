package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// refreshTokenBytes is the entropy of an opaque refresh token
const refreshTokenBytes = 32

// ============================================================================
// Principal
// ============================================================================

// Principal is an authenticated identity. Admins carry no application;
// end users always carry exactly one.
type Principal struct {
	Kind          kernel.PrincipalKind `json:"kind"`
	ID            string               `json:"id"`
	ApplicationID kernel.ApplicationID `json:"application_id,omitempty"`
	Email         string               `json:"email"`
}

func NewAdminPrincipal(id kernel.AdminID, email string) Principal {
	return Principal{Kind: kernel.PrincipalAdmin, ID: id.String(), Email: email}
}

func NewEndUserPrincipal(appID kernel.ApplicationID, id kernel.UserID, email string) Principal {
	return Principal{Kind: kernel.PrincipalEndUser, ID: id.String(), ApplicationID: appID, Email: email}
}

// AuthContext projects the principal for request-scoped storage
func (p Principal) AuthContext() kernel.AuthContext {
	return kernel.AuthContext{
		Kind:          p.Kind,
		PrincipalID:   p.ID,
		ApplicationID: p.ApplicationID,
		Email:         p.Email,
	}
}

// IsValid checks the tag/scope combination
func (p Principal) IsValid() bool {
	ac := p.AuthContext()
	return ac.IsValid()
}

// ============================================================================
// Token Types
// ============================================================================

// TokenPair is returned by login and refresh
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RefreshToken is the stored record of an opaque refresh token. Only the
// hash of the raw token is ever persisted.
type RefreshToken struct {
	ID            string               `db:"id" json:"id"`
	TokenHash     string               `db:"token_hash" json:"-"`
	FamilyID      string               `db:"family_id" json:"family_id"`
	Kind          kernel.PrincipalKind `db:"kind" json:"kind"`
	PrincipalID   string               `db:"principal_id" json:"principal_id"`
	ApplicationID kernel.ApplicationID `db:"application_id" json:"application_id"`
	IssuedAt      time.Time            `db:"issued_at" json:"issued_at"`
	ExpiresAt     time.Time            `db:"expires_at" json:"expires_at"`
	RevokedAt     *time.Time           `db:"revoked_at" json:"revoked_at,omitempty"`
	ReplacedByID  string               `db:"replaced_by_id" json:"replaced_by_id,omitempty"`
}

// TokenClaims are the validated contents of an access token
type TokenClaims struct {
	Kind          kernel.PrincipalKind
	PrincipalID   string
	ApplicationID kernel.ApplicationID
	Email         string
	Extra         map[string]any
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Principal returns the principal the token was issued to
func (c *TokenClaims) Principal() Principal {
	return Principal{Kind: c.Kind, ID: c.PrincipalID, ApplicationID: c.ApplicationID, Email: c.Email}
}

// ============================================================================
// Domain Methods
// ============================================================================

func (r *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *RefreshToken) IsRevoked() bool {
	return r.RevokedAt != nil
}

// WasRotated reports a token that was revoked by a successful refresh
// rather than by logout.
func (r *RefreshToken) WasRotated() bool {
	return r.RevokedAt != nil && r.ReplacedByID != ""
}

// Principal returns who the token was issued to
func (r *RefreshToken) Principal() Principal {
	return Principal{Kind: r.Kind, ID: r.PrincipalID, ApplicationID: r.ApplicationID}
}

// GenerateRefreshToken returns a new opaque token and its storage hash
func GenerateRefreshToken() (raw string, hash string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", ErrRegistry.NewWithCause(CodeTokenGenerationFailed, err)
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken is the lookup key for a raw refresh token
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeInvalidOrExpiredRefreshToken = ErrRegistry.Register("INVALID_OR_EXPIRED_REFRESH_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired refresh token")
	CodeTokenSignatureInvalid        = ErrRegistry.Register("TOKEN_SIGNATURE_INVALID", errx.TypeAuthorization, http.StatusUnauthorized, "Token signature is invalid")
	CodeTokenGenerationFailed        = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodePrincipalKindMismatch        = ErrRegistry.Register("PRINCIPAL_KIND_MISMATCH", errx.TypeAuthorization, http.StatusUnauthorized, "Token was not issued for this kind of principal")
	CodeRefreshTokenNotFound         = ErrRegistry.Register("REFRESH_TOKEN_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Refresh token not found")
	CodeRefreshTokenRevoked          = ErrRegistry.Register("REFRESH_TOKEN_REVOKED", errx.TypeAuthorization, http.StatusUnauthorized, "Refresh token already revoked")
	CodeMissingCredentials           = ErrRegistry.Register("MISSING_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Missing bearer credentials")
)

// Helper functions
func ErrInvalidOrExpiredRefreshToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidOrExpiredRefreshToken)
}

func ErrTokenSignatureInvalid() *errx.Error {
	return ErrRegistry.New(CodeTokenSignatureInvalid)
}

func ErrTokenGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenGenerationFailed)
}

func ErrPrincipalKindMismatch() *errx.Error {
	return ErrRegistry.New(CodePrincipalKindMismatch)
}

func ErrRefreshTokenNotFound() *errx.Error {
	return ErrRegistry.New(CodeRefreshTokenNotFound)
}

func ErrRefreshTokenRevoked() *errx.Error {
	return ErrRegistry.New(CodeRefreshTokenRevoked)
}

func ErrMissingCredentials() *errx.Error {
	return ErrRegistry.New(CodeMissingCredentials)
}
