package enduser

import (
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// ============================================================================
// Entity
// ============================================================================

// EndUser belongs to exactly one application. Every lookup carries that
// application id; the same email may exist under different applications.
type EndUser struct {
	ID              kernel.UserID           `db:"id" json:"id"`
	ApplicationID   kernel.ApplicationID    `db:"application_id" json:"application_id"`
	Email           string                  `db:"email" json:"email"`
	PasswordHash    password.HashedPassword `db:"password_hash" json:"-"`
	FirstName       string                  `db:"first_name" json:"first_name"`
	LastName        string                  `db:"last_name" json:"last_name"`
	IsEmailVerified bool                    `db:"is_email_verified" json:"is_email_verified"`
	IsActive        bool                    `db:"is_active" json:"is_active"`
	CreatedAt       time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time               `db:"updated_at" json:"updated_at"`
	LastLoginAt     *time.Time              `db:"last_login_at" json:"last_login_at,omitempty"`
}

// NewEndUser builds an active, unverified user
func NewEndUser(appID kernel.ApplicationID, email string, hash password.HashedPassword, firstName, lastName string, now time.Time) *EndUser {
	return &EndUser{
		ID:            kernel.NewUserID(),
		ApplicationID: appID,
		Email:         NormalizeEmail(email),
		PasswordHash:  hash,
		FirstName:     strings.TrimSpace(firstName),
		LastName:      strings.TrimSpace(lastName),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (u *EndUser) Principal() auth.Principal {
	return auth.NewEndUserPrincipal(u.ApplicationID, u.ID, u.Email)
}

func (u *EndUser) ToDTO() EndUserDTO {
	return EndUserDTO{
		ID:              u.ID,
		ApplicationID:   u.ApplicationID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		IsEmailVerified: u.IsEmailVerified,
		IsActive:        u.IsActive,
		CreatedAt:       u.CreatedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================================================
// DTOs
// ============================================================================

type EndUserDTO struct {
	ID              kernel.UserID        `json:"id"`
	ApplicationID   kernel.ApplicationID `json:"application_id"`
	Email           string               `json:"email"`
	FirstName       string               `json:"first_name"`
	LastName        string               `json:"last_name"`
	IsEmailVerified bool                 `json:"is_email_verified"`
	IsActive        bool                 `json:"is_active"`
	CreatedAt       time.Time            `json:"created_at"`
	LastLoginAt     *time.Time           `json:"last_login_at,omitempty"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User   EndUserDTO      `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (r RegisterRequest) Validate() error {
	return errx.NewValidator().
		Email("email", NormalizeEmail(r.Email)).
		MinLength("password", r.Password, 8).
		MaxLength("first_name", r.FirstName, 100).
		MaxLength("last_name", r.LastName, 100).
		Err()
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return errx.NewValidator().
		Required("email", r.Email).
		Required("password", r.Password).
		Err()
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type VerifyEmailRequest struct {
	Code string `json:"code"`
}

func (r VerifyEmailRequest) Validate() error {
	return errx.NewValidator().
		Required("code", strings.TrimSpace(r.Code)).
		Err()
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeNotFound   = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeEmailTaken = ErrRegistry.Register("EMAIL_TAKEN", errx.TypeConflict, http.StatusConflict, "A user with this email already exists")
	CodeInactive   = ErrRegistry.Register("INACTIVE", errx.TypeForbidden, http.StatusForbidden, "User account is disabled")
	CodeVerified   = ErrRegistry.Register("ALREADY_VERIFIED", errx.TypeConflict, http.StatusConflict, "Email is already verified")
)

func ErrNotFound() *errx.Error {
	return ErrRegistry.New(CodeNotFound)
}

func ErrEmailTaken() *errx.Error {
	return ErrRegistry.New(CodeEmailTaken)
}

func ErrInactive() *errx.Error {
	return ErrRegistry.New(CodeInactive)
}

func ErrAlreadyVerified() *errx.Error {
	return ErrRegistry.New(CodeVerified)
}
