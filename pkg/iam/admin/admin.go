package admin

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

// Admin is the single operator account created by the setup wizard
type Admin struct {
	ID           kernel.AdminID          `db:"id" json:"id"`
	Email        string                  `db:"email" json:"email"`
	PasswordHash password.HashedPassword `db:"password_hash" json:"-"`
	CreatedAt    time.Time               `db:"created_at" json:"created_at"`
	LastLoginAt  *time.Time              `db:"last_login_at" json:"last_login_at,omitempty"`
}

// NewAdmin builds the account with a normalized email
func NewAdmin(email string, hash password.HashedPassword, now time.Time) Admin {
	return Admin{
		ID:           kernel.NewAdminID(),
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    now,
	}
}

func (a *Admin) Principal() auth.Principal {
	return auth.NewAdminPrincipal(a.ID, a.Email)
}

func (a *Admin) ToDTO() AdminDTO {
	return AdminDTO{
		ID:          a.ID,
		Email:       a.Email,
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}

// NormalizeEmail lowercases and trims an address for lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================================================
// DTOs
// ============================================================================

type AdminDTO struct {
	ID          kernel.AdminID `json:"id"`
	Email       string         `json:"email"`
	CreatedAt   time.Time      `json:"created_at"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
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

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("ADMIN")

var (
	CodeNotFound = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Administrator not found")
)

func ErrNotFound() *errx.Error {
	return ErrRegistry.New(CodeNotFound)
}
