package application

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	PublicKeyPrefix = "pk_live_"
	SecretKeyPrefix = "sk_live_"

	publicKeyLength = 32
	secretKeyLength = 48

	maskedPrefix     = "sk_"
	maskedDotCount   = 12
	placeholderDots  = 16
	maskVisibleChars = 4
	minMaskableLen   = 8
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// ============================================================================
// Entity
// ============================================================================

// Application is a tenant. SecretKey holds plaintext in memory only;
// repositories seal it before writing.
type Application struct {
	ID            kernel.ApplicationID `json:"id"`
	Name          string               `json:"name"`
	Slug          string               `json:"slug"`
	PublicKey     string               `json:"public_key"`
	SecretKey     string               `json:"-"`
	IsActive      bool                 `json:"is_active"`
	EmailSettings *EmailSettings       `json:"-"`
	OAuthSettings OAuthSettings        `json:"-"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	DeactivatedAt *time.Time           `json:"deactivated_at,omitempty"`
}

// EmailSettings is the tenant's own outbound email provider
type EmailSettings struct {
	Provider        string `json:"provider"`
	FromAddress     string `json:"from_address"`
	FromName        string `json:"from_name"`
	Region          string `json:"region,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// ProviderConfig converts the settings for the notifx provider factory
func (e EmailSettings) ProviderConfig() notifx.ProviderConfig {
	return notifx.ProviderConfig{
		Provider:        e.Provider,
		FromAddress:     e.FromAddress,
		FromName:        e.FromName,
		Region:          e.Region,
		AccessKeyID:     e.AccessKeyID,
		SecretAccessKey: e.SecretAccessKey,
	}
}

// OAuthProviderSettings configures one external identity provider
type OAuthProviderSettings struct {
	Enabled      bool   `json:"enabled"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// OAuthSettings maps a provider to its settings
type OAuthSettings map[iam.OAuthProvider]OAuthProviderSettings

// NewApplication creates an active application with fresh keys
func NewApplication(name, slug string, keys KeyPair, now time.Time) *Application {
	return &Application{
		ID:            kernel.NewApplicationID(),
		Name:          strings.TrimSpace(name),
		Slug:          slug,
		PublicKey:     keys.PublicKey,
		SecretKey:     keys.SecretKey,
		IsActive:      true,
		OAuthSettings: OAuthSettings{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Deactivate is a soft transition; the application keeps its data
func (a *Application) Deactivate(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	a.IsActive = false
	a.DeactivatedAt = &now
	a.UpdatedAt = now
	return true
}

func (a *Application) Activate(now time.Time) bool {
	if a.IsActive {
		return false
	}
	a.IsActive = true
	a.DeactivatedAt = nil
	a.UpdatedAt = now
	return true
}

// RotateSecret replaces the secret key. The public key is unchanged.
func (a *Application) RotateSecret(secretKey string, now time.Time) {
	a.SecretKey = secretKey
	a.UpdatedAt = now
}

func (a *Application) SetEmailSettings(settings EmailSettings, now time.Time) {
	a.EmailSettings = &settings
	a.UpdatedAt = now
}

// SetOAuthProvider stores settings for provider. An empty ClientSecret keeps
// the stored one, so callers can toggle a provider without resending it.
func (a *Application) SetOAuthProvider(provider iam.OAuthProvider, settings OAuthProviderSettings, now time.Time) {
	if a.OAuthSettings == nil {
		a.OAuthSettings = OAuthSettings{}
	}
	if settings.ClientSecret == "" {
		settings.ClientSecret = a.OAuthSettings[provider].ClientSecret
	}
	a.OAuthSettings[provider] = settings
	a.UpdatedAt = now
}

// TenantContext is the projection attached to resolved requests
func (a *Application) TenantContext() kernel.TenantContext {
	return kernel.TenantContext{
		ApplicationID: a.ID,
		PublicKey:     a.PublicKey,
		Name:          a.Name,
		Slug:          a.Slug,
		IsActive:      a.IsActive,
	}
}

func (a *Application) ToDTO() ApplicationDTO {
	dto := ApplicationDTO{
		ID:             a.ID,
		Name:           a.Name,
		Slug:           a.Slug,
		PublicKey:      a.PublicKey,
		IsActive:       a.IsActive,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		DeactivatedAt:  a.DeactivatedAt,
		OAuthProviders: make(map[iam.OAuthProvider]OAuthProviderDTO, len(a.OAuthSettings)),
	}
	if a.EmailSettings != nil {
		dto.Email = &EmailSettingsDTO{
			Provider:    a.EmailSettings.Provider,
			FromAddress: a.EmailSettings.FromAddress,
			FromName:    a.EmailSettings.FromName,
			Region:      a.EmailSettings.Region,
			HasSecret:   a.EmailSettings.SecretAccessKey != "",
		}
	}
	for provider, s := range a.OAuthSettings {
		dto.OAuthProviders[provider] = OAuthProviderDTO{
			Enabled:         s.Enabled,
			ClientID:        s.ClientID,
			HasClientSecret: s.ClientSecret != "",
		}
	}
	return dto
}

// ============================================================================
// Keys
// ============================================================================

// KeyPair is the public/secret pair issued to a tenant
type KeyPair struct {
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}

// GenerateKeys draws both keys independently from crypto/rand
func GenerateKeys() (KeyPair, error) {
	public, err := randomBase62(publicKeyLength)
	if err != nil {
		return KeyPair{}, err
	}
	secret, err := GenerateSecretKey()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: PublicKeyPrefix + public, SecretKey: secret}, nil
}

// GenerateSecretKey draws a new secret key
func GenerateSecretKey() (string, error) {
	secret, err := randomBase62(secretKeyLength)
	if err != nil {
		return "", err
	}
	return SecretKeyPrefix + secret, nil
}

func randomBase62(n int) (string, error) {
	alphabetLen := big.NewInt(int64(len(base62Alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", errx.Wrap(err, "failed to generate key", errx.TypeInternal)
		}
		out[i] = base62Alphabet[idx.Int64()]
	}
	return string(out), nil
}

// Mask renders a secret as sk_ followed by twelve dots and its last four
// characters. Absent or short secrets get a fixed placeholder.
func Mask(secretKey string) string {
	chars := []rune(secretKey)
	if len(chars) < minMaskableLen {
		return maskedPrefix + strings.Repeat("•", placeholderDots)
	}
	return maskedPrefix + strings.Repeat("•", maskedDotCount) + string(chars[len(chars)-maskVisibleChars:])
}

// ============================================================================
// Slugs
// ============================================================================

// Slugify lowercases, folds accents and keeps [a-z0-9-]
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "app"
	}
	return slug
}

// ============================================================================
// DTOs
// ============================================================================

type ApplicationDTO struct {
	ID             kernel.ApplicationID                   `json:"id"`
	Name           string                                 `json:"name"`
	Slug           string                                 `json:"slug"`
	PublicKey      string                                 `json:"public_key"`
	IsActive       bool                                   `json:"is_active"`
	Email          *EmailSettingsDTO                      `json:"email_settings,omitempty"`
	OAuthProviders map[iam.OAuthProvider]OAuthProviderDTO `json:"oauth_providers"`
	CreatedAt      time.Time                              `json:"created_at"`
	UpdatedAt      time.Time                              `json:"updated_at"`
	DeactivatedAt  *time.Time                             `json:"deactivated_at,omitempty"`
}

type EmailSettingsDTO struct {
	Provider    string `json:"provider"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	Region      string `json:"region,omitempty"`
	HasSecret   bool   `json:"has_secret"`
}

type OAuthProviderDTO struct {
	Enabled         bool   `json:"enabled"`
	ClientID        string `json:"client_id"`
	HasClientSecret bool   `json:"has_client_secret"`
}

// KeysDTO shows the public key in full and the secret only masked
type KeysDTO struct {
	PublicKey       string `json:"public_key"`
	MaskedSecretKey string `json:"masked_secret_key"`
}

// CreatedApplicationDTO is the only response that carries the full secret
type CreatedApplicationDTO struct {
	Application ApplicationDTO `json:"application"`
	SecretKey   string         `json:"secret_key"`
	Message     string         `json:"message"`
}

type CreateApplicationRequest struct {
	Name string `json:"name"`
}

func (r CreateApplicationRequest) Validate() error {
	return errx.NewValidator().
		Required("name", r.Name).
		MaxLength("name", r.Name, 100).
		Err()
}

type UpdateEmailSettingsRequest struct {
	Provider        string `json:"provider"`
	FromAddress     string `json:"from_address"`
	FromName        string `json:"from_name"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

func (r UpdateEmailSettingsRequest) Settings() EmailSettings {
	return EmailSettings{
		Provider:        strings.ToLower(strings.TrimSpace(r.Provider)),
		FromAddress:     r.FromAddress,
		FromName:        r.FromName,
		Region:          r.Region,
		AccessKeyID:     r.AccessKeyID,
		SecretAccessKey: r.SecretAccessKey,
	}
}

func (r UpdateEmailSettingsRequest) Validate() error {
	provider := r.Settings().ProviderConfig().Normalized()
	v := errx.NewValidator().
		OneOf("provider", provider, notifx.ProviderConsole, notifx.ProviderSES).
		Email("from_address", r.FromAddress)
	if provider == notifx.ProviderSES {
		v.Required("region", r.Region)
	}
	return v.Err()
}

type UpdateOAuthProviderRequest struct {
	Enabled      bool   `json:"enabled"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (r UpdateOAuthProviderRequest) Validate() error {
	v := errx.NewValidator()
	if r.Enabled {
		v.Required("client_id", r.ClientID)
	}
	return v.Err()
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("APPLICATION")

var (
	CodeNotFound         = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Application not found")
	CodeSlugTaken        = ErrRegistry.Register("SLUG_TAKEN", errx.TypeConflict, http.StatusConflict, "Application slug already exists")
	CodeInvalidTenantKey = ErrRegistry.Register("INVALID_TENANT_KEY", errx.TypeAuthorization, http.StatusUnauthorized, "Missing or invalid application key")
	CodeInactive         = ErrRegistry.Register("INACTIVE", errx.TypeForbidden, http.StatusForbidden, "Application is inactive")
	CodeInvalidSecretKey = ErrRegistry.Register("INVALID_SECRET_KEY", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid application secret key")
	CodeInvalidProvider  = ErrRegistry.Register("INVALID_PROVIDER", errx.TypeValidation, http.StatusBadRequest, "Unsupported OAuth provider")
)

func ErrNotFound() *errx.Error {
	return ErrRegistry.New(CodeNotFound)
}

func ErrSlugTaken() *errx.Error {
	return ErrRegistry.New(CodeSlugTaken)
}

func ErrInvalidTenantKey() *errx.Error {
	return ErrRegistry.New(CodeInvalidTenantKey)
}

func ErrInactive() *errx.Error {
	return ErrRegistry.New(CodeInactive)
}

func ErrInvalidSecretKey() *errx.Error {
	return ErrRegistry.New(CodeInvalidSecretKey)
}

func ErrInvalidProvider(provider string) *errx.Error {
	return ErrRegistry.New(CodeInvalidProvider).WithDetail("provider", provider)
}
