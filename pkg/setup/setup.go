package setup

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/notifx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("SETUP")

var (
	CodeIsRequired               = ErrRegistry.Register("IS_REQUIRED", errx.TypeUnavailable, http.StatusServiceUnavailable, "Initial setup has not been completed")
	CodeAlreadyComplete          = ErrRegistry.Register("ALREADY_COMPLETE", errx.TypeConflict, http.StatusConflict, "Setup has already been completed")
	CodeInvalidTransition        = ErrRegistry.Register("INVALID_TRANSITION", errx.TypeBusiness, http.StatusConflict, "Setup steps must advance in order")
	CodeDatabaseConnectionFailed = ErrRegistry.Register("DATABASE_CONNECTION_FAILED", errx.TypeUnavailable, http.StatusServiceUnavailable, "Could not connect to the database")
	CodeProvisioningFailed       = ErrRegistry.Register("PROVISIONING_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to provision the administrator account")
)

func ErrIsRequired() *errx.Error {
	return ErrRegistry.New(CodeIsRequired)
}

func ErrAlreadyComplete() *errx.Error {
	return ErrRegistry.New(CodeAlreadyComplete)
}

func ErrInvalidTransition(from, to Step) *errx.Error {
	return ErrRegistry.New(CodeInvalidTransition).
		WithDetail("from", from).
		WithDetail("to", to)
}

func ErrDatabaseConnectionFailed() *errx.Error {
	return ErrRegistry.New(CodeDatabaseConnectionFailed)
}

func ErrProvisioningFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeProvisioningFailed, cause)
}

// ============================================================================
// Steps
// ============================================================================

// Step is a stage of the setup wizard
type Step string

const (
	StepDatabaseConfiguration Step = "DatabaseConfiguration"
	StepEmailConfiguration    Step = "EmailConfiguration"
	StepAdminAccountCreation  Step = "AdminAccountCreation"
	StepComplete              Step = "Complete"
)

var stepOrder = map[Step]int{
	StepDatabaseConfiguration: 0,
	StepEmailConfiguration:    1,
	StepAdminAccountCreation:  2,
	StepComplete:              3,
}

func (s Step) IsValid() bool {
	_, ok := stepOrder[s]
	return ok
}

func (s Step) String() string { return string(s) }

// Next returns the step that follows s. Complete has no successor.
func (s Step) Next() (Step, bool) {
	switch s {
	case StepDatabaseConfiguration:
		return StepEmailConfiguration, true
	case StepEmailConfiguration:
		return StepAdminAccountCreation, true
	case StepAdminAccountCreation:
		return StepComplete, true
	default:
		return "", false
	}
}

// ============================================================================
// State
// ============================================================================

// State is the persisted singleton. Once IsComplete is true it never changes.
type State struct {
	CurrentStep          Step       `json:"current_step" db:"current_step"`
	IsComplete           bool       `json:"is_complete" db:"is_complete"`
	IsDatabaseConfigured bool       `json:"is_database_configured" db:"is_database_configured"`
	IsEmailConfigured    bool       `json:"is_email_configured" db:"is_email_configured"`
	IsAdminCreated       bool       `json:"is_admin_created" db:"is_admin_created"`
	CompletedAt          *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// NewState returns the state of a fresh deployment
func NewState() State {
	return State{CurrentStep: StepDatabaseConfiguration}
}

// Advance moves to the next step. Going back, skipping ahead, or moving
// past Complete are rejected.
func (s *State) Advance(to Step, now time.Time) error {
	if s.IsComplete {
		return ErrAlreadyComplete()
	}

	next, ok := s.CurrentStep.Next()
	if !ok || next != to {
		return ErrInvalidTransition(s.CurrentStep, to)
	}

	switch s.CurrentStep {
	case StepDatabaseConfiguration:
		s.IsDatabaseConfigured = true
	case StepEmailConfiguration:
		s.IsEmailConfigured = true
	case StepAdminAccountCreation:
		s.IsAdminCreated = true
	}

	s.CurrentStep = to
	s.UpdatedAt = now
	if to == StepComplete {
		s.IsComplete = true
		completedAt := now
		s.CompletedAt = &completedAt
	}
	return nil
}

// Reached reports whether the wizard is at or past step
func (s State) Reached(step Step) bool {
	return stepOrder[s.CurrentStep] >= stepOrder[step]
}

// AdvanceTo walks forward one step at a time until target is reached
func (s *State) AdvanceTo(target Step, now time.Time) error {
	if !target.IsValid() {
		return ErrInvalidTransition(s.CurrentStep, target)
	}
	if stepOrder[target] < stepOrder[s.CurrentStep] {
		return ErrInvalidTransition(s.CurrentStep, target)
	}
	for s.CurrentStep != target {
		next, _ := s.CurrentStep.Next()
		if err := s.Advance(next, now); err != nil {
			return err
		}
	}
	return nil
}

// Progress is the checklist shown by the wizard
type Progress struct {
	IsDatabaseConfigured bool `json:"is_database_configured"`
	IsEmailConfigured    bool `json:"is_email_configured"`
	IsAdminCreated       bool `json:"is_admin_created"`
}

// Status is returned by the setup status query
type Status struct {
	IsSetupRequired bool     `json:"is_setup_required"`
	CurrentStep     Step     `json:"current_step"`
	Progress        Progress `json:"progress"`
}

func (s State) Status() Status {
	return Status{
		IsSetupRequired: !s.IsComplete,
		CurrentStep:     s.CurrentStep,
		Progress: Progress{
			IsDatabaseConfigured: s.IsDatabaseConfigured,
			IsEmailConfigured:    s.IsEmailConfigured,
			IsAdminCreated:       s.IsAdminCreated,
		},
	}
}

// ============================================================================
// Submitted configuration
// ============================================================================

// DatabaseSettings is the connection the wizard tests and persists
type DatabaseSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// DSN renders a postgres connection URL
func (d DatabaseSettings) DSN() string {
	port := d.Port
	if port == 0 {
		port = 5432
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func (d DatabaseSettings) validate(v *errx.Validator) {
	v.Required("database.host", d.Host).
		Required("database.name", d.Name).
		Required("database.user", d.User).
		Check(d.Port >= 0 && d.Port <= 65535, "database.port", "must be a valid port")
	if d.SSLMode != "" {
		v.OneOf("database.ssl_mode", d.SSLMode, "disable", "require", "verify-ca", "verify-full")
	}
}

// EmailSettings is the outbound email provider the wizard tests and persists
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

func (e EmailSettings) validate(v *errx.Validator) {
	provider := e.ProviderConfig().Normalized()
	v.OneOf("email.provider", provider, notifx.ProviderConsole, notifx.ProviderSES).
		Email("email.from_address", e.FromAddress)
	if provider == notifx.ProviderSES {
		v.Required("email.region", e.Region)
	}
}

// AdminSettings is the operator account created at completion
type AdminSettings struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a AdminSettings) validate(v *errx.Validator) {
	v.Email("admin.email", a.Email).
		MinLength("admin.password", a.Password, 8)
}

// CompleteRequest carries everything CompleteSetup needs
type CompleteRequest struct {
	Database DatabaseSettings `json:"database"`
	Email    EmailSettings    `json:"email"`
	Admin    AdminSettings    `json:"admin"`
}

// Validate collects every field problem before anything is touched
func (r CompleteRequest) Validate() error {
	v := errx.NewValidator()
	r.Database.validate(v)
	r.Email.validate(v)
	r.Admin.validate(v)
	return v.Err()
}

// CompleteResult is returned once setup has been persisted
type CompleteResult struct {
	Status          Status `json:"status"`
	RestartRequired bool   `json:"restart_required"`
	Message         string `json:"message"`
}

// ProbeDatabaseRequest is the body of the database connectivity test
type ProbeDatabaseRequest struct {
	Database DatabaseSettings `json:"database"`
}

// ProbeEmailRequest is the body of the email connectivity test
type ProbeEmailRequest struct {
	Email     EmailSettings `json:"email"`
	Recipient string        `json:"recipient"`
}

// ProbeResult reports a connectivity test
type ProbeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
