package kernel

import "context"

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is the authenticated principal attached to a request
type AuthContext struct {
	Kind          PrincipalKind `json:"kind"`
	PrincipalID   string        `json:"principal_id"`
	ApplicationID ApplicationID `json:"application_id,omitempty"`
	Email         string        `json:"email"`
}

// IsValid checks the tag/scope combination: end users always carry a tenant, admins never do
func (ac *AuthContext) IsValid() bool {
	if ac == nil || ac.PrincipalID == "" {
		return false
	}
	switch ac.Kind {
	case PrincipalAdmin:
		return ac.ApplicationID.IsEmpty()
	case PrincipalEndUser:
		return !ac.ApplicationID.IsEmpty()
	default:
		return false
	}
}

func (ac *AuthContext) IsAdmin() bool {
	return ac != nil && ac.Kind == PrincipalAdmin
}

// TenantContext is the minimal projection of a resolved application
type TenantContext struct {
	ApplicationID ApplicationID `json:"application_id"`
	PublicKey     string        `json:"public_key"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	IsActive      bool          `json:"is_active"`
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey stores *AuthContext in fiber locals and context.Context
	AuthContextKey ContextKey = "auth_context"

	// TenantContextKey stores *TenantContext in fiber locals and context.Context
	TenantContextKey ContextKey = "tenant_context"

	// RequestIDKey stores the request id
	RequestIDKey ContextKey = "request_id"
)

func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, TenantContextKey, &tc)
}

func TenantFromContext(ctx context.Context) (*TenantContext, bool) {
	tc, ok := ctx.Value(TenantContextKey).(*TenantContext)
	return tc, ok && tc != nil
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, &ac)
}

func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return ac, ok && ac != nil
}
