// Package iam (Identity and Access Management) provides multi-tenant
// authentication for two populations of principals: the single system
// administrator and the end users of each tenant application.
//
// # Overview
//
// The iam package is organized into several sub-packages that work together:
//
//   - iam/password     - Argon2id hashing and rehash detection
//   - iam/secret       - AES-256-GCM keyring for tenant secrets at rest
//   - iam/auth         - JWT access tokens, rotating refresh tokens, middleware
//   - iam/application  - Tenant applications, key pairs, tenant resolution
//   - iam/admin        - The system administrator account
//   - iam/enduser      - Per-tenant end users
//   - iam/otp          - One-time codes for end user email verification
//   - iam/iamcontainer - Wires the above into routes and background services
//
// # Architecture
//
// Every sub-domain follows the same layering:
//
//	HTTP Handler  →  Service Layer  →  Repository Interface  →  Infrastructure (Postgres/Redis/memory)
//
// Each sub-domain exposes its own error registry (e.g., "AUTH", "APPLICATION",
// "USER", "ADMIN", "OTP") next to its entities and repository interfaces.
//
// # Multi-Tenancy
//
// A tenant is an Application with a public key (pk_live_...) and a secret key
// (sk_live_...). Every tenant-scoped request names its tenant with the
// X-Public-Key header; the TenantMiddleware resolves it before any token is
// looked at. Server-to-server routes additionally require X-Secret-Key, which
// is compared in constant time.
//
// The same email may register under different applications independently.
// End user tokens carry their application id and are rejected under any other
// tenant, or once the application is deactivated.
//
// # Principal Kinds
//
// Access tokens carry a principal kind claim ("knd"): admin or end_user.
// RequireAdmin and RequireEndUser dispatch on it, so an admin token is never
// accepted where an end user token is required and vice versa.
//
// # Setup Gate
//
// Nothing in this package serves traffic until the setup wizard has completed.
// Admin routes run setup.RequireComplete; tenant routes run it inside
// ResolveTenant. Both answer 503 SETUP_IS_REQUIRED until then.
//
// # ──────────────────────────────────────────────────────
// # ENDPOINT REFERENCE
// # ──────────────────────────────────────────────────────
//
// ## Admin Authentication  (registered by AdminAuthHandlers)
//
// ### POST /api/admin/auth/login
//
// Request body:
//
//	{ "email": "admin@example.com", "password": "..." }
//
// Response 200:
//
//	{
//	  "access_token":       "<jwt>",
//	  "refresh_token":      "<opaque>",
//	  "token_type":         "Bearer",
//	  "expires_in":         900,
//	  "access_expires_at":  "...",
//	  "refresh_expires_at": "..."
//	}
//
// Unknown email and wrong password both return 401 IAM_INVALID_CREDENTIALS.
//
// ### POST /api/admin/auth/refresh
//
//	{ "refresh_token": "<opaque>" }
//
// Rotates the refresh token. Presenting an already rotated token revokes the
// whole token family and returns 401 AUTH_INVALID_OR_EXPIRED_REFRESH_TOKEN.
//
// ### POST /api/admin/auth/logout   (admin token)
//
// Revokes every refresh token of the admin. Response 204.
//
// ### GET /api/admin/auth/me   (admin token)
//
// ## Applications  (registered by ApplicationHandlers, admin token)
//
//	POST /api/admin/applications                       create, returns both keys once
//	GET  /api/admin/applications?page=1&page_size=20   newest first, secrets masked
//	GET  /api/admin/applications/:id                   secrets masked
//	GET  /api/admin/applications/:id/keys              public key, masked secret
//	POST /api/admin/applications/:id/deactivate
//	POST /api/admin/applications/:id/activate
//	POST /api/admin/applications/:id/regenerate-secret public key unchanged
//	PUT  /api/admin/applications/:id/email-settings
//	PUT  /api/admin/applications/:id/oauth/:provider   GOOGLE | MICROSOFT | GITHUB
//
// ## End Users  (registered by EndUserHandlers, X-Public-Key required)
//
//	POST /api/v1/auth/register
//	POST /api/v1/auth/login
//	POST /api/v1/auth/refresh
//	POST /api/v1/auth/logout             end user token
//	GET  /api/v1/auth/me                 end user token
//	POST /api/v1/auth/verify-email/send  end user token, emails a 6 digit code
//	POST /api/v1/auth/verify-email       end user token, { "code": "123456" }
//
// Register and login respond with:
//
//	{ "user": { ...EndUserDTO }, "tokens": { ...TokenPair } }
//
// ## Tenant Backends  (X-Public-Key + X-Secret-Key)
//
//	GET /api/v1/server/users/:id
//
// # Token Claims
//
//	{
//	  "sub":   "<principal id>",
//	  "knd":   "end_user",
//	  "app":   "<application id>",   // absent for admin
//	  "email": "jane@example.com",
//	  "iss":   "tenantauth",
//	  "aud":   ["tenantauth-api"],
//	  "exp":   1700000900
//	}
//
// # Storage
//
//   - PostgreSQL - applications, admins, end_users, refresh_tokens
//   - Redis      - refresh tokens, tenant cache, OTP codes and the welcome email queue (optional)
//   - Memory     - used before setup configures a database, and in tests
package iam
