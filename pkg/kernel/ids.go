package kernel

import "github.com/google/uuid"

// ApplicationID identifies a tenant application
type ApplicationID string

func NewApplicationID() ApplicationID {
	return ApplicationID(uuid.NewString())
}

func (a ApplicationID) String() string { return string(a) }
func (a ApplicationID) IsEmpty() bool  { return string(a) == "" }

// UserID identifies an end user inside one application
type UserID string

func NewUserID() UserID {
	return UserID(uuid.NewString())
}

func (u UserID) String() string { return string(u) }
func (u UserID) IsEmpty() bool  { return string(u) == "" }

// AdminID identifies the system administrator
type AdminID string

func NewAdminID() AdminID {
	return AdminID(uuid.NewString())
}

func (a AdminID) String() string { return string(a) }
func (a AdminID) IsEmpty() bool  { return string(a) == "" }

// PrincipalKind tags who a credential was issued to
type PrincipalKind string

const (
	PrincipalAdmin   PrincipalKind = "admin"
	PrincipalEndUser PrincipalKind = "end_user"
)

func (k PrincipalKind) IsValid() bool {
	return k == PrincipalAdmin || k == PrincipalEndUser
}

func (k PrincipalKind) String() string { return string(k) }
