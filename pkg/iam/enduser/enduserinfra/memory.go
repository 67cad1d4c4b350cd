package enduserinfra

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// MemoryUserRepository keeps end users in process memory
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[kernel.UserID]enduser.EndUser
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[kernel.UserID]enduser.EndUser)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *enduser.EndUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.ApplicationID == user.ApplicationID && existing.Email == user.Email {
			return enduser.ErrEmailTaken()
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, appID kernel.ApplicationID, id kernel.UserID) (*enduser.EndUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok || u.ApplicationID != appID {
		return nil, enduser.ErrNotFound()
	}
	return &u, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, appID kernel.ApplicationID, email string) (*enduser.EndUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = enduser.NormalizeEmail(email)
	for _, u := range r.users {
		if u.ApplicationID == appID && u.Email == email {
			return &u, nil
		}
	}
	return nil, enduser.ErrNotFound()
}

func (r *MemoryUserRepository) UpdateLastLogin(_ context.Context, appID kernel.ApplicationID, id kernel.UserID, at time.Time) error {
	return r.update(appID, id, func(u *enduser.EndUser) {
		u.LastLoginAt = &at
		u.UpdatedAt = at
	})
}

func (r *MemoryUserRepository) UpdatePasswordHash(_ context.Context, appID kernel.ApplicationID, id kernel.UserID, hash password.HashedPassword) error {
	return r.update(appID, id, func(u *enduser.EndUser) {
		u.PasswordHash = hash
	})
}

func (r *MemoryUserRepository) MarkEmailVerified(_ context.Context, appID kernel.ApplicationID, id kernel.UserID, at time.Time) error {
	return r.update(appID, id, func(u *enduser.EndUser) {
		u.IsEmailVerified = true
		u.UpdatedAt = at
	})
}

func (r *MemoryUserRepository) update(appID kernel.ApplicationID, id kernel.UserID, change func(*enduser.EndUser)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.ApplicationID != appID {
		return enduser.ErrNotFound()
	}
	change(&u)
	r.users[id] = u
	return nil
}
