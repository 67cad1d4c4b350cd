package admininfra

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/admin"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// MemoryAdminRepository keeps admins in process memory
type MemoryAdminRepository struct {
	mu     sync.RWMutex
	admins map[kernel.AdminID]admin.Admin
}

func NewMemoryAdminRepository() *MemoryAdminRepository {
	return &MemoryAdminRepository{admins: make(map[kernel.AdminID]admin.Admin)}
}

func (r *MemoryAdminRepository) FindByID(_ context.Context, id kernel.AdminID) (*admin.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.admins[id]
	if !ok {
		return nil, admin.ErrNotFound()
	}
	return &a, nil
}

func (r *MemoryAdminRepository) FindByEmail(_ context.Context, email string) (*admin.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = admin.NormalizeEmail(email)
	for _, a := range r.admins {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, admin.ErrNotFound()
}

func (r *MemoryAdminRepository) ReplaceAll(_ context.Context, a admin.Admin) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := len(r.admins)
	r.admins = map[kernel.AdminID]admin.Admin{a.ID: a}
	return removed, nil
}

func (r *MemoryAdminRepository) UpdateLastLogin(_ context.Context, id kernel.AdminID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.admins[id]
	if !ok {
		return admin.ErrNotFound()
	}
	a.LastLoginAt = &at
	r.admins[id] = a
	return nil
}

func (r *MemoryAdminRepository) UpdatePasswordHash(_ context.Context, id kernel.AdminID, hash password.HashedPassword) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.admins[id]
	if !ok {
		return admin.ErrNotFound()
	}
	a.PasswordHash = hash
	r.admins[id] = a
	return nil
}
