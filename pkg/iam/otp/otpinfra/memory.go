package otpinfra

import (
	"context"
	"sync"

	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// MemoryRepository keeps codes in process memory. Expired codes are replaced
// on the next Save for the same key.
type MemoryRepository struct {
	mu    sync.Mutex
	codes map[string]otp.OTP
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{codes: make(map[string]otp.OTP)}
}

func (r *MemoryRepository) Save(_ context.Context, code *otp.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[codeKey(code.ApplicationID, code.Contact, code.Purpose)] = *code
	return nil
}

func (r *MemoryRepository) FindLatest(_ context.Context, appID kernel.ApplicationID, contact string, purpose otp.Purpose) (*otp.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[codeKey(appID, contact, purpose)]
	if !ok {
		return nil, otp.ErrNotFound()
	}
	return &code, nil
}

func (r *MemoryRepository) Update(_ context.Context, code *otp.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := codeKey(code.ApplicationID, code.Contact, code.Purpose)
	existing, ok := r.codes[key]
	if !ok || existing.ID != code.ID {
		return otp.ErrNotFound()
	}
	r.codes[key] = *code
	return nil
}

func codeKey(appID kernel.ApplicationID, contact string, purpose otp.Purpose) string {
	return string(purpose) + ":" + appID.String() + ":" + otp.NormalizeContact(contact)
}
