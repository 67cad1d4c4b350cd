package authinfra

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// MemoryTokenRepository keeps refresh tokens in process. Single-instance deployments and tests.
type MemoryTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]*auth.RefreshToken
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{byHash: make(map[string]*auth.RefreshToken)}
}

func (r *MemoryTokenRepository) Save(_ context.Context, token *auth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *token
	r.byHash[token.TokenHash] = &cp
	return nil
}

func (r *MemoryTokenRepository) FindByHash(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrRefreshTokenNotFound()
	}
	cp := *token
	return &cp, nil
}

func (r *MemoryTokenRepository) Rotate(_ context.Context, oldHash string, next *auth.RefreshToken, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byHash[oldHash]
	if !ok {
		return auth.ErrRefreshTokenNotFound()
	}
	if old.IsRevoked() {
		return auth.ErrRefreshTokenRevoked()
	}
	if old.IsExpired(now) {
		return auth.ErrInvalidOrExpiredRefreshToken()
	}

	revokedAt := now
	old.RevokedAt = &revokedAt
	old.ReplacedByID = next.ID

	cp := *next
	r.byHash[next.TokenHash] = &cp
	return nil
}

func (r *MemoryTokenRepository) RevokeFamily(_ context.Context, familyID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range r.byHash {
		if token.FamilyID == familyID && token.RevokedAt == nil {
			revokedAt := now
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r *MemoryTokenRepository) RevokeAllForPrincipal(_ context.Context, kind kernel.PrincipalKind, principalID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range r.byHash {
		if token.Kind == kind && token.PrincipalID == principalID && token.RevokedAt == nil {
			revokedAt := now
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r *MemoryTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, token := range r.byHash {
		if token.ExpiresAt.Before(before) {
			delete(r.byHash, hash)
			deleted++
		}
	}
	return deleted, nil
}
