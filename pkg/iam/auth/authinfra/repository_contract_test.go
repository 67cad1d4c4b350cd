package authinfra_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(t *testing.T, familyID string, kind kernel.PrincipalKind, principalID string, ttl time.Duration) (*auth.RefreshToken, string) {
	t.Helper()
	raw, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)

	now := time.Now()
	rec := &auth.RefreshToken{
		ID:          uuid.NewString(),
		TokenHash:   hash,
		FamilyID:    familyID,
		Kind:        kind,
		PrincipalID: principalID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	if kind == kernel.PrincipalEndUser {
		rec.ApplicationID = "app-1"
	}
	return rec, raw
}

// runTokenRepositoryContract exercises the behaviour every TokenRepository must share
func runTokenRepositoryContract(t *testing.T, newRepo func(t *testing.T) auth.TokenRepository) {
	ctx := context.Background()

	t.Run("save and find", func(t *testing.T) {
		repo := newRepo(t)
		rec, _ := newRecord(t, "fam-1", kernel.PrincipalAdmin, "admin-1", time.Hour)
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.FindByHash(ctx, rec.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.FamilyID, got.FamilyID)
		assert.Nil(t, got.RevokedAt)

		_, err = repo.FindByHash(ctx, "missing")
		assert.True(t, errx.IsCode(err, auth.CodeRefreshTokenNotFound))
	})

	t.Run("rotate once", func(t *testing.T) {
		repo := newRepo(t)
		old, _ := newRecord(t, "fam-2", kernel.PrincipalEndUser, "user-1", time.Hour)
		next, _ := newRecord(t, "fam-2", kernel.PrincipalEndUser, "user-1", time.Hour)
		require.NoError(t, repo.Save(ctx, old))

		require.NoError(t, repo.Rotate(ctx, old.TokenHash, next, time.Now()))

		got, err := repo.FindByHash(ctx, old.TokenHash)
		require.NoError(t, err)
		assert.True(t, got.WasRotated())
		assert.Equal(t, next.ID, got.ReplacedByID)

		again, _ := newRecord(t, "fam-2", kernel.PrincipalEndUser, "user-1", time.Hour)
		err = repo.Rotate(ctx, old.TokenHash, again, time.Now())
		assert.True(t, errx.IsCode(err, auth.CodeRefreshTokenRevoked))
	})

	t.Run("rotate expired", func(t *testing.T) {
		repo := newRepo(t)
		old, _ := newRecord(t, "fam-3", kernel.PrincipalAdmin, "admin-1", time.Minute)
		next, _ := newRecord(t, "fam-3", kernel.PrincipalAdmin, "admin-1", time.Hour)
		require.NoError(t, repo.Save(ctx, old))

		err := repo.Rotate(ctx, old.TokenHash, next, time.Now().Add(2*time.Minute))
		assert.True(t, errx.IsCode(err, auth.CodeInvalidOrExpiredRefreshToken))
	})

	t.Run("concurrent rotate succeeds once", func(t *testing.T) {
		repo := newRepo(t)
		old, _ := newRecord(t, "fam-4", kernel.PrincipalAdmin, "admin-1", time.Hour)
		require.NoError(t, repo.Save(ctx, old))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, _ := newRecord(t, "fam-4", kernel.PrincipalAdmin, "admin-1", time.Hour)
				if repo.Rotate(ctx, old.TokenHash, next, time.Now()) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("revoke family and principal", func(t *testing.T) {
		repo := newRepo(t)
		a, _ := newRecord(t, "fam-5", kernel.PrincipalAdmin, "admin-1", time.Hour)
		b, _ := newRecord(t, "fam-6", kernel.PrincipalAdmin, "admin-1", time.Hour)
		c, _ := newRecord(t, "fam-7", kernel.PrincipalEndUser, "admin-1", time.Hour)
		for _, rec := range []*auth.RefreshToken{a, b, c} {
			require.NoError(t, repo.Save(ctx, rec))
		}

		require.NoError(t, repo.RevokeFamily(ctx, "fam-5", time.Now()))
		got, err := repo.FindByHash(ctx, a.TokenHash)
		require.NoError(t, err)
		assert.True(t, got.IsRevoked())
		assert.False(t, got.WasRotated())

		require.NoError(t, repo.RevokeAllForPrincipal(ctx, kernel.PrincipalAdmin, "admin-1", time.Now()))
		got, err = repo.FindByHash(ctx, b.TokenHash)
		require.NoError(t, err)
		assert.True(t, got.IsRevoked())

		// same id, other kind: untouched
		got, err = repo.FindByHash(ctx, c.TokenHash)
		require.NoError(t, err)
		assert.False(t, got.IsRevoked())
	})
}
