package authinfra_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenRepository(t *testing.T) {
	runTokenRepositoryContract(t, func(*testing.T) auth.TokenRepository {
		return authinfra.NewMemoryTokenRepository()
	})
}

func TestMemoryTokenRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := authinfra.NewMemoryTokenRepository()

	live, _ := newRecord(t, "fam", kernel.PrincipalAdmin, "admin-1", time.Hour)
	dead, _ := newRecord(t, "fam", kernel.PrincipalAdmin, "admin-1", time.Minute)
	require.NoError(t, repo.Save(ctx, live))
	require.NoError(t, repo.Save(ctx, dead))

	cleanup := authinfra.NewCleanupService(repo, time.Minute)
	assert.Equal(t, int64(0), cleanup.RunOnce(ctx))

	deleted, err := repo.DeleteExpired(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByHash(ctx, live.TokenHash)
	assert.NoError(t, err)
}
