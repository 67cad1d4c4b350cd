package admininfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/database"
	"github.com/Abraxas-365/tenantauth/pkg/iam/admin"
	"github.com/Abraxas-365/tenantauth/pkg/iam/password"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
)

// PostgresProvisioner migrates the database chosen during setup and makes the
// submitted credentials its only admin
type PostgresProvisioner struct{}

func NewPostgresProvisioner() PostgresProvisioner {
	return PostgresProvisioner{}
}

func (PostgresProvisioner) ProvisionAdmin(ctx context.Context, dsn string, email string, hash password.HashedPassword) error {
	if err := database.RunMigrations(dsn); err != nil {
		return err
	}

	db, err := database.Open(ctx, config.DatabaseConfig{URL: dsn, MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	return createAdmin(ctx, NewPostgresAdminRepository(db), email, hash)
}

// RepositoryProvisioner installs the admin in an already prepared repository
type RepositoryProvisioner struct {
	repo admin.AdminRepository
}

func NewRepositoryProvisioner(repo admin.AdminRepository) RepositoryProvisioner {
	return RepositoryProvisioner{repo: repo}
}

func (p RepositoryProvisioner) ProvisionAdmin(ctx context.Context, _ string, email string, hash password.HashedPassword) error {
	return createAdmin(ctx, p.repo, email, hash)
}

func createAdmin(ctx context.Context, repo admin.AdminRepository, email string, hash password.HashedPassword) error {
	removed, err := repo.ReplaceAll(ctx, admin.NewAdmin(email, hash, time.Now().UTC()))
	if err != nil {
		return err
	}
	if removed > 0 {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"email":   email,
			"removed": removed,
		}).Warn("Replaced admin left by an earlier setup attempt")
	}
	return nil
}
