package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
)

// CleanupService periodically deletes expired refresh-token records
type CleanupService struct {
	repo     auth.TokenRepository
	interval time.Duration
}

func NewCleanupService(repo auth.TokenRepository, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{repo: repo, interval: interval}
}

// Start runs until ctx is cancelled
func (s *CleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logx.WithField("interval", s.interval.String()).Info("Refresh token cleanup started")

	for {
		select {
		case <-ctx.Done():
			logx.Info("Refresh token cleanup stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce deletes everything that expired before now
func (s *CleanupService) RunOnce(ctx context.Context) int64 {
	deleted, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		logx.WithError(err).Error("Refresh token cleanup failed")
		return 0
	}
	if deleted > 0 {
		logx.WithField("deleted", deleted).Info("Expired refresh tokens removed")
	}
	return deleted
}
