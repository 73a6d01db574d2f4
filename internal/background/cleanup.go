package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/traintrack/gatekeeper/internal/repositories"
)

// blacklistGraceRetention keeps expired finite ban entries around for a
// while after expiry. Operators frequently inspect the ban history of a
// recently unbanned account.
const blacklistGraceRetention = 90 * 24 * time.Hour

// CleanupManager periodically removes expired login attempt audit rows
// and long-expired finite blacklist entries from the database
type CleanupManager struct {
	attemptRepo   *repositories.LoginAttemptRepository
	blacklistRepo *repositories.BlacklistRepository
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attemptRepo *repositories.LoginAttemptRepository,
	blacklistRepo *repositories.BlacklistRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attemptRepo:   attemptRepo,
		blacklistRepo: blacklistRepo,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes expired audit rows and stale ban entries
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting retention cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attemptsDeleted, err := cm.attemptRepo.DeleteExpiredAttempts(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired login attempts", slog.Any("error", err))
	} else if attemptsDeleted > 0 {
		cm.logger.Info("expired login attempt cleanup completed", slog.Int64("rows_deleted", attemptsDeleted))
	}

	bansDeleted, err := cm.blacklistRepo.DeleteExpired(cleanupCtx, time.Now().Add(-blacklistGraceRetention))
	if err != nil {
		cm.logger.Error("failed to cleanup expired blacklist entries", slog.Any("error", err))
	} else if bansDeleted > 0 {
		cm.logger.Info("expired blacklist cleanup completed", slog.Int64("rows_deleted", bansDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
