package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/traintrack/gatekeeper/internal/config"
	"github.com/traintrack/gatekeeper/internal/models"
	"github.com/traintrack/gatekeeper/internal/store"
)

// CounterStore defines the atomic counter primitives the tracker needs.
// Increments must not lose updates under concurrent failures for the
// same key; lock extension must be monotonically forward.
type CounterStore interface {
	IncrAccountFailures(ctx context.Context, account string, window time.Duration) (int64, error)
	IncrIPFailures(ctx context.Context, ip string, window time.Duration) (int64, error)
	AddIPEmail(ctx context.Context, ip, account string, window time.Duration) (int64, error)
	ExtendLock(ctx context.Context, dimension, id string, until time.Time) error
	ClearAccount(ctx context.Context, account string) error
	GetCounts(ctx context.Context, account, ip string) (*store.Counts, error)
}

// LockoutService tracks failed login attempts across three dimensions
// (account, IP total, distinct accounts per IP) and decides whether an
// attempt context is locked out.
//
// Counter-store outages never silently allow unlimited attempts: the
// configured fail policy (closed by default) is applied here, once, for
// every caller.
type LockoutService struct {
	counters CounterStore
	config   config.LockoutConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(counters CounterStore, cfg config.LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		counters: counters,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordFailure increments the account counter (when an identifier is
// known), the IP counter, and the IP's distinct-email set. The three
// updates are independent and best-effort: one failing does not prevent
// the others. Dimensions that cross their threshold get their lock
// extended to now + lockout duration.
func (s *LockoutService) RecordFailure(ctx context.Context, account, ip string) error {
	now := s.now()
	lockUntil := now.Add(s.config.LockoutDuration)

	var firstErr error

	if account != "" {
		count, err := s.counters.IncrAccountFailures(ctx, account, s.config.Window)
		if err != nil {
			s.logger.Error("failed to increment account counter", slog.Any("error", err))
			firstErr = err
		} else if count >= int64(s.config.MaxAccountAttempts) {
			if err := s.counters.ExtendLock(ctx, models.LockoutTypeAccount, account, lockUntil); err != nil {
				s.logger.Error("failed to extend account lock", slog.Any("error", err))
			} else {
				s.logger.Warn("account locked out",
					slog.Int64("failed_attempts", count),
					slog.Time("locked_until", lockUntil))
			}
		}
	}

	count, err := s.counters.IncrIPFailures(ctx, ip, s.config.Window)
	if err != nil {
		s.logger.Error("failed to increment IP counter", slog.String("ip_address", ip), slog.Any("error", err))
		if firstErr == nil {
			firstErr = err
		}
	} else if count >= int64(s.config.MaxIPAttempts) {
		if err := s.counters.ExtendLock(ctx, models.LockoutTypeIP, ip, lockUntil); err != nil {
			s.logger.Error("failed to extend IP lock", slog.Any("error", err))
		} else {
			s.logger.Warn("IP locked out",
				slog.String("ip_address", ip),
				slog.Int64("failed_attempts", count),
				slog.Time("locked_until", lockUntil))
		}
	}

	if account != "" {
		distinct, err := s.counters.AddIPEmail(ctx, ip, account, s.config.Window)
		if err != nil {
			s.logger.Error("failed to record distinct email", slog.String("ip_address", ip), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		} else if distinct >= int64(s.config.MaxIPDistinctEmails) {
			if err := s.counters.ExtendLock(ctx, models.LockoutTypeIPEmail, ip, lockUntil); err != nil {
				s.logger.Error("failed to extend IP distinct-email lock", slog.Any("error", err))
			} else {
				s.logger.Warn("IP locked out for account enumeration",
					slog.String("ip_address", ip),
					slog.Int64("distinct_emails", distinct),
					slog.Time("locked_until", lockUntil))
			}
		}
	}

	if firstErr != nil {
		return models.ErrCounterStoreUnavailable
	}
	return nil
}

// RecordSuccess clears the account counter and lock. IP counters persist:
// a successful login from an abusive IP does not forgive its history.
func (s *LockoutService) RecordSuccess(ctx context.Context, account, ip string) error {
	if account == "" {
		return nil
	}
	if err := s.counters.ClearAccount(ctx, account); err != nil {
		s.logger.Error("failed to clear account counters", slog.Any("error", err))
		return models.ErrCounterStoreUnavailable
	}
	return nil
}

// CheckLockout computes the tracker view for one login context. When the
// counter store is unreachable the configured fail policy is applied:
// fail-open returns a fresh unlocked status (with an alert log),
// fail-closed returns a locked status with no triggering dimension.
func (s *LockoutService) CheckLockout(ctx context.Context, account, ip string) *models.LockoutStatus {
	counts, err := s.counters.GetCounts(ctx, account, ip)
	if err != nil {
		if s.config.FailPolicy == config.FailOpen {
			s.logger.Warn("counter store unreachable, failing open",
				slog.String("ip_address", ip),
				slog.Any("error", err))
			return s.freshStatus()
		}
		s.logger.Error("counter store unreachable, failing closed",
			slog.String("ip_address", ip),
			slog.Any("error", err))
		status := s.freshStatus()
		status.Locked = true
		status.RemainingSeconds = int(math.Ceil(s.config.LockoutDuration.Seconds()))
		return status
	}

	return s.evaluate(counts)
}

// freshStatus is the view of a context with no recorded failures
func (s *LockoutService) freshStatus() *models.LockoutStatus {
	return &models.LockoutStatus{
		RemainingAccountAttempts:  s.config.MaxAccountAttempts,
		RemainingIPAttempts:       s.config.MaxIPAttempts,
		RemainingIPDistinctEmails: s.config.MaxIPDistinctEmails,
	}
}

type dimension struct {
	name       string
	remaining  int
	count      int
	lockExpiry time.Time
}

// evaluate turns raw counts into the lockout decision. The displayed
// lockout type is the dimension with the smallest remaining attempts;
// ties resolve in the order account, ip, ip-email. The remaining time is
// the furthest lock expiry among all triggered dimensions.
func (s *LockoutService) evaluate(counts *store.Counts) *models.LockoutStatus {
	now := s.now()

	dims := []dimension{
		{
			name:       models.LockoutTypeAccount,
			remaining:  remaining(s.config.MaxAccountAttempts, counts.AccountCount),
			count:      int(counts.AccountCount),
			lockExpiry: counts.AccountLockExpiry,
		},
		{
			name:       models.LockoutTypeIP,
			remaining:  remaining(s.config.MaxIPAttempts, counts.IPCount),
			count:      int(counts.IPCount),
			lockExpiry: counts.IPLockExpiry,
		},
		{
			name:       models.LockoutTypeIPEmail,
			remaining:  remaining(s.config.MaxIPDistinctEmails, counts.IPDistinctEmails),
			count:      int(counts.IPDistinctEmails),
			lockExpiry: counts.IPEmailLockExpiry,
		},
	}

	status := &models.LockoutStatus{
		RemainingAccountAttempts:  dims[0].remaining,
		RemainingIPAttempts:       dims[1].remaining,
		RemainingIPDistinctEmails: dims[2].remaining,
		AccountAttemptCount:       dims[0].count,
		IPTotalAttemptCount:       dims[1].count,
		IPDistinctEmailCount:      dims[2].count,
	}

	var latestExpiry time.Time
	triggered := false
	for _, d := range dims {
		if d.lockExpiry.After(now) || d.remaining == 0 {
			triggered = true
			if d.lockExpiry.After(latestExpiry) {
				latestExpiry = d.lockExpiry
			}
		}
	}

	if !triggered {
		return status
	}

	// Smallest remaining wins; strict less keeps earlier dimensions on ties
	winner := dims[0]
	for _, d := range dims[1:] {
		if d.remaining < winner.remaining {
			winner = d
		}
	}

	status.Locked = true
	status.LockoutType = winner.name
	if latestExpiry.After(now) {
		status.RemainingSeconds = int(math.Ceil(latestExpiry.Sub(now).Seconds()))
	} else {
		status.RemainingSeconds = int(math.Ceil(s.config.LockoutDuration.Seconds()))
	}

	return status
}

func remaining(threshold int, count int64) int {
	rem := threshold - int(count)
	if rem < 0 {
		return 0
	}
	return rem
}
