package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/traintrack/gatekeeper/internal/config"
	"github.com/traintrack/gatekeeper/internal/models"
	pkglogger "github.com/traintrack/gatekeeper/pkg/logger"
)

// BlacklistChecker is the read side of the ban registry
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, email string, at time.Time) (bool, error)
	ActiveEntry(ctx context.Context, email string, at time.Time) (*models.BlacklistEntry, error)
}

// LockoutTracker is the attempt-tracker contract the decision engine composes
type LockoutTracker interface {
	RecordFailure(ctx context.Context, account, ip string) error
	RecordSuccess(ctx context.Context, account, ip string) error
	CheckLockout(ctx context.Context, account, ip string) *models.LockoutStatus
}

// AttemptLog appends audit rows for recorded outcomes
type AttemptLog interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// LoginService is the admission-control decision engine. It composes the
// blacklist registry and the attempt tracker: a blacklisted email is
// denied before any counter is consulted, then lockout state decides.
// The external authentication service performs credential checks only
// for attempts this service allows.
type LoginService struct {
	blacklist   BlacklistChecker
	lockout     LockoutTracker
	attemptLog  AttemptLog
	config      config.LockoutConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewLoginService creates a new LoginService
func NewLoginService(blacklist BlacklistChecker, lockout LockoutTracker, attemptLog AttemptLog, cfg config.LockoutConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LoginService {
	return &LoginService{
		blacklist:   blacklist,
		lockout:     lockout,
		attemptLog:  attemptLog,
		config:      cfg,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// EvaluateLogin decides whether a login attempt may proceed.
//
// Blacklist first: a banned email is denied regardless of counters, with
// a retry hint for finite bans (permanent bans carry none). The caller's
// user-facing message must stay generic; ban existence is not revealed
// to the banned party. Then the attempt tracker: any locked dimension
// denies with its name and countdown.
func (s *LoginService) EvaluateLogin(ctx context.Context, email, ip string) (*models.LoginDecision, error) {
	account := models.NormalizeEmail(email)
	now := s.now()

	banned, err := s.blacklist.IsBlacklisted(ctx, account, now)
	if err != nil {
		// Registry outages follow the same global fail policy as the
		// counter store
		if s.config.FailPolicy == config.FailOpen {
			s.logger.Warn("blacklist check failed, failing open", slog.Any("error", err))
		} else {
			s.logger.Error("blacklist check failed, failing closed", slog.Any("error", err))
			return &models.LoginDecision{
				Allowed: false,
				Reason:  models.DenyReasonUnavailable,
			}, nil
		}
	}

	if banned {
		decision := &models.LoginDecision{
			Allowed: false,
			Reason:  models.DenyReasonBlacklisted,
		}

		entry, err := s.blacklist.ActiveEntry(ctx, account, now)
		if err == nil && !entry.Permanent() {
			decision.RetryAfterSeconds = int(math.Ceil(entry.ActiveTo.Sub(now).Seconds()))
		} else if err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load active blacklist entry", slog.Any("error", err))
		}

		s.auditLogger.LogLoginDecision(pkglogger.AuditEvent{
			EventType:     "login_denied",
			IPAddress:     ip,
			FailureReason: models.DenyReasonBlacklisted,
		})
		return decision, nil
	}

	status := s.lockout.CheckLockout(ctx, account, ip)
	if status.Locked {
		reason := status.LockoutType
		if reason == "" {
			reason = models.DenyReasonUnavailable
		}

		s.auditLogger.LogLoginDecision(pkglogger.AuditEvent{
			EventType:     "login_denied",
			IPAddress:     ip,
			FailureReason: reason,
		})
		return &models.LoginDecision{
			Allowed:           false,
			Reason:            reason,
			RetryAfterSeconds: status.RemainingSeconds,
			Status:            status,
		}, nil
	}

	return &models.LoginDecision{Allowed: true, Status: status}, nil
}

// CheckLockout exposes the raw tracker view for the attempt-counter and
// countdown UI
func (s *LoginService) CheckLockout(ctx context.Context, email, ip string) *models.LockoutStatus {
	return s.lockout.CheckLockout(ctx, models.NormalizeEmail(email), ip)
}

// RecordFailure is invoked by the authentication collaborator after a
// failed credential check. Counters update first; the audit row is
// best-effort and never blocks the tracker.
func (s *LoginService) RecordFailure(ctx context.Context, email, ip, reason string) error {
	account := models.NormalizeEmail(email)

	err := s.lockout.RecordFailure(ctx, account, ip)

	s.appendAudit(ctx, account, ip, false, reason)
	s.auditLogger.LogLoginDecision(pkglogger.AuditEvent{
		EventType:     "login_failure_recorded",
		IPAddress:     ip,
		FailureReason: reason,
	})

	return err
}

// RecordSuccess clears account-scoped counters after a successful login.
// Blacklist entries are admin-managed and untouched by attempt outcomes.
func (s *LoginService) RecordSuccess(ctx context.Context, email, ip string) error {
	account := models.NormalizeEmail(email)

	err := s.lockout.RecordSuccess(ctx, account, ip)

	s.appendAudit(ctx, account, ip, true, "")
	s.auditLogger.LogLoginDecision(pkglogger.AuditEvent{
		EventType: "login_success_recorded",
		IPAddress: ip,
		Success:   true,
	})

	return err
}

func (s *LoginService) appendAudit(ctx context.Context, account, ip string, success bool, reason string) {
	attempt := &models.LoginAttempt{
		IPAddress:   ip,
		Success:     success,
		AttemptTime: s.now(),
		ExpiresAt:   s.now().Add(s.config.AttemptRetention),
	}
	if account != "" {
		attempt.Email = &account
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}

	if err := s.attemptLog.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to append login attempt audit row", slog.Any("error", err))
	}
}
