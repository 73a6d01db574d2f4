package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/traintrack/gatekeeper/internal/models"
	pkglogger "github.com/traintrack/gatekeeper/pkg/logger"
)

// BlacklistRepository defines the storage contract for ban entries.
// Create and UpdatePeriod enforce the non-overlap invariant atomically;
// they return *models.OverlapError on conflict.
type BlacklistRepository interface {
	Create(ctx context.Context, entry *models.BlacklistEntry) (*models.BlacklistEntry, error)
	UpdatePeriod(ctx context.Context, id string, activeFrom time.Time, activeTo *time.Time) (*models.BlacklistEntry, error)
	GetByID(ctx context.Context, id string) (*models.BlacklistEntry, error)
	ListByEmail(ctx context.Context, email string) ([]*models.BlacklistEntry, error)
	List(ctx context.Context, limit, offset int) ([]*models.BlacklistEntry, error)
	Delete(ctx context.Context, id string) error
	ActiveEntry(ctx context.Context, email string, at time.Time) (*models.BlacklistEntry, error)
	IsBlacklisted(ctx context.Context, email string, at time.Time) (bool, error)
}

// BlacklistService handles ban-registry business logic: input validation,
// email normalization, and audit logging of admin actions. The overlap
// invariant itself is enforced by the repository transaction.
type BlacklistService struct {
	repo        BlacklistRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewBlacklistService creates a new BlacklistService
func NewBlacklistService(repo BlacklistRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *BlacklistService {
	return &BlacklistService{
		repo:        repo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// validatePeriod rejects zero-extent or inverted periods before they
// reach storage. The data model would simply ignore them in overlap
// scans, but an operator writing one has made a mistake worth surfacing.
func validatePeriod(activeFrom time.Time, activeTo *time.Time) error {
	if activeTo != nil && !activeTo.After(activeFrom) {
		return fmt.Errorf("%w: active_to must be after active_from", models.ErrValidation)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", models.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: malformed email address", models.ErrValidation)
	}
	return nil
}

// Create bans an email for [activeFrom, activeTo); a zero activeFrom
// defaults to now and a nil activeTo means permanent.
func (s *BlacklistService) Create(ctx context.Context, email string, activeFrom time.Time, activeTo *time.Time, createdBy *string) (*models.BlacklistEntry, error) {
	email = models.NormalizeEmail(email)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if activeFrom.IsZero() {
		activeFrom = time.Now()
	}
	if err := validatePeriod(activeFrom, activeTo); err != nil {
		return nil, err
	}

	entry := &models.BlacklistEntry{
		Email:      email,
		ActiveFrom: activeFrom,
		ActiveTo:   activeTo,
		CreatedBy:  createdBy,
	}

	created, err := s.repo.Create(ctx, entry)
	if err != nil {
		var overlapErr *models.OverlapError
		if errors.As(err, &overlapErr) {
			s.logger.Info("blacklist create rejected: overlapping period",
				slog.String("conflict_id", overlapErr.ConflictID))
			return nil, err
		}
		s.logger.Error("failed to create blacklist entry", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	adminID := ""
	if createdBy != nil {
		adminID = *createdBy
	}
	s.auditLogger.LogBlacklistAction("blacklist_entry_created", adminID, created.ID, map[string]string{
		"active_from": created.ActiveFrom.Format(time.RFC3339),
		"permanent":   fmt.Sprintf("%t", created.Permanent()),
	})

	return created, nil
}

// UpdatePeriod extends or shortens an entry's ban period. Shortening an
// entry's active_to to now is the standard unban.
func (s *BlacklistService) UpdatePeriod(ctx context.Context, id string, activeFrom time.Time, activeTo *time.Time, updatedBy string) (*models.BlacklistEntry, error) {
	if err := validatePeriod(activeFrom, activeTo); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePeriod(ctx, id, activeFrom, activeTo)
	if err != nil {
		var overlapErr *models.OverlapError
		if errors.As(err, &overlapErr) {
			s.logger.Info("blacklist update rejected: overlapping period",
				slog.String("entry_id", id),
				slog.String("conflict_id", overlapErr.ConflictID))
			return nil, err
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update blacklist entry", slog.String("entry_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogBlacklistAction("blacklist_entry_updated", updatedBy, id, map[string]string{
		"active_from": updated.ActiveFrom.Format(time.RFC3339),
		"permanent":   fmt.Sprintf("%t", updated.Permanent()),
	})

	return updated, nil
}

// Delete removes a ban entry entirely
func (s *BlacklistService) Delete(ctx context.Context, id, deletedBy string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete blacklist entry", slog.String("entry_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogBlacklistAction("blacklist_entry_deleted", deletedBy, id, nil)
	return nil
}

// GetByID returns a single entry
func (s *BlacklistService) GetByID(ctx context.Context, id string) (*models.BlacklistEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get blacklist entry", slog.String("entry_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return entry, nil
}

// List returns entries for the admin view
func (s *BlacklistService) List(ctx context.Context, limit, offset int) ([]*models.BlacklistEntry, error) {
	entries, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list blacklist entries", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return entries, nil
}

// ListByEmail returns every ban period recorded for an email
func (s *BlacklistService) ListByEmail(ctx context.Context, email string) ([]*models.BlacklistEntry, error) {
	entries, err := s.repo.ListByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to list blacklist entries by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return entries, nil
}

// IsBlacklisted reports whether the email is banned at the given instant
func (s *BlacklistService) IsBlacklisted(ctx context.Context, email string, at time.Time) (bool, error) {
	return s.repo.IsBlacklisted(ctx, email, at)
}

// ActiveEntry returns the ban covering the instant, or ErrNotFound
func (s *BlacklistService) ActiveEntry(ctx context.Context, email string, at time.Time) (*models.BlacklistEntry, error) {
	return s.repo.ActiveEntry(ctx, email, at)
}
