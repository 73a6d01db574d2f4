package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/traintrack/gatekeeper/internal/database"
	"github.com/traintrack/gatekeeper/internal/models"
)

// BlacklistRepository handles database operations for email ban entries.
//
// Writes run inside a transaction that first takes a per-email advisory
// lock, so the overlap scan and the insert/update are atomic with respect
// to concurrent writers for the same email. Writers for different emails
// hash to different lock keys and do not block each other. Reads use
// plain snapshot queries and never block.
type BlacklistRepository struct {
	db *database.DB
}

// NewBlacklistRepository creates a new BlacklistRepository
func NewBlacklistRepository(db *database.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

const blacklistColumns = `id, email, active_from, active_to, created_by, created_at, updated_at`

// rowScanner interface for scanning blacklist rows (single row or rows iteration)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBlacklistRow(scanner rowScanner) (*models.BlacklistEntry, error) {
	var entry models.BlacklistEntry
	err := scanner.Scan(
		&entry.ID, &entry.Email, &entry.ActiveFrom, &entry.ActiveTo,
		&entry.CreatedBy, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &entry, nil
}

func scanBlacklistRows(rows pgx.Rows) ([]*models.BlacklistEntry, error) {
	defer rows.Close()

	entries := make([]*models.BlacklistEntry, 0)

	for rows.Next() {
		entry, err := scanBlacklistRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// lockEmail serializes same-email writers for the rest of the transaction.
// hashtextextended gives a stable 64-bit key per normalized email.
func lockEmail(ctx context.Context, tx pgx.Tx, email string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, email)
	if err != nil {
		return fmt.Errorf("failed to acquire email lock: %w", err)
	}
	return nil
}

// findOverlap scans existing entries for the email and returns an
// OverlapError if any active period intersects the candidate. Degenerate
// rows (active_to <= active_from) have no active extent and are skipped
// by the query itself. excludeID skips the record being updated, matched
// by identity rather than by value.
func findOverlap(ctx context.Context, tx pgx.Tx, candidate *models.BlacklistEntry, excludeID string) error {
	query := `
		SELECT ` + blacklistColumns + `
		FROM blacklist
		WHERE email = $1
		  AND id <> $2
		  AND (active_to IS NULL OR active_to > active_from)
	`

	rows, err := tx.Query(ctx, query, candidate.Email, excludeID)
	if err != nil {
		return fmt.Errorf("failed to scan for overlapping entries: %w", err)
	}

	existing, err := scanBlacklistRows(rows)
	if err != nil {
		return err
	}

	for _, entry := range existing {
		if candidate.Overlaps(entry) {
			return &models.OverlapError{
				Email:              candidate.Email,
				ConflictID:         entry.ID,
				ConflictActiveFrom: entry.ActiveFrom,
				ConflictActiveTo:   entry.ActiveTo,
			}
		}
	}

	return nil
}

// Create inserts a new ban entry after verifying no active period for the
// same email overlaps. On conflict it returns *models.OverlapError and
// nothing is written.
func (r *BlacklistRepository) Create(ctx context.Context, entry *models.BlacklistEntry) (*models.BlacklistEntry, error) {
	entry.ID = uuid.New().String()
	entry.Email = models.NormalizeEmail(entry.Email)

	now := time.Now()
	if entry.ActiveFrom.IsZero() {
		entry.ActiveFrom = now
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	var created *models.BlacklistEntry
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockEmail(ctx, tx, entry.Email); err != nil {
			return err
		}

		if err := findOverlap(ctx, tx, entry, entry.ID); err != nil {
			return err
		}

		query := `
			INSERT INTO blacklist (id, email, active_from, active_to, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING ` + blacklistColumns + `
		`

		var err error
		created, err = scanBlacklistRow(tx.QueryRow(ctx, query,
			entry.ID, entry.Email, entry.ActiveFrom, entry.ActiveTo,
			entry.CreatedBy, entry.CreatedAt, entry.UpdatedAt,
		))
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// UpdatePeriod changes an entry's active period, running the same overlap
// check as Create with the entry itself excluded from the conflict scan.
func (r *BlacklistRepository) UpdatePeriod(ctx context.Context, id string, activeFrom time.Time, activeTo *time.Time) (*models.BlacklistEntry, error) {
	var updated *models.BlacklistEntry
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		existing, err := scanBlacklistRow(tx.QueryRow(ctx,
			`SELECT `+blacklistColumns+` FROM blacklist WHERE id = $1`, id))
		if err != nil {
			return err
		}

		if err := lockEmail(ctx, tx, existing.Email); err != nil {
			return err
		}

		candidate := &models.BlacklistEntry{
			ID:         existing.ID,
			Email:      existing.Email,
			ActiveFrom: activeFrom,
			ActiveTo:   activeTo,
		}
		if err := findOverlap(ctx, tx, candidate, existing.ID); err != nil {
			return err
		}

		query := `
			UPDATE blacklist SET active_from = $1, active_to = $2, updated_at = $3
			WHERE id = $4
			RETURNING ` + blacklistColumns + `
		`

		updated, err = scanBlacklistRow(tx.QueryRow(ctx, query, activeFrom, activeTo, time.Now(), id))
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// GetByID returns a single entry
func (r *BlacklistRepository) GetByID(ctx context.Context, id string) (*models.BlacklistEntry, error) {
	query := `SELECT ` + blacklistColumns + ` FROM blacklist WHERE id = $1`
	return scanBlacklistRow(r.db.Pool.QueryRow(ctx, query, id))
}

// ListByEmail returns all entries for an email, newest period first
func (r *BlacklistRepository) ListByEmail(ctx context.Context, email string) ([]*models.BlacklistEntry, error) {
	query := `
		SELECT ` + blacklistColumns + ` FROM blacklist
		WHERE email = $1 ORDER BY active_from DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, models.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist entries: %w", err)
	}

	return scanBlacklistRows(rows)
}

// List returns entries ordered by creation time for the admin view
func (r *BlacklistRepository) List(ctx context.Context, limit, offset int) ([]*models.BlacklistEntry, error) {
	query := `
		SELECT ` + blacklistColumns + ` FROM blacklist
		ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist entries: %w", err)
	}

	return scanBlacklistRows(rows)
}

// Delete removes an entry. Removing a period can never introduce an
// overlap, so no email lock is needed.
func (r *BlacklistRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM blacklist WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ActiveEntry returns the entry whose period covers the given instant, or
// ErrNotFound. The overlap invariant guarantees at most one such entry.
func (r *BlacklistRepository) ActiveEntry(ctx context.Context, email string, at time.Time) (*models.BlacklistEntry, error) {
	query := `
		SELECT ` + blacklistColumns + ` FROM blacklist
		WHERE email = $1
		  AND active_from <= $2
		  AND (active_to IS NULL OR active_to > $2)
		  AND (active_to IS NULL OR active_to > active_from)
		LIMIT 1
	`

	return scanBlacklistRow(r.db.Pool.QueryRow(ctx, query, models.NormalizeEmail(email), at))
}

// IsBlacklisted reports whether any ban period covers the given instant
func (r *BlacklistRepository) IsBlacklisted(ctx context.Context, email string, at time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blacklist
			WHERE email = $1
			  AND active_from <= $2
			  AND (active_to IS NULL OR active_to > $2)
			  AND (active_to IS NULL OR active_to > active_from)
		)
	`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, models.NormalizeEmail(email), at).Scan(&exists)
	return exists, err
}

// DeleteExpired purges finite entries whose period ended before the cutoff
func (r *BlacklistRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM blacklist WHERE active_to IS NOT NULL AND active_to <= $1`, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
