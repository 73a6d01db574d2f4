package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/traintrack/gatekeeper/internal/database"
	"github.com/traintrack/gatekeeper/internal/models"
)

// LoginAttemptRepository persists the audit trail of recorded login
// outcomes. Lockout decisions read the counter store, not this table.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt row
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now()
	}

	query := `
		INSERT INTO login_attempts (id, email, ip_address, success, failure_reason, attempt_time, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.IPAddress,
		attempt.Success,
		attempt.FailureReason,
		attempt.AttemptTime,
		attempt.ExpiresAt,
	)

	return err
}

// ListByIP returns recent attempts from an IP for operator forensics
func (r *LoginAttemptRepository) ListByIP(ctx context.Context, ipAddress string, since time.Time, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, success, failure_reason, attempt_time, expires_at
		FROM login_attempts
		WHERE ip_address = $1 AND attempt_time >= $2
		ORDER BY attempt_time DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, ipAddress, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.IPAddress, &a.Success, &a.FailureReason, &a.AttemptTime, &a.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return attempts, nil
}

// DeleteExpiredAttempts removes attempts past their retention window
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
