package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrValidation     = errors.New("validation failed")
	ErrInternalServer = errors.New("internal server error")

	// Admission-control errors
	ErrAccountLocked           = errors.New("account is temporarily locked")
	ErrEmailBlacklisted        = errors.New("email is blacklisted")
	ErrCounterStoreUnavailable = errors.New("counter store unavailable")
)

// OverlapError reports a blacklist write whose period conflicts with an
// existing active ban period for the same email. The conflicting entry is
// carried so operators see exactly which record blocked the write.
type OverlapError struct {
	Email              string
	ConflictID         string
	ConflictActiveFrom time.Time
	ConflictActiveTo   *time.Time // nil = unbounded
}

func (e *OverlapError) Error() string {
	if e.ConflictActiveTo == nil {
		return fmt.Sprintf("ban period overlaps entry %s active from %s (permanent)",
			e.ConflictID, e.ConflictActiveFrom.Format(time.RFC3339))
	}
	return fmt.Sprintf("ban period overlaps entry %s active from %s to %s",
		e.ConflictID, e.ConflictActiveFrom.Format(time.RFC3339), e.ConflictActiveTo.Format(time.RFC3339))
}

// Is lets errors.Is(err, models.ErrConflict) match overlap errors
func (e *OverlapError) Is(target error) bool {
	return target == ErrConflict
}
