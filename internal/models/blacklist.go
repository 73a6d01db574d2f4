package models

import (
	"strings"
	"time"
)

// BlacklistEntry represents a time-bounded (or permanent) ban on an email
// address. The ban is active during the half-open interval
// [ActiveFrom, ActiveTo); a nil ActiveTo means the ban never expires.
type BlacklistEntry struct {
	ID         string
	Email      string // stored lowercased; comparisons are case-insensitive
	ActiveFrom time.Time
	ActiveTo   *time.Time
	CreatedBy  *string // admin user id; nil when the creator was deleted
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NormalizeEmail lowercases and trims an email for case-insensitive matching
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ActiveAt reports whether the ban is in effect at the given instant
func (e *BlacklistEntry) ActiveAt(at time.Time) bool {
	if e.Degenerate() {
		return false
	}
	if at.Before(e.ActiveFrom) {
		return false
	}
	return e.ActiveTo == nil || at.Before(*e.ActiveTo)
}

// Permanent reports whether the ban has no end
func (e *BlacklistEntry) Permanent() bool {
	return e.ActiveTo == nil
}

// Degenerate reports whether the entry has no active extent
// (active_to <= active_from). Degenerate entries are excluded from
// overlap scans; input validation rejects them before they are written.
func (e *BlacklistEntry) Degenerate() bool {
	return e.ActiveTo != nil && !e.ActiveTo.After(e.ActiveFrom)
}

// Overlaps reports whether two ban periods intersect, treating a nil end
// as +infinity: [a1,a2) and [b1,b2) overlap iff a1 < b2 and b1 < a2.
// A degenerate period never overlaps anything.
func (e *BlacklistEntry) Overlaps(other *BlacklistEntry) bool {
	if e.Degenerate() || other.Degenerate() {
		return false
	}
	if e.ActiveTo != nil && !other.ActiveFrom.Before(*e.ActiveTo) {
		return false
	}
	if other.ActiveTo != nil && !e.ActiveFrom.Before(*other.ActiveTo) {
		return false
	}
	return true
}
