package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/traintrack/gatekeeper/internal/models"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "foo@example.com", models.NormalizeEmail("Foo@Example.COM"))
	assert.Equal(t, "foo@example.com", models.NormalizeEmail("  foo@example.com  "))
	assert.Equal(t, "", models.NormalizeEmail("   "))
}

func TestBlacklistEntryActiveAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	entry := &models.BlacklistEntry{
		Email:      "banned@example.com",
		ActiveFrom: from,
		ActiveTo:   timePtr(to),
	}

	// Half-open interval: start inclusive, end exclusive
	assert.False(t, entry.ActiveAt(from.Add(-time.Second)))
	assert.True(t, entry.ActiveAt(from))
	assert.True(t, entry.ActiveAt(from.Add(24*time.Hour)))
	assert.False(t, entry.ActiveAt(to))
	assert.False(t, entry.ActiveAt(to.Add(time.Second)))
}

func TestBlacklistEntryActiveAt_Permanent(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	entry := &models.BlacklistEntry{
		Email:      "banned@example.com",
		ActiveFrom: from,
	}

	assert.True(t, entry.Permanent())
	assert.False(t, entry.ActiveAt(from.Add(-time.Second)))
	assert.True(t, entry.ActiveAt(from))
	assert.True(t, entry.ActiveAt(from.AddDate(100, 0, 0)))
}

func TestBlacklistEntryDegenerate(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	zeroExtent := &models.BlacklistEntry{ActiveFrom: from, ActiveTo: timePtr(from)}
	inverted := &models.BlacklistEntry{ActiveFrom: from, ActiveTo: timePtr(from.Add(-time.Hour))}
	normal := &models.BlacklistEntry{ActiveFrom: from, ActiveTo: timePtr(from.Add(time.Hour))}
	permanent := &models.BlacklistEntry{ActiveFrom: from}

	assert.True(t, zeroExtent.Degenerate())
	assert.True(t, inverted.Degenerate())
	assert.False(t, normal.Degenerate())
	assert.False(t, permanent.Degenerate())

	// Degenerate entries are never active
	assert.False(t, zeroExtent.ActiveAt(from))
	assert.False(t, inverted.ActiveAt(from))
}

func TestBlacklistEntryOverlaps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	period := func(fromDay, toDay int) *models.BlacklistEntry {
		e := &models.BlacklistEntry{ActiveFrom: base.AddDate(0, 0, fromDay)}
		if toDay >= 0 {
			e.ActiveTo = timePtr(base.AddDate(0, 0, toDay))
		}
		return e
	}
	permanent := func(fromDay int) *models.BlacklistEntry {
		return period(fromDay, -1)
	}

	tests := []struct {
		name     string
		a, b     *models.BlacklistEntry
		overlaps bool
	}{
		{"disjoint", period(0, 10), period(20, 30), false},
		{"adjacent half-open boundary", period(0, 10), period(10, 20), false},
		{"partial overlap", period(0, 10), period(5, 15), true},
		{"contained", period(0, 30), period(10, 20), true},
		{"identical", period(0, 10), period(0, 10), true},
		{"permanent covers later finite", permanent(0), period(100, 200), true},
		{"permanent starts after finite ends", period(0, 10), permanent(20), false},
		{"permanent starts inside finite", period(0, 10), permanent(5), true},
		{"two permanents", permanent(0), permanent(50), true},
		{"degenerate never overlaps", period(5, 5), period(0, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, tt.a.Overlaps(tt.b))
			// Overlap is symmetric
			assert.Equal(t, tt.overlaps, tt.b.Overlaps(tt.a))
		})
	}
}
