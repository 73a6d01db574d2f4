package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traintrack/gatekeeper/internal/models"
	"github.com/traintrack/gatekeeper/internal/repositories"
)

func setupBlacklistRepo(t *testing.T) (*repositories.BlacklistRepository, *TestDB) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testDB.Teardown(context.Background())
	})

	return repositories.NewBlacklistRepository(testDB.DB), testDB
}

func TestBlacklistRepositoryCreate_EnforcesNonOverlap(t *testing.T) {
	repo, _ := setupBlacklistRepo(t)
	ctx := context.Background()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	first, err := repo.Create(ctx, &models.BlacklistEntry{
		Email:      "spammer@example.com",
		ActiveFrom: from,
		ActiveTo:   &to,
	})
	require.NoError(t, err)

	// Overlapping period is rejected and names the existing entry
	overlapTo := from.AddDate(0, 2, 0)
	_, err = repo.Create(ctx, &models.BlacklistEntry{
		Email:      "spammer@example.com",
		ActiveFrom: from.AddDate(0, 0, 15),
		ActiveTo:   &overlapTo,
	})
	require.Error(t, err)

	var overlapErr *models.OverlapError
	require.ErrorAs(t, err, &overlapErr)
	assert.Equal(t, first.ID, overlapErr.ConflictID)
	assert.ErrorIs(t, err, models.ErrConflict)

	// Adjacent period sharing the boundary instant is fine
	nextTo := to.AddDate(0, 1, 0)
	_, err = repo.Create(ctx, &models.BlacklistEntry{
		Email:      "spammer@example.com",
		ActiveFrom: to,
		ActiveTo:   &nextTo,
	})
	assert.NoError(t, err)
}

func TestBlacklistRepositoryCreate_CaseInsensitiveEmail(t *testing.T) {
	repo, _ := setupBlacklistRepo(t)
	ctx := context.Background()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.Create(ctx, &models.BlacklistEntry{
		Email:      "spammer@example.com",
		ActiveFrom: from,
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.BlacklistEntry{
		Email:      "SPAMMER@Example.COM",
		ActiveFrom: from.AddDate(0, 1, 0),
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestBlacklistRepositoryCreate_ConcurrentWritersSameEmail(t *testing.T) {
	repo, _ := setupBlacklistRepo(t)
	ctx := context.Background()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	// N goroutines race to ban the same email for the same period.
	// Exactly one must win; the rest get overlap conflicts.
	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Create(ctx, &models.BlacklistEntry{
				Email:      "raced@example.com",
				ActiveFrom: from,
				ActiveTo:   &to,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, models.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	entries, err := repo.ListByEmail(ctx, "raced@example.com")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBlacklistRepositoryUpdatePeriod_Unban(t *testing.T) {
	repo, _ := setupBlacklistRepo(t)
	ctx := context.Background()

	from := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)
	entry, err := repo.Create(ctx, &models.BlacklistEntry{
		Email:      "pardoned@example.com",
		ActiveFrom: from,
	})
	require.NoError(t, err)

	banned, err := repo.IsBlacklisted(ctx, "pardoned@example.com", time.Now())
	require.NoError(t, err)
	require.True(t, banned)

	// Standard unban: shorten the permanent ban to end now
	unbanAt := time.Now().UTC().Truncate(time.Second)
	updated, err := repo.UpdatePeriod(ctx, entry.ID, from, &unbanAt)
	require.NoError(t, err)
	require.NotNil(t, updated.ActiveTo)

	banned, err = repo.IsBlacklisted(ctx, "pardoned@example.com", unbanAt.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestBlacklistRepositoryActiveEntry(t *testing.T) {
	repo, _ := setupBlacklistRepo(t)
	ctx := context.Background()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	entry, err := repo.Create(ctx, &models.BlacklistEntry{
		Email:      "spammer@example.com",
		ActiveFrom: from,
		ActiveTo:   &to,
	})
	require.NoError(t, err)

	active, err := repo.ActiveEntry(ctx, "spammer@example.com", from.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, entry.ID, active.ID)

	// End instant is excluded by the half-open interval
	_, err = repo.ActiveEntry(ctx, "spammer@example.com", to)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestBlacklistRepositoryDelete_CreatorRemains(t *testing.T) {
	repo, testDB := setupBlacklistRepo(t)
	ctx := context.Background()

	admin, err := SeedAdminUser(ctx, testDB.Pool, "admin@example.com")
	require.NoError(t, err)

	entry, err := repo.Create(ctx, &models.BlacklistEntry{
		Email:      "spammer@example.com",
		ActiveFrom: time.Now(),
		CreatedBy:  &admin.ID,
	})
	require.NoError(t, err)

	fetched, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.CreatedBy)
	assert.Equal(t, admin.ID, *fetched.CreatedBy)
}
