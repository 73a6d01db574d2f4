package services_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traintrack/gatekeeper/internal/config"
	"github.com/traintrack/gatekeeper/internal/models"
	"github.com/traintrack/gatekeeper/internal/services"
	"github.com/traintrack/gatekeeper/internal/store"
)

// MockCounterStore implements CounterStore in memory for testing
type MockCounterStore struct {
	mu            sync.Mutex
	accountCounts map[string]int64
	ipCounts      map[string]int64
	ipEmails      map[string]map[string]bool
	lockExpiries  map[string]time.Time
	failAll       bool
}

func NewMockCounterStore() *MockCounterStore {
	return &MockCounterStore{
		accountCounts: make(map[string]int64),
		ipCounts:      make(map[string]int64),
		ipEmails:      make(map[string]map[string]bool),
		lockExpiries:  make(map[string]time.Time),
	}
}

var errMockStoreDown = errors.New("connection refused")

func (m *MockCounterStore) IncrAccountFailures(ctx context.Context, account string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return 0, errMockStoreDown
	}
	m.accountCounts[account]++
	return m.accountCounts[account], nil
}

func (m *MockCounterStore) IncrIPFailures(ctx context.Context, ip string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return 0, errMockStoreDown
	}
	m.ipCounts[ip]++
	return m.ipCounts[ip], nil
}

func (m *MockCounterStore) AddIPEmail(ctx context.Context, ip, account string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return 0, errMockStoreDown
	}
	if m.ipEmails[ip] == nil {
		m.ipEmails[ip] = make(map[string]bool)
	}
	m.ipEmails[ip][account] = true
	return int64(len(m.ipEmails[ip])), nil
}

func (m *MockCounterStore) ExtendLock(ctx context.Context, dimension, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errMockStoreDown
	}
	key := dimension + ":" + id
	if until.After(m.lockExpiries[key]) {
		m.lockExpiries[key] = until
	}
	return nil
}

func (m *MockCounterStore) ClearAccount(ctx context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errMockStoreDown
	}
	delete(m.accountCounts, account)
	delete(m.lockExpiries, models.LockoutTypeAccount+":"+account)
	return nil
}

func (m *MockCounterStore) GetCounts(ctx context.Context, account, ip string) (*store.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errMockStoreDown
	}

	// Locks that have passed read as absent, matching key expiry in the
	// real store
	now := time.Now()
	expiry := func(key string) time.Time {
		e := m.lockExpiries[key]
		if !e.After(now) {
			return time.Time{}
		}
		return e
	}

	return &store.Counts{
		AccountCount:      m.accountCounts[account],
		IPCount:           m.ipCounts[ip],
		IPDistinctEmails:  int64(len(m.ipEmails[ip])),
		AccountLockExpiry: expiry(models.LockoutTypeAccount + ":" + account),
		IPLockExpiry:      expiry(models.LockoutTypeIP + ":" + ip),
		IPEmailLockExpiry: expiry(models.LockoutTypeIPEmail + ":" + ip),
	}, nil
}

func testLockoutConfig() config.LockoutConfig {
	return config.LockoutConfig{
		MaxAccountAttempts:  5,
		MaxIPAttempts:       20,
		MaxIPDistinctEmails: 10,
		LockoutDuration:     15 * time.Minute,
		Window:              15 * time.Minute,
		FailPolicy:          config.FailClosed,
		AttemptRetention:    30 * 24 * time.Hour,
	}
}

func newTestLockoutService(counters services.CounterStore, cfg config.LockoutConfig) *services.LockoutService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewLockoutService(counters, cfg, logger)
}

func TestLockoutServiceCheckLockout_FreshContext(t *testing.T) {
	counters := NewMockCounterStore()
	service := newTestLockoutService(counters, testLockoutConfig())

	status := service.CheckLockout(context.Background(), "alice@example.com", "192.168.1.1")

	assert.False(t, status.Locked)
	assert.Empty(t, status.LockoutType)
	assert.Equal(t, 5, status.RemainingAccountAttempts)
	assert.Equal(t, 20, status.RemainingIPAttempts)
	assert.Equal(t, 10, status.RemainingIPDistinctEmails)
}

func TestLockoutServiceRecordFailure_DecrementsRemaining(t *testing.T) {
	counters := NewMockCounterStore()
	service := newTestLockoutService(counters, testLockoutConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, service.RecordFailure(ctx, "alice@example.com", "192.168.1.1"))
	}

	status := service.CheckLockout(ctx, "alice@example.com", "192.168.1.1")

	assert.False(t, status.Locked)
	assert.Equal(t, 2, status.RemainingAccountAttempts)
	assert.Equal(t, 3, status.AccountAttemptCount)
	assert.Equal(t, 17, status.RemainingIPAttempts)
	// Same account tried repeatedly counts once in the distinct-email set
	assert.Equal(t, 1, status.IPDistinctEmailCount)
}

func TestLockoutServiceRecordFailure_LocksAccountAtThreshold(t *testing.T) {
	counters := NewMockCounterStore()
	cfg := testLockoutConfig()
	service := newTestLockoutService(counters, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.MaxAccountAttempts; i++ {
		require.NoError(t, service.RecordFailure(ctx, "alice@example.com", "192.168.1.1"))
	}

	status := service.CheckLockout(ctx, "alice@example.com", "192.168.1.1")

	assert.True(t, status.Locked)
	assert.Equal(t, models.LockoutTypeAccount, status.LockoutType)
	assert.Equal(t, 0, status.RemainingAccountAttempts)
	assert.Greater(t, status.RemainingSeconds, 0)
	assert.LessOrEqual(t, status.RemainingSeconds, int(cfg.LockoutDuration.Seconds()))
}

func TestLockoutServiceRecordFailure_LocksIPAcrossAccounts(t *testing.T) {
	counters := NewMockCounterStore()
	cfg := testLockoutConfig()
	cfg.MaxIPDistinctEmails = 100 // keep the distinct-email dimension out of the way
	service := newTestLockoutService(counters, cfg)
	ctx := context.Background()

	// 20 failures spread over 4 accounts from one IP
	accounts := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for i := 0; i < cfg.MaxIPAttempts; i++ {
		require.NoError(t, service.RecordFailure(ctx, accounts[i%len(accounts)], "10.0.0.1"))
	}

	// A fifth account from the same IP is locked out too
	status := service.CheckLockout(ctx, "e@example.com", "10.0.0.1")

	assert.True(t, status.Locked)
	assert.Equal(t, models.LockoutTypeIP, status.LockoutType)
	assert.Equal(t, 0, status.RemainingIPAttempts)
	assert.Equal(t, 5, status.RemainingAccountAttempts)
}

func TestLockoutServiceRecordFailure_LocksOnDistinctEmails(t *testing.T) {
	counters := NewMockCounterStore()
	cfg := testLockoutConfig()
	cfg.MaxIPAttempts = 100 // keep the total-failures dimension out of the way
	service := newTestLockoutService(counters, cfg)
	ctx := context.Background()

	// One failure each against 10 different accounts: enumeration pattern
	for i := 0; i < cfg.MaxIPDistinctEmails; i++ {
		email := string(rune('a'+i)) + "@example.com"
		require.NoError(t, service.RecordFailure(ctx, email, "10.0.0.1"))
	}

	status := service.CheckLockout(ctx, "victim@example.com", "10.0.0.1")

	assert.True(t, status.Locked)
	assert.Equal(t, models.LockoutTypeIPEmail, status.LockoutType)
	assert.Equal(t, 0, status.RemainingIPDistinctEmails)
}

func TestLockoutServiceCheckLockout_TieBreakPrefersEarlierDimension(t *testing.T) {
	counters := NewMockCounterStore()
	cfg := testLockoutConfig()
	cfg.MaxIPAttempts = 10
	cfg.MaxIPDistinctEmails = 10
	service := newTestLockoutService(counters, cfg)
	ctx := context.Background()

	// One failure each on 10 distinct accounts exhausts both IP
	// dimensions at once; ip wins the tie over ip-email
	for i := 0; i < 10; i++ {
		email := string(rune('a'+i)) + "@example.com"
		require.NoError(t, service.RecordFailure(ctx, email, "10.0.0.1"))
	}

	status := service.CheckLockout(ctx, "other@example.com", "10.0.0.1")

	assert.True(t, status.Locked)
	assert.Equal(t, 0, status.RemainingIPAttempts)
	assert.Equal(t, 0, status.RemainingIPDistinctEmails)
	assert.Equal(t, models.LockoutTypeIP, status.LockoutType)
}

func TestLockoutServiceRecordSuccess_ClearsAccountOnly(t *testing.T) {
	counters := NewMockCounterStore()
	service := newTestLockoutService(counters, testLockoutConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, service.RecordFailure(ctx, "alice@example.com", "192.168.1.1"))
	}

	require.NoError(t, service.RecordSuccess(ctx, "alice@example.com", "192.168.1.1"))

	status := service.CheckLockout(ctx, "alice@example.com", "192.168.1.1")

	assert.False(t, status.Locked)
	assert.Equal(t, 5, status.RemainingAccountAttempts)
	// IP history is not forgiven by one successful login
	assert.Equal(t, 4, status.IPTotalAttemptCount)
	assert.Equal(t, 16, status.RemainingIPAttempts)
}

func TestLockoutServiceRecordFailure_Concurrent(t *testing.T) {
	counters := NewMockCounterStore()
	cfg := testLockoutConfig()
	cfg.MaxAccountAttempts = 1000
	cfg.MaxIPAttempts = 1000
	service := newTestLockoutService(counters, cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = service.RecordFailure(ctx, "alice@example.com", "192.168.1.1")
		}()
	}
	wg.Wait()

	status := service.CheckLockout(ctx, "alice@example.com", "192.168.1.1")

	// No lost updates
	assert.Equal(t, 50, status.AccountAttemptCount)
	assert.Equal(t, 50, status.IPTotalAttemptCount)
}

func TestLockoutServiceCheckLockout_FailClosed(t *testing.T) {
	counters := NewMockCounterStore()
	counters.failAll = true
	cfg := testLockoutConfig()
	cfg.FailPolicy = config.FailClosed
	service := newTestLockoutService(counters, cfg)

	status := service.CheckLockout(context.Background(), "alice@example.com", "192.168.1.1")

	assert.True(t, status.Locked)
	assert.Empty(t, status.LockoutType)
	assert.Greater(t, status.RemainingSeconds, 0)
}

func TestLockoutServiceCheckLockout_FailOpen(t *testing.T) {
	counters := NewMockCounterStore()
	counters.failAll = true
	cfg := testLockoutConfig()
	cfg.FailPolicy = config.FailOpen
	service := newTestLockoutService(counters, cfg)

	status := service.CheckLockout(context.Background(), "alice@example.com", "192.168.1.1")

	assert.False(t, status.Locked)
	assert.Equal(t, 5, status.RemainingAccountAttempts)
}

func TestLockoutServiceRecordFailure_StoreDown(t *testing.T) {
	counters := NewMockCounterStore()
	counters.failAll = true
	service := newTestLockoutService(counters, testLockoutConfig())

	err := service.RecordFailure(context.Background(), "alice@example.com", "192.168.1.1")

	assert.ErrorIs(t, err, models.ErrCounterStoreUnavailable)
}

func TestLockoutServiceCheckLockout_ExpiredLockReadsFresh(t *testing.T) {
	counters := NewMockCounterStore()
	service := newTestLockoutService(counters, testLockoutConfig())
	ctx := context.Background()

	// A lock that expired in the past, left behind in the store
	counters.mu.Lock()
	counters.lockExpiries[models.LockoutTypeAccount+":alice@example.com"] = time.Now().Add(-time.Minute)
	counters.mu.Unlock()

	status := service.CheckLockout(ctx, "alice@example.com", "192.168.1.1")

	assert.False(t, status.Locked)
	assert.Equal(t, 5, status.RemainingAccountAttempts)
}
