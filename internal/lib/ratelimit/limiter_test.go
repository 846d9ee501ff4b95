package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu         sync.Mutex
	counters   map[string]int64
	sets       map[string]map[string]time.Time
	err        error
	releaseErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counters: map[string]int64{}, sets: map[string]map[string]time.Time{}}
}

func (s *memoryStore) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counters[key]++
	return s.counters[key], nil
}

func (s *memoryStore) Acquire(_ context.Context, key, member string, limit int, now time.Time, stale time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = map[string]time.Time{}
		s.sets[key] = set
	}
	for m, at := range set {
		if at.Before(now.Add(-stale)) {
			delete(set, m)
		}
	}
	set[member] = now
	n := int64(len(set))
	if n > int64(limit) {
		delete(set, member)
	}
	return n, nil
}

func (s *memoryStore) Release(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseErr != nil {
		return s.releaseErr
	}
	delete(s.sets[key], member)
	return nil
}

func fixedLimiter(store Store, now time.Time) *Limiter {
	l := NewLimiter(store, Defaults{
		Global: map[Category]RateLimit{
			CategoryIP:   {Limit: 2, Window: 10, ConcurrentLimit: 1},
			CategoryUser: {Limit: 5, Window: 1, ConcurrentLimit: 5},
		},
		Groups: map[string]map[Category]RateLimit{
			"webhooks": {CategoryIP: {Limit: 100, Window: 1}},
		},
	}, time.Minute)
	l.now = func() time.Time { return now }
	return l
}

func TestResolvePrecedence(t *testing.T) {
	defaults := Defaults{
		Global: map[Category]RateLimit{CategoryIP: {Limit: 40, Window: 1}},
		Groups: map[string]map[Category]RateLimit{"issues": {CategoryIP: {Limit: 10, Window: 1}}},
	}
	cfg := &RateLimitConfig{
		Group: "issues",
		LimitOverrides: map[string]map[Category]RateLimit{
			"PUT": {CategoryIP: {Limit: 3, Window: 60}},
		},
	}

	assert.Equal(t, 3, cfg.Resolve("put", CategoryIP, defaults).Limit)
	assert.Equal(t, 10, cfg.Resolve("GET", CategoryIP, defaults).Limit)

	var none *RateLimitConfig
	assert.Equal(t, 40, none.Resolve("GET", CategoryIP, defaults).Limit)
	assert.Equal(t, DefaultGroup, none.GroupName())
}

func TestCheckWindowExceeded(t *testing.T) {
	now := time.Unix(1_000_005, 0)
	l := fixedLimiter(newMemoryStore(), now)
	req := Request{Category: CategoryIP, ID: "10.0.0.1", Method: "GET", Path: "/api/x"}

	for i := 0; i < 2; i++ {
		res, release, err := l.Check(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Exceeded)
		require.NoError(t, release())
	}

	res, _, err := l.Check(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Exceeded)
	assert.Equal(t, KindWindow, res.Kind)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, int64(1_000_010), res.Reset)
}

func TestCheckConcurrencySlot(t *testing.T) {
	l := fixedLimiter(newMemoryStore(), time.Unix(2_000_000, 0))
	req := Request{Category: CategoryIP, ID: "10.0.0.2", Method: "POST", Path: "/api/y"}

	first, release, err := l.Check(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Exceeded)
	assert.Equal(t, 0, first.ConcurrentRemaining)

	second, _, err := l.Check(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Exceeded)
	assert.Equal(t, KindConcurrent, second.Kind)

	require.NoError(t, release())
	// Window budget is two, so the slot is checked with a fresh caller.
	third, _, err := l.Check(context.Background(), Request{Category: CategoryIP, ID: "10.0.0.3", Method: "POST", Path: "/api/y"})
	require.NoError(t, err)
	assert.False(t, third.Exceeded)
}

func TestCheckGroupDefaults(t *testing.T) {
	l := fixedLimiter(newMemoryStore(), time.Unix(3_000_000, 0))
	res, _, err := l.Check(context.Background(), Request{
		Config:   &RateLimitConfig{Group: "webhooks"},
		Category: CategoryIP,
		ID:       "1.1.1.1",
		Method:   "POST",
		Path:     "/hook",
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Limit)
	assert.Equal(t, 99, res.Remaining)
	assert.Equal(t, 0, res.ConcurrentLimit)
}

func TestCheckStoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	l := fixedLimiter(store, time.Unix(4_000_000, 0))

	_, release, err := l.Check(context.Background(), Request{Category: CategoryUser, ID: "u1", Method: "GET", Path: "/"})
	require.Error(t, err)
	assert.NotNil(t, release)
}

func TestCheckReleaseError(t *testing.T) {
	store := newMemoryStore()
	store.releaseErr = errors.New("redis down")
	l := fixedLimiter(store, time.Unix(5_000_000, 0))

	_, release, err := l.Check(context.Background(), Request{Category: CategoryIP, ID: "10.0.0.9", Method: "GET", Path: "/"})
	require.NoError(t, err)
	assert.ErrorIs(t, release(), store.releaseErr)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rl:default:ip:1.2.3.4:GET:/status:100",
		Key("default", CategoryIP, "1.2.3.4", "GET", "/status", 10, time.Unix(1005, 0)))
}
