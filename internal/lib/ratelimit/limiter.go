package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind says which budget a rejected request ran out of.
type Kind string

const (
	KindWindow     Kind = "window"
	KindConcurrent Kind = "concurrent"
)

// Request identifies one call to a rate-limited route.
type Request struct {
	Config   *RateLimitConfig
	Category Category
	// ID is the caller id within Category: an IP, a user id or an
	// organization id.
	ID     string
	Method string
	Path   string
}

// Result is the outcome of a check, rendered into response headers.
type Result struct {
	Group               string
	Category            Category
	Limit               int
	Window              int
	Remaining           int
	Reset               int64
	ConcurrentLimit     int
	ConcurrentRemaining int
	Exceeded            bool
	Kind                Kind
}

// Limiter checks requests against their budgets.
type Limiter struct {
	store    Store
	defaults Defaults
	stale    time.Duration
	now      func() time.Time
}

func NewLimiter(store Store, defaults Defaults, concurrentTimeout time.Duration) *Limiter {
	return &Limiter{
		store:    store,
		defaults: defaults,
		stale:    concurrentTimeout,
		now:      time.Now,
	}
}

// Key is the window counter key for a request at time now.
func Key(group string, category Category, id, method, path string, window int, now time.Time) string {
	bucket := now.Unix() / int64(window)
	return fmt.Sprintf("rl:%s:%s:%s:%s:%s:%d", group, category, id, method, path, bucket)
}

func concurrencyKey(group string, category Category, id, method, path string) string {
	return fmt.Sprintf("rlc:%s:%s:%s:%s:%s", group, category, id, method, path)
}

// Check charges req against its window and takes a concurrency slot. The
// returned release func must be called when the request finishes; it is a
// no-op when no slot was taken.
func (l *Limiter) Check(ctx context.Context, req Request) (*Result, func() error, error) {
	noop := func() error { return nil }
	now := l.now()
	group := req.Config.GroupName()
	limit := req.Config.Resolve(req.Method, req.Category, l.defaults)

	result := &Result{
		Group:               group,
		Category:            req.Category,
		Limit:               limit.Limit,
		Window:              limit.Window,
		Remaining:           limit.Limit,
		ConcurrentLimit:     limit.ConcurrentLimit,
		ConcurrentRemaining: limit.ConcurrentLimit,
	}

	if limit.Limit > 0 && limit.Window > 0 {
		key := Key(group, req.Category, req.ID, req.Method, req.Path, limit.Window, now)
		count, err := l.store.Incr(ctx, key, time.Duration(limit.Window)*time.Second)
		if err != nil {
			return result, noop, err
		}

		bucket := now.Unix() / int64(limit.Window)
		result.Reset = (bucket + 1) * int64(limit.Window)
		result.Remaining = max(limit.Limit-int(count), 0)

		if count > int64(limit.Limit) {
			result.Exceeded = true
			result.Kind = KindWindow
			return result, noop, nil
		}
	}

	if limit.ConcurrentLimit <= 0 {
		return result, noop, nil
	}

	ckey := concurrencyKey(group, req.Category, req.ID, req.Method, req.Path)
	member := uuid.NewString()
	inFlight, err := l.store.Acquire(ctx, ckey, member, limit.ConcurrentLimit, now, l.stale)
	if err != nil {
		return result, noop, err
	}
	if inFlight > int64(limit.ConcurrentLimit) {
		result.Exceeded = true
		result.Kind = KindConcurrent
		result.ConcurrentRemaining = 0
		return result, noop, nil
	}
	result.ConcurrentRemaining = limit.ConcurrentLimit - int(inFlight)

	release := func() error {
		// The request context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.store.Release(ctx, ckey, member); err != nil {
			return fmt.Errorf("release concurrency slot %s: %w", ckey, err)
		}
		return nil
	}
	return result, release, nil
}
