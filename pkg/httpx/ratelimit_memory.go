package httpx

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const memoryCleanupEvery = 5 * time.Minute

// MemoryLimiter keeps a token bucket per key in process memory. Fine for a
// single replica; use RedisLimiter when several share the load.
type MemoryLimiter struct {
	cfg   RateLimitConfig
	rate  rate.Limit
	burst int

	buckets sync.Map // key -> *rate.Limiter

	mu          sync.Mutex
	lastCleanup time.Time
}

func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:         cfg,
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	lim := m.bucket(key)
	if lim.Allow() {
		return true, 0, nil
	}

	// Peek at when the next token lands without spending it.
	res := lim.Reserve()
	delay := res.Delay()
	res.Cancel()
	return false, delay, nil
}

func (m *MemoryLimiter) bucket(key string) *rate.Limiter {
	if v, ok := m.buckets.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := m.buckets.LoadOrStore(key, rate.NewLimiter(m.rate, m.burst))
	m.sweep()
	return v.(*rate.Limiter)
}

// sweep drops buckets that have refilled completely; they carry no state
// worth keeping.
func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.lastCleanup) < memoryCleanupEvery {
		return
	}
	m.lastCleanup = time.Now()

	m.buckets.Range(func(k, v any) bool {
		if v.(*rate.Limiter).Tokens() >= float64(m.burst) {
			m.buckets.Delete(k)
		}
		return true
	})
}
