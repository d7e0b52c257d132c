package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultMaxTracked bounds how many identifiers a limiter tracks at once.
const defaultMaxTracked = 10000

// limiterEntry pairs an identifier's token bucket with its last use, so
// idle entries can be swept and the oldest evicted under memory pressure.
type limiterEntry struct {
	key      string
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-identifier token bucket. Identifiers are
// typically client IPs at the authorize and token endpoints. The tracked
// set is bounded: when it is full the least recently used identifier is
// evicted, so an address-rotating caller cannot grow it without bound.
type RateLimiter struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List // of *limiterEntry, front = most recent
	rate     int
	burst    int
	capacity int
	logger   *slog.Logger

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

// NewRateLimiter creates a limiter allowing requestsPerSecond sustained with
// the given burst, tracking up to 10,000 identifiers.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(requestsPerSecond, burst, defaultMaxTracked, logger)
}

// NewRateLimiterWithConfig creates a limiter with an explicit bound on
// tracked identifiers. capacity 0 means unbounded.
func NewRateLimiterWithConfig(requestsPerSecond, burst, capacity int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity < 0 {
		capacity = defaultMaxTracked
	}

	rl := &RateLimiter{
		entries:       make(map[string]*list.Element),
		lru:           list.New(),
		rate:          requestsPerSecond,
		burst:         burst,
		capacity:      capacity,
		logger:        logger,
		sweepInterval: 5 * time.Minute,
		stopSweep:     make(chan struct{}),
	}

	go rl.sweepLoop()

	return rl
}

// Allow reports whether a request from the given identifier may proceed,
// charging one token from its bucket.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[identifier]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastSeen = now
		return entry.bucket.Allow()
	}

	if rl.capacity > 0 && len(rl.entries) >= rl.capacity {
		rl.evictOldest()
	}

	entry := &limiterEntry{
		key:      identifier,
		bucket:   rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
		lastSeen: now,
	}
	rl.entries[identifier] = rl.lru.PushFront(entry)

	return entry.bucket.Allow()
}

// evictOldest drops the least recently used identifier. Caller holds mu.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*limiterEntry)
	delete(rl.entries, entry.key)
	rl.lru.Remove(elem)

	rl.logger.Debug("Rate limiter evicted oldest identifier",
		"identifier", entry.key,
		"tracked", len(rl.entries))
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(30 * time.Minute)
		case <-rl.stopSweep:
			return
		}
	}
}

// Cleanup drops identifiers idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	now := time.Now()
	removed := 0

	rl.mu.Lock()
	defer rl.mu.Unlock()

	var next *list.Element
	for elem := rl.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*limiterEntry)

		if now.Sub(entry.lastSeen) > maxIdle {
			delete(rl.entries, entry.key)
			rl.lru.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter swept idle identifiers",
			"removed", removed,
			"tracked", len(rl.entries))
	}
}

// Stop terminates the sweep goroutine. Safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopSweep)
	})
}
