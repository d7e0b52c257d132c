package security

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(10, 5, nil)
	t.Cleanup(rl.Stop)

	for i := 0; i < 5; i++ {
		if !rl.Allow("203.0.113.7") {
			t.Fatalf("request %d within burst was denied", i+1)
		}
	}

	if rl.Allow("203.0.113.7") {
		t.Error("request beyond burst was allowed")
	}
}

func TestRateLimiter_SeparateBuckets(t *testing.T) {
	rl := NewRateLimiter(10, 2, nil)
	t.Cleanup(rl.Stop)

	rl.Allow("203.0.113.1")
	rl.Allow("203.0.113.1")
	if rl.Allow("203.0.113.1") {
		t.Error("exhausted identifier was allowed")
	}

	if !rl.Allow("203.0.113.2") {
		t.Error("fresh identifier was denied")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(2, 2, nil)
	t.Cleanup(rl.Stop)

	rl.Allow("203.0.113.7")
	rl.Allow("203.0.113.7")
	if rl.Allow("203.0.113.7") {
		t.Fatal("request beyond burst was allowed")
	}

	// 2 req/s refills one token in 500ms.
	time.Sleep(550 * time.Millisecond)

	if !rl.Allow("203.0.113.7") {
		t.Error("request after refill was denied")
	}
}

func TestRateLimiter_EvictsOldestAtCapacity(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 20, 2, nil)
	t.Cleanup(rl.Stop)

	rl.Allow("203.0.113.1")
	rl.Allow("203.0.113.2")

	// Refresh .1 so .2 is the oldest when .3 forces an eviction.
	rl.Allow("203.0.113.1")
	rl.Allow("203.0.113.3")

	rl.mu.Lock()
	_, hasOld := rl.entries["203.0.113.2"]
	_, hasRefreshed := rl.entries["203.0.113.1"]
	_, hasNew := rl.entries["203.0.113.3"]
	tracked := len(rl.entries)
	rl.mu.Unlock()

	if tracked != 2 {
		t.Errorf("tracked = %d, want 2", tracked)
	}
	if hasOld {
		t.Error("oldest identifier survived eviction")
	}
	if !hasRefreshed || !hasNew {
		t.Error("recently used identifiers were evicted")
	}
}

func TestRateLimiter_CleanupDropsIdle(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	t.Cleanup(rl.Stop)

	rl.Allow("203.0.113.1")
	rl.Allow("203.0.113.2")
	rl.Allow("203.0.113.3")

	markIdle(rl, "203.0.113.1")
	markIdle(rl, "203.0.113.3")

	rl.Cleanup(30 * time.Minute)

	rl.mu.Lock()
	tracked := len(rl.entries)
	_, hasActive := rl.entries["203.0.113.2"]
	rl.mu.Unlock()

	if tracked != 1 {
		t.Errorf("tracked = %d, want 1", tracked)
	}
	if !hasActive {
		t.Error("active identifier was swept")
	}
}

func TestRateLimiter_ConcurrentAllow(t *testing.T) {
	rl := NewRateLimiter(100, 100, nil)
	t.Cleanup(rl.Stop)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("203.0.113.%d", n)
			for j := 0; j < 10; j++ {
				rl.Allow(id)
			}
		}(i)
	}
	wg.Wait()
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	rl.Stop()
	rl.Stop()
}

// markIdle backdates an identifier's last use past any sweep threshold.
func markIdle(rl *RateLimiter, key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if elem, ok := rl.entries[key]; ok {
		elem.Value.(*limiterEntry).lastSeen = time.Now().Add(-time.Hour)
	}
}
