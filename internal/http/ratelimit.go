package http

import (
	"sync"
	"time"
)

// rateLimiter throttles mutation requests per caller. The key is the
// actor ID when the header is present, the client IP otherwise, so one
// noisy actor behind a shared proxy cannot starve the rest.
type rateLimiter struct {
	mu           sync.Mutex
	callers      map[string]*callerInfo
	limit        int
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type callerInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter(limit int) *rateLimiter {
	rl := &rateLimiter{
		callers:     make(map[string]*callerInfo),
		limit:       limit,
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes caller entries idle for over 10 minutes.
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for key, caller := range rl.callers {
		if caller.lastRequest.Before(cutoff) {
			delete(rl.callers, key)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// allow reports whether the caller is under its per-minute limit.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	caller, exists := rl.callers[key]

	if !exists {
		rl.callers[key] = &callerInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(caller.lastRequest) > time.Minute {
		caller.requests = 1
		caller.lastRequest = now
		return true
	}

	caller.requests++
	caller.lastRequest = now

	return caller.requests <= rl.limit
}
