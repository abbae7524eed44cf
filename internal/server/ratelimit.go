package server

import (
	"sync"
	"time"
)

// rateLimiter implements per-client sliding window rate limiting
type rateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	mu          sync.Mutex
	stopClean   chan struct{}
	stopOnce    sync.Once
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		stopClean:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := inWindow(rl.requests[key], now.Add(-rl.window))

	if len(valid) >= rl.maxRequests {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

func inWindow(times []time.Time, start time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if t.After(start) {
			valid = append(valid, t)
		}
	}
	return valid
}

// cleanupLoop periodically drops clients that have gone quiet.
func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopClean:
			return
		}
	}
}

func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	start := time.Now().Add(-rl.window)
	for key, reqs := range rl.requests {
		if valid := inWindow(reqs, start); len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.stopClean) })
}
