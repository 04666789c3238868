package chat

import (
	"sync"
	"time"
)

const (
	rateLimitPerWindow = 100
	rateLimitWindow    = time.Minute
	rateLimitStale     = 5 * time.Minute
)

// RateLimiter caps inbound events per user with a fixed window that resets
// once a full window has elapsed since its start.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the user may send another event in the current
// window and records the attempt when allowed.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[userID]
	if !exists {
		rl.clients[userID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= rateLimitWindow {
		limit.count = 1
		limit.windowStart = now
		return true
	}

	if limit.count >= rateLimitPerWindow {
		return false
	}

	limit.count++
	return true
}

// Cleanup drops entries idle for longer than five windows. Call it
// periodically from the owning handler.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > rateLimitStale {
			delete(rl.clients, userID)
		}
	}
}
