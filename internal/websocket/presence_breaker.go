package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrPresenceCircuitOpen is returned while presence writes are suspended
var ErrPresenceCircuitOpen = errors.New("presence circuit breaker is open")

const (
	defaultBreakerThreshold = 3
	defaultBreakerCooldown  = 30 * time.Second
)

// PresenceBreaker wraps a PresenceTracker and stops calling it after
// consecutive failures until the cooldown has passed
type PresenceBreaker struct {
	tracker PresenceTracker

	mu                sync.Mutex
	consecutiveErrors int
	threshold         int
	cooldown          time.Duration
	circuitOpen       bool
	circuitResetTime  time.Time
	lastError         error
	totalErrors       int
	rejected          int

	now func() time.Time
}

func NewPresenceBreaker(tracker PresenceTracker, threshold int, cooldown time.Duration) *PresenceBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &PresenceBreaker{
		tracker:   tracker,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (b *PresenceBreaker) SetUserOnline(ctx context.Context, userID string) error {
	return b.call(func() error { return b.tracker.SetUserOnline(ctx, userID) })
}

func (b *PresenceBreaker) SetUserOffline(ctx context.Context, userID string) error {
	return b.call(func() error { return b.tracker.SetUserOffline(ctx, userID) })
}

func (b *PresenceBreaker) call(op func() error) error {
	if !b.allow() {
		return ErrPresenceCircuitOpen
	}

	err := op()
	b.record(err)
	return err
}

// allow reports whether a call may go through. Once the cooldown has passed
// one trial call is let through; its result decides the state.
func (b *PresenceBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.circuitOpen {
		return true
	}
	if b.now().Before(b.circuitResetTime) {
		b.rejected++
		return false
	}
	b.circuitResetTime = b.now().Add(b.cooldown)
	return true
}

func (b *PresenceBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.circuitOpen {
			slog.Info("Presence circuit breaker closed")
		}
		b.circuitOpen = false
		b.consecutiveErrors = 0
		return
	}

	b.lastError = err
	b.totalErrors++
	b.consecutiveErrors++

	if !b.circuitOpen && b.consecutiveErrors >= b.threshold {
		b.circuitOpen = true
		b.circuitResetTime = b.now().Add(b.cooldown)
		slog.Warn("Presence circuit breaker opened",
			"consecutiveErrors", b.consecutiveErrors,
			"resetTime", b.circuitResetTime,
			"error", err)
	}
}

// PresenceBreakerStats is exposed through the stats endpoint
type PresenceBreakerStats struct {
	CircuitOpen       bool   `json:"circuit_open"`
	ConsecutiveErrors int    `json:"consecutive_errors"`
	TotalErrors       int    `json:"total_errors"`
	Rejected          int    `json:"rejected"`
	LastError         string `json:"last_error,omitempty"`
}

func (b *PresenceBreaker) Stats() PresenceBreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := PresenceBreakerStats{
		CircuitOpen:       b.circuitOpen,
		ConsecutiveErrors: b.consecutiveErrors,
		TotalErrors:       b.totalErrors,
		Rejected:          b.rejected,
	}
	if b.lastError != nil {
		stats.LastError = b.lastError.Error()
	}
	return stats
}
