package router

import (
	"sync"
	"time"

	"github.com/af-corp/chat-gateway/internal/config"
)

// HealthTracker keeps one circuit breaker per provider name.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

func NewHealthTracker(cfg config.CircuitBreakerConfig) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      cfg.FailureThreshold,
		recoveryProbeInterval: cfg.RecoveryProbeInterval,
	}
}

// Breaker returns (or lazily creates) the breaker for a provider.
func (ht *HealthTracker) Breaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	ht.breakers[provider] = cb
	return cb
}

func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.Breaker(provider).Allow()
}

func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.Breaker(provider).RecordSuccess()
}

func (ht *HealthTracker) RecordFailure(provider string) {
	ht.Breaker(provider).RecordFailure()
}

// Snapshot returns the status of every provider seen so far, plus any
// names passed in that have not been used yet.
func (ht *HealthTracker) Snapshot(providers ...string) map[string]Status {
	for _, p := range providers {
		ht.Breaker(p)
	}

	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]Status, len(ht.breakers))
	for name, cb := range ht.breakers {
		out[name] = cb.Status()
	}
	return out
}
