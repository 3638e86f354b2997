package neynar

import (
	"sync"
	"time"
)

const failureResetAge = 10 * time.Minute

type endpointFailureInfo struct {
	failureCount   int
	lastFailure    time.Time
	suspendedUntil time.Time
}

// HealthTracker manages endpoint failure tracking and suspension
type HealthTracker struct {
	threshold  int
	suspendFor time.Duration
	now        func() time.Time

	failed map[string]*endpointFailureInfo
	mu     sync.RWMutex
}

// NewHealthTracker creates a tracker that suspends an endpoint for suspendFor
// after threshold consecutive failures. A non-positive threshold disables suspension.
func NewHealthTracker(threshold int, suspendFor time.Duration) *HealthTracker {
	return &HealthTracker{
		threshold:  threshold,
		suspendFor: suspendFor,
		now:        time.Now,
		failed:     make(map[string]*endpointFailureInfo),
	}
}

// IsSuspended checks if an endpoint is currently suspended
func (t *HealthTracker) IsSuspended(endpoint string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if info, exists := t.failed[endpoint]; exists {
		return t.now().Before(info.suspendedUntil)
	}
	return false
}

// RecordFailure records a failure for an endpoint and potentially suspends it
func (t *HealthTracker) RecordFailure(endpoint string) {
	if t.threshold <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	info, exists := t.failed[endpoint]
	if !exists || now.Sub(info.lastFailure) > failureResetAge {
		info = &endpointFailureInfo{}
		t.failed[endpoint] = info
	}

	info.failureCount++
	info.lastFailure = now

	if info.failureCount >= t.threshold {
		info.suspendedUntil = now.Add(t.suspendFor)
		info.failureCount = 0
	}
}

// RecordSuccess clears the failure history of an endpoint
func (t *HealthTracker) RecordSuccess(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failed, endpoint)
}

// Stats returns the number of failing endpoints and how many are suspended
func (t *HealthTracker) Stats() (failing int, suspended int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	failing = len(t.failed)
	for _, info := range t.failed {
		if now.Before(info.suspendedUntil) {
			suspended++
		}
	}
	return
}
