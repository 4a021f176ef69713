package core

// limiter.go bounds how many packages are inspected at once.
//
// Jobs take a slot from a buffered-channel semaphore before inspection. A
// job that cannot get a slot within maxWait is finished as rejected with
// ErrQueueFull instead of waiting forever behind a burst of submissions.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned when no validation slot frees up within the wait
// limit.
var ErrQueueFull = errors.New("too many concurrent uploads, validation queue is full")

// DefaultMaxConcurrentJobs is the default number of parallel inspections.
const DefaultMaxConcurrentJobs = 4

// DefaultMaxWaitTime is how long a queued job waits for a slot.
const DefaultMaxWaitTime = 2 * time.Minute

// JobLimiter is a counting semaphore for validation jobs.
type JobLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	active  atomic.Int32
	waiting atomic.Int32
}

// NewJobLimiter allows at most maxConcurrent jobs at once. Non-positive
// arguments fall back to the package defaults.
func NewJobLimiter(maxConcurrent int, maxWait time.Duration) *JobLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &JobLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire blocks until a slot is free, maxWait elapses (ErrQueueFull), or
// ctx is done (ctx.Err()). Every nil return must be paired with Release.
func (l *JobLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	default:
	}

	l.waiting.Add(1)
	defer l.waiting.Add(-1)

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *JobLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *JobLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of jobs holding a slot.
func (l *JobLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *JobLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *JobLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// LimiterStatus is a snapshot of the limiter for health output.
type LimiterStatus struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *JobLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Waiting:       int(l.waiting.Load()),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
