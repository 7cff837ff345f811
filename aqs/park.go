package aqs

import (
	"context"
	"time"
)

// parker is the kernel's sole suspension primitive: park the current
// goroutine until unpark, context cancellation, or an optional deadline.
// It plays the role spec.md assigns to the platform's park/unpark pair.
//
// Modeled directly on vanadium-go.lib/nsync's binarySemaphore: a depth-1
// channel stands in for Java's per-thread permit. unpark is a non-blocking
// send (idempotent: a permit already pending is not doubled up), and park
// is a receive, optionally raced against a timer or ctx.Done() via select.
type parker struct {
	ch chan struct{}
}

func newParker() *parker {
	return &parker{ch: make(chan struct{}, 1)}
}

// outcome distinguishes why park returned.
type outcome int

const (
	woken outcome = iota
	timedOut
	cancelled
)

// park blocks until unparked, ctx is done, or (if deadline is non-zero) the
// deadline passes. A zero deadline means "no deadline".
func (p *parker) park(ctx context.Context, deadline time.Time) outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if deadline.IsZero() {
		select {
		case <-p.ch:
			return woken
		case <-ctx.Done():
			return cancelled
		}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		select {
		case <-p.ch:
			return woken
		default:
			return timedOut
		}
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-p.ch:
		return woken
	case <-ctx.Done():
		return cancelled
	case <-timer.C:
		return timedOut
	}
}

// unpark grants one wake-up permit. Saturating: calling it twice before the
// permit is consumed has the same effect as calling it once.
func (p *parker) unpark() {
	select {
	case p.ch <- struct{}{}:
	default:
	}
}

// drain removes a pending permit without blocking. Nothing in the package
// calls it at present; nodes are never recycled.
func (p *parker) drain() {
	select {
	case <-p.ch:
	default:
	}
}
