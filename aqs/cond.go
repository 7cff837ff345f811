package aqs

import (
	"context"
	"runtime"
	"time"
)

// Condition is a per-synchronizer condition queue: a single-linked list of
// waiters connected through node.condNext, distinct from the sync queue.
// It is usable only while the calling goroutine holds the owning Sync
// exclusively (spec.md §4.6); Await releases that hold for the duration of
// the wait and reacquires it (at the same reentrancy depth) before
// returning.
//
// The zero value is not usable; construct one with Sync.NewCondition.
type Condition struct {
	sync  *Sync
	first *node
	last  *node
}

// NewCondition returns a new Condition bound to s.
func (s *Sync) NewCondition() *Condition {
	return &Condition{sync: s}
}

// addConditionWaiter appends a fresh CONDITION-tagged node to the
// condition's wait list, first scrubbing any already-cancelled nodes
// trailing the last live one (spec.md §4.6 step 1).
func (c *Condition) addConditionWaiter() *node {
	if !c.sync.impl.IsHeldExclusively() {
		panicMonitorState("Condition.Await")
	}
	t := c.last
	if t != nil && t.loadStatus() != statusCondition {
		c.unlinkCancelledWaiters()
		t = c.last
	}
	n := newNode(exclusive)
	n.storeStatus(statusCondition)
	if t == nil {
		c.first = n
	} else {
		t.condNext = n
	}
	c.last = n
	return n
}

// unlinkCancelledWaiters walks the condition list once, dropping any node
// whose status is no longer CONDITION (it was cancelled or already
// transferred some other way without being properly unlinked).
func (c *Condition) unlinkCancelledWaiters() {
	t := c.first
	var trail *node
	for t != nil {
		next := t.condNext
		if t.loadStatus() != statusCondition {
			t.condNext = nil
			if trail == nil {
				c.first = next
			} else {
				trail.condNext = next
			}
			if next == nil {
				c.last = trail
			}
		} else {
			trail = t
		}
		t = next
	}
}

// transferForSignal moves n from the condition list onto the sync queue so
// that it competes for the synchronizer like any other queued waiter. It
// returns false if n had already been cancelled (its status was no longer
// CONDITION), in which case the caller should move on to the next waiter.
func (c *Condition) transferForSignal(n *node) bool {
	if !n.casStatus(statusCondition, statusNew) {
		return false
	}
	p := c.sync.enqueueNode(n)
	ws := p.loadStatus()
	if ws > 0 || !p.casStatus(ws, statusSignal) {
		// predecessor is cancelled or refused the SIGNAL handoff; wake n
		// directly so it can stabilize the queue itself.
		n.park.unpark()
	}
	return true
}

// Signal wakes the longest-waiting goroutine on c, if any. The caller must
// hold the owning Sync exclusively.
func (c *Condition) Signal() {
	if !c.sync.impl.IsHeldExclusively() {
		panicMonitorState("Condition.Signal")
	}
	if first := c.first; first != nil {
		c.doSignal(first)
	}
}

func (c *Condition) doSignal(first *node) {
	for {
		if c.first = first.condNext; c.first == nil {
			c.last = nil
		}
		first.condNext = nil
		if c.transferForSignal(first) {
			return
		}
		first = c.first
		if first == nil {
			return
		}
	}
}

// SignalAll wakes every goroutine currently waiting on c. The caller must
// hold the owning Sync exclusively.
func (c *Condition) SignalAll() {
	if !c.sync.impl.IsHeldExclusively() {
		panicMonitorState("Condition.SignalAll")
	}
	if first := c.first; first != nil {
		c.doSignalAll(first)
	}
}

func (c *Condition) doSignalAll(first *node) {
	c.first = nil
	c.last = nil
	for first != nil {
		next := first.condNext
		first.condNext = nil
		c.transferForSignal(first)
		first = next
	}
}

// Await releases the synchronizer, blocks until signalled or ctx is done,
// then reacquires the synchronizer at the same reentrancy depth it held
// before the call. It returns ErrInterrupted if ctx was done before a
// signal transferred this waiter onto the sync queue; per spec.md §8
// scenario 5, if a signal wins the race concurrently with ctx being
// cancelled, Await instead returns nil (the caller can still observe
// ctx.Err() itself — this is the Go-idiomatic analogue of the source's
// "reinterpret the current thread's interrupt flag").
func (c *Condition) Await(ctx context.Context) error {
	n := c.addConditionWaiter()
	saved := c.sync.GetState()
	if !c.sync.Release(int64(saved)) {
		n.storeStatus(statusCancelled)
		panicMonitorState("Condition.Await")
	}

	interrupted := false
	for !c.sync.isOnSyncQueue(n) {
		if c.sync.tryCancelAwait(ctx, n, time.Time{}) {
			interrupted = true
			break
		}
	}

	c.sync.acquireQueued(n, int64(saved))
	if n.condNext != nil {
		c.unlinkCancelledWaiters()
	}
	if interrupted {
		return ErrInterrupted
	}
	return nil
}

// AwaitUninterruptibly is Await with no way to be interrupted: it blocks
// until signalled, full stop.
func (c *Condition) AwaitUninterruptibly() {
	_ = c.Await(context.Background())
}

// AwaitTimeout is Await bounded by d. It returns the remaining duration at
// the time it woke (never negative) and an error distinguishing why it
// woke: nil for a signal, ErrTimeout for deadline expiry, ErrInterrupted
// for ctx cancellation. d <= 0 returns immediately with (0, nil).
func (c *Condition) AwaitTimeout(ctx context.Context, d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, nil
	}
	deadline := time.Now().Add(d)
	n := c.addConditionWaiter()
	saved := c.sync.GetState()
	if !c.sync.Release(int64(saved)) {
		n.storeStatus(statusCancelled)
		panicMonitorState("Condition.AwaitTimeout")
	}

	var timedOutFlag, interruptedFlag bool
	for !c.sync.isOnSyncQueue(n) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.sync.forceTransferSelf(n)
			timedOutFlag = true
			break
		}
		res := n.park.park(ctx, deadline)
		if res == woken {
			continue
		}
		if n.casStatus(statusCondition, statusNew) {
			c.sync.enqueueNode(n)
			if res == cancelled {
				interruptedFlag = true
			} else {
				timedOutFlag = true
			}
			break
		}
		c.sync.spinUntilOnSyncQueue(n)
	}

	c.sync.acquireQueued(n, int64(saved))
	if n.condNext != nil {
		c.unlinkCancelledWaiters()
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	switch {
	case interruptedFlag:
		return remaining, ErrInterrupted
	case timedOutFlag:
		return remaining, ErrTimeout
	default:
		return remaining, nil
	}
}

// tryCancelAwait parks n (optionally with a deadline), and if woken by
// cancellation attempts to claim the "interrupted before signal" outcome by
// CASing n off the condition list itself. If a signal already won that
// race, it spins until the signaller finishes transferring n, matching
// spec.md §4.6 step 3's "yield-spin until the signaller finishes
// enqueueing". Returns true only for the "interrupted before signal" case.
func (s *Sync) tryCancelAwait(ctx context.Context, n *node, deadline time.Time) bool {
	if n.park.park(ctx, deadline) != cancelled {
		return false
	}
	if n.casStatus(statusCondition, statusNew) {
		s.enqueueNode(n)
		return true
	}
	s.spinUntilOnSyncQueue(n)
	return false
}

// forceTransferSelf is used by AwaitTimeout when its own deadline check
// (rather than the parker's) notices expiry: it claims the node for
// transfer itself, or, if a signal already claimed it first, waits for
// that transfer to finish.
func (s *Sync) forceTransferSelf(n *node) {
	if n.casStatus(statusCondition, statusNew) {
		s.enqueueNode(n)
		return
	}
	s.spinUntilOnSyncQueue(n)
}

func (s *Sync) spinUntilOnSyncQueue(n *node) {
	for !s.isOnSyncQueue(n) {
		runtime.Gosched()
	}
}
