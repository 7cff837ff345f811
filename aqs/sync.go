package aqs

import (
	"context"
	"sync/atomic"
	"time"
)

// spinThreshold: below this much remaining time, a timed acquire spins
// instead of parking with a timeout, since the cost of arming/disarming a
// timer would dwarf the wait itself. Matches spec.md §4.3's "default 1,000
// ns" guidance.
const spinThreshold = 1000 * time.Nanosecond

// Synchronizer is the capability set a caller-defined lock or semaphore
// supplies to a *Sync. Sync never downcasts or otherwise inspects the
// caller's type; it only ever calls back through this interface, which is
// the composition-based stand-in design notes (spec.md §9) calls for in
// place of the source's subclassing.
type Synchronizer interface {
	// TryAcquire attempts to set state to reflect an exclusive hold given
	// arg, returning whether it succeeded. Called with no lock held by Sync
	// itself; must use CAS/atomic ops on whatever state it touches.
	TryAcquire(arg int64) bool

	// TryRelease attempts to clear (or partially clear, for reentrant
	// holders) an exclusive hold, returning whether the synchronizer is now
	// fully free (only then does Sync wake a successor).
	TryRelease(arg int64) bool

	// TryAcquireShared attempts a shared acquisition. A negative return
	// means failure; zero means success with no guarantee that a further
	// shared acquirer would also succeed; positive means success and that a
	// further shared acquirer likely would too (propagate the wake-up).
	TryAcquireShared(arg int64) int64

	// TryReleaseShared attempts to release a shared hold, returning whether
	// the release may have made the synchronizer available to others.
	TryReleaseShared(arg int64) bool

	// IsHeldExclusively reports whether the calling goroutine currently
	// holds the synchronizer exclusively. Used only by Condition, which is
	// usable solely in exclusive mode.
	IsHeldExclusively() bool
}

// Sync is the AQS kernel: an atomic state word plus a CLH-variant FIFO wait
// queue. Embed it in a caller-defined synchronizer and call Init with that
// synchronizer's Synchronizer implementation before using any other method.
type Sync struct {
	state atomic.Uint32
	head  atomic.Pointer[node]
	tail  atomic.Pointer[node]
	impl  Synchronizer
}

// Init binds the kernel to the synchronizer whose TryAcquire/TryRelease/...
// methods it will call back into. Must be called once before any acquire or
// release method, typically from the embedding type's constructor.
func (s *Sync) Init(impl Synchronizer) {
	s.impl = impl
}

// GetState returns the current value of the state word.
func (s *Sync) GetState() uint32 { return s.state.Load() }

// SetState unconditionally overwrites the state word. Only safe to call
// while the caller otherwise guarantees exclusivity (e.g. before any
// goroutine can observe the synchronizer).
func (s *Sync) SetState(v uint32) { s.state.Store(v) }

// CompareAndSwapState is the sole mutator synchronizer implementations
// should use to change state under contention.
func (s *Sync) CompareAndSwapState(old, new uint32) bool {
	return s.state.CompareAndSwap(old, new)
}

// ---- exclusive mode ----

// Acquire blocks uninterruptibly until TryAcquire(arg) succeeds.
func (s *Sync) Acquire(arg int64) {
	if !s.impl.TryAcquire(arg) {
		s.acquireQueued(s.addWaiter(exclusive), arg)
	}
}

// AcquireInterruptibly blocks until TryAcquire(arg) succeeds or ctx is
// done, in which case it returns ErrInterrupted.
func (s *Sync) AcquireInterruptibly(ctx context.Context, arg int64) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	if s.impl.TryAcquire(arg) {
		return nil
	}
	return s.doAcquireInterruptibly(ctx, s.addWaiter(exclusive), arg)
}

// TryAcquireNanos blocks until TryAcquire(arg) succeeds, ctx is done, or
// timeout elapses. The bool result reports whether the synchronizer was
// acquired; a non-nil error distinguishes cancellation from a plain
// timeout (which returns (false, nil)).
func (s *Sync) TryAcquireNanos(ctx context.Context, arg int64, timeout time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ErrInterrupted
	}
	if s.impl.TryAcquire(arg) {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	return s.doAcquireNanos(ctx, s.addWaiter(exclusive), arg, time.Now().Add(timeout))
}

// Release calls TryRelease(arg); if it reports the synchronizer fully free,
// Release wakes the queue's head successor, if any is waiting to be woken.
func (s *Sync) Release(arg int64) bool {
	if s.impl.TryRelease(arg) {
		if h := s.head.Load(); h != nil && h.loadStatus() != statusNew {
			s.unparkSuccessor(h)
		}
		return true
	}
	return false
}

func (s *Sync) acquireQueued(n *node, arg int64) {
	defer func() {
		if r := recover(); r != nil {
			s.cancelAcquire(n)
			panic(r)
		}
	}()
	for {
		pred := n.prev.Load()
		if pred == s.head.Load() && s.impl.TryAcquire(arg) {
			s.setHead(n)
			pred.next.Store(nil)
			return
		}
		if s.shouldParkAfterFailedAcquire(pred, n) {
			n.park.park(context.Background(), time.Time{})
		}
	}
}

func (s *Sync) doAcquireInterruptibly(ctx context.Context, n *node, arg int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.cancelAcquire(n)
			panic(r)
		}
	}()
	for {
		pred := n.prev.Load()
		if pred == s.head.Load() && s.impl.TryAcquire(arg) {
			s.setHead(n)
			pred.next.Store(nil)
			return nil
		}
		if ctx.Err() != nil {
			s.cancelAcquire(n)
			return ErrInterrupted
		}
		if s.shouldParkAfterFailedAcquire(pred, n) {
			if n.park.park(ctx, time.Time{}) == cancelled {
				s.cancelAcquire(n)
				return ErrInterrupted
			}
		}
	}
}

func (s *Sync) doAcquireNanos(ctx context.Context, n *node, arg int64, deadline time.Time) (acquired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.cancelAcquire(n)
			panic(r)
		}
	}()
	for {
		pred := n.prev.Load()
		if pred == s.head.Load() && s.impl.TryAcquire(arg) {
			s.setHead(n)
			pred.next.Store(nil)
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.cancelAcquire(n)
			return false, nil
		}
		if ctx.Err() != nil {
			s.cancelAcquire(n)
			return false, ErrInterrupted
		}
		if s.shouldParkAfterFailedAcquire(pred, n) && remaining > spinThreshold {
			switch n.park.park(ctx, deadline) {
			case cancelled:
				s.cancelAcquire(n)
				return false, ErrInterrupted
			case timedOut:
				s.cancelAcquire(n)
				return false, nil
			}
		}
	}
}

// ---- shared mode ----

// AcquireShared blocks uninterruptibly until TryAcquireShared(arg) >= 0.
func (s *Sync) AcquireShared(arg int64) {
	if s.impl.TryAcquireShared(arg) < 0 {
		s.doAcquireShared(s.addWaiter(shared), arg)
	}
}

// AcquireSharedInterruptibly is AcquireShared's interruptible counterpart.
func (s *Sync) AcquireSharedInterruptibly(ctx context.Context, arg int64) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	if s.impl.TryAcquireShared(arg) >= 0 {
		return nil
	}
	return s.doAcquireSharedInterruptibly(ctx, s.addWaiter(shared), arg)
}

// TryAcquireSharedNanos is AcquireShared's timed counterpart.
func (s *Sync) TryAcquireSharedNanos(ctx context.Context, arg int64, timeout time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ErrInterrupted
	}
	if s.impl.TryAcquireShared(arg) >= 0 {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	return s.doAcquireSharedNanos(ctx, s.addWaiter(shared), arg, time.Now().Add(timeout))
}

// ReleaseShared calls TryReleaseShared(arg); on success it propagates a
// wake-up to queued shared waiters via doReleaseShared.
func (s *Sync) ReleaseShared(arg int64) bool {
	if s.impl.TryReleaseShared(arg) {
		s.doReleaseShared()
		return true
	}
	return false
}

func (s *Sync) doAcquireShared(n *node, arg int64) {
	defer func() {
		if r := recover(); r != nil {
			s.cancelAcquire(n)
			panic(r)
		}
	}()
	for {
		pred := n.prev.Load()
		if pred == s.head.Load() {
			if r := s.impl.TryAcquireShared(arg); r >= 0 {
				s.setHeadAndPropagate(n, r)
				pred.next.Store(nil)
				return
			}
		}
		if s.shouldParkAfterFailedAcquire(pred, n) {
			n.park.park(context.Background(), time.Time{})
		}
	}
}

func (s *Sync) doAcquireSharedInterruptibly(ctx context.Context, n *node, arg int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.cancelAcquire(n)
			panic(r)
		}
	}()
	for {
		pred := n.prev.Load()
		if pred == s.head.Load() {
			if r := s.impl.TryAcquireShared(arg); r >= 0 {
				s.setHeadAndPropagate(n, r)
				pred.next.Store(nil)
				return nil
			}
		}
		if ctx.Err() != nil {
			s.cancelAcquire(n)
			return ErrInterrupted
		}
		if s.shouldParkAfterFailedAcquire(pred, n) {
			if n.park.park(ctx, time.Time{}) == cancelled {
				s.cancelAcquire(n)
				return ErrInterrupted
			}
		}
	}
}

func (s *Sync) doAcquireSharedNanos(ctx context.Context, n *node, arg int64, deadline time.Time) (acquired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.cancelAcquire(n)
			panic(r)
		}
	}()
	for {
		pred := n.prev.Load()
		if pred == s.head.Load() {
			if r := s.impl.TryAcquireShared(arg); r >= 0 {
				s.setHeadAndPropagate(n, r)
				pred.next.Store(nil)
				return true, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.cancelAcquire(n)
			return false, nil
		}
		if ctx.Err() != nil {
			s.cancelAcquire(n)
			return false, ErrInterrupted
		}
		if s.shouldParkAfterFailedAcquire(pred, n) && remaining > spinThreshold {
			switch n.park.park(ctx, deadline) {
			case cancelled:
				s.cancelAcquire(n)
				return false, ErrInterrupted
			case timedOut:
				s.cancelAcquire(n)
				return false, nil
			}
		}
	}
}

// setHeadAndPropagate installs n as head (now holding the synchronizer in
// shared mode) and, if there is reason to believe further shared waiters
// can also proceed, continues propagating release down the queue. The
// statusPropagate plumbing in doReleaseShared exists so that a racing
// releaser can never conclude "no successor needs signaling" while a
// successor is still mid-transition into head. See spec.md §4.4 and the
// design note in §9 about not "simplifying away" PROPAGATE.
func (s *Sync) setHeadAndPropagate(n *node, propagate int64) {
	oldHead := s.head.Load()
	s.setHead(n)
	if propagate > 0 || oldHead == nil || oldHead.loadStatus() < 0 || n.loadStatus() < 0 {
		succ := n.next.Load()
		if succ == nil || succ.mode == shared {
			s.doReleaseShared()
		}
	}
}

func (s *Sync) doReleaseShared() {
	for {
		h := s.head.Load()
		t := s.tail.Load()
		if h != nil && h != t {
			ws := h.loadStatus()
			switch ws {
			case statusSignal:
				if !h.casStatus(statusSignal, statusNew) {
					continue // lost race with a concurrent enqueue/cancel, retry
				}
				s.unparkSuccessor(h)
			case statusNew:
				if !h.casStatus(statusNew, statusPropagate) {
					continue // lost race, retry
				}
			}
		}
		if h == s.head.Load() {
			break
		}
	}
}

// ---- introspection ----

// HasQueuedThreads reports whether any goroutine is currently waiting to
// acquire this synchronizer.
func (s *Sync) HasQueuedThreads() bool {
	return s.head.Load() != s.tail.Load()
}

// HasQueuedPredecessors reports whether there is a queued waiter ahead of
// the calling goroutine. A fair synchronizer's TryAcquire consults this
// before barging.
//
// The first queued node is not necessarily a different goroutine from the
// caller: a goroutine that has just been woken out of acquireQueued calls
// TryAcquire again before setHead has run, so its own node is still the
// front of the queue. Without excluding that case, a fair synchronizer would
// see its own node as a "predecessor" on every real handoff and deadlock
// forever (nobody left to wake it). Comparing the front node's thread
// against the caller mirrors Java AQS's
// `s.thread != Thread.currentThread()` check in hasQueuedPredecessors.
func (s *Sync) HasQueuedPredecessors() bool {
	n := s.findFirstQueuedNode()
	return n != nil && n.thread != CurrentGoroutineID()
}

// GetQueueLength estimates the number of goroutines waiting to acquire this
// synchronizer, exclusive or shared.
func (s *Sync) GetQueueLength() int {
	n := 0
	h := s.head.Load()
	for p := s.tail.Load(); p != nil && p != h; p = p.prev.Load() {
		if p.park != nil {
			n++
		}
	}
	return n
}

// GetFirstQueuedThread returns the identity of the goroutine that has been
// waiting longest to acquire this synchronizer, and whether any goroutine is
// waiting at all.
func (s *Sync) GetFirstQueuedThread() (uint64, bool) {
	n := s.findFirstQueuedNode()
	if n == nil {
		return 0, false
	}
	return n.thread, true
}

// IsQueued reports whether the goroutine identified by thread is currently
// waiting to acquire this synchronizer.
func (s *Sync) IsQueued(thread uint64) bool {
	h := s.head.Load()
	for p := s.tail.Load(); p != nil && p != h; p = p.prev.Load() {
		if p.park != nil && p.thread == thread {
			return true
		}
	}
	return false
}
