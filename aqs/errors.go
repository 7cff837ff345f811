package aqs

import "errors"

// ErrTimeout is returned by Condition.AwaitTimeout when its deadline expired
// before a signal arrived. It is a value, not a panic: a timed-out wait is an
// expected, recoverable outcome. The timed acquire variants (TryAcquireNanos,
// TryAcquireSharedNanos) report a timeout as (false, nil) instead.
var ErrTimeout = errors.New("aqs: timed out waiting to acquire")

// ErrInterrupted is returned by interruptible acquire/await variants whose
// context was cancelled before the synchronizer became available.
var ErrInterrupted = errors.New("aqs: interrupted waiting to acquire")

// MonitorStateError is raised (via panic) when a Condition's Await/Signal/
// SignalAll is called without the calling goroutine holding the
// synchronizer's exclusive state. This mirrors java.util.concurrent's
// IllegalMonitorStateException and nsync.Mu.Unlock's "attempt to Unlock a
// free nsync.Mu" panic: both treat the condition as a programmer bug, not a
// recoverable runtime outcome.
type MonitorStateError struct {
	Op string
}

func (e *MonitorStateError) Error() string {
	return "aqs: " + e.Op + " called without holding exclusive state"
}

func panicMonitorState(op string) {
	panic(&MonitorStateError{Op: op})
}

// CapacityOverflowError is raised (via panic) by a synchronizer's TryAcquire/
// TryAcquireShared implementation when its state word would saturate (e.g.
// a reader count hitting 2^16-1). Unrecoverable by design: the caller asked
// for more concurrent holders than the state encoding can represent.
type CapacityOverflowError struct {
	Limit uint32
}

func (e *CapacityOverflowError) Error() string {
	return "aqs: synchronizer state would exceed its capacity"
}
