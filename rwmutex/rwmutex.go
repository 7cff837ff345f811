// Copyright (c) 2024 the go-aqs authors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package rwmutex implements a reentrant reader-writer lock on top of the
// aqs kernel. A goroutine may hold the write lock reentrantly, and a
// goroutine already holding the write lock may also take read locks.
//
// The state word packs reader count into the upper 16 bits and writer
// reentrancy count into the lower 16, exactly as spec.md's data model
// describes for an RW-lock encoding:
//
//	|31            16|15             0|
//	 \  reader count  / \ writer count /
package rwmutex

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-aqs/aqs/aqs"
)

const (
	writerBits = 16
	writerMask = (1 << writerBits) - 1
	maxHolders = writerMask // 2^16 - 1, per spec.md §4.7's capacity ceiling
)

func readerCount(state uint32) uint32 { return state >> writerBits }
func writerCount(state uint32) uint32 { return state & writerMask }

func withReaderCount(state uint32, r uint32) uint32 {
	return (r << writerBits) | (state & writerMask)
}

func withWriterCount(state uint32, w uint32) uint32 {
	return (state &^ writerMask) | (w & writerMask)
}

// ReentrantRWMutex is a reentrant reader-writer lock. The zero value is not
// usable; construct one with New or NewFair.
type ReentrantRWMutex struct {
	sync aqs.Sync

	fair  bool
	owner atomic.Uint64 // goroutine id of the current exclusive holder, 0 if free
}

// New returns a ReentrantRWMutex whose default acquire path may barge: a
// fresh caller can win ahead of goroutines already queued.
func New() *ReentrantRWMutex {
	m := &ReentrantRWMutex{}
	m.sync.Init(m)
	return m
}

// NewFair returns a ReentrantRWMutex whose TryAcquire/TryAcquireShared
// consult HasQueuedPredecessors, so a fresh caller always queues behind
// goroutines that got there first (spec.md §5, §8 scenario 3).
func NewFair() *ReentrantRWMutex {
	m := &ReentrantRWMutex{fair: true}
	m.sync.Init(m)
	return m
}

// Lock acquires the write lock, blocking uninterruptibly. It is reentrant:
// a goroutine that already holds the write lock may call Lock again.
func (m *ReentrantRWMutex) Lock() { m.sync.Acquire(1) }

// LockContext is Lock's interruptible counterpart: it aborts with
// aqs.ErrInterrupted if ctx is done before the lock is acquired.
func (m *ReentrantRWMutex) LockContext(ctx context.Context) error {
	return m.sync.AcquireInterruptibly(ctx, 1)
}

// TryLock acquires the write lock without blocking.
func (m *ReentrantRWMutex) TryLock() bool { return m.TryAcquire(1) }

// TryLockTimeout attempts to acquire the write lock, giving up after d (or
// sooner if ctx is done). It reports whether the lock was acquired.
func (m *ReentrantRWMutex) TryLockTimeout(ctx context.Context, d time.Duration) bool {
	ok, _ := m.sync.TryAcquireNanos(ctx, 1, d)
	return ok
}

// Unlock releases one level of write-lock reentrancy. It panics (via
// TryRelease) if the calling goroutine does not hold the write lock.
func (m *ReentrantRWMutex) Unlock() { m.sync.Release(1) }

// RLock acquires a read lock, blocking uninterruptibly.
func (m *ReentrantRWMutex) RLock() { m.sync.AcquireShared(1) }

// RLockContext is RLock's interruptible counterpart.
func (m *ReentrantRWMutex) RLockContext(ctx context.Context) error {
	return m.sync.AcquireSharedInterruptibly(ctx, 1)
}

// TryRLock acquires a read lock without blocking.
func (m *ReentrantRWMutex) TryRLock() bool { return m.TryAcquireShared(1) >= 0 }

// RUnlock releases a read lock.
func (m *ReentrantRWMutex) RUnlock() { m.sync.ReleaseShared(1) }

// NewCond returns a Condition bound to the write lock: Await may only be
// called while the write lock is held (spec.md §4.6).
func (m *ReentrantRWMutex) NewCond() *aqs.Condition { return m.sync.NewCondition() }

// HasQueuedThreads reports whether any goroutine is waiting on this lock.
func (m *ReentrantRWMutex) HasQueuedThreads() bool { return m.sync.HasQueuedThreads() }

// GetQueueLength estimates the number of goroutines waiting on this lock.
func (m *ReentrantRWMutex) GetQueueLength() int { return m.sync.GetQueueLength() }

// GetFirstQueuedThread returns the identity of the goroutine that has
// waited longest for this lock, and whether any goroutine is waiting at all.
func (m *ReentrantRWMutex) GetFirstQueuedThread() (uint64, bool) {
	return m.sync.GetFirstQueuedThread()
}

// IsQueued reports whether the goroutine identified by thread is currently
// waiting for this lock.
func (m *ReentrantRWMutex) IsQueued(thread uint64) bool { return m.sync.IsQueued(thread) }

// ---- aqs.Synchronizer ----

// TryAcquire implements aqs.Synchronizer for the exclusive (write) side.
//
// arg is not always 1: Condition.Await fully releases the lock down to a
// saved packed state and later reacquires with that same saved value passed
// straight through as arg (aqs's acquireQueued calls TryAcquire(arg)
// unchanged). When the lock is currently free, CASing state directly to arg
// restores that saved packed state (writer count and any reader count the
// same goroutine held from a read-lock downgrade) in a single step, exactly
// as java.util.concurrent.locks.ReentrantReadWriteLock.Sync's
// nonfairTryAcquire/tryRelease treat the whole state word as one integer
// rather than splitting it apart. Ordinary Lock() calls always pass arg=1.
func (m *ReentrantRWMutex) TryAcquire(arg int64) bool {
	gid := aqs.CurrentGoroutineID()
	for {
		state := m.sync.GetState()
		w := writerCount(state)
		r := readerCount(state)

		if w == 0 && r == 0 {
			if m.fair && m.sync.HasQueuedPredecessors() {
				return false
			}
			next := uint32(arg)
			if m.sync.CompareAndSwapState(state, next) {
				m.owner.Store(gid)
				return true
			}
			continue
		}

		if w > 0 && m.owner.Load() == gid {
			newW := uint64(w) + uint64(arg)
			if newW > maxHolders {
				panic(&aqs.CapacityOverflowError{Limit: maxHolders})
			}
			if m.sync.CompareAndSwapState(state, withWriterCount(state, uint32(newW))) {
				return true
			}
			continue
		}

		return false
	}
}

// TryRelease implements aqs.Synchronizer for the exclusive (write) side.
//
// arg is subtracted from the whole packed state, not just the writer-count
// field, for the same reason TryAcquire's free branch restores the whole
// packed state: Condition.Await releases with arg set to the full saved
// state (reader bits included), so state - arg lands back at exactly 0.
// This is safe because no other goroutine can touch the reader bits while
// this goroutine holds the write lock (TryAcquireShared refuses any other
// caller while a writer other than itself is held). Ordinary Unlock() calls
// always pass arg=1, which only ever decrements the writer-count field since
// it is checked non-zero first.
func (m *ReentrantRWMutex) TryRelease(arg int64) bool {
	for {
		state := m.sync.GetState()
		w := writerCount(state)
		if w == 0 || m.owner.Load() != aqs.CurrentGoroutineID() {
			panic(&aqs.MonitorStateError{Op: "Unlock"})
		}
		next := uint32(int64(state) - arg)
		free := writerCount(next) == 0
		if !m.sync.CompareAndSwapState(state, next) {
			continue
		}
		if free {
			m.owner.Store(0)
		}
		return free
	}
}

// TryAcquireShared implements aqs.Synchronizer for the shared (read) side.
// A goroutine already holding the write lock may also take read locks.
func (m *ReentrantRWMutex) TryAcquireShared(arg int64) int64 {
	gid := aqs.CurrentGoroutineID()
	for {
		state := m.sync.GetState()
		w := writerCount(state)
		if w > 0 && m.owner.Load() != gid {
			return -1
		}

		r := readerCount(state)
		if r == maxHolders {
			panic(&aqs.CapacityOverflowError{Limit: maxHolders})
		}
		if m.fair && w == 0 && m.sync.HasQueuedPredecessors() {
			return -1
		}

		if m.sync.CompareAndSwapState(state, withReaderCount(state, r+1)) {
			if r+1 < maxHolders {
				return 1
			}
			return 0
		}
	}
}

// TryReleaseShared implements aqs.Synchronizer for the shared (read) side.
func (m *ReentrantRWMutex) TryReleaseShared(arg int64) bool {
	for {
		state := m.sync.GetState()
		r := readerCount(state)
		if r == 0 {
			panic(&aqs.MonitorStateError{Op: "RUnlock"})
		}
		if m.sync.CompareAndSwapState(state, withReaderCount(state, r-1)) {
			return true
		}
	}
}

// IsHeldExclusively implements aqs.Synchronizer, used only by Condition.
func (m *ReentrantRWMutex) IsHeldExclusively() bool {
	return writerCount(m.sync.GetState()) > 0 && m.owner.Load() == aqs.CurrentGoroutineID()
}
