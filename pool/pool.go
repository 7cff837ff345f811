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

// Package pool implements a bounded worker pool on top of the aqs kernel.
// A fixed number of slots is modeled as a counting semaphore in shared
// mode (state = permits remaining, per spec.md §3's counting-latch
// encoding); a second, exclusive-mode Sync with a bound Condition lets
// Wait block until every submitted task has completed, exercising both the
// shared-acquisition and condition-signaling paths the kernel offers (see
// spec.md §1's charter for the pool demonstrator).
package pool

import (
	"context"

	"github.com/go-aqs/aqs/aqs"
)

// slotSync is the shared-mode synchronizer backing a Pool's fixed slot
// count: a plain counting semaphore, state = permits remaining.
type slotSync struct {
	sync aqs.Sync
}

func (s *slotSync) TryAcquireShared(arg int64) int64 {
	for {
		cur := s.sync.GetState()
		remaining := int64(cur) - arg
		if remaining < 0 {
			return -1
		}
		if s.sync.CompareAndSwapState(cur, uint32(remaining)) {
			return remaining
		}
	}
}

func (s *slotSync) TryReleaseShared(arg int64) bool {
	for {
		cur := s.sync.GetState()
		next := int64(cur) + arg
		if s.sync.CompareAndSwapState(cur, uint32(next)) {
			return true
		}
	}
}

// slotSync never acquires or releases exclusively; Pool only ever drives it
// through the shared-mode entry points.
func (s *slotSync) TryAcquire(int64) bool     { return false }
func (s *slotSync) TryRelease(int64) bool     { return false }
func (s *slotSync) IsHeldExclusively() bool   { return false }

// drainLock is a plain, non-reentrant exclusive mutex used only to guard
// Pool's outstanding-task counter and the Condition signaled when it hits
// zero. It never needs reentrancy or owner tracking because Pool's own
// methods never nest a second Acquire while already holding it.
type drainLock struct {
	sync aqs.Sync
}

func (d *drainLock) TryAcquire(int64) bool    { return d.sync.CompareAndSwapState(0, 1) }
func (d *drainLock) TryRelease(int64) bool     { d.sync.SetState(0); return true }
func (d *drainLock) TryAcquireShared(int64) int64 { return -1 }
func (d *drainLock) TryReleaseShared(int64) bool  { return false }
func (d *drainLock) IsHeldExclusively() bool       { return d.sync.GetState() == 1 }

// Pool is a bounded worker pool: at most Cap() submitted functions run
// concurrently, and Wait blocks until all submitted work has finished.
type Pool struct {
	slots    slotSync
	capacity int

	drain       drainLock
	drainCond   *aqs.Condition
	outstanding int // guarded by drain
}

// NewPool returns a Pool with n execution slots. n must be positive.
func NewPool(n int) *Pool {
	if n <= 0 {
		panic("pool: capacity must be positive")
	}
	p := &Pool{capacity: n}
	p.slots.sync.Init(&p.slots)
	p.slots.sync.SetState(uint32(n))
	p.drain.sync.Init(&p.drain)
	p.drainCond = p.drain.sync.NewCondition()
	return p
}

// Submit blocks until a slot is free (or ctx is done), then runs fn in a
// new goroutine occupying that slot. It returns once fn has been
// dispatched, not once fn has completed; use Wait to block for drain.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	if err := p.slots.sync.AcquireSharedInterruptibly(ctx, 1); err != nil {
		return err
	}
	p.beginTask()
	go p.runTask(fn)
	return nil
}

// TrySubmit attempts to claim a slot without blocking. It reports whether
// fn was dispatched.
func (p *Pool) TrySubmit(fn func()) bool {
	ok, _ := p.slots.sync.TryAcquireSharedNanos(context.Background(), 1, 0)
	if !ok {
		return false
	}
	p.beginTask()
	go p.runTask(fn)
	return true
}

func (p *Pool) beginTask() {
	p.drain.sync.Acquire(1)
	p.outstanding++
	p.drain.sync.Release(1)
}

func (p *Pool) runTask(fn func()) {
	defer func() {
		p.slots.sync.ReleaseShared(1)
		p.drain.sync.Acquire(1)
		p.outstanding--
		if p.outstanding == 0 {
			p.drainCond.SignalAll()
		}
		p.drain.sync.Release(1)
	}()
	fn()
}

// Wait blocks until every dispatched task has completed, or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	if err := p.drain.sync.AcquireInterruptibly(ctx, 1); err != nil {
		return err
	}
	defer p.drain.sync.Release(1)
	for p.outstanding > 0 {
		if err := p.drainCond.Await(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of slots currently occupied by running tasks.
func (p *Pool) Len() int {
	return p.capacity - int(p.slots.sync.GetState())
}

// Cap reports the pool's total slot count.
func (p *Pool) Cap() int { return p.capacity }
