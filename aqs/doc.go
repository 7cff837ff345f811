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

// Package aqs implements a reusable kernel for building blocking locks and
// semaphore-like synchronizers on top of a single atomic word of
// caller-defined state, modeled on java.util.concurrent's
// AbstractQueuedSynchronizer.
//
// A synchronizer embeds a Sync and supplies a small set of template methods
// (TryAcquire, TryRelease, TryAcquireShared, TryReleaseShared,
// IsHeldExclusively) via the Synchronizer interface. Sync supplies the hard
// part: a lock-free FIFO wait queue, park/unpark of blocked goroutines,
// cancellation, timed and interruptible acquisition, and per-synchronizer
// condition queues.
//
// Sync treats the state word as opaque. It never interprets the bits; it
// only CASes them on the caller's behalf and parks/wakes goroutines around
// the caller's TryAcquire/TryRelease decisions. See the rwmutex and pool
// packages for two worked examples of state encodings.
package aqs
