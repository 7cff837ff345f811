package rwmutex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-aqs/aqs/aqs"
)

func TestStateEncodingRoundTrips(t *testing.T) {
	var state uint32
	state = withWriterCount(state, 3)
	state = withReaderCount(state, 7)
	assert.Equal(t, uint32(3), writerCount(state))
	assert.Equal(t, uint32(7), readerCount(state))

	state = withWriterCount(state, 0)
	assert.Equal(t, uint32(0), writerCount(state))
	assert.Equal(t, uint32(7), readerCount(state), "changing writer count must not disturb reader count")
}

func TestLockUnlockUncontended(t *testing.T) {
	m := New()
	m.Lock()
	assert.True(t, m.IsHeldExclusively())
	m.Unlock()
	assert.False(t, m.IsHeldExclusively())
}

func TestLockIsReentrant(t *testing.T) {
	m := New()
	m.Lock()
	m.Lock()
	m.Unlock()
	assert.True(t, m.IsHeldExclusively(), "one Unlock after two Locks must still hold the write lock")
	m.Unlock()
	assert.False(t, m.IsHeldExclusively())
}

func TestUnlockWithoutLockPanics(t *testing.T) {
	m := New()
	assert.Panics(t, func() { m.Unlock() })
}

func TestRUnlockWithoutRLockPanics(t *testing.T) {
	m := New()
	assert.Panics(t, func() { m.RUnlock() })
}

func TestWriteLockExcludesReaders(t *testing.T) {
	m := New()
	m.Lock()

	gotLock := make(chan struct{})
	go func() {
		m.RLock()
		close(gotLock)
	}()

	require.Eventually(t, m.HasQueuedThreads, time.Second, time.Millisecond)
	select {
	case <-gotLock:
		t.Fatal("RLock proceeded while the write lock was held")
	case <-time.After(10 * time.Millisecond):
	}

	m.Unlock()
	select {
	case <-gotLock:
	case <-time.After(time.Second):
		t.Fatal("RLock never woke after Unlock")
	}
	m.RUnlock()
}

func TestWriteHolderMayAlsoReadLock(t *testing.T) {
	m := New()
	m.Lock()
	assert.True(t, m.TryRLock(), "a goroutine holding the write lock must be able to take a read lock too")
	m.RUnlock()
	m.Unlock()
}

func TestTryLockTimeoutGivesUp(t *testing.T) {
	m := New()
	m.Lock()

	start := time.Now()
	ok := m.TryLockTimeout(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	m.Unlock()
}

func TestLockContextHonorsCancellation(t *testing.T) {
	m := New()
	m.Lock()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.LockContext(ctx) }()

	require.Eventually(t, m.HasQueuedThreads, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("LockContext never returned after cancellation")
	}
	m.Unlock()
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	m := New()
	var counter int64
	var lastSeen int64
	var mu sync.Mutex

	const writers = 8
	const readers = 8
	const itersEach = 100

	var wg sync.WaitGroup
	wg.Add(writers + readers)

	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < itersEach; j++ {
				m.Lock()
				atomic.AddInt64(&counter, 1)
				m.Unlock()
			}
		}()
	}
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < itersEach; j++ {
				m.RLock()
				v := atomic.LoadInt64(&counter)
				mu.Lock()
				if v < lastSeen {
					mu.Unlock()
					t.Errorf("observed counter go backwards: %d then %d", lastSeen, v)
					return
				}
				lastSeen = v
				mu.Unlock()
				m.RUnlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(writers*itersEach), counter)
}

func TestFairModeQueuesFreshAcquirersBehindWaiters(t *testing.T) {
	m := NewFair()

	// The holder takes only a read lock, so a barging lock would let a fresh
	// reader straight in; only the fair-mode HasQueuedPredecessors check can
	// make the TryRLock below fail. The holder and the queued writer run on
	// goroutines distinct from the one issuing that TryRLock.
	owner := make(chan struct{})
	release := make(chan struct{})
	go func() {
		m.RLock()
		close(owner)
		<-release
		m.RUnlock()
	}()
	<-owner

	firstWaiting := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		close(firstWaiting)
		m.Lock()
		close(firstDone)
		m.Unlock()
	}()
	<-firstWaiting
	require.Eventually(t, m.HasQueuedThreads, time.Second, time.Millisecond)

	// A fresh TryRLock from this (third, distinct) goroutine must not barge
	// ahead of the already-queued writer.
	assert.False(t, m.TryRLock())

	close(release)
	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("queued waiter never acquired the fair lock")
	}
}

func TestConditionAwaitAndSignal(t *testing.T) {
	m := New()
	cond := m.NewCond()

	var ready, parked atomic.Bool
	done := make(chan struct{})

	go func() {
		m.Lock()
		for !ready.Load() {
			parked.Store(true)
			require.NoError(t, cond.Await(context.Background()))
		}
		m.Unlock()
		close(done)
	}()

	require.Eventually(t, parked.Load, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	m.Lock()
	ready.Store(true)
	cond.Signal()
	m.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke from Condition.Signal")
	}
}

// TestConditionAwaitAcrossReentrantHold guards against Await only undoing
// one level of a reentrant write-lock hold: Await must fully release (and
// later fully restore) the lock regardless of how many times Lock was
// called first, or the first Release it issues internally would fail to
// reach zero and panic with a monitor-state error.
func TestConditionAwaitAcrossReentrantHold(t *testing.T) {
	m := New()
	cond := m.NewCond()

	var ready, parked atomic.Bool
	done := make(chan struct{})

	go func() {
		m.Lock()
		m.Lock()
		m.Lock()
		for !ready.Load() {
			parked.Store(true)
			require.NoError(t, cond.Await(context.Background()))
		}
		assert.True(t, m.IsHeldExclusively(), "Await must restore the full reentrant depth on return")
		m.Unlock()
		m.Unlock()
		m.Unlock()
		assert.False(t, m.IsHeldExclusively())
		close(done)
	}()

	require.Eventually(t, parked.Load, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	m.Lock()
	ready.Store(true)
	cond.Signal()
	m.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter with a reentrant hold never woke from Condition.Signal")
	}
}

func TestGetFirstQueuedThreadAndIsQueued(t *testing.T) {
	m := New()
	m.Lock()

	waiterID := make(chan uint64, 1)
	started := make(chan struct{})
	go func() {
		waiterID <- aqs.CurrentGoroutineID()
		close(started)
		m.Lock()
		m.Unlock()
	}()
	<-started

	require.Eventually(t, m.HasQueuedThreads, time.Second, time.Millisecond)
	id := <-waiterID

	first, ok := m.GetFirstQueuedThread()
	require.True(t, ok)
	assert.Equal(t, id, first)
	assert.True(t, m.IsQueued(id))
	assert.False(t, m.IsQueued(aqs.CurrentGoroutineID()))

	m.Unlock()
}
