package aqs

// This file implements the CLH-variant sync queue: lazy head
// initialization, lock-free enqueue via CAS on tail, and the splice-out
// logic used by cancellation and unparking. See spec.md §3 and §4.2.

// addWaiter allocates a node in the given mode for the calling goroutine
// and links it onto the tail of the sync queue.
func (s *Sync) addWaiter(m mode) *node {
	n := newNode(m)
	s.enqueueNode(n)
	return n
}

// enqueueNode links an already-allocated node onto the tail of the sync
// queue and returns its predecessor. Used both for fresh waiters (addWaiter)
// and for nodes transferred in from a Condition's wait list
// (transferForSignal), which is why it takes a *node rather than allocating
// one itself.
func (s *Sync) enqueueNode(n *node) *node {
	t := s.tail.Load()
	if t != nil {
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return t
		}
	}
	return s.enqueue(n)
}

// enqueue is the slow path: it lazily installs the dummy head/tail sentinel
// if the queue has never been touched, then retries the tail CAS. Per
// spec.md §4.2, prev is set before the tail CAS so that a concurrent
// cancellation walk can always find its way past a losing node even though
// next has not been linked yet.
func (s *Sync) enqueue(n *node) *node {
	for {
		t := s.tail.Load()
		if t == nil {
			h := newNode(exclusive)
			h.park = nil // sentinel: no owning goroutine
			if s.head.CompareAndSwap(nil, h) {
				s.tail.Store(h)
			}
			continue
		}
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return t
		}
	}
}

// setHead installs n as the new head sentinel. Only the goroutine whose
// node has just acquired the synchronizer may call this; it clears the
// fields that mark n as a live waiter, since the head is never parked.
func (s *Sync) setHead(n *node) {
	s.head.Store(n)
	n.park = nil
	n.prev.Store(nil)
}

// shouldParkAfterFailedAcquire inspects pred's wait status after a failed
// try-acquire and decides whether the caller should park. If pred is
// cancelled, it is spliced out by walking prev until a live predecessor is
// found (spec.md §4.3 step 3b); this splice is why prev, not next, is the
// load-bearing queue pointer.
func (s *Sync) shouldParkAfterFailedAcquire(pred, n *node) bool {
	ws := pred.loadStatus()
	if ws == statusSignal {
		return true
	}
	if ws > 0 {
		for ws > 0 {
			pred = pred.prev.Load()
			ws = pred.loadStatus()
		}
		n.prev.Store(pred)
		pred.next.Store(n)
		return false
	}
	pred.casStatus(ws, statusSignal)
	return false
}

// unparkSuccessor wakes n's successor, or (if next is nil or cancelled) the
// nearest live node found by scanning back from tail, since next may not
// yet be linked for a node mid-enqueue.
func (s *Sync) unparkSuccessor(n *node) {
	ws := n.loadStatus()
	if ws < 0 {
		n.casStatus(ws, statusNew)
	}

	succ := n.next.Load()
	if succ == nil || succ.loadStatus() > 0 {
		succ = nil
		for p := s.tail.Load(); p != nil && p != n; p = p.prev.Load() {
			if p.loadStatus() <= 0 {
				succ = p
			}
		}
	}
	if succ != nil && succ.park != nil {
		succ.park.unpark()
	}
}

// cancelAcquire marks n cancelled and removes it from the queue (or, if it
// cannot be unlinked cleanly, wakes its successor so that goroutine can
// re-stabilize the queue itself). See spec.md §4.5.
func (s *Sync) cancelAcquire(n *node) {
	if n == nil {
		return
	}
	n.park = nil

	pred := n.prev.Load()
	for pred.loadStatus() > 0 {
		pred = pred.prev.Load()
	}
	n.prev.Store(pred)

	predNext := pred.next.Load()
	n.storeStatus(statusCancelled)

	if n == s.tail.Load() && s.tail.CompareAndSwap(n, pred) {
		pred.next.CompareAndSwap(predNext, nil)
	} else {
		var ws waitStatus
		canSignalPred := pred != s.head.Load() && pred.park != nil &&
			func() bool {
				ws = pred.loadStatus()
				return ws == statusSignal || (ws <= 0 && pred.casStatus(ws, statusSignal))
			}()
		if canSignalPred {
			next := n.next.Load()
			if next != nil && next.loadStatus() <= 0 {
				pred.next.CompareAndSwap(predNext, next)
			}
		} else {
			s.unparkSuccessor(n)
		}
	}

	n.next.Store(n) // GC/traversal hint: cancelled nodes point to themselves
}

// isOnSyncQueue reports whether n has been transferred onto the sync queue
// (as opposed to still sitting on a Condition's wait list). A node that is
// still CONDITION-tagged, or that has never had prev set, cannot be on the
// sync queue yet. If next looks unset (an enqueue may be mid-flight), fall
// back to a tail-to-head scan, which is always eventually consistent.
func (s *Sync) isOnSyncQueue(n *node) bool {
	if n.loadStatus() == statusCondition || n.prev.Load() == nil {
		return false
	}
	if n.next.Load() != nil {
		return true
	}
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p == n {
			return true
		}
	}
	return false
}

// findFirstQueuedNode returns the node nearest to head in the queue by
// scanning back from tail via prev, which (unlike next) is always
// consistent for an enqueued node. Returns nil if the queue has no waiters.
func (s *Sync) findFirstQueuedNode() *node {
	h := s.head.Load()
	t := s.tail.Load()
	var first *node
	for p := t; p != nil && p != h; p = p.prev.Load() {
		first = p
	}
	return first
}
