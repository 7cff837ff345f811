package aqs

import "sync/atomic"

// mode distinguishes exclusive waiters (at most one holder) from shared
// waiters (multiple holders may be released together).
type mode uint8

const (
	exclusive mode = iota
	shared
)

// waitStatus values for node.status. Mirrors the AQS wait-status lattice:
// a fresh node starts at statusNew; a successor CASes its predecessor to
// statusSignal to claim the "wake me on release" obligation; a node cancels
// itself by writing statusCancelled; condition-queue residence is
// statusCondition; statusPropagate forces continued shared-release
// propagation even when no immediate successor appears to need it.
type waitStatus int32

const (
	statusNew       waitStatus = 0
	statusSignal    waitStatus = -1
	statusCancelled waitStatus = 1
	statusCondition waitStatus = -2
	statusPropagate waitStatus = -3
)

// node is a single waiter on a Sync's wait queue (or, while its status is
// statusCondition, on a Condition's single-linked wait list instead).
//
// prev and next form the doubly linked sync queue; only prev is load-bearing
// for the acquire protocol, next is an optimization that traversals must
// treat as possibly stale (see the tail-to-head prev scans in queue.go's
// unparkSuccessor and isOnSyncQueue).
// condNext is used only while the node lives on a condition queue, which
// (per spec) is touched only by goroutines holding the synchronizer's
// exclusive state, so it needs no atomic access.
type node struct {
	prev   atomic.Pointer[node]
	next   atomic.Pointer[node]
	status atomic.Int32 // waitStatus, CASed by predecessor/successor/self

	mode   mode
	thread uint64 // goroutine id of the waiter this node represents; the AQS Node.thread analogue

	park *parker // permit used to block/unblock the owning goroutine; nil once the node becomes head

	condNext *node // next waiter on a Condition's list; nil off-list
}

func newNode(m mode) *node {
	n := &node{mode: m, thread: CurrentGoroutineID()}
	n.park = newParker()
	n.status.Store(int32(statusNew))
	return n
}

func (n *node) loadStatus() waitStatus {
	return waitStatus(n.status.Load())
}

func (n *node) casStatus(old, new waitStatus) bool {
	return n.status.CompareAndSwap(int32(old), int32(new))
}

func (n *node) storeStatus(s waitStatus) {
	n.status.Store(int32(s))
}
