package aqs

import (
	"bytes"
	"runtime"
	"strconv"
)

// CurrentGoroutineID identifies the calling goroutine by parsing the header
// line of its own stack trace. Go has no public equivalent of
// Thread.currentThread(), and this is the well-known idiom libraries reach
// for instead. The kernel needs it for two things Java's AQS gets for free
// from Node.thread: telling a waiter's own front-of-queue node apart from a
// genuine predecessor in HasQueuedPredecessors, and identifying a goroutine
// by value for GetFirstQueuedThread/IsQueued.
func CurrentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
