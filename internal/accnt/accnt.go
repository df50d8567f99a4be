// Package accnt accumulates per-process CPU usage accounting, adapted
// from biscuit/src/accnt/accnt.go. The runtime.Gptr/Setgptr
// current-goroutine hook the teacher's tinfo package layers on top of
// this is a patched-Go-runtime trick with no stand-in in a normal
// toolchain, so it is not carried here (see DESIGN.md); accnt itself is
// plain enough to need nothing special.
package accnt

import (
	"sync"
	"time"

	"rvkernel/internal/util"
)

// Accnt holds a process's accumulated user/system time, in nanoseconds.
type Accnt struct {
	mu      sync.Mutex
	Userns  int64
	Sysns   int64
}

// New returns a zeroed accounting record.
func New() *Accnt { return &Accnt{} }

// Utadd adds delta nanoseconds of user time.
func (a *Accnt) Utadd(delta int64) {
	a.mu.Lock()
	a.Userns += delta
	a.mu.Unlock()
}

// Systadd adds delta nanoseconds of system time.
func (a *Accnt) Systadd(delta int64) {
	a.mu.Lock()
	a.Sysns += delta
	a.mu.Unlock()
}

// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt) Now() int64 { return time.Now().UnixNano() }

// IOTime removes time spent waiting for I/O from system time (the
// syscall handler bracketing the wait calls this with the timestamp it
// recorded before the wait began).
func (a *Accnt) IOTime(since int64) {
	a.Systadd(since - a.Now())
}

// SleepTime removes time spent asleep from system time.
func (a *Accnt) SleepTime(since int64) {
	a.Systadd(since - a.Now())
}

// Finish adds the time elapsed since inttime to system time.
func (a *Accnt) Finish(inttime int64) {
	a.Systadd(a.Now() - inttime)
}

// Add merges n's counters into a, the way a parent absorbs a reaped
// child's usage (process.Reap).
func (a *Accnt) Add(n *Accnt) {
	n.mu.Lock()
	un, sn := n.Userns, n.Sysns
	n.mu.Unlock()

	a.mu.Lock()
	a.Userns += un
	a.Sysns += sn
	a.mu.Unlock()
}

// rusageWords is the number of 8-byte fields this kernel's rusage
// encoding carries: user {sec,usec}, sys {sec,usec}.
const rusageWords = 4

// ToRusage serializes the accounting record as a getrusage-style struct
// (two timeval pairs), matching the teacher's wire layout.
func (a *Accnt) ToRusage() []byte {
	a.mu.Lock()
	userns, sysns := a.Userns, a.Sysns
	a.mu.Unlock()

	ret := make([]byte, rusageWords*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	s, us := totv(userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}
