// Package irqlock implements the per-CPU interrupt-masking spinlock
// wrapper (spec §4.M), grounded on biscuit's own push_off/pop_off
// discipline used throughout biscuit/src/mem/mem.go and
// biscuit/src/kernel/kernel.go to guard data touched by both normal code
// and interrupt handlers. There is no real interrupt controller to mask
// in this hosted simulation, so "interrupts enabled" is tracked as a
// plain bool per simulated hart rather than a hardware CSR.
package irqlock

import "sync"

// Hart tracks one simulated hart's interrupt-disable nesting depth, the
// way biscuit tracks it per-CPU. Every IRQLock/RWLock in the kernel
// shares DefaultHart below, since spec §1 assumes a single hart.
type Hart struct {
	nestedOffDepth           int
	wereInterruptsEnabledAt0 bool
}

// pushOff disables interrupts, remembering the pre-existing state only
// at nesting depth 0.
func (h *Hart) pushOff(interruptsWereEnabled bool) {
	if h.nestedOffDepth == 0 {
		h.wereInterruptsEnabledAt0 = interruptsWereEnabled
	}
	h.nestedOffDepth++
}

// popOff restores interrupts to their pre-pushOff state once the
// nesting depth returns to zero, reporting whether interrupts are now
// enabled.
func (h *Hart) popOff() bool {
	h.nestedOffDepth--
	if h.nestedOffDepth < 0 {
		panic("irqlock: popOff without matching pushOff")
	}
	return h.nestedOffDepth == 0 && h.wereInterruptsEnabledAt0
}

// DefaultHart is the single simulated hart's interrupt-nesting state,
// shared by every lock constructed with NewLock/NewRWLock (spec §1: "the
// design assumes one hart").
var DefaultHart = &Hart{}

// IRQLock is a spinlock that also disables interrupts on the current
// hart for its critical section, re-enabling them only once the
// outermost nested lock is released.
type IRQLock struct {
	mu   sync.Mutex
	hart *Hart
}

// New creates a lock bound to a single simulated hart's interrupt state.
func New(hart *Hart) *IRQLock {
	return &IRQLock{hart: hart}
}

// NewLock creates an IRQLock bound to the kernel's single simulated
// hart, for callers that don't need a hart of their own.
func NewLock() *IRQLock {
	return New(DefaultHart)
}

// Lock acquires the spinlock after masking interrupts on this hart.
func (l *IRQLock) Lock() {
	l.hart.pushOff(true)
	l.mu.Lock()
}

// Unlock releases the spinlock and, if this was the outermost critical
// section, restores the hart's prior interrupt-enabled state.
func (l *IRQLock) Unlock() {
	if l.hart.nestedOffDepth == 0 {
		panic("irqlock: popOff without matching pushOff")
	}
	l.mu.Unlock()
	l.hart.popOff()
}

// RWLock is the reader/writer counterpart to IRQLock: any number of
// readers, or one writer, at a time, with interrupts masked on this
// hart for the duration of whichever critical section is held.
type RWLock struct {
	mu   sync.RWMutex
	hart *Hart
}

// NewRW creates a reader/writer lock bound to a single simulated hart's
// interrupt state.
func NewRW(hart *Hart) *RWLock {
	return &RWLock{hart: hart}
}

// NewRWLock creates an RWLock bound to the kernel's single simulated
// hart.
func NewRWLock() *RWLock {
	return NewRW(DefaultHart)
}

// Lock acquires the lock exclusively after masking interrupts.
func (l *RWLock) Lock() {
	l.hart.pushOff(true)
	l.mu.Lock()
}

// Unlock releases an exclusive lock, restoring interrupts once the
// outermost nested lock is released.
func (l *RWLock) Unlock() {
	l.mu.Unlock()
	l.hart.popOff()
}

// RLock acquires a shared read lock after masking interrupts.
func (l *RWLock) RLock() {
	l.hart.pushOff(true)
	l.mu.RLock()
}

// RUnlock releases a shared read lock, restoring interrupts once the
// outermost nested lock is released.
func (l *RWLock) RUnlock() {
	l.mu.RUnlock()
	l.hart.popOff()
}
