// Package sleeplock implements the async Mutex/RwLock the executor's
// cooperative tasks block on without parking the whole hart (spec
// §4.L). Grounded on original_source/crates/sleeplock/src/lib.rs's
// waker-queue design, adapted to Go by using
// golang.org/x/sync/semaphore.Weighted as the waker queue itself: its
// Acquire already blocks a goroutine until woken by a matching Release,
// FIFO-ordered, with context cancellation — exactly the waker contract
// the Rust crate hand-rolls with a SegQueue<Waker>.
package sleeplock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds how many readers an RwLock can admit at once; a
// writer acquires the full weight so it excludes every reader.
const maxReaders = 1 << 20

// Mutex is an async mutual-exclusion lock.
type Mutex struct {
	sem *semaphore.Weighted
}

// NewMutex creates an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Lock blocks the calling task (not the hart) until the lock is free or
// ctx is done.
func (m *Mutex) Lock(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// TryLock acquires the lock only if it is immediately available.
func (m *Mutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// Unlock releases the lock, waking the next waiter if any.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}

// RwLock is an async reader-writer lock: any number of readers, or
// exactly one writer, at a time.
type RwLock struct {
	sem *semaphore.Weighted
}

// NewRwLock creates an unlocked RwLock.
func NewRwLock() *RwLock {
	return &RwLock{sem: semaphore.NewWeighted(maxReaders)}
}

// RLock acquires one reader slot.
func (l *RwLock) RLock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// RUnlock releases one reader slot.
func (l *RwLock) RUnlock() { l.sem.Release(1) }

// Lock acquires the lock exclusively, excluding every reader and any
// other writer.
func (l *RwLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, maxReaders)
}

// Unlock releases an exclusive lock.
func (l *RwLock) Unlock() { l.sem.Release(maxReaders) }
