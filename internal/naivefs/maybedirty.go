// Package naivefs implements the on-disk inode filesystem (spec §4.E):
// superblock/descriptor layout, the id allocator, MaybeDirty write-back
// tracking, inode block-extent I/O, and directory entry operations.
// Grounded on biscuit/src/fs/super.go's field-accessor style for the raw
// on-disk structures and original_source/crates/naive_fs for the exact
// allocator and dirty-tracking semantics the spec leaves implicit.
package naivefs

import (
	"context"
	"sync/atomic"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/errno"
	"rvkernel/internal/sleeplock"
)

// Addr is the absolute byte offset of a value on disk.
type Addr int64

// Syncable is implemented by values MaybeDirty can write back.
type Syncable interface {
	ToBytes() []byte
}

// MaybeDirty wraps a value with a dirty flag and disk address (spec
// §4.E). Go has no Drop, so unlike the Rust original's drop-time
// assertion this relies on an explicit discipline: call MustClean before
// letting a MaybeDirty go out of scope, and it panics if the value is
// still dirty — the same "leaking a dirty value is a bug" contract,
// expressed without relying on a destructor.
type MaybeDirty[T Syncable] struct {
	mu      *sleeplock.Mutex // guards inner the way spec §5's "sleep-locks for inode raw data" calls for
	inner   T
	dirty   atomic.Bool
	Address Addr
}

// NewMaybeDirty wraps inner, initially clean, at the given address.
func NewMaybeDirty[T Syncable](addr Addr, inner T) *MaybeDirty[T] {
	return &MaybeDirty[T]{mu: sleeplock.NewMutex(), inner: inner, Address: addr}
}

// Get returns a read-only view of the wrapped value.
func (m *MaybeDirty[T]) Get() T {
	m.mu.Lock(context.Background())
	defer m.mu.Unlock()
	return m.inner
}

// Mutate runs f against the wrapped value and marks it dirty, the Go
// stand-in for the Rust original's DerefMut-sets-dirty behavior.
func (m *MaybeDirty[T]) Mutate(f func(*T)) {
	m.mu.Lock(context.Background())
	defer m.mu.Unlock()
	f(&m.inner)
	m.dirty.Store(true)
}

// IsDirty reports whether the value has unflushed changes.
func (m *MaybeDirty[T]) IsDirty() bool { return m.dirty.Load() }

// Sync writes the value to disk at Address iff dirty, then clears the
// flag.
func (m *MaybeDirty[T]) Sync(ctx context.Context, bd *blockdev.ByteDisk) errno.Errno {
	if err := m.mu.Lock(ctx); err != nil {
		return errno.EAGAIN
	}
	defer m.mu.Unlock()
	if !m.dirty.Load() {
		return 0
	}
	bytes := m.inner.ToBytes()
	if err := bd.WriteAt(ctx, int64(m.Address), bytes); err != 0 {
		return err
	}
	m.dirty.Store(false)
	return 0
}

// MustClean panics if the value still has unflushed changes. Callers
// that intentionally discard a MaybeDirty without writing it back
// (process teardown, error unwind) must call this first, matching the
// assertion the Rust original performs on drop.
func (m *MaybeDirty[T]) MustClean() {
	if m.dirty.Load() {
		panic("naivefs: MaybeDirty value dropped while dirty")
	}
}
