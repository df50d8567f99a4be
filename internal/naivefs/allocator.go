package naivefs

import (
	"context"

	"rvkernel/internal/bitmap"
	"rvkernel/internal/sleeplock"
)

// bitmapSyncable adapts *bitmap.Bitmap to the Syncable interface so it
// can be held inside a MaybeDirty.
type bitmapSyncable struct {
	bm *bitmap.Bitmap
}

func (b bitmapSyncable) ToBytes() []byte {
	out := make([]byte, (b.bm.Capacity()+7)/8)
	b.bm.ToBytesBE(out)
	return out
}

// Allocator hands out 1-based ids backed by a bitmap, ported from
// original_source/crates/naive_fs/src/allocator.rs. id 0 is reserved to
// mean "none". mu guards the bitmap and the nextID/free counters as one
// transaction, the "sleep-lock for block/inode bitmaps" spec §5 calls
// for (bm's own MaybeDirty lock only protects the bitmap bytes
// themselves, not these counters).
type Allocator struct {
	mu       *sleeplock.Mutex
	bm       *MaybeDirty[bitmapSyncable]
	nextID   uint16
	free     uint16
	capacity uint16
}

// NewAllocator creates an allocator over a fresh bitmap of the given
// capacity, with the given initial free-id count (normally == capacity).
func NewAllocator(addr Addr, capacity, free uint16) *Allocator {
	return &Allocator{
		mu:       sleeplock.NewMutex(),
		bm:       NewMaybeDirty(addr, bitmapSyncable{bm: bitmap.New(uint32(capacity))}),
		capacity: capacity,
		free:     free,
	}
}

// LoadAllocator reconstructs an allocator from an on-disk bitmap image.
func LoadAllocator(addr Addr, raw []byte, capacity, free uint16) *Allocator {
	bm := bitmap.FromBytesBE(raw, uint32(capacity))
	return &Allocator{mu: sleeplock.NewMutex(), bm: NewMaybeDirty(addr, bitmapSyncable{bm: bm}), capacity: capacity, free: free}
}

// Contains reports whether id is currently allocated.
func (a *Allocator) Contains(id uint16) bool {
	if id == 0 {
		return false
	}
	a.mu.Lock(context.Background())
	defer a.mu.Unlock()
	return a.bm.Get().bm.Test(uint32(id - 1))
}

// Free returns the number of unassigned ids.
func (a *Allocator) Free() uint16 {
	a.mu.Lock(context.Background())
	defer a.mu.Unlock()
	return a.free
}

// Alloc reserves and returns a fresh 1-based id, or (0, false) if none
// remain.
func (a *Allocator) Alloc() (uint16, bool) {
	a.mu.Lock(context.Background())
	defer a.mu.Unlock()

	if a.free == 0 {
		return 0, false
	}
	id := a.nextID
	if id >= a.capacity {
		id = 0
	}

	var taken bool
	a.bm.Mutate(func(bs *bitmapSyncable) {
		taken = bs.bm.TestAndSet(uint32(id), true)
	})
	if taken {
		next, ok := a.bm.Get().bm.FindNextZero(uint32(id), nil)
		if !ok {
			next, ok = a.bm.Get().bm.FindNextZero(0, nil)
			if !ok {
				return 0, false
			}
		}
		id = uint16(next)
		a.bm.Mutate(func(bs *bitmapSyncable) {
			bs.bm.TestAndSet(uint32(id), true)
		})
	}
	a.nextID = id + 1
	a.free--
	return id + 1, true
}

// Dealloc releases id. Returns false if id was already free or never
// allocated.
func (a *Allocator) Dealloc(id uint16) bool {
	if id == 0 {
		return false
	}
	id--
	a.mu.Lock(context.Background())
	defer a.mu.Unlock()
	var was bool
	a.bm.Mutate(func(bs *bitmapSyncable) {
		was = bs.bm.TestAndSet(uint32(id), false)
	})
	if was {
		a.free++
		if a.nextID == id+1 {
			a.nextID--
		}
	}
	return was
}
