package naivefs

import (
	"context"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/errno"
)

// Blk is one physical-block extent yielded while iterating a byte range
// (spec §4.E). Len is always an explicit byte count; a "runs to end of
// block" extent just has Len == blkSize-Offset.
type Blk struct {
	BlkID  uint16
	Offset int
	Len    int
}

// Inode is a live, in-memory handle to one naive_fs inode.
type Inode struct {
	ID  uint16
	fs  *Filesystem
	raw *MaybeDirty[rawInodeSyncable]
}

type rawInodeSyncable struct {
	inode RawInode
}

func (r rawInodeSyncable) ToBytes() []byte { return r.inode.ToBytes() }

func (ino *Inode) Size() uint32       { return ino.raw.Get().inode.Size }
func (ino *Inode) LinksCount() uint16 { return ino.raw.Get().inode.LinksCount }
func (ino *Inode) Mode() uint16       { return ino.raw.Get().inode.Mode }

func (ino *Inode) Chmod(mode uint16) {
	ino.raw.Mutate(func(r *rawInodeSyncable) { r.inode.Mode = mode })
}

func (ino *Inode) Chown(uid, gid uint16) {
	ino.raw.Mutate(func(r *rawInodeSyncable) { r.inode.UID = uid; r.inode.GID = gid })
}

// Link increments the link count.
func (ino *Inode) Link() {
	ino.raw.Mutate(func(r *rawInodeSyncable) { r.inode.LinksCount++ })
}

// Unlink decrements the link count; at zero it frees every data block,
// the indirect block, and deallocates the inode id itself (spec §4.E).
func (ino *Inode) Unlink(ctx context.Context) errno.Errno {
	var links uint16
	ino.raw.Mutate(func(r *rawInodeSyncable) {
		if r.inode.LinksCount > 0 {
			r.inode.LinksCount--
		}
		links = r.inode.LinksCount
	})
	if links != 0 {
		return 0
	}
	ino.raw.Mutate(func(r *rawInodeSyncable) {
		for i := range r.inode.Direct {
			if r.inode.Direct[i] != 0 {
				ino.fs.blkAlloc.Dealloc(r.inode.Direct[i])
				r.inode.Direct[i] = 0
			}
		}
		if r.inode.Indirect != 0 {
			ino.freeIndirect(r.inode.Indirect)
			ino.fs.blkAlloc.Dealloc(r.inode.Indirect)
			r.inode.Indirect = 0
		}
	})
	ino.fs.inodeAlloc.Dealloc(ino.ID)
	return ino.Sync(ctx)
}

func (ino *Inode) freeIndirect(indirectBlk uint16) {
	n := ino.fs.blkSize / 2
	buf := make([]byte, ino.fs.blkSize)
	_ = ino.fs.readBlk(int(indirectBlk), buf)
	for i := 0; i < n; i++ {
		id := beOrLeUint16(buf, i*2)
		if id != 0 {
			ino.fs.blkAlloc.Dealloc(id)
		}
	}
}

func beOrLeUint16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func putUint16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

// IoBlks maps [offset, offset+length) to a sequence of physical-block
// extents. When orAlloc is true, any zero block id touched by the range
// is replaced with a fresh allocation, and the indirect block is
// allocated lazily on first use.
func (ino *Inode) IoBlks(offset, length int, orAlloc bool) ([]Blk, errno.Errno) {
	blkSize := ino.fs.blkSize
	idsPerIndirect := blkSize / 2
	directBytes := NDirect * blkSize

	var extents []Blk
	pos := offset
	end := offset + length
	for pos < end {
		blkIdx := pos / blkSize
		inBlk := pos % blkSize
		n := blkSize - inBlk
		if pos+n > end {
			n = end - pos
		}

		var id uint16
		if blkIdx < NDirect {
			id = ino.directAt(blkIdx)
			if id == 0 && orAlloc {
				newID, ok := ino.fs.blkAlloc.Alloc()
				if !ok {
					return extents, errno.ENOSPC
				}
				ino.setDirectAt(blkIdx, newID)
				id = newID
			}
		} else {
			indIdx := blkIdx - NDirect
			if indIdx >= idsPerIndirect {
				return extents, errno.EINVAL
			}
			indirectBlk := ino.raw.Get().inode.Indirect
			if indirectBlk == 0 && orAlloc {
				newInd, ok := ino.fs.blkAlloc.Alloc()
				if !ok {
					return extents, errno.ENOSPC
				}
				zero := make([]byte, blkSize)
				_ = ino.fs.writeBlk(int(newInd), zero)
				ino.raw.Mutate(func(r *rawInodeSyncable) { r.inode.Indirect = newInd })
				indirectBlk = newInd
			}
			if indirectBlk == 0 {
				id = 0
			} else {
				buf := make([]byte, blkSize)
				_ = ino.fs.readBlk(int(indirectBlk), buf)
				id = beOrLeUint16(buf, indIdx*2)
				if id == 0 && orAlloc {
					newID, ok := ino.fs.blkAlloc.Alloc()
					if !ok {
						return extents, errno.ENOSPC
					}
					putUint16(buf, indIdx*2, newID)
					_ = ino.fs.writeBlk(int(indirectBlk), buf)
					id = newID
				}
			}
		}
		extents = append(extents, Blk{BlkID: id, Offset: inBlk, Len: n})
		pos += n
		_ = directBytes
	}
	return extents, 0
}

func (ino *Inode) directAt(i int) uint16 { return ino.raw.Get().inode.Direct[i] }
func (ino *Inode) setDirectAt(i int, id uint16) {
	ino.raw.Mutate(func(r *rawInodeSyncable) { r.inode.Direct[i] = id })
}

// ReadAt reads len(p) bytes at offset, clamped to the inode's size.
// Holes (zero block ids) read back as zeros.
func (ino *Inode) ReadAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	size := int(ino.Size())
	if offset >= size {
		return 0, 0
	}
	length := len(p)
	if offset+length > size {
		length = size - offset
	}
	extents, err := ino.IoBlks(offset, length, false)
	if err != 0 {
		return 0, err
	}
	n := 0
	for _, e := range extents {
		if e.BlkID == 0 {
			for i := 0; i < e.Len; i++ {
				p[n+i] = 0
			}
		} else {
			buf := make([]byte, ino.fs.blkSize)
			if err := ino.fs.readBlk(int(e.BlkID), buf); err != 0 {
				return n, err
			}
			copy(p[n:n+e.Len], buf[e.Offset:e.Offset+e.Len])
		}
		n += e.Len
	}
	return n, 0
}

// WriteAt writes p at offset, growing size as needed.
func (ino *Inode) WriteAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	extents, err := ino.IoBlks(offset, len(p), true)
	if err != 0 {
		return 0, err
	}
	n := 0
	for _, e := range extents {
		buf := make([]byte, ino.fs.blkSize)
		if err := ino.fs.readBlk(int(e.BlkID), buf); err != 0 {
			return n, err
		}
		copy(buf[e.Offset:e.Offset+e.Len], p[n:n+e.Len])
		if err := ino.fs.writeBlk(int(e.BlkID), buf); err != 0 {
			return n, err
		}
		n += e.Len
	}
	newSize := offset + n
	if newSize > int(ino.Size()) {
		ino.raw.Mutate(func(r *rawInodeSyncable) { r.inode.Size = uint32(newSize) })
	}
	return n, 0
}

// Sync writes the inode's own record back if dirty.
func (ino *Inode) Sync(ctx context.Context) errno.Errno {
	return ino.raw.Sync(ctx, ino.fs.byteDisk)
}

var _ = blockdev.ByteDisk{}
