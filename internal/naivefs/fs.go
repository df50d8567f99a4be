package naivefs

import (
	"context"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/errno"
)

// File type constants used in RawDirEntry.FileType, matching ext2's
// convention the spec's directory layout borrows.
const (
	FtUnknown uint8 = 0
	FtRegular uint8 = 1
	FtDir     uint8 = 2
	FtChar    uint8 = 3
)

// Filesystem is one mounted naive_fs volume: superblock, descriptor,
// block/inode allocators, and the backing block device (spec §4.E/§4.G's
// create_inode/load_inode/blk_size/blk_count contract).
type Filesystem struct {
	dev      blockdev.BlkDevice
	disk     *blockdev.Disk
	byteDisk *blockdev.ByteDisk

	sb   RawSuperBlk
	desc RawDescriptor

	blkSize int

	blkAlloc   *Allocator
	inodeAlloc *Allocator

	inodeTableBlk int
	rootID        uint16
}

// Mount reads the superblock/descriptor/bitmaps off dev and returns a
// ready-to-use filesystem. Block 0 holds the superblock immediately
// followed by the descriptor (spec §4.E's block layout table); blocks 1
// and 2 hold the block and inode bitmaps respectively.
func Mount(ctx context.Context, dev blockdev.BlkDevice, maxInFlight int64) (*Filesystem, errno.Errno) {
	disk := blockdev.NewDisk(dev, maxInFlight)
	bd := blockdev.NewByteDisk(disk, dev)
	blkSize := dev.BlkSize()

	blk0 := make([]byte, blkSize)
	if err := bd.ReadAt(ctx, 0, blk0); err != 0 {
		return nil, err
	}
	sb := SuperBlkFromBytes(blk0)
	desc := DescriptorFromBytes(blk0[SuperBlkSize:])

	blkBitmapRaw := make([]byte, blkSize)
	if err := bd.ReadAt(ctx, int64(desc.BlkBitmap)*int64(blkSize), blkBitmapRaw); err != 0 {
		return nil, err
	}
	inodeBitmapRaw := make([]byte, blkSize)
	if err := bd.ReadAt(ctx, int64(desc.InodeBitmap)*int64(blkSize), inodeBitmapRaw); err != 0 {
		return nil, err
	}

	blkAlloc := LoadAllocator(Addr(int64(desc.BlkBitmap)*int64(blkSize)), blkBitmapRaw, sb.BlksCount, desc.FreeBlksCount)
	inodeAlloc := LoadAllocator(Addr(int64(desc.InodeBitmap)*int64(blkSize)), inodeBitmapRaw, sb.InodesCount, desc.FreeInodesCount)

	fs := &Filesystem{
		dev: dev, disk: disk, byteDisk: bd,
		sb: sb, desc: desc, blkSize: blkSize,
		blkAlloc: blkAlloc, inodeAlloc: inodeAlloc,
		inodeTableBlk: int(desc.InodeTable),
		rootID:        1,
	}
	return fs, 0
}

// Format initializes a brand-new filesystem image on dev: writes a fresh
// superblock/descriptor, zeroes the bitmaps, reserves inode id 1 for the
// root directory, and creates its "." / ".." entries.
func Format(ctx context.Context, dev blockdev.BlkDevice, maxInFlight int64, inodesCount, blksCount uint16) (*Filesystem, errno.Errno) {
	disk := blockdev.NewDisk(dev, maxInFlight)
	bd := blockdev.NewByteDisk(disk, dev)
	blkSize := dev.BlkSize()

	inodeBlks := (int(inodesCount)*InodeSize + blkSize - 1) / blkSize
	desc := RawDescriptor{
		BlkBitmap:       1,
		InodeBitmap:     2,
		InodeTable:      3,
		FreeBlksCount:   blksCount,
		FreeInodesCount: inodesCount,
	}
	sb := RawSuperBlk{InodesCount: inodesCount, BlksCount: blksCount}

	blk0 := make([]byte, blkSize)
	copy(blk0, sb.ToBytes())
	copy(blk0[SuperBlkSize:], desc.ToBytes())
	if err := bd.WriteAt(ctx, 0, blk0); err != 0 {
		return nil, err
	}

	blkAlloc := NewAllocator(Addr(int64(desc.BlkBitmap)*int64(blkSize)), blksCount, blksCount)
	inodeAlloc := NewAllocator(Addr(int64(desc.InodeBitmap)*int64(blkSize)), inodesCount, inodesCount)

	// Reserve the metadata region (bitmaps, inode table) so the allocator
	// never hands those blocks out as data blocks; block 0 (the
	// superblock) is never produced by the allocator since its ids start
	// at 1.
	for i := 0; i < 2+inodeBlks; i++ {
		blkAlloc.Alloc()
	}

	fs := &Filesystem{
		dev: dev, disk: disk, byteDisk: bd,
		sb: sb, desc: desc, blkSize: blkSize,
		blkAlloc: blkAlloc, inodeAlloc: inodeAlloc,
		inodeTableBlk: int(desc.InodeTable),
	}

	rootID, ok := fs.inodeAlloc.Alloc()
	if !ok {
		return nil, errno.ENOSPC
	}
	fs.rootID = rootID
	root, err := fs.loadInodeSlot(rootID)
	if err != 0 {
		return nil, err
	}
	root.raw.Mutate(func(r *rawInodeSyncable) {
		r.inode.Mode = 0o755
		r.inode.LinksCount = 1
	})
	if err := fs.AppendDot(ctx, root, rootID); err != 0 {
		return nil, err
	}
	if err := fs.syncMeta(ctx); err != 0 {
		return nil, err
	}
	if err := root.Sync(ctx); err != 0 {
		return nil, err
	}
	return fs, 0
}

func (fs *Filesystem) syncMeta(ctx context.Context) errno.Errno {
	if err := fs.blkAlloc.bm.Sync(ctx, fs.byteDisk); err != 0 {
		return err
	}
	return fs.inodeAlloc.bm.Sync(ctx, fs.byteDisk)
}

func (fs *Filesystem) readBlk(blk int, buf []byte) errno.Errno {
	return fs.disk.ReadBlkSync(context.Background(), blk, buf)
}

func (fs *Filesystem) writeBlk(blk int, buf []byte) errno.Errno {
	return fs.disk.WriteBlkSync(context.Background(), blk, buf)
}

func (fs *Filesystem) BlkSize() int  { return fs.blkSize }
func (fs *Filesystem) BlkCount() int { return fs.dev.BlkCount() }

// RootDirEntry returns the inode id of the filesystem's root directory.
func (fs *Filesystem) RootDirEntry() uint16 { return fs.rootID }

func (fs *Filesystem) inodeOffset(id uint16) int64 {
	slot := int(id - 1)
	return int64(fs.inodeTableBlk)*int64(fs.blkSize) + int64(slot)*int64(InodeSize)
}

func (fs *Filesystem) loadInodeSlot(id uint16) (*Inode, errno.Errno) {
	raw := make([]byte, InodeSize)
	if err := fs.byteDisk.ReadAt(context.Background(), fs.inodeOffset(id), raw); err != 0 {
		return nil, err
	}
	ri := InodeFromBytes(raw)
	md := NewMaybeDirty(Addr(fs.inodeOffset(id)), rawInodeSyncable{inode: ri})
	return &Inode{ID: id, fs: fs, raw: md}, 0
}

// LoadInode loads an existing inode by id.
func (fs *Filesystem) LoadInode(id uint16) (*Inode, errno.Errno) {
	return fs.loadInodeSlot(id)
}

// CreateInode allocates a fresh inode id and initializes a zeroed record
// of the given mode.
func (fs *Filesystem) CreateInode(mode uint16) (*Inode, errno.Errno) {
	id, ok := fs.inodeAlloc.Alloc()
	if !ok {
		return nil, errno.ENOSPC
	}
	ino, err := fs.loadInodeSlot(id)
	if err != 0 {
		return nil, err
	}
	ino.raw.Mutate(func(r *rawInodeSyncable) {
		r.inode = RawInode{Mode: mode, LinksCount: 1}
	})
	return ino, 0
}
