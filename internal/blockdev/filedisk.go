package blockdev

import (
	"os"

	"golang.org/x/sys/unix"

	"rvkernel/internal/errno"
)

// FileDisk is a BlkDevice backed by a host file, used by cmd/kdriver and
// cmd/mkfs to run the filesystem against a real file instead of the
// in-memory disk used by unit tests. Uses unix.Pread/Pwrite directly on
// the file descriptor rather than os.File.ReadAt/WriteAt so that offset
// and short-read/short-write handling matches the raw syscall semantics
// the domain stack table calls for (grounded on the pack's use of
// golang.org/x/sys/unix for raw fd I/O, e.g. hanwen-go-fuse and
// tinyrange-cc).
type FileDisk struct {
	f        *os.File
	blkSize  int
	blkCount int
}

// OpenFileDisk opens path (must already be sized to blkCount*blkSize
// bytes, as produced by cmd/mkfs) as a block device.
func OpenFileDisk(path string, blkSize, blkCount int) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &FileDisk{f: f, blkSize: blkSize, blkCount: blkCount}, nil
}

func (fd *FileDisk) BlkSize() int  { return fd.blkSize }
func (fd *FileDisk) BlkCount() int { return fd.blkCount }

func (fd *FileDisk) ReadBlk(blk int, buf []byte) errno.Errno {
	if blk < 0 || blk >= fd.blkCount {
		return errno.EINVAL
	}
	off := int64(blk) * int64(fd.blkSize)
	n, err := unix.Pread(int(fd.f.Fd()), buf[:fd.blkSize], off)
	if err != nil || n != fd.blkSize {
		return errno.EIO
	}
	return 0
}

func (fd *FileDisk) WriteBlk(blk int, buf []byte) errno.Errno {
	if blk < 0 || blk >= fd.blkCount {
		return errno.EINVAL
	}
	off := int64(blk) * int64(fd.blkSize)
	n, err := unix.Pwrite(int(fd.f.Fd()), buf[:fd.blkSize], off)
	if err != nil || n != fd.blkSize {
		return errno.EIO
	}
	return 0
}

// Close releases the underlying file descriptor.
func (fd *FileDisk) Close() error { return fd.f.Close() }

// MemDisk is an in-memory BlkDevice used by unit tests that want a
// BlkDevice without touching the filesystem.
type MemDisk struct {
	blkSize int
	blocks  [][]byte
}

// NewMemDisk creates a zeroed in-memory disk of blkCount blocks.
func NewMemDisk(blkSize, blkCount int) *MemDisk {
	blocks := make([][]byte, blkCount)
	for i := range blocks {
		blocks[i] = make([]byte, blkSize)
	}
	return &MemDisk{blkSize: blkSize, blocks: blocks}
}

func (m *MemDisk) BlkSize() int  { return m.blkSize }
func (m *MemDisk) BlkCount() int { return len(m.blocks) }

func (m *MemDisk) ReadBlk(blk int, buf []byte) errno.Errno {
	if blk < 0 || blk >= len(m.blocks) {
		return errno.EINVAL
	}
	copy(buf, m.blocks[blk])
	return 0
}

func (m *MemDisk) WriteBlk(blk int, buf []byte) errno.Errno {
	if blk < 0 || blk >= len(m.blocks) {
		return errno.EINVAL
	}
	copy(m.blocks[blk], buf)
	return 0
}
