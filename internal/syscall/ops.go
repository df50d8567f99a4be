package syscall

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"

	"rvkernel/internal/errno"
	"rvkernel/internal/vfs"
)

// inodeFileOps adapts a vfs.Inode to proc.FileOps for a regular open
// file descriptor, tracking its own seek offset the way a Unix fd does.
type inodeFileOps struct {
	ino    vfs.Inode
	offset int64
}

func (o *inodeFileOps) ReadAt(buf []byte, off int64) (int, errno.Errno) {
	at := off
	if at < 0 {
		at = o.offset
	}
	n, err := o.ino.ReadAt(context.Background(), int(at), buf)
	if err == errno.UNKNOWN {
		o.offset = at + int64(n)
	}
	return n, err
}

func (o *inodeFileOps) WriteAt(buf []byte, off int64) (int, errno.Errno) {
	at := off
	if at < 0 {
		at = o.offset
	}
	n, err := o.ino.WriteAt(context.Background(), int(at), buf)
	if err == errno.UNKNOWN {
		o.offset = at + int64(n)
	}
	return n, err
}

func (o *inodeFileOps) Seek(off int64, whence int) (int64, errno.Errno) {
	switch whence {
	case 0:
		o.offset = off
	case 1:
		o.offset += off
	case 2:
		o.offset = int64(o.ino.Size()) + off
	default:
		return 0, errno.EINVAL
	}
	return o.offset, errno.UNKNOWN
}

func (o *inodeFileOps) Close() errno.Errno  { return errno.UNKNOWN }
func (o *inodeFileOps) Reopen() errno.Errno { return errno.UNKNOWN }

// rootInode returns the mounted filesystem's root directory inode.
func rootInode(t *Table) vfs.Inode {
	ino, _ := t.Fs.LoadInode(t.Fs.RootDirEntry())
	return ino
}

// dirname/basename split a slash-separated path into its parent
// components and final element, the way openat's path argument needs to
// be walked by Vfs.Find before the final Lookup/Create.
func dirname(path string) []string {
	path = strings.TrimPrefix(path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return nil
	}
	return strings.Split(path[:idx], "/")
}

func basename(path string) string {
	idx := strings.LastIndexByte(path, '/')
	return path[idx+1:]
}

// bytesReaderFrom wraps a byte slice as an io.ReaderAt for debug/elf.
func bytesReaderFrom(data []byte) io.ReaderAt {
	return bytes.NewReader(data)
}

var nextTid atomic.Uint64

func init() { nextTid.Store(1) } // tid 1 is reserved for the init process's main thread

func allocTid() uint64 { return nextTid.Add(1) }
