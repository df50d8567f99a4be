// Package devfs implements the in-memory device filesystem (spec §4.G):
// a fixed root directory plus a table of DevInodes, the most important
// being TtyInode. Grounded on biscuit/src/circbuf's ring-buffer shape
// (rvkernel/internal/circbuf) for the tty's input queue, and on
// golang.org/x/sys/unix's termios ioctl numbers for the command space
// TtyInode.Ioctl recognizes.
package devfs

import (
	"context"
	"sync"

	"golang.org/x/sys/unix"

	"rvkernel/internal/circbuf"
	"rvkernel/internal/errno"
	"rvkernel/internal/executor"
	"rvkernel/internal/vfs"
)

// DevInode is any fixed device node devfs serves (spec §4.G).
type DevInode interface {
	vfs.Inode
}

const (
	rootInodeID = 1
	ttyInodeID  = 2
)

// Fs is the device filesystem: one in-memory root directory whose
// entries were supplied at construction time, plus the fixed DevInode
// table (spec §4.G).
type Fs struct {
	entries []vfs.DirEntry
	nodes   map[uint64]DevInode
}

// New builds a devfs exposing exactly the inodes in nodes, plus "." and
// ".." in its root directory.
func New(nodes map[uint64]DevInode, names map[uint64]string) *Fs {
	fs := &Fs{nodes: nodes}
	fs.entries = append(fs.entries, vfs.DirEntry{InodeID: rootInodeID, Name: ".", FileType: vfs.FtDir})
	fs.entries = append(fs.entries, vfs.DirEntry{InodeID: rootInodeID, Name: "..", FileType: vfs.FtDir})
	for id, node := range nodes {
		ft := vfs.FtChar
		if node.Mode()&0xF000 == 0 {
			ft = vfs.FtChar
		}
		fs.entries = append(fs.entries, vfs.DirEntry{InodeID: id, Name: names[id], FileType: ft})
	}
	return fs
}

func (fs *Fs) RootDirEntry() uint64 { return rootInodeID }

func (fs *Fs) LoadInode(id uint64) (vfs.Inode, errno.Errno) {
	if id == rootInodeID {
		return &rootInode{fs: fs}, errno.UNKNOWN
	}
	n, ok := fs.nodes[id]
	if !ok {
		return nil, errno.ENOENT
	}
	return n, errno.UNKNOWN
}

// CreateInode is unsupported: devfs's node table is fixed at
// construction time (spec §4.G: "fixed table of DevInodes").
func (fs *Fs) CreateInode(mode uint16) (vfs.Inode, errno.Errno) {
	return nil, errno.EROFS
}

func (fs *Fs) BlkSize() int  { return 0 }
func (fs *Fs) BlkCount() int { return 0 }

// rootInode is the synthetic directory devfs presents at its root.
type rootInode struct{ fs *Fs }

func (r *rootInode) ID() uint64           { return rootInodeID }
func (r *rootInode) Size() uint64         { return 0 }
func (r *rootInode) Mode() uint16         { return 0o040755 }
func (r *rootInode) LinksCount() uint16   { return 2 }
func (r *rootInode) Chmod(uint16)         {}
func (r *rootInode) Chown(uint16, uint16) {}
func (r *rootInode) Link()                {}

func (r *rootInode) Unlink(ctx context.Context) errno.Errno { return errno.EROFS }

func (r *rootInode) ReadAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	return 0, errno.EINVAL
}
func (r *rootInode) WriteAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	return 0, errno.EROFS
}
func (r *rootInode) Sync(ctx context.Context) errno.Errno { return errno.UNKNOWN }

func (r *rootInode) AppendDot(ctx context.Context, parentID uint64) errno.Errno { return errno.EROFS }
func (r *rootInode) Append(ctx context.Context, childID uint64, name string, ft uint8) errno.Errno {
	return errno.EROFS
}
func (r *rootInode) Remove(ctx context.Context, name string) errno.Errno { return errno.EROFS }

func (r *rootInode) Lookup(ctx context.Context, name string) (vfs.DirEntry, errno.Errno) {
	for _, e := range r.fs.entries {
		if e.Name == name {
			return e, errno.UNKNOWN
		}
	}
	return vfs.DirEntry{}, errno.ENOENT
}

func (r *rootInode) Ls(ctx context.Context) ([]vfs.DirEntry, errno.Errno) {
	return append([]vfs.DirEntry(nil), r.fs.entries...), errno.UNKNOWN
}

func (r *rootInode) Ioctl(cmd uint64, arg uint64) (uint64, errno.Errno) { return 0, errno.ENOSYS }

// Writer is the console's print-through sink for tty output (spec
// §4.G: "synchronous print-through write_at"); stdout in the full
// kernel is the UART, a fake buffer in tests.
type Writer interface {
	Write(p []byte) (int, error)
}

// TtyInode implements a teletype device: an input ring buffer with
// wakers for blocked readers, synchronous print-through writes, and
// ioctl handling for termios and foreground-process-group commands
// (spec §4.G).
type TtyInode struct {
	mu      sync.Mutex
	in      *circbuf.Buf
	out     Writer
	waiters []*executor.Waker

	termios unix.Termios
	fgpgrp  int32
}

// NewTtyInode builds a tty backed by an input ring buffer of the given
// size, printing writes through to out.
func NewTtyInode(bufSize int, out Writer) *TtyInode {
	return &TtyInode{in: circbuf.New(bufSize), out: out}
}

func (t *TtyInode) ID() uint64         { return ttyInodeID }
func (t *TtyInode) Size() uint64       { return 0 }
func (t *TtyInode) Mode() uint16       { return 0o020666 }
func (t *TtyInode) LinksCount() uint16 { return 1 }
func (t *TtyInode) Chmod(uint16)       {}
func (t *TtyInode) Chown(uint16, uint16) {}
func (t *TtyInode) Link()              {}

func (t *TtyInode) Unlink(ctx context.Context) errno.Errno { return errno.EROFS }

// PushInput feeds bytes from the device (keyboard/UART rx) into the
// ring buffer and wakes any blocked readers.
func (t *TtyInode) PushInput(data []byte) {
	t.mu.Lock()
	t.in.Write(data)
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()
	for _, w := range waiters {
		w.Wake()
	}
}

// ReadAt drains available input into p. If none is available it returns
// EAGAIN, the syscall layer's cue to suspend the calling future; it
// registers no waker itself (RegisterWaiter does that).
func (t *TtyInode) ReadAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.in.Empty() {
		return 0, errno.EAGAIN
	}
	n := t.in.Read(p)
	return n, errno.UNKNOWN
}

// RegisterWaiter arranges for w to be woken the next time input arrives.
func (t *TtyInode) RegisterWaiter(w *executor.Waker) {
	t.mu.Lock()
	t.waiters = append(t.waiters, w)
	t.mu.Unlock()
}

// WriteAt prints straight through to the console (spec §4.G:
// "synchronous print-through write_at").
func (t *TtyInode) WriteAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	n, err := t.out.Write(p)
	if err != nil {
		return n, errno.EIO
	}
	return n, errno.UNKNOWN
}

func (t *TtyInode) Sync(ctx context.Context) errno.Errno { return errno.UNKNOWN }

func (t *TtyInode) AppendDot(ctx context.Context, parentID uint64) errno.Errno { return errno.ENOTDIR }
func (t *TtyInode) Append(ctx context.Context, childID uint64, name string, ft uint8) errno.Errno {
	return errno.ENOTDIR
}
func (t *TtyInode) Remove(ctx context.Context, name string) errno.Errno { return errno.ENOTDIR }
func (t *TtyInode) Lookup(ctx context.Context, name string) (vfs.DirEntry, errno.Errno) {
	return vfs.DirEntry{}, errno.ENOTDIR
}
func (t *TtyInode) Ls(ctx context.Context) ([]vfs.DirEntry, errno.Errno) { return nil, errno.ENOTDIR }

// Ioctl recognizes termios get/set and foreground-process-group get/set
// (spec §4.G: "termios and foreground-process-group commands"), using
// golang.org/x/sys/unix's numbering for the command space.
func (t *TtyInode) Ioctl(cmd uint64, arg uint64) (uint64, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch cmd {
	case unix.TCGETS:
		return uint64(t.termios.Iflag), errno.UNKNOWN
	case unix.TCSETS:
		t.termios.Iflag = uint32(arg)
		return 0, errno.UNKNOWN
	case unix.TIOCGPGRP:
		return uint64(t.fgpgrp), errno.UNKNOWN
	case unix.TIOCSPGRP:
		t.fgpgrp = int32(arg)
		return 0, errno.UNKNOWN
	default:
		return 0, errno.ENOSYS
	}
}
