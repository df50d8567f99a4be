package proc

import (
	"sync"

	"rvkernel/internal/bpath"
	"rvkernel/internal/errno"
	"rvkernel/internal/irqlock"
	"rvkernel/internal/ustr"
)

// FdPerm mirrors fd.go's FD_READ/FD_WRITE/FD_CLOEXEC permission bits.
type FdPerm int

const (
	FdRead    FdPerm = 0x1
	FdWrite   FdPerm = 0x2
	FdCloexec FdPerm = 0x4
)

// FileOps is the operation set a descriptor dispatches into (read/write
// an inode, a pipe, a tty, ...). Grounded on fdops.Fdops_i's role in
// fd.Fd_t, narrowed to the operations this kernel's syscalls actually
// drive.
type FileOps interface {
	ReadAt(buf []byte, off int64) (int, errno.Errno)
	WriteAt(buf []byte, off int64) (int, errno.Errno)
	Seek(off int64, whence int) (int64, errno.Errno)
	Close() errno.Errno
	Reopen() errno.Errno
}

// Fd is one open file descriptor slot (grounded on fd.Fd_t).
type Fd struct {
	Ops   FileOps
	Perms FdPerm
}

// Copyfd duplicates fd by reopening its underlying ops (fd.Copyfd).
func Copyfd(fd *Fd) (*Fd, errno.Errno) {
	nfd := &Fd{}
	*nfd = *fd
	if err := nfd.Ops.Reopen(); err != errno.UNKNOWN {
		return nil, err
	}
	return nfd, errno.UNKNOWN
}

const maxOpenFiles = 64

// OpenFiles is a process's file descriptor table (grounded on fd.go's
// per-process table, guarded the way spec §5 calls for: "Open file
// table: IRQ-masking rwlock").
type OpenFiles struct {
	mu    *irqlock.RWLock
	slots [maxOpenFiles]*Fd
}

// NewOpenFiles returns an empty descriptor table.
func NewOpenFiles() *OpenFiles {
	return &OpenFiles{mu: irqlock.NewRWLock()}
}

// Install places fd in the lowest free slot and returns its number.
func (o *OpenFiles) Install(fd *Fd) (int, errno.Errno) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.slots {
		if s == nil {
			o.slots[i] = fd
			return i, errno.UNKNOWN
		}
	}
	return -1, errno.EMFILE
}

// InstallAt installs fd at a specific number, closing whatever was there
// (dup2/dup3 semantics).
func (o *OpenFiles) InstallAt(n int, fd *Fd) errno.Errno {
	if n < 0 || n >= maxOpenFiles {
		return errno.EBADF
	}
	o.mu.Lock()
	old := o.slots[n]
	o.slots[n] = fd
	o.mu.Unlock()
	if old != nil {
		old.Ops.Close()
	}
	return errno.UNKNOWN
}

// Get returns the descriptor at n.
func (o *OpenFiles) Get(n int) (*Fd, errno.Errno) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if n < 0 || n >= maxOpenFiles || o.slots[n] == nil {
		return nil, errno.EBADF
	}
	return o.slots[n], errno.UNKNOWN
}

// Close closes and clears slot n.
func (o *OpenFiles) Close(n int) errno.Errno {
	o.mu.Lock()
	if n < 0 || n >= maxOpenFiles || o.slots[n] == nil {
		o.mu.Unlock()
		return errno.EBADF
	}
	fd := o.slots[n]
	o.slots[n] = nil
	o.mu.Unlock()
	return fd.Ops.Close()
}

// Fork deep-copies every open slot by reopening its ops (spec §4.K:
// "cloned open files").
func (o *OpenFiles) Fork() *OpenFiles {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := NewOpenFiles()
	for i, s := range o.slots {
		if s == nil {
			continue
		}
		cp, err := Copyfd(s)
		if err != errno.UNKNOWN {
			continue
		}
		n.slots[i] = cp
	}
	return n
}

// Cwd tracks a process's current working directory (grounded on
// fd.Cwd_t).
type Cwd struct {
	mu   sync.Mutex
	Fd   *Fd
	Path ustr.Ustr
}

// NewRootCwd builds a Cwd rooted at "/" (fd.MkRootCwd).
func NewRootCwd(fd *Fd) *Cwd {
	return &Cwd{Fd: fd, Path: ustr.MkUstrRoot()}
}

// Fullpath joins the cwd with p when p is not already absolute
// (fd.Cwd_t.Fullpath).
func (c *Cwd) Fullpath(p ustr.Ustr) ustr.Ustr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.IsAbsolute() {
		return p
	}
	return c.Path.Extend(p)
}

// Canonicalpath resolves p relative to the cwd and normalizes "."/".."
// components (fd.Cwd_t.Canonicalpath).
func (c *Cwd) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return bpath.Canonicalize(c.Fullpath(p))
}
