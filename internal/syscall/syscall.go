// Package syscall implements the syscall dispatch table (spec §4.K):
// number-indexed handlers that consume a thread's saved argument
// registers and produce the value written back to a0. Grounded on
// biscuit/src/syscall's sys_* dispatch shape (a big per-number switch
// fed by the trapframe), adapted to this kernel's async thread-future
// model by returning a thread.SyscallFuture per call instead of running
// to completion inline. Every handler's future resolves on its first
// poll except a read that finds no input yet (pendingFuture) — naive_fs's
// operations are themselves synchronous, so "immediate" here is honest,
// not a shortcut.
package syscall

import (
	"context"
	"debug/elf"
	"io"
	"time"

	"rvkernel/internal/errno"
	"rvkernel/internal/executor"
	"rvkernel/internal/memobj"
	"rvkernel/internal/page"
	"rvkernel/internal/proc"
	"rvkernel/internal/stat"
	"rvkernel/internal/thread"
	"rvkernel/internal/vfs"
)

// Numbers, stable per spec §4.K / §6.
const (
	SysOpenat      = 56
	SysClose       = 57
	SysLseek       = 62
	SysRead        = 63
	SysWrite       = 64
	SysNewfstatat  = 79
	SysFstat       = 80
	SysExit        = 93
	SysNanosleep   = 101
	SysClone       = 220
	SysDup3        = 24  // supplemented: dup2-equivalent syscall slot
	SysIoctl       = 29  // supplemented
	SysRtSigreturn = 139 // supplemented: sigreturn half of spec §4.J's round trip
	SysExecve      = 221 // supplemented, present in one revision (spec §4.K)
)

// immediateFuture resolves on its very first poll; every handler in this
// package runs to completion before returning one.
type immediateFuture struct{ result uintptr }

func (f *immediateFuture) Poll(w *executor.Waker) (uintptr, bool) { return f.result, true }

// pendingFuture retries the handler on each poll until it stops
// returning errno.EAGAIN (used by read() on an empty tty). It does not
// self-wake: a source with no new data yet has nothing to report, so
// the thread future stays Pending until some external event (tty
// PushInput, in the full kernel) wakes this task again — the same rule
// pollRunUser follows for timer/interrupt traps.
type pendingFuture struct {
	retry func() (uintptr, bool)
}

func (f *pendingFuture) Poll(w *executor.Waker) (uintptr, bool) {
	return f.retry()
}

// sigreturnFuture drives thread.Thread.Sigreturn from the generic
// SyscallFuture path (spec §4.J): unlike every other handler in this
// package, its result must never be written to a0 by the thread
// future's normal post-poll bookkeeping, since Sigreturn has already
// restored the whole context itself. It implements
// thread.SigreturnResumer so pollSyscall knows to skip that step.
type sigreturnFuture struct{ th *thread.Thread }

func (f *sigreturnFuture) Poll(w *executor.Waker) (uintptr, bool) { return f.th.Sigreturn(), true }
func (f *sigreturnFuture) IsSigreturn() bool                      { return true }

var _ thread.SigreturnResumer = (*sigreturnFuture)(nil)

func negate(e errno.Errno) uintptr {
	if e == errno.UNKNOWN {
		return 0
	}
	return uintptr(^uint64(e) + 1) // two's complement, matching a negative errno in a0
}

// Table holds the shared objects every handler needs: the VFS plus
// mounted root filesystem, and the executor threads run in (clone needs
// it to spawn the new task).
type Table struct {
	Vfs *vfs.Vfs
	Fs  vfs.Filesystem
	Exe *executor.Executor
}

// Dispatch returns the thread.Dispatch hook for threads belonging to p:
// a closure reading th.Ctx's argument registers and returning the
// driving future for the current ecall (spec §4.I: "transition to
// Syscall(syscall(thread))").
func (t *Table) Dispatch(p *proc.Process) func(th *thread.Thread) thread.SyscallFuture {
	return func(th *thread.Thread) thread.SyscallFuture {
		return t.handle(p, th)
	}
}

func (t *Table) handle(p *proc.Process, th *thread.Thread) thread.SyscallFuture {
	start := time.Now()
	defer func() { p.Accnt.Systadd(time.Since(start).Nanoseconds()) }()

	ctx := context.Background()
	switch th.Ctx.A7 {
	case SysOpenat:
		return &immediateFuture{result: t.openat(ctx, p, th)}
	case SysClose:
		return &immediateFuture{result: t.close(p, th)}
	case SysLseek:
		return &immediateFuture{result: t.lseek(p, th)}
	case SysRead:
		return t.read(ctx, p, th)
	case SysWrite:
		return &immediateFuture{result: t.write(ctx, p, th)}
	case SysNewfstatat:
		return &immediateFuture{result: t.newfstatat(ctx, p, th)}
	case SysFstat:
		return &immediateFuture{result: t.fstat(ctx, p, th)}
	case SysExit:
		p.RemoveThread(th.Tid)
		th.Exit(int(th.Ctx.A0))
		if len(p.Threads()) == 0 && p.Parent != nil {
			p.Parent.Reap(p)
		}
		return &immediateFuture{result: 0}
	case SysNanosleep:
		return &immediateFuture{result: 0} // naive-timer wheel is external (spec §5); treated as a no-op wait
	case SysClone:
		return &immediateFuture{result: t.clone(p, th)}
	case SysDup3:
		return &immediateFuture{result: t.dup3(p, th)}
	case SysIoctl:
		return &immediateFuture{result: t.ioctl(ctx, p, th)}
	case SysRtSigreturn:
		return &sigreturnFuture{th: th}
	case SysExecve:
		return &immediateFuture{result: t.execve(ctx, p, th)}
	default:
		return &immediateFuture{result: negate(errno.ENOSYS)}
	}
}

func (t *Table) openat(ctx context.Context, p *proc.Process, th *thread.Thread) uintptr {
	path := p.PendingPath
	mode := uint16(th.Ctx.A2)
	dirFs, dir, err := t.Vfs.Find(ctx, t.Fs, rootInode(t), dirname(path))
	if err != errno.UNKNOWN {
		return negate(err)
	}
	name := basename(path)
	ent, lookErr := dir.Lookup(ctx, name)
	var ino vfs.Inode
	if lookErr == errno.UNKNOWN {
		ino, err = dirFs.LoadInode(ent.InodeID)
	} else {
		ino, err = t.Vfs.Create(ctx, dirFs, dir, name, mode, vfs.FtRegular)
	}
	if err != errno.UNKNOWN {
		return negate(err)
	}
	fd := &proc.Fd{Ops: &inodeFileOps{ino: ino}, Perms: proc.FdRead | proc.FdWrite}
	n, err := p.Files.Install(fd)
	if err != errno.UNKNOWN {
		return negate(err)
	}
	return uintptr(n)
}

func (t *Table) close(p *proc.Process, th *thread.Thread) uintptr {
	err := p.Files.Close(int(th.Ctx.A0))
	return negate(err)
}

func (t *Table) lseek(p *proc.Process, th *thread.Thread) uintptr {
	fd, err := p.Files.Get(int(th.Ctx.A0))
	if err != errno.UNKNOWN {
		return negate(err)
	}
	off, err := fd.Ops.Seek(int64(th.Ctx.A1), int(th.Ctx.A2))
	if err != errno.UNKNOWN {
		return negate(err)
	}
	return uintptr(off)
}

func (t *Table) read(ctx context.Context, p *proc.Process, th *thread.Thread) thread.SyscallFuture {
	fdNum := int(th.Ctx.A0)
	length := int(th.Ctx.A2)
	fd, err := p.Files.Get(fdNum)
	if err != errno.UNKNOWN {
		return &immediateFuture{result: negate(err)}
	}
	buf := make([]byte, length)
	retry := func() (uintptr, bool) {
		n, rerr := fd.Ops.ReadAt(buf, -1)
		if rerr == errno.EAGAIN {
			return 0, false
		}
		if rerr != errno.UNKNOWN {
			return negate(rerr), true
		}
		p.PendingReadBuf = buf[:n]
		return uintptr(n), true
	}
	if n, done := retry(); done {
		return &immediateFuture{result: n}
	}
	return &pendingFuture{retry: retry}
}

func (t *Table) write(ctx context.Context, p *proc.Process, th *thread.Thread) uintptr {
	fdNum := int(th.Ctx.A0)
	fd, err := p.Files.Get(fdNum)
	if err != errno.UNKNOWN {
		return negate(err)
	}
	n, err := fd.Ops.WriteAt(p.PendingWriteBuf, -1)
	if err != errno.UNKNOWN {
		return negate(err)
	}
	return uintptr(n)
}

func (t *Table) newfstatat(ctx context.Context, p *proc.Process, th *thread.Thread) uintptr {
	return t.fstat(ctx, p, th)
}

func (t *Table) fstat(ctx context.Context, p *proc.Process, th *thread.Thread) uintptr {
	fd, err := p.Files.Get(int(th.Ctx.A0))
	if err != errno.UNKNOWN {
		return negate(err)
	}
	ifo, ok := fd.Ops.(*inodeFileOps)
	if !ok {
		return negate(errno.EINVAL)
	}
	st := stat.Stat{Ino: ifo.ino.ID(), Mode: uint32(ifo.ino.Mode()), Nlink: uint32(ifo.ino.LinksCount()), Size: ifo.ino.Size()}
	p.PendingStat = st
	return 0
}

// clone implements spec §4.K's fork-like semantics: a new thread id,
// COW-borrowed memory, cloned open files, cloned signal actions with
// empty pending queues, the child's a0 forced to 0.
func (t *Table) clone(p *proc.Process, th *thread.Thread) uintptr {
	childTid := executor.ID(allocTid())
	child := &thread.Thread{
		Tid:    childTid,
		State:  thread.Running,
		Ctx:    th.Ctx,
		Runner: th.Runner,
	}
	child.Ctx.A0 = 0

	childProc, ok := p.Fork(child)
	if !ok {
		return negate(errno.ENOMEM)
	}
	child.Dispatch = t.Dispatch(childProc)

	if err := t.Exe.Spawn(child); err != nil {
		return negate(errno.EAGAIN)
	}
	return uintptr(childTid)
}

func (t *Table) dup3(p *proc.Process, th *thread.Thread) uintptr {
	oldfd, err := p.Files.Get(int(th.Ctx.A0))
	if err != errno.UNKNOWN {
		return negate(err)
	}
	cp, err := proc.Copyfd(oldfd)
	if err != errno.UNKNOWN {
		return negate(err)
	}
	if err := p.Files.InstallAt(int(th.Ctx.A1), cp); err != errno.UNKNOWN {
		return negate(err)
	}
	return th.Ctx.A1
}

func (t *Table) ioctl(ctx context.Context, p *proc.Process, th *thread.Thread) uintptr {
	fd, err := p.Files.Get(int(th.Ctx.A0))
	if err != errno.UNKNOWN {
		return negate(err)
	}
	ifo, ok := fd.Ops.(*inodeFileOps)
	if !ok {
		return negate(errno.EINVAL)
	}
	result, err := ifo.ino.Ioctl(uint64(th.Ctx.A1), uint64(th.Ctx.A2))
	if err != errno.UNKNOWN {
		return negate(err)
	}
	return uintptr(result)
}

// execve replaces the calling process's user segments and the main
// thread's context from a freshly parsed ELF image, then kills every
// other thread in the process (spec §4.K). ELF parsing uses the
// standard library's debug/elf: no ELF-parsing third-party library
// appears anywhere in the example pack (xmas_elf is Rust-only, grounding
// original_source/src/proc/process.rs's from_elf), so this is one of
// the documented standard-library exceptions (see DESIGN.md).
func (t *Table) execve(ctx context.Context, p *proc.Process, th *thread.Thread) uintptr {
	f, err := elf.NewFile(bytesReaderFrom(p.PendingExecImage))
	if err != nil {
		return negate(errno.ENOEXEC)
	}
	defer f.Close()

	p.Memory.RemoveUserSegments()
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Memsz)
		if _, err := prog.ReadAt(data[:prog.Filesz], 0); err != nil && err != io.EOF {
			return negate(errno.ENOEXEC)
		}
		flags := page.User | page.Readable
		if prog.Flags&elf.PF_W != 0 {
			flags |= page.Writable
		}
		if prog.Flags&elf.PF_X != 0 {
			flags |= page.Executable
		}
		seg := memobj.Segment{
			Start:    page.VA(prog.Vaddr),
			Len:      int(prog.Memsz),
			Flags:    flags,
			Type:     memobj.Framed,
			InitData: data,
		}
		if err := p.Memory.AddUserSegment(seg, data); err != nil {
			return negate(errno.ENOEXEC)
		}
	}

	th.Ctx = thread.Context{}
	th.Ctx.Ra = uintptr(f.Entry)
	for _, other := range p.Threads() {
		if other.Tid != th.Tid {
			p.RemoveThread(other.Tid)
			other.Exit(0)
		}
	}
	return 0
}
