// Command kdriver is the hosted driver loop: it wires internal/executor,
// a block device, internal/naivefs + internal/vfs, internal/proc, and
// internal/syscall together so the core subsystems can be exercised
// end-to-end on a developer machine, playing the role
// biscuit/src/kernel/chentry.go plays for the teacher — gluing
// subsystems together rather than patching an ELF entry point. There is
// no real RISC-V hart to boot here (internal/archif's Runner documents
// that boundary), so the "init process" this command drives is a small
// scripted syscall sequence instead of a loaded user binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/executor"
	"rvkernel/internal/frame"
	"rvkernel/internal/memobj"
	"rvkernel/internal/naivefs"
	"rvkernel/internal/page"
	"rvkernel/internal/proc"
	"rvkernel/internal/syscall"
	"rvkernel/internal/thread"
	"rvkernel/internal/vfs"
	"rvkernel/internal/vfs/devfs"
)

func main() {
	diskPath := flag.String("disk", "", "path to a naive_fs image; an in-memory disk is used if empty")
	diskSpaceMB := flag.Int("disk-space", 16, "disk size in megabytes; also sets the block count an existing -disk image is opened with")
	blockSizeKB := flag.Int("block-size", 4, "block size in kilobytes; also used to open an existing -disk image")
	flag.Parse()

	if err := run(*diskPath, *diskSpaceMB, *blockSizeKB); err != nil {
		fmt.Fprintf(os.Stderr, "kdriver: %v\n", err)
		os.Exit(1)
	}
}

const maxInFlight = 16

func run(diskPath string, diskSpaceMB, blockSizeKB int) error {
	ctx := context.Background()
	blkSize := blockSizeKB * 1024

	fs, err := openOrFormat(ctx, diskPath, diskSpaceMB, blkSize)
	if err != nil {
		return err
	}

	mountFs := vfs.NewMountFs(naivefs.FsAdapter{Fs: fs})
	vfsRoot := vfs.New(mountFs)

	rootIno, errn := mountFs.LoadInode(mountFs.RootDirEntry())
	if errn != 0 {
		return fmt.Errorf("load root inode: errno %v", errn)
	}
	if _, errn := rootIno.Lookup(ctx, "dev"); errn != 0 {
		devDirIno, errn := vfsRoot.Create(ctx, mountFs, rootIno, "dev", 0040755, vfs.FtDir)
		if errn != 0 {
			return fmt.Errorf("create /dev: errno %v", errn)
		}
		tty := devfs.NewTtyInode(256, os.Stdout)
		devFs := devfs.New(map[uint64]devfs.DevInode{2: tty}, map[uint64]string{2: "tty"})
		if errn := mountFs.Mount(devDirIno.ID(), devFs); errn != 0 {
			return fmt.Errorf("mount devfs: errno %v", errn)
		}
	}

	exe := executor.New(8)
	arena := frame.NewArena(64*page.PageSize, page.PageSize)
	mem, ok := memobj.New(arena)
	if !ok {
		return fmt.Errorf("build init process memory arena")
	}

	main := &thread.Thread{Tid: 1, State: thread.Running}
	cwd := proc.NewRootCwd(nil)
	p := proc.NewProcess("init", cwd, main, mem, true, exe)

	table := &syscall.Table{Vfs: vfsRoot, Fs: mountFs, Exe: exe}
	main.Dispatch = table.Dispatch(p)
	main.Runner = &bootScript{p: p, steps: []bootStep{
		{path: "/dev/tty", writeBuf: []byte("kdriver: init thread is up\n")},
	}}

	if err := exe.Spawn(main); err != nil {
		return fmt.Errorf("spawn init thread: %w", err)
	}
	for len(exe.Tasks()) > 0 {
		exe.RunReadyTasks()
	}
	return nil
}

// openOrFormat mounts an existing image at path, formats a fresh one
// there if it doesn't exist yet, or formats an in-memory disk when path
// is empty.
func openOrFormat(ctx context.Context, path string, diskSpaceMB, blkSize int) (*naivefs.Filesystem, error) {
	blksCount := diskSpaceMB * 1024 * 1024 / blkSize
	inodesCount := blksCount / 4

	if path == "" {
		dev := blockdev.NewMemDisk(blkSize, blksCount)
		fs, errn := naivefs.Format(ctx, dev, maxInFlight, uint16(inodesCount), uint16(blksCount))
		if errn != 0 {
			return nil, fmt.Errorf("format in-memory disk: errno %v", errn)
		}
		return fs, nil
	}

	if _, statErr := os.Stat(path); statErr == nil {
		dev, err := blockdev.OpenFileDisk(path, blkSize, blksCount)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", path, err)
		}
		fs, errn := naivefs.Mount(ctx, dev, maxInFlight)
		if errn != 0 {
			return nil, fmt.Errorf("mount %q: errno %v", path, errn)
		}
		return fs, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, err)
	}
	if err := f.Truncate(int64(blksCount) * int64(blkSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("size %q: %w", path, err)
	}
	f.Close()

	dev, err := blockdev.OpenFileDisk(path, blkSize, blksCount)
	if err != nil {
		return nil, fmt.Errorf("reopen %q: %w", path, err)
	}
	fs, errn := naivefs.Format(ctx, dev, maxInFlight, uint16(inodesCount), uint16(blksCount))
	if errn != 0 {
		return nil, fmt.Errorf("format %q: errno %v", path, errn)
	}
	return fs, nil
}

// bootStep is one openat/write/close sequence kdriver's scripted init
// thread issues: open a path, write a buffer to it, then close it.
type bootStep struct {
	path     string
	writeBuf []byte
}

// bootScript is a thread.Runner standing in for a real user binary: it
// drives the process through a fixed openat/write/close/exit sequence by
// setting the same Ctx/Pending* fields a real trap handler would have
// filled from user registers and memory (spec §4.I's run_user contract),
// one syscall per RunUser call.
type bootScript struct {
	p     *proc.Process
	steps []bootStep
	i     int
	fd    uintptr
	sub   int // 0=issue openat, 1=issue write, 2=issue close, 3=step done
}

// RunUser advances the script by exactly one syscall trap per call. Each
// case reads the a0 the previous syscall resolved to (set by
// thread.Thread.pollSyscall before the next RunUser call, the same way a
// real trap return would) before overwriting it with the next request.
func (b *bootScript) RunUser(ctx *thread.Context) thread.Trap {
	if b.i >= len(b.steps) {
		ctx.A7 = syscall.SysExit
		ctx.A0 = 0
		return thread.Trap{Kind: thread.TrapSyscall}
	}
	step := b.steps[b.i]
	switch b.sub {
	case 0:
		b.p.PendingPath = step.path
		ctx.A7 = syscall.SysOpenat
		ctx.A2 = 0644
		b.sub = 1
	case 1:
		b.fd = ctx.A0
		b.p.PendingWriteBuf = step.writeBuf
		ctx.A7 = syscall.SysWrite
		ctx.A0 = b.fd
		b.sub = 2
	case 2:
		ctx.A7 = syscall.SysClose
		ctx.A0 = b.fd
		b.sub = 3
	case 3:
		b.i++
		b.sub = 0
		return b.RunUser(ctx)
	}
	return thread.Trap{Kind: thread.TrapSyscall}
}
