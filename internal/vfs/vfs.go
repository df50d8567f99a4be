// Package vfs implements the virtual filesystem, mount, and
// path-resolution layer (spec §4.G), generalizing over any backing
// filesystem through the Filesystem/Inode interfaces. Grounded on
// biscuit/src/fs's vnode-over-backing-filesystem split (ufs.go/fs.go),
// adapted to wrap rvkernel/internal/naivefs's concrete types rather than
// biscuit's own on-disk format.
package vfs

import (
	"context"

	"rvkernel/internal/errno"
)

// DirEntry names one directory entry a filesystem hands back (spec
// §4.E's RawDirEntry projected onto the subset Vfs needs).
type DirEntry struct {
	InodeID  uint64
	Name     string
	FileType uint8
}

const (
	FtUnknown uint8 = 0
	FtRegular uint8 = 1
	FtDir     uint8 = 2
	FtChar    uint8 = 3
)

// Inode is the filesystem-agnostic inode surface (spec §4.G).
type Inode interface {
	ID() uint64
	Size() uint64
	Mode() uint16
	LinksCount() uint16
	Chmod(mode uint16)
	Chown(uid, gid uint16)
	Link()
	Unlink(ctx context.Context) errno.Errno
	ReadAt(ctx context.Context, offset int, p []byte) (int, errno.Errno)
	WriteAt(ctx context.Context, offset int, p []byte) (int, errno.Errno)
	Sync(ctx context.Context) errno.Errno

	AppendDot(ctx context.Context, parentID uint64) errno.Errno
	Append(ctx context.Context, childID uint64, name string, ft uint8) errno.Errno
	Remove(ctx context.Context, name string) errno.Errno
	Lookup(ctx context.Context, name string) (DirEntry, errno.Errno)
	Ls(ctx context.Context) ([]DirEntry, errno.Errno)

	Ioctl(cmd uint64, arg uint64) (uint64, errno.Errno)
}

// Filesystem is the filesystem-agnostic surface Vfs mounts (spec §4.G).
type Filesystem interface {
	RootDirEntry() uint64
	LoadInode(id uint64) (Inode, errno.Errno)
	CreateInode(mode uint16) (Inode, errno.Errno)
	BlkSize() int
	BlkCount() int
}

// Vfs walks paths across a root filesystem and any mounted filesystems
// layered in by a MountFs (spec §4.G).
type Vfs struct {
	Root Filesystem
}

// New returns a Vfs rooted at root.
func New(root Filesystem) *Vfs { return &Vfs{Root: root} }

// Find walks components, starting at dir, crossing mountpoints
// transparently whenever the underlying filesystem is a *MountFs (spec
// §4.G: "the returned DirEntry is associated with the mounted
// filesystem instead").
func (v *Vfs) Find(ctx context.Context, fs Filesystem, dir Inode, components []string) (Filesystem, Inode, errno.Errno) {
	curFs, curDir := fs, dir
	for _, name := range components {
		if name == "" || name == "." {
			continue
		}
		ent, err := curDir.Lookup(ctx, name)
		if err != errno.UNKNOWN {
			return nil, nil, err
		}
		nextFs := curFs
		if mfs, ok := curFs.(*MountFs); ok {
			if mounted, ok := mfs.mounts[ent.InodeID]; ok {
				nextFs = mounted
				next, err := nextFs.LoadInode(nextFs.RootDirEntry())
				curFs, curDir = nextFs, next
				if err != errno.UNKNOWN {
					return nil, nil, err
				}
				continue
			}
		}
		next, err := nextFs.LoadInode(ent.InodeID)
		if err != errno.UNKNOWN {
			return nil, nil, err
		}
		curFs, curDir = nextFs, next
	}
	return curFs, curDir, errno.UNKNOWN
}

// Create implements spec §4.G's create semantics: verify no existing
// entry, create the inode, append to parent, append "."/".." when
// creating a directory, then sync.
func (v *Vfs) Create(ctx context.Context, fs Filesystem, parent Inode, name string, mode uint16, ft uint8) (Inode, errno.Errno) {
	if _, err := parent.Lookup(ctx, name); err == errno.UNKNOWN {
		return nil, errno.EEXIST
	}
	child, err := fs.CreateInode(mode)
	if err != errno.UNKNOWN {
		return nil, err
	}
	if err := parent.Append(ctx, child.ID(), name, ft); err != errno.UNKNOWN {
		return nil, err
	}
	if ft == FtDir {
		if err := child.AppendDot(ctx, parent.ID()); err != errno.UNKNOWN {
			return nil, err
		}
	}
	if err := child.Sync(ctx); err != errno.UNKNOWN {
		return nil, err
	}
	if err := parent.Sync(ctx); err != errno.UNKNOWN {
		return nil, err
	}
	return child, errno.UNKNOWN
}

// Mv renames an entry from one parent/name pair to another (spec §4.G).
func (v *Vfs) Mv(ctx context.Context, oldParent Inode, oldName string, newParent Inode, newName string) errno.Errno {
	ent, err := oldParent.Lookup(ctx, oldName)
	if err != errno.UNKNOWN {
		return err
	}
	if _, err := newParent.Lookup(ctx, newName); err == errno.UNKNOWN {
		return errno.EEXIST
	}
	if err := newParent.Append(ctx, ent.InodeID, newName, ent.FileType); err != errno.UNKNOWN {
		return err
	}
	if err := oldParent.Remove(ctx, oldName); err != errno.UNKNOWN {
		return err
	}
	return errno.UNKNOWN
}

// MountFs wraps a Filesystem with a mountpoint table (spec §4.G):
// inode id → mounted filesystem.
type MountFs struct {
	Filesystem
	mounts map[uint64]Filesystem
}

// NewMountFs wraps root with an empty mountpoint table.
func NewMountFs(root Filesystem) *MountFs {
	return &MountFs{Filesystem: root, mounts: make(map[uint64]Filesystem)}
}

// Mount registers fs at mountpoint, which must be an inode id within
// this MountFs (spec §4.G: "mount(mountpoint, fs) only succeeds when
// mountpoint is an MInode of a MountFs").
func (m *MountFs) Mount(mountpoint uint64, fs Filesystem) errno.Errno {
	if _, err := m.LoadInode(mountpoint); err != errno.UNKNOWN {
		return err
	}
	m.mounts[mountpoint] = fs
	return errno.UNKNOWN
}
