package naivefs

import (
	"context"

	"rvkernel/internal/errno"
	"rvkernel/internal/vfs"
)

// FsAdapter exposes a naive_fs Filesystem through the vfs.Filesystem
// interface, translating the 16-bit on-disk ids this package uses into
// the VFS's 64-bit id space.
type FsAdapter struct{ Fs *Filesystem }

func (a FsAdapter) RootDirEntry() uint64 { return uint64(a.Fs.RootDirEntry()) }

func (a FsAdapter) LoadInode(id uint64) (vfs.Inode, errno.Errno) {
	ino, err := a.Fs.LoadInode(uint16(id))
	if err != errno.UNKNOWN {
		return nil, err
	}
	return InodeAdapter{Ino: ino}, errno.UNKNOWN
}

func (a FsAdapter) CreateInode(mode uint16) (vfs.Inode, errno.Errno) {
	ino, err := a.Fs.CreateInode(mode)
	if err != errno.UNKNOWN {
		return nil, err
	}
	return InodeAdapter{Ino: ino}, errno.UNKNOWN
}

func (a FsAdapter) BlkSize() int  { return a.Fs.BlkSize() }
func (a FsAdapter) BlkCount() int { return a.Fs.BlkCount() }

// InodeAdapter exposes a naive_fs Inode through the vfs.Inode interface.
// Directory operations delegate to the owning Filesystem, since naive_fs
// keeps them there rather than on Inode itself.
type InodeAdapter struct{ Ino *Inode }

func (a InodeAdapter) ID() uint64         { return uint64(a.Ino.ID) }
func (a InodeAdapter) Size() uint64       { return uint64(a.Ino.Size()) }
func (a InodeAdapter) Mode() uint16       { return a.Ino.Mode() }
func (a InodeAdapter) LinksCount() uint16 { return a.Ino.LinksCount() }
func (a InodeAdapter) Chmod(mode uint16)  { a.Ino.Chmod(mode) }
func (a InodeAdapter) Chown(uid, gid uint16) { a.Ino.Chown(uid, gid) }
func (a InodeAdapter) Link()              { a.Ino.Link() }

func (a InodeAdapter) Unlink(ctx context.Context) errno.Errno { return a.Ino.Unlink(ctx) }

func (a InodeAdapter) ReadAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	return a.Ino.ReadAt(ctx, offset, p)
}

func (a InodeAdapter) WriteAt(ctx context.Context, offset int, p []byte) (int, errno.Errno) {
	return a.Ino.WriteAt(ctx, offset, p)
}

func (a InodeAdapter) Sync(ctx context.Context) errno.Errno { return a.Ino.Sync(ctx) }

func (a InodeAdapter) AppendDot(ctx context.Context, parentID uint64) errno.Errno {
	return a.Ino.fs.AppendDot(ctx, a.Ino, uint16(parentID))
}

func (a InodeAdapter) Append(ctx context.Context, childID uint64, name string, ft uint8) errno.Errno {
	return a.Ino.fs.Append(ctx, a.Ino, uint16(childID), name, ft)
}

func (a InodeAdapter) Remove(ctx context.Context, name string) errno.Errno {
	return a.Ino.fs.Remove(ctx, a.Ino, name)
}

func (a InodeAdapter) Lookup(ctx context.Context, name string) (vfs.DirEntry, errno.Errno) {
	raw, err := a.Ino.fs.Lookup(ctx, a.Ino, name)
	if err != errno.UNKNOWN {
		return vfs.DirEntry{}, err
	}
	return vfs.DirEntry{InodeID: uint64(raw.InodeID), Name: raw.NameString(), FileType: raw.FileType}, errno.UNKNOWN
}

func (a InodeAdapter) Ls(ctx context.Context) ([]vfs.DirEntry, errno.Errno) {
	raws, err := a.Ino.fs.Ls(ctx, a.Ino)
	if err != errno.UNKNOWN {
		return nil, err
	}
	out := make([]vfs.DirEntry, len(raws))
	for i, raw := range raws {
		out[i] = vfs.DirEntry{InodeID: uint64(raw.InodeID), Name: raw.NameString(), FileType: raw.FileType}
	}
	return out, errno.UNKNOWN
}

// Ioctl is a no-op for plain naive_fs inodes; only device inodes (tty)
// implement real ioctl commands (spec §4.G).
func (a InodeAdapter) Ioctl(cmd uint64, arg uint64) (uint64, errno.Errno) {
	return 0, errno.ENOSYS
}
