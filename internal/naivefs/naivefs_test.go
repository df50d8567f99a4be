package naivefs

import (
	"context"
	"testing"

	"rvkernel/internal/blockdev"
)

func mustFormat(t *testing.T) *Filesystem {
	t.Helper()
	dev := blockdev.NewMemDisk(512, 256)
	fs, err := Format(context.Background(), dev, 4, 64, 256)
	if err != 0 {
		t.Fatalf("format: %v", err)
	}
	return fs
}

// S2: directory append then remove round trip.
func TestDirAppendRemove(t *testing.T) {
	ctx := context.Background()
	fs := mustFormat(t)
	root, err := fs.LoadInode(fs.RootDirEntry())
	if err != 0 {
		t.Fatalf("load root: %v", err)
	}

	child, err := fs.CreateInode(0o644)
	if err != 0 {
		t.Fatalf("create inode: %v", err)
	}
	if err := fs.Append(ctx, root, child.ID, "hello.txt", FtRegular); err != 0 {
		t.Fatalf("append: %v", err)
	}

	e, err := fs.Lookup(ctx, root, "hello.txt")
	if err != 0 {
		t.Fatalf("lookup: %v", err)
	}
	if e.InodeID != child.ID {
		t.Fatalf("lookup returned wrong inode: got %d want %d", e.InodeID, child.ID)
	}

	if err := fs.Remove(ctx, root, "hello.txt"); err != 0 {
		t.Fatalf("remove: %v", err)
	}
	if _, err := fs.Lookup(ctx, root, "hello.txt"); err == 0 {
		t.Fatal("expected entry to be gone after remove")
	}
}

func TestDirRejectsDotNames(t *testing.T) {
	ctx := context.Background()
	fs := mustFormat(t)
	root, err := fs.LoadInode(fs.RootDirEntry())
	if err != 0 {
		t.Fatalf("load root: %v", err)
	}
	if err := fs.Append(ctx, root, 5, ".", FtRegular); err == 0 {
		t.Fatal("expected rejection of '.' as an entry name")
	}
	if err := fs.Append(ctx, root, 5, "..", FtRegular); err == 0 {
		t.Fatal("expected rejection of '..' as an entry name")
	}
}

// S3: reading a hole (never-written block) returns zeros, and reading
// past the written range but within size is clamped correctly.
func TestInodeHoleRead(t *testing.T) {
	ctx := context.Background()
	fs := mustFormat(t)
	ino, err := fs.CreateInode(0o644)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}

	// Write into the third direct block only, leaving the first two as
	// holes but growing Size to cover them.
	third := 2 * fs.BlkSize()
	payload := []byte("past-the-hole")
	if _, err := ino.WriteAt(ctx, third, payload); err != 0 {
		t.Fatalf("write: %v", err)
	}
	if int(ino.Size()) != third+len(payload) {
		t.Fatalf("size not extended: got %d want %d", ino.Size(), third+len(payload))
	}

	buf := make([]byte, fs.BlkSize())
	if _, err := ino.ReadAt(ctx, 0, buf); err != 0 {
		t.Fatalf("read hole: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("expected hole block to read as zero at %d, got %d", i, b)
		}
	}

	out := make([]byte, len(payload))
	if _, err := ino.ReadAt(ctx, third, out); err != 0 {
		t.Fatalf("read payload: %v", err)
	}
	if string(out) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", out, payload)
	}
}

func TestInodeWriteSpansIndirectBlocks(t *testing.T) {
	ctx := context.Background()
	fs := mustFormat(t)
	ino, err := fs.CreateInode(0o644)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}

	offset := (NDirect + 1) * fs.BlkSize()
	payload := []byte("beyond direct blocks")
	if _, err := ino.WriteAt(ctx, offset, payload); err != 0 {
		t.Fatalf("write: %v", err)
	}
	out := make([]byte, len(payload))
	if _, err := ino.ReadAt(ctx, offset, out); err != 0 {
		t.Fatalf("read: %v", err)
	}
	if string(out) != string(payload) {
		t.Fatalf("mismatch: got %q want %q", out, payload)
	}
}

func TestInodeUnlinkFreesBlocks(t *testing.T) {
	ctx := context.Background()
	fs := mustFormat(t)
	ino, err := fs.CreateInode(0o644)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	if _, err := ino.WriteAt(ctx, 0, []byte("data")); err != 0 {
		t.Fatalf("write: %v", err)
	}
	freeBefore := fs.blkAlloc.Free()
	if err := ino.Unlink(ctx); err != 0 {
		t.Fatalf("unlink: %v", err)
	}
	if fs.blkAlloc.Free() <= freeBefore {
		t.Fatalf("expected blocks to be freed: before=%d after=%d", freeBefore, fs.blkAlloc.Free())
	}
	if fs.inodeAlloc.Contains(ino.ID) {
		t.Fatal("expected inode id to be deallocated")
	}
}
