// Command mkfs builds a naive_fs disk image from a directory tree on the
// host, the same role biscuit/src/mkfs/mkfs.go plays for ufs: format an
// empty image, then replicate a skeleton directory's files and
// subdirectories into it (spec §6, §1).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/naivefs"
)

const (
	modeDirBits = 0040000
	modeRegBits = 0100000
	defaultPerm = 0755

	// maxInFlight bounds the disk's concurrent block I/O queue depth;
	// mkfs runs single-threaded so a small value is plenty.
	maxInFlight = 16

	// maxBlkID is the largest value naive_fs's 16-bit block and inode
	// ids can hold (spec's fixed-width on-disk layout is a stated
	// non-goal of ever growing past it).
	maxBlkID = 0xFFFF
)

func main() {
	output := flag.String("o", "", "path to the image file to create")
	diskSpaceMB := flag.Int("disk-space", 128, "total image size in megabytes")
	initFilesPath := flag.String("init-files-path", "", "glob of host files/directories to copy into the image root")
	blockSizeKB := flag.Int("block-size", 4, "block size in kilobytes")
	volumeUUID := flag.String("volume-uuid", "", "16-byte volume UUID (hex); accepted but not written: the image's UUID field stays zero")
	volumeName := flag.String("volume-name", "", "volume name, defaulting to the output file's stem; accepted but not written: the image's name field stays zero")
	flag.Parse()

	if *output == "" {
		fmt.Fprintln(os.Stderr, "mkfs: -o is required")
		os.Exit(1)
	}
	if *volumeName == "" {
		base := filepath.Base(*output)
		*volumeName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := run(*output, *diskSpaceMB, *initFilesPath, *blockSizeKB, *volumeUUID, *volumeName); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
}

func run(output string, diskSpaceMB int, initFilesPath string, blockSizeKB int, volumeUUID, volumeName string) error {
	blkSize := blockSizeKB * 1024
	totalBytes := diskSpaceMB * 1024 * 1024
	blksCount := totalBytes / blkSize
	if blksCount > maxBlkID {
		blksCount = maxBlkID
	}
	inodesCount := blksCount / 4
	if inodesCount > maxBlkID {
		inodesCount = maxBlkID
	}

	if err := createSizedFile(output, int64(blksCount)*int64(blkSize)); err != nil {
		return fmt.Errorf("create image: %w", err)
	}

	dev, err := blockdev.OpenFileDisk(output, blkSize, blksCount)
	if err != nil {
		return fmt.Errorf("open disk: %w", err)
	}
	defer dev.Close()

	ctx := context.Background()
	fs, errn := naivefs.Format(ctx, dev, maxInFlight, uint16(inodesCount), uint16(blksCount))
	if errn != 0 {
		return fmt.Errorf("format: errno %v", errn)
	}

	if volumeUUID != "" || volumeName != "" {
		// naive_fs.Format leaves the superblock's UUID and volume-name
		// fields zero and Filesystem exposes no setter for them, so
		// neither value is written into the image.
		_ = volumeUUID
	}

	if initFilesPath != "" {
		matches, err := filepath.Glob(initFilesPath)
		if err != nil {
			return fmt.Errorf("glob %q: %w", initFilesPath, err)
		}
		for _, m := range matches {
			if err := addTree(ctx, fs, m); err != nil {
				return fmt.Errorf("add %q: %w", m, err)
			}
		}
	}

	return nil
}

// createSizedFile creates (or truncates) path to exactly size bytes, as
// OpenFileDisk expects an already-sized image to pread/pwrite against.
func createSizedFile(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

// addTree walks the host path root (file or directory) and replicates it
// under the filesystem's root directory, mirroring
// biscuit/src/mkfs/mkfs.go's addfiles/copydata but driven by naive_fs's
// CreateInode/Append/WriteAt API instead of ufs.Ufs_t's MkFile/MkDir/Append.
func addTree(ctx context.Context, fs *naivefs.Filesystem, root string) error {
	rootIno, errn := fs.LoadInode(fs.RootDirEntry())
	if errn != 0 {
		return fmt.Errorf("load root inode: errno %v", errn)
	}

	syncAll := func(rel string, inos ...*naivefs.Inode) error {
		for _, ino := range inos {
			if errn := ino.Sync(ctx); errn != 0 {
				return fmt.Errorf("sync inode %d for %q: errno %v", ino.ID, rel, errn)
			}
		}
		return nil
	}

	base := filepath.Dir(root)
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, base), string(filepath.Separator))
		if rel == "" {
			return nil
		}

		parentDir, name := filepath.Split(rel)
		parentIno, errn := lookupDirPath(ctx, fs, rootIno, parentDir)
		if errn != 0 {
			return fmt.Errorf("resolve parent of %q: errno %v", rel, errn)
		}

		if d.IsDir() {
			ino, errn := fs.CreateInode(modeDirBits | defaultPerm)
			if errn != 0 {
				return fmt.Errorf("create dir inode for %q: errno %v", rel, errn)
			}
			if errn := fs.AppendDot(ctx, ino, parentIno.ID); errn != 0 {
				return fmt.Errorf("append . and .. for %q: errno %v", rel, errn)
			}
			if errn := fs.Append(ctx, parentIno, ino.ID, name, naivefs.FtDir); errn != 0 {
				return fmt.Errorf("link dir %q into parent: errno %v", rel, errn)
			}
			return syncAll(rel, ino, parentIno)
		}

		ino, errn := fs.CreateInode(modeRegBits | defaultPerm)
		if errn != 0 {
			return fmt.Errorf("create file inode for %q: errno %v", rel, errn)
		}
		if errn := fs.Append(ctx, parentIno, ino.ID, name, naivefs.FtRegular); errn != 0 {
			return fmt.Errorf("link file %q into parent: errno %v", rel, errn)
		}
		if err := copyFileInto(ctx, ino, path); err != nil {
			return err
		}
		return syncAll(rel, ino, parentIno)
	})
}

// lookupDirPath resolves a "/"-joined relative directory path (as produced
// by filepath.Split, which keeps the trailing separator and may be empty)
// to its inode, starting from root.
func lookupDirPath(ctx context.Context, fs *naivefs.Filesystem, root *naivefs.Inode, dir string) (*naivefs.Inode, int) {
	cur := root
	dir = strings.Trim(dir, string(filepath.Separator))
	if dir == "" {
		return cur, 0
	}
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		if part == "" {
			continue
		}
		ent, errn := fs.Lookup(ctx, cur, part)
		if errn != 0 {
			return nil, int(errn)
		}
		next, errn := fs.LoadInode(ent.InodeID)
		if errn != 0 {
			return nil, int(errn)
		}
		cur = next
	}
	return cur, 0
}

// copyFileInto streams src's contents into ino via WriteAt, in chunks of
// up to 64 KiB.
func copyFileInto(ctx context.Context, ino *naivefs.Inode, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	var off int
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, errn := ino.WriteAt(ctx, off, buf[:n]); errn != 0 {
				return fmt.Errorf("write at %d: errno %v", off, errn)
			}
			off += n
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
