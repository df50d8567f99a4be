package naivefs

import (
	"context"

	"rvkernel/internal/errno"
)

// AppendDot writes "." pointing to self and ".." pointing to parentID
// into dirIno's data. dirIno must itself be a directory.
func (fs *Filesystem) AppendDot(ctx context.Context, dirIno *Inode, parentID uint16) errno.Errno {
	dot := makeDirEntry(dirIno.ID, ".", FtDir, DirEntrySize)
	if _, err := dirIno.WriteAt(ctx, 0, dot.ToBytes()); err != 0 {
		return err
	}
	dotdot := makeDirEntry(parentID, "..", FtDir, DirEntrySize)
	if _, err := dirIno.WriteAt(ctx, DirEntrySize, dotdot.ToBytes()); err != 0 {
		return err
	}
	return 0
}

// Append adds a new directory entry for (id, name, ft) into dirIno,
// splitting the first record found with enough slack to hold a second
// entry, or appending past the end otherwise (spec §4.E). "." and ".."
// are rejected as entry names.
func (fs *Filesystem) Append(ctx context.Context, dirIno *Inode, id uint16, name string, ft uint8) errno.Errno {
	if name == "." || name == ".." {
		return errno.EINVAL
	}
	size := int(dirIno.Size())
	pos := 0
	for pos < size {
		raw := make([]byte, DirEntrySize)
		if _, err := dirIno.ReadAt(ctx, pos, raw); err != 0 {
			return err
		}
		e := DirEntryFromBytes(raw)
		if e.NameString() == "." || e.NameString() == ".." {
			pos += int(e.RecLen)
			continue
		}
		used := usedEntrySize(e.NameLen)
		if int(e.RecLen) >= used+DirEntrySize {
			// Split this record in place: shrink it to its own used size,
			// and place the new entry in the remaining slack.
			newEntryOff := pos + used
			newRecLen := int(e.RecLen) - used
			e.RecLen = uint16(used)
			if _, err := dirIno.WriteAt(ctx, pos, e.ToBytes()); err != 0 {
				return err
			}
			newEntry := makeDirEntry(id, name, ft, uint16(newRecLen))
			if _, err := dirIno.WriteAt(ctx, newEntryOff, newEntry.ToBytes()); err != 0 {
				return err
			}
			return 0
		}
		pos += int(e.RecLen)
	}
	// No slack found: append past the current end.
	newEntry := makeDirEntry(id, name, ft, DirEntrySize)
	_, err := dirIno.WriteAt(ctx, size, newEntry.ToBytes())
	return err
}

// usedEntrySize is the minimum on-disk footprint a directory record
// needs for the given name length: the fixed header plus the name bytes
// actually in use. The spec's RawDirEntry reserves a full 255-byte name
// field on disk, but rec_len bookkeeping tracks only what's "in use" so
// records can be split to make room for a new sibling, matching ext2's
// layout strategy.
func usedEntrySize(nameLen uint8) int {
	return 6 + int(nameLen)
}

// Remove deletes the first entry matching name exactly, merging its
// rec_len into the previous record so no gap forms (spec §4.E).
func (fs *Filesystem) Remove(ctx context.Context, dirIno *Inode, name string) errno.Errno {
	size := int(dirIno.Size())
	pos := 0
	prevPos := -1
	for pos < size {
		raw := make([]byte, DirEntrySize)
		if _, err := dirIno.ReadAt(ctx, pos, raw); err != 0 {
			return err
		}
		e := DirEntryFromBytes(raw)
		if e.NameString() == name {
			if prevPos < 0 {
				return errno.EINVAL // refuse to remove the first record (".")
			}
			prevRaw := make([]byte, DirEntrySize)
			if _, err := dirIno.ReadAt(ctx, prevPos, prevRaw); err != 0 {
				return err
			}
			prev := DirEntryFromBytes(prevRaw)
			prev.RecLen += e.RecLen
			_, err := dirIno.WriteAt(ctx, prevPos, prev.ToBytes())
			return err
		}
		prevPos = pos
		pos += int(e.RecLen)
	}
	return errno.ENOENT
}

// Lookup linear-scans dirIno for name and returns its raw entry.
func (fs *Filesystem) Lookup(ctx context.Context, dirIno *Inode, name string) (RawDirEntry, errno.Errno) {
	size := int(dirIno.Size())
	pos := 0
	for pos < size {
		raw := make([]byte, DirEntrySize)
		if _, err := dirIno.ReadAt(ctx, pos, raw); err != 0 {
			return RawDirEntry{}, err
		}
		e := DirEntryFromBytes(raw)
		if e.NameString() == name {
			return e, 0
		}
		pos += int(e.RecLen)
	}
	return RawDirEntry{}, errno.ENOENT
}

// Ls returns every entry in dirIno, including "." and "..".
func (fs *Filesystem) Ls(ctx context.Context, dirIno *Inode) ([]RawDirEntry, errno.Errno) {
	var entries []RawDirEntry
	size := int(dirIno.Size())
	pos := 0
	for pos < size {
		raw := make([]byte, DirEntrySize)
		if _, err := dirIno.ReadAt(ctx, pos, raw); err != 0 {
			return entries, err
		}
		e := DirEntryFromBytes(raw)
		entries = append(entries, e)
		pos += int(e.RecLen)
	}
	return entries, 0
}
