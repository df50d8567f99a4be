package naivefs

import "encoding/binary"

// NDirect is the number of direct block pointers in an inode (spec §6).
const NDirect = 12

const (
	superBlkSize   = 2 + 2 + 1 + 2 + 16 + 16 + 1 + 1 // 41 bytes
	descriptorSize = 2 + 2 + 2 + 2 + 2               // 10 bytes
	inodeSize      = 2 + 2 + 2 + 4 + 4 + 4 + 4 + 4 + 2 + 2*NDirect + 2
	dirEntrySize   = 2 + 2 + 1 + 1 + 255 // 261 bytes, name is fixed 255-byte field
)

// RawSuperBlk is the on-disk superblock, byte-for-byte per spec §6.
type RawSuperBlk struct {
	InodesCount     uint16
	BlksCount       uint16
	BlkSizeLog2     uint8
	OnError         uint16
	UUID            [16]byte
	VolumeName      [16]byte
	PreallocBlocks  uint8
	PreallocDirBlks uint8
}

func (s *RawSuperBlk) ToBytes() []byte {
	b := make([]byte, superBlkSize)
	binary.LittleEndian.PutUint16(b[0:], s.InodesCount)
	binary.LittleEndian.PutUint16(b[2:], s.BlksCount)
	b[4] = s.BlkSizeLog2
	binary.LittleEndian.PutUint16(b[5:], s.OnError)
	copy(b[7:23], s.UUID[:])
	copy(b[23:39], s.VolumeName[:])
	b[39] = s.PreallocBlocks
	b[40] = s.PreallocDirBlks
	return b
}

func SuperBlkFromBytes(b []byte) RawSuperBlk {
	var s RawSuperBlk
	s.InodesCount = binary.LittleEndian.Uint16(b[0:])
	s.BlksCount = binary.LittleEndian.Uint16(b[2:])
	s.BlkSizeLog2 = b[4]
	s.OnError = binary.LittleEndian.Uint16(b[5:])
	copy(s.UUID[:], b[7:23])
	copy(s.VolumeName[:], b[23:39])
	s.PreallocBlocks = b[39]
	s.PreallocDirBlks = b[40]
	return s
}

// RawDescriptor immediately follows the superblock (spec §6).
type RawDescriptor struct {
	BlkBitmap       uint16
	InodeBitmap     uint16
	InodeTable      uint16
	FreeBlksCount   uint16
	FreeInodesCount uint16
}

func (d *RawDescriptor) ToBytes() []byte {
	b := make([]byte, descriptorSize)
	binary.LittleEndian.PutUint16(b[0:], d.BlkBitmap)
	binary.LittleEndian.PutUint16(b[2:], d.InodeBitmap)
	binary.LittleEndian.PutUint16(b[4:], d.InodeTable)
	binary.LittleEndian.PutUint16(b[6:], d.FreeBlksCount)
	binary.LittleEndian.PutUint16(b[8:], d.FreeInodesCount)
	return b
}

func DescriptorFromBytes(b []byte) RawDescriptor {
	var d RawDescriptor
	d.BlkBitmap = binary.LittleEndian.Uint16(b[0:])
	d.InodeBitmap = binary.LittleEndian.Uint16(b[2:])
	d.InodeTable = binary.LittleEndian.Uint16(b[4:])
	d.FreeBlksCount = binary.LittleEndian.Uint16(b[6:])
	d.FreeInodesCount = binary.LittleEndian.Uint16(b[8:])
	return d
}

// RawInode is the on-disk inode record (spec §6). An inode is free iff
// LinksCount == 0.
type RawInode struct {
	Mode       uint16
	UID        uint16
	GID        uint16
	Size       uint32
	Atime      uint32
	Ctime      uint32
	Mtime      uint32
	Dtime      uint32
	LinksCount uint16
	Direct     [NDirect]uint16
	Indirect   uint16
}

func (n *RawInode) ToBytes() []byte {
	b := make([]byte, inodeSize)
	binary.LittleEndian.PutUint16(b[0:], n.Mode)
	binary.LittleEndian.PutUint16(b[2:], n.UID)
	binary.LittleEndian.PutUint16(b[4:], n.GID)
	binary.LittleEndian.PutUint32(b[6:], n.Size)
	binary.LittleEndian.PutUint32(b[10:], n.Atime)
	binary.LittleEndian.PutUint32(b[14:], n.Ctime)
	binary.LittleEndian.PutUint32(b[18:], n.Mtime)
	binary.LittleEndian.PutUint32(b[22:], n.Dtime)
	binary.LittleEndian.PutUint16(b[26:], n.LinksCount)
	off := 28
	for i := 0; i < NDirect; i++ {
		binary.LittleEndian.PutUint16(b[off+2*i:], n.Direct[i])
	}
	binary.LittleEndian.PutUint16(b[off+2*NDirect:], n.Indirect)
	return b
}

func InodeFromBytes(b []byte) RawInode {
	var n RawInode
	n.Mode = binary.LittleEndian.Uint16(b[0:])
	n.UID = binary.LittleEndian.Uint16(b[2:])
	n.GID = binary.LittleEndian.Uint16(b[4:])
	n.Size = binary.LittleEndian.Uint32(b[6:])
	n.Atime = binary.LittleEndian.Uint32(b[10:])
	n.Ctime = binary.LittleEndian.Uint32(b[14:])
	n.Mtime = binary.LittleEndian.Uint32(b[18:])
	n.Dtime = binary.LittleEndian.Uint32(b[22:])
	n.LinksCount = binary.LittleEndian.Uint16(b[26:])
	off := 28
	for i := 0; i < NDirect; i++ {
		n.Direct[i] = binary.LittleEndian.Uint16(b[off+2*i:])
	}
	n.Indirect = binary.LittleEndian.Uint16(b[off+2*NDirect:])
	return n
}

func (n *RawInode) Free() bool { return n.LinksCount == 0 }

// RawDirEntry is one directory record (spec §6). Entries are chained via
// RecLen, ext2-style.
type RawDirEntry struct {
	InodeID  uint16
	RecLen   uint16
	FileType uint8
	NameLen  uint8
	Name     [255]byte
}

func (e *RawDirEntry) ToBytes() []byte {
	b := make([]byte, dirEntrySize)
	binary.LittleEndian.PutUint16(b[0:], e.InodeID)
	binary.LittleEndian.PutUint16(b[2:], e.RecLen)
	b[4] = e.FileType
	b[5] = e.NameLen
	copy(b[6:261], e.Name[:])
	return b
}

func DirEntryFromBytes(b []byte) RawDirEntry {
	var e RawDirEntry
	e.InodeID = binary.LittleEndian.Uint16(b[0:])
	e.RecLen = binary.LittleEndian.Uint16(b[2:])
	e.FileType = b[4]
	e.NameLen = b[5]
	copy(e.Name[:], b[6:261])
	return e
}

func (e *RawDirEntry) NameString() string {
	return string(e.Name[:e.NameLen])
}

func makeDirEntry(id uint16, name string, ft uint8, recLen uint16) RawDirEntry {
	var e RawDirEntry
	e.InodeID = id
	e.RecLen = recLen
	e.FileType = ft
	e.NameLen = uint8(len(name))
	copy(e.Name[:], name)
	return e
}

// DirEntrySize is the fixed on-disk size of one RawDirEntry record.
const DirEntrySize = dirEntrySize

// SuperBlkSize and DescriptorSize are the fixed on-disk sizes of the
// superblock and descriptor records.
const (
	SuperBlkSize   = superBlkSize
	DescriptorSize = descriptorSize
	InodeSize      = inodeSize
)
