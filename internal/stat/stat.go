// Package stat mirrors the fields a fstat/newfstatat syscall writes back
// to user space, adapted from biscuit/src/stat/stat.go but widened to
// the fields naive_fs inodes actually carry (spec §4.K fstat/newfstatat,
// §4.E RawInode).
package stat

import "encoding/binary"

// Stat mirrors a file's stat information (spec §6's RawInode fields
// projected onto the subset user code reads back via fstat).
type Stat struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Nlink uint32
	Size  uint64
	Atime uint32
	Mtime uint32
	Ctime uint32
}

const Size = 8 + 8 + 4 + 4 + 8 + 4 + 4 + 4

// Bytes serializes the struct little-endian, matching naive_fs's own
// on-disk byte order (spec §4.E).
func (st *Stat) Bytes() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint64(buf[0:], st.Dev)
	binary.LittleEndian.PutUint64(buf[8:], st.Ino)
	binary.LittleEndian.PutUint32(buf[16:], st.Mode)
	binary.LittleEndian.PutUint32(buf[20:], st.Nlink)
	binary.LittleEndian.PutUint64(buf[24:], st.Size)
	binary.LittleEndian.PutUint32(buf[32:], st.Atime)
	binary.LittleEndian.PutUint32(buf[36:], st.Mtime)
	binary.LittleEndian.PutUint32(buf[40:], st.Ctime)
	return buf
}
