// Package circbuf implements a single-reader/single-writer circular
// byte buffer, adapted from biscuit/src/circbuf/circbuf.go's
// head/tail-modulo-bufsz arithmetic. The page-allocator plumbing
// (Page_i, Pa_t, lazy physical-page backing) is dropped in favor of a
// plain preallocated []byte, since this kernel's devfs/tty layer has no
// need to lazily back a circbuf with a physical page the way a daemon's
// pipe buffer does.
package circbuf

// Buf is a fixed-capacity circular byte buffer.
type Buf struct {
	data  []byte
	head  int
	tail  int
	bufsz int
}

// New allocates a buffer with the given capacity in bytes.
func New(size int) *Buf {
	return &Buf{data: make([]byte, size), bufsz: size}
}

// Full reports whether the buffer cannot accept more data.
func (cb *Buf) Full() bool { return cb.head-cb.tail == cb.bufsz }

// Empty reports whether the buffer contains any data.
func (cb *Buf) Empty() bool { return cb.head == cb.tail }

// Left returns the remaining capacity in bytes.
func (cb *Buf) Left() int { return cb.bufsz - (cb.head - cb.tail) }

// Used returns the current number of bytes in the buffer.
func (cb *Buf) Used() int { return cb.head - cb.tail }

// Write copies as much of src into the buffer as fits, returning the
// number of bytes copied.
func (cb *Buf) Write(src []byte) int {
	n := 0
	for n < len(src) && !cb.Full() {
		cb.data[cb.head%cb.bufsz] = src[n]
		cb.head++
		n++
	}
	return n
}

// Read copies as much of the buffer into dst as fits, returning the
// number of bytes copied.
func (cb *Buf) Read(dst []byte) int {
	n := 0
	for n < len(dst) && !cb.Empty() {
		dst[n] = cb.data[cb.tail%cb.bufsz]
		cb.tail++
		n++
	}
	return n
}
