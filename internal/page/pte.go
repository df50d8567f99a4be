// Package page implements the multi-level page table and mapper (spec
// §4.C): build, walk, map, unmap, clone-with-write-protect, and the
// copy-on-write page-fault materialization path. Grounded on
// biscuit/src/vm/as.go (Vm_t's Page_insert/Page_remove/Pgfault) and
// _examples/original_source/crates/mm/src/page/{mapper,table,flush}.rs.
package page

import "rvkernel/internal/frame"

// PTE_COUNT is the number of entries per page-table frame (Sv39: 512).
const PTE_COUNT = 512

// PAGE_LEVELS is the number of page-table levels (Sv39: 3).
const PAGE_LEVELS = 3

// PageShift/PageSize describe the page granularity; kept in sync with
// config.Default().PageSize.
const PageShift = 12
const PageSize = 1 << PageShift

// Flags are the PTE permission/status bits from spec §4.C.
type Flags uint64

const (
	Valid      Flags = 1 << 0
	Readable   Flags = 1 << 1
	Writable   Flags = 1 << 2
	Executable Flags = 1 << 3
	User       Flags = 1 << 4
	Accessed   Flags = 1 << 5
	Dirty      Flags = 1 << 6

	flagMask = Flags(PageSize - 1)
)

// PTE is a machine word: a physical address field plus flag bits. A PTE
// is either invalid, a non-leaf pointer to the next-level table, or a
// leaf mapping a virtual page to a frame with flags.
type PTE uint64

// Empty is the zero/invalid PTE.
const Empty PTE = 0

func makePTE(addr frame.Addr, flags Flags) PTE {
	return PTE(uint64(addr) | uint64(flags&flagMask))
}

// Valid reports whether this PTE (leaf or non-leaf) is present.
func (p PTE) Valid() bool {
	return Flags(p)&Valid != 0
}

// IsLeaf reports whether this PTE maps a page directly (has at least one
// of R/W/X set, per spec §3's invariant).
func (p PTE) IsLeaf() bool {
	return Flags(p)&(Readable|Writable|Executable) != 0
}

// Addr returns the physical frame address this PTE references (valid for
// both leaf and non-leaf entries).
func (p PTE) Addr() frame.Addr {
	return frame.Addr(uint64(p) &^ uint64(flagMask))
}

// Flags returns the flag bits of this PTE.
func (p PTE) Flags() Flags {
	return Flags(p) & flagMask
}

// WithFlags returns a copy of p with its flags replaced, address kept.
func (p PTE) WithFlags(f Flags) PTE {
	return makePTE(p.Addr(), f)
}

// IsWritable reports whether the writable bit is set.
func (p PTE) IsWritable() bool {
	return p.Flags()&Writable != 0
}
