package page

import (
	"encoding/binary"
	"rvkernel/internal/frame"
)

// VA is a virtual address.
type VA uintptr

// Page is a single page-aligned virtual address, the unit map/unmap
// operate on.
type Page struct {
	va VA
}

// PageOf returns the page containing va, aligning down.
func PageOf(va VA) Page {
	return Page{va: va &^ (PageSize - 1)}
}

// Start returns the page's base virtual address.
func (p Page) Start() VA { return p.va }

// levelIndices returns the per-level index of va's page into the
// PAGE_LEVELS-deep table tree, root first (Sv39-style: 9 bits per level
// above the 12-bit page offset).
func levelIndices(va VA) [PAGE_LEVELS]int {
	var idx [PAGE_LEVELS]int
	shift := PageShift + 9*(PAGE_LEVELS-1)
	for l := 0; l < PAGE_LEVELS; l++ {
		idx[l] = int((va >> uint(shift)) & (PTE_COUNT - 1))
		shift -= 9
	}
	return idx
}

// Table is a page-table frame: PTE_COUNT machine words living in one
// frame of the arena.
type Table struct {
	arena *frame.Arena
	frame frame.Frame
}

func newTable(arena *frame.Arena, f frame.Frame) Table {
	t := Table{arena: arena, frame: f}
	for i := 0; i < PTE_COUNT; i++ {
		t.SetEntry(i, Empty)
	}
	return t
}

func tableAt(arena *frame.Arena, addr frame.Addr) Table {
	return Table{arena: arena, frame: frame.Frame{Start: addr}}
}

// Frame returns the frame backing this table.
func (t Table) Frame() frame.Frame { return t.frame }

// Entry reads the i'th PTE.
func (t Table) Entry(i int) PTE {
	b := t.arena.Bytes(t.frame)
	return PTE(binary.LittleEndian.Uint64(b[i*8:]))
}

// SetEntry writes the i'th PTE.
func (t Table) SetEntry(i int, p PTE) {
	b := t.arena.Bytes(t.frame)
	binary.LittleEndian.PutUint64(b[i*8:], uint64(p))
}
