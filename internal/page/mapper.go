package page

import (
	"rvkernel/internal/errno"
	"rvkernel/internal/frame"
)

// ASID is an address-space identifier, used only to tag TLB flushes.
type ASID uint16

// Mapper owns the root table frame, an optional ASID, and a reference to
// the shared frame allocator/arena. Each mapper owns every page-table
// frame reachable from its root that is not shared with another mapper
// (spec §4.C).
type Mapper struct {
	arena *frame.Arena
	root  frame.Frame
	asid  ASID

	// tlbFlushes/wholeFlushes count invalidations for observability in
	// tests; there is no real TLB to invalidate in this hosted
	// simulation.
	tlbFlushes   int
	wholeFlushes int
}

// Create allocates one zeroed frame for the root table and returns a
// fresh mapper.
func Create(arena *frame.Arena) (*Mapper, bool) {
	f, ok := arena.Alloc()
	if !ok {
		return nil, false
	}
	newTable(arena, f)
	return &Mapper{arena: arena, root: f}, true
}

// SetASID assigns the address-space id used for TLB-flush bookkeeping.
func (m *Mapper) SetASID(a ASID) { m.asid = a }

func (m *Mapper) rootTable() Table {
	return tableAt(m.arena, m.root.Start)
}

func (m *Mapper) invalidate(va VA) {
	m.tlbFlushes++
}

// FlushAll performs a whole-TLB flush, used by bulk operations that
// deferred their per-page flushes via FlushGuard.Ignore.
func (m *Mapper) FlushAll() {
	m.wholeFlushes++
}

// walk descends the table tree to the page's leaf slot, allocating
// intermediate table frames for invalid non-leaf entries as it goes when
// alloc is true. It returns the table holding the leaf PTE and the index
// within it, or an error if an intermediate entry is already a leaf
// (spec §4.C: "map fails with InvalidVirtualAddress if a non-leaf PTE
// exists where a leaf was expected").
func (m *Mapper) walk(p Page, alloc bool) (Table, int, errno.Errno) {
	idx := levelIndices(p.va)
	t := m.rootTable()
	for level := 0; level < PAGE_LEVELS-1; level++ {
		i := idx[level]
		pte := t.Entry(i)
		if !pte.Valid() {
			if !alloc {
				return Table{}, 0, errno.ENOENT
			}
			nf, ok := m.arena.Alloc()
			if !ok {
				return Table{}, 0, errno.ENOMEM
			}
			newTable(m.arena, nf)
			t.SetEntry(i, makePTE(nf.Start, Valid))
			t = tableAt(m.arena, nf.Start)
			continue
		}
		if pte.IsLeaf() {
			return Table{}, 0, errno.EINVAL // InvalidVirtualAddress
		}
		t = tableAt(m.arena, pte.Addr())
	}
	return t, idx[PAGE_LEVELS-1], 0
}

// Map installs a leaf PTE mapping page to frame with flags, allocating
// intermediate table frames as needed.
func (m *Mapper) Map(p Page, f frame.Frame, flags Flags) (*FlushGuard, errno.Errno) {
	t, i, err := m.walk(p, true)
	if err != 0 {
		return nil, err
	}
	t.SetEntry(i, makePTE(f.Start, flags|Valid))
	return &FlushGuard{mapper: m, va: p.va}, 0
}

// Unmap clears the leaf PTE for page and returns the PTE that was
// removed so the caller can decide whether to free its frame.
func (m *Mapper) Unmap(p Page) (*FlushGuard, PTE, errno.Errno) {
	t, i, err := m.walk(p, false)
	if err != 0 {
		return nil, Empty, err
	}
	old := t.Entry(i)
	t.SetEntry(i, Empty)
	return &FlushGuard{mapper: m, va: p.va}, old, 0
}

// UnmapAndDealloc unmaps page and returns its frame to the arena.
func (m *Mapper) UnmapAndDealloc(p Page) errno.Errno {
	g, old, err := m.Unmap(p)
	if err != 0 {
		return err
	}
	g.Flush()
	if old.Valid() {
		m.arena.Dealloc(frame.Frame{Start: old.Addr()})
	}
	return 0
}

// AllocAndMap allocates a fresh frame, maps it at page with flags, and
// copies initData into it via the linear kernel mapping (Arena.Bytes).
func (m *Mapper) AllocAndMap(p Page, flags Flags, initData []byte) (*FlushGuard, errno.Errno) {
	f, ok := m.arena.Alloc()
	if !ok {
		return nil, errno.ENOMEM
	}
	dst := m.arena.Bytes(f)
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, initData)
	return m.Map(p, f, flags)
}

// Lookup returns the PTE mapping page's leaf, if any.
func (m *Mapper) Lookup(p Page) (PTE, bool) {
	t, i, err := m.walk(p, false)
	if err != 0 {
		return Empty, false
	}
	pte := t.Entry(i)
	if !pte.Valid() {
		return Empty, false
	}
	return pte, true
}

// BorrowMemory performs a copy-on-write-style clone of the entire page
// tree: new page-table frames are allocated level by level, and leaf
// PTEs are cloned into the target with the writable bit cleared
// (pte_borrow). The source's writable bit is left untouched — per spec
// §4.C this is deliberate, not an oversight; see DESIGN.md's Open
// Question resolution. Non-leaf PTEs are recursively cloned so both
// address spaces can evolve independently at the page-table level.
func (m *Mapper) BorrowMemory(asid ASID) (*Mapper, bool) {
	child, ok := Create(m.arena)
	if !ok {
		return nil, false
	}
	child.SetASID(asid)
	if !m.cloneInto(m.root, child.root, 0) {
		return nil, false
	}
	return child, true
}

func (m *Mapper) cloneInto(src, dst frame.Frame, level int) bool {
	srcT := tableAt(m.arena, src.Start)
	dstT := tableAt(m.arena, dst.Start)
	for i := 0; i < PTE_COUNT; i++ {
		pte := srcT.Entry(i)
		if !pte.Valid() {
			continue
		}
		if level == PAGE_LEVELS-1 || pte.IsLeaf() {
			cloned := pteBorrow(pte)
			dstT.SetEntry(i, cloned)
			continue
		}
		nf, ok := m.arena.Alloc()
		if !ok {
			return false
		}
		newTable(m.arena, nf)
		dstT.SetEntry(i, makePTE(nf.Start, Valid))
		if !m.cloneInto(frame.Frame{Start: pte.Addr()}, nf, level+1) {
			return false
		}
	}
	return true
}

func pteBorrow(p PTE) PTE {
	return p.WithFlags(p.Flags() &^ Writable)
}

// HandlePageFault aligns addr down to a page, allocates a new frame,
// copies the faulting page's current bytes into the new frame, unmaps
// the original page, and maps the new frame with the previous flags but
// with writable forced on. This is the COW materialization path after a
// fork (spec §4.C).
func (m *Mapper) HandlePageFault(addr VA) errno.Errno {
	p := PageOf(addr)
	pte, ok := m.Lookup(p)
	if !ok {
		return errno.EFAULT
	}
	nf, ok := m.arena.Alloc()
	if !ok {
		return errno.ENOMEM
	}
	src := m.arena.Bytes(frame.Frame{Start: pte.Addr()})
	dst := m.arena.Bytes(nf)
	copy(dst, src)

	if err := m.UnmapAndDeallocNoFree(p); err != 0 {
		return err
	}
	newFlags := pte.Flags() | Writable
	g, err := m.Map(p, nf, newFlags)
	if err != 0 {
		return err
	}
	g.Flush()
	return 0
}

// UnmapAndDeallocNoFree unmaps page without freeing its old frame — used
// by HandlePageFault, where the old frame is shared with another address
// space and must not be returned to the allocator here.
func (m *Mapper) UnmapAndDeallocNoFree(p Page) errno.Errno {
	g, _, err := m.Unmap(p)
	if err != 0 {
		return err
	}
	g.Flush()
	return 0
}

// FreePageTable frees all PTE-referenced frames and the table frames
// themselves.
func (m *Mapper) FreePageTable() {
	m.freeLevel(m.root, 0)
}

func (m *Mapper) freeLevel(t frame.Frame, level int) {
	tbl := tableAt(m.arena, t.Start)
	for i := 0; i < PTE_COUNT; i++ {
		pte := tbl.Entry(i)
		if !pte.Valid() {
			continue
		}
		if level < PAGE_LEVELS-1 && !pte.IsLeaf() {
			m.freeLevel(frame.Frame{Start: pte.Addr()}, level+1)
		} else {
			m.arena.Dealloc(frame.Frame{Start: pte.Addr()})
		}
	}
	m.arena.Dealloc(t)
}
