// Package memobj implements the process address space (spec §4.D): a
// page mapper plus kernel/user segment lists, and the segment-mapping
// algorithm that turns a Segment into PTEs. Grounded on
// biscuit/src/vm/as.go's Vm_t (segment bookkeeping, borrow/fork) combined
// with crates/mm/src/memory.rs's Linear/Framed segment split.
package memobj

import (
	"rvkernel/internal/errno"
	"rvkernel/internal/frame"
	"rvkernel/internal/page"
)

// MapType distinguishes identity-style linear segments (kernel
// text/data/MMIO) from demand-allocated framed segments (user code/data).
type MapType int

const (
	Linear MapType = iota
	Framed
)

// Segment is a half-open virtual address range with flags and a map
// type. Linear segments map to PhysBase + page-relative offset via the
// linear-mapping constant; Framed segments get frames allocated on
// mapping, optionally seeded from InitData.
type Segment struct {
	Start    page.VA
	Len      int
	Flags    page.Flags
	Type     MapType
	PhysBase frame.Addr // meaningful only for Linear segments
	InitData []byte     // meaningful only for Framed segments
}

// End returns the exclusive end address of the segment.
func (s Segment) End() page.VA { return s.Start + page.VA(s.Len) }

// overlaps reports whether either segment's start falls within the
// other's range (spec §4.D's overlap test).
func overlaps(a, b Segment) bool {
	contains := func(seg Segment, va page.VA) bool {
		return va >= seg.Start && va < seg.End()
	}
	return contains(a, b.Start) || contains(b, a.Start)
}

// AddressOverlapError reports that a new segment collides with an
// existing one.
type AddressOverlapError struct {
	Existing, New Segment
}

func (e *AddressOverlapError) Error() string {
	return "address range overlaps an existing segment"
}

// Memory is a process address space: a page mapper plus kernel and user
// segment lists. The union of kernel+user segment ranges must stay
// disjoint (spec §3).
type Memory struct {
	Mapper *page.Mapper
	Kernel []Segment
	User   []Segment

	arena  *frame.Arena
	active bool
}

// New creates an empty address space backed by arena.
func New(arena *frame.Arena) (*Memory, bool) {
	m, ok := page.Create(arena)
	if !ok {
		return nil, false
	}
	return &Memory{Mapper: m, arena: arena}, true
}

func (m *Memory) allSegments() []Segment {
	all := make([]Segment, 0, len(m.Kernel)+len(m.User))
	all = append(all, m.Kernel...)
	all = append(all, m.User...)
	return all
}

func (m *Memory) checkOverlap(s Segment) error {
	for _, e := range m.allSegments() {
		if overlaps(e, s) {
			return &AddressOverlapError{Existing: e, New: s}
		}
	}
	return nil
}

// AddKernelSegment adds s to the kernel segment list (shared by
// convention across forked address spaces) after checking for overlap.
func (m *Memory) AddKernelSegment(s Segment) error {
	if err := m.checkOverlap(s); err != nil {
		return err
	}
	m.Kernel = append(m.Kernel, s)
	return m.mapSegment(s)
}

// AddUserSegment adds s (with InitData populated if Framed) to the user
// segment list after checking for overlap, then maps it.
func (m *Memory) AddUserSegment(s Segment, initData []byte) error {
	s.InitData = initData
	if err := m.checkOverlap(s); err != nil {
		return err
	}
	m.User = append(m.User, s)
	return m.mapSegment(s)
}

// RemoveUserSegments clears the user segment list and unmaps their
// pages, returning frames to the arena.
func (m *Memory) RemoveUserSegments() {
	for _, s := range m.User {
		m.unmapSegment(s)
	}
	m.User = nil
}

func pagesIn(s Segment) []page.Page {
	var pages []page.Page
	for va := s.Start &^ (page.PageSize - 1); va < s.End(); va += page.PageSize {
		pages = append(pages, page.PageOf(va))
	}
	return pages
}

// mapSegment implements the segment mapping algorithm of spec §4.D.
func (m *Memory) mapSegment(s Segment) error {
	switch s.Type {
	case Linear:
		for _, p := range pagesIn(s) {
			off := frame.Addr(p.Start() - s.Start)
			f := frame.Frame{Start: s.PhysBase + off}
			if _, err := m.Mapper.Map(p, f, s.Flags); err != 0 {
				return err
			}
		}
	case Framed:
		segStart := s.Start &^ (page.PageSize - 1)
		pageStartOff := int(s.Start - segStart) // non-page-aligned segment start
		for _, p := range pagesIn(s) {
			scratch := make([]byte, page.PageSize)
			pageOff := int(p.Start() - segStart)
			// intersect [pageOff, pageOff+PageSize) with [pageStartOff, pageStartOff+len(InitData))
			initStart := pageStartOff
			initEnd := pageStartOff + len(s.InitData)
			lo := max(pageOff, initStart)
			hi := min(pageOff+page.PageSize, initEnd)
			if lo < hi {
				srcOff := lo - initStart
				dstOff := lo - pageOff
				copy(scratch[dstOff:dstOff+(hi-lo)], s.InitData[srcOff:srcOff+(hi-lo)])
			}
			if _, err := m.Mapper.AllocAndMap(p, s.Flags, scratch); err != 0 {
				return err
			}
		}
	}
	return nil
}

func (m *Memory) unmapSegment(s Segment) {
	for _, p := range pagesIn(s) {
		_ = m.Mapper.UnmapAndDealloc(p)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Activate marks this address space as the one currently loaded (the
// architecture-specific register write that really activates a page
// table lives behind internal/archif; see cmd/kdriver).
func (m *Memory) Activate() { m.active = true }

// SetASID tags the mapper's ASID for TLB-flush bookkeeping.
func (m *Memory) SetASID(a page.ASID) { m.Mapper.SetASID(a) }

// HandlePageFault delegates to the mapper's COW materialization path.
func (m *Memory) HandlePageFault(va page.VA) errno.Errno {
	return m.Mapper.HandlePageFault(va)
}

// BorrowMemory produces a forked address space: the kernel segment list
// is shared by convention (copied, since Go slices of value types don't
// alias mutation the way a shared pointer would, but by policy neither
// side mutates it after fork), the user segment list is copied so each
// side can evolve it independently, and the mapper is COW-cloned.
func (m *Memory) BorrowMemory(asid page.ASID) (*Memory, bool) {
	childMapper, ok := m.Mapper.BorrowMemory(asid)
	if !ok {
		return nil, false
	}
	child := &Memory{
		Mapper: childMapper,
		Kernel: append([]Segment(nil), m.Kernel...),
		User:   append([]Segment(nil), m.User...),
		arena:  m.arena,
	}
	return child, true
}
