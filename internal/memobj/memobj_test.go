package memobj

import (
	"rvkernel/internal/frame"
	"rvkernel/internal/page"
	"testing"
)

func TestAddUserSegmentFramedSeeded(t *testing.T) {
	arena := frame.NewArena(64*page.PageSize, page.PageSize)
	m, ok := New(arena)
	if !ok {
		t.Fatal("new failed")
	}
	init := []byte("hello, world")
	seg := Segment{Start: 0x1000, Len: page.PageSize, Flags: page.Readable | page.Writable | page.User, Type: Framed}
	if err := m.AddUserSegment(seg, init); err != nil {
		t.Fatalf("add user segment: %v", err)
	}
	pte, ok := m.Mapper.Lookup(page.PageOf(0x1000))
	if !ok {
		t.Fatal("expected mapping")
	}
	buf := arena.Bytes(frame.Frame{Start: pte.Addr()})
	if string(buf[:len(init)]) != string(init) {
		t.Fatalf("init data not seeded: %q", buf[:len(init)])
	}
}

func TestAddSegmentOverlapRejected(t *testing.T) {
	arena := frame.NewArena(64*page.PageSize, page.PageSize)
	m, ok := New(arena)
	if !ok {
		t.Fatal("new failed")
	}
	a := Segment{Start: 0x1000, Len: 2 * page.PageSize, Flags: page.Readable | page.User, Type: Framed}
	if err := m.AddUserSegment(a, nil); err != nil {
		t.Fatalf("add first segment: %v", err)
	}
	b := Segment{Start: 0x2000, Len: page.PageSize, Flags: page.Readable | page.User, Type: Framed}
	if err := m.AddUserSegment(b, nil); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestRemoveUserSegmentsUnmaps(t *testing.T) {
	arena := frame.NewArena(64*page.PageSize, page.PageSize)
	m, ok := New(arena)
	if !ok {
		t.Fatal("new failed")
	}
	seg := Segment{Start: 0x1000, Len: page.PageSize, Flags: page.Readable | page.Writable | page.User, Type: Framed}
	if err := m.AddUserSegment(seg, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	m.RemoveUserSegments()
	if _, ok := m.Mapper.Lookup(page.PageOf(0x1000)); ok {
		t.Fatal("expected segment to be unmapped")
	}
	if len(m.User) != 0 {
		t.Fatal("expected user segment list to be empty")
	}
}

func TestBorrowMemoryCopiesSegmentLists(t *testing.T) {
	arena := frame.NewArena(64*page.PageSize, page.PageSize)
	parent, ok := New(arena)
	if !ok {
		t.Fatal("new failed")
	}
	seg := Segment{Start: 0x1000, Len: page.PageSize, Flags: page.Readable | page.Writable | page.User, Type: Framed}
	if err := parent.AddUserSegment(seg, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	child, ok := parent.BorrowMemory(1)
	if !ok {
		t.Fatal("borrow failed")
	}
	if len(child.User) != 1 {
		t.Fatalf("expected child to inherit 1 user segment, got %d", len(child.User))
	}
	// Mutating the child's segment list must not affect the parent's.
	child.User = append(child.User, Segment{Start: 0x5000, Len: page.PageSize, Type: Framed})
	if len(parent.User) != 1 {
		t.Fatalf("parent segment list mutated by child append: %d", len(parent.User))
	}
}
