package bitmap

import "testing"

func TestLenOfBitmap(t *testing.T) {
	cases := []struct {
		nbits    uint32
		expected int
	}{
		{1, 1},
		{65, 2},
	}
	for _, c := range cases {
		if got := len(New(c.nbits).words); got != c.expected {
			t.Errorf("New(%d): got %d words, want %d", c.nbits, got, c.expected)
		}
	}
}

func TestBitmapTestAndSet(t *testing.T) {
	b := New(128)
	if b.Test(1) {
		t.Fatal("bit 1 should start clear")
	}
	b.TestAndSet(1, true)
	if !b.Test(1) {
		t.Fatal("bit 1 should be set")
	}
	if b.Test(127) {
		t.Fatal("bit 127 should start clear")
	}
	b.TestAndSet(127, true)
	if !b.Test(127) {
		t.Fatal("bit 127 should be set")
	}
}

func TestBitmapClear(t *testing.T) {
	b := New(32767)
	b.TestAndSet(0, true)
	b.TestAndSet(0, false)
	if b.TestAndSet(0, true) {
		t.Fatal("bit 0 should have been clear")
	}

	b.TestAndSet(1, true)
	b.TestAndSet(2, true)
	b.TestAndSet(0, false)
	if b.TestAndSet(0, true) {
		t.Fatal("bit 0 should have been clear")
	}
	if !b.TestAndSet(1, true) {
		t.Fatal("bit 1 should have been set")
	}
}

// S1 / bitmap_find_next_zero
func TestBitmapFindNextZero(t *testing.T) {
	b := New(32767)
	for i := uint32(0); i <= 32766; i++ {
		b.TestAndSet(i, true)
	}
	idx, ok := b.FindNextZero(0, nil)
	if !ok || idx != 32767 {
		t.Fatalf("FindNextZero(0, nil) = (%d, %v), want (32767, true)", idx, ok)
	}
	b.TestAndSet(32767, true)
	if _, ok := b.FindNextZero(0, nil); ok {
		t.Fatal("expected no zero bits left")
	}
}

func TestBitmapFindNextZeroMidword(t *testing.T) {
	b := New(32767)
	if idx, ok := b.FindNextZero(0, nil); !ok || idx != 0 {
		t.Fatalf("got (%d,%v) want (0,true)", idx, ok)
	}

	b.TestAndSet(63, true)
	if idx, ok := b.FindNextZero(0, nil); !ok || idx != 0 {
		t.Fatalf("got (%d,%v) want (0,true)", idx, ok)
	}
	if idx, ok := b.FindNextZero(63, nil); !ok || idx != 64 {
		t.Fatalf("got (%d,%v) want (64,true)", idx, ok)
	}

	b.TestAndSet(0, true)
	if idx, ok := b.FindNextZero(0, nil); !ok || idx != 1 {
		t.Fatalf("got (%d,%v) want (1,true)", idx, ok)
	}
}

func TestBitmapFindNextZeroWithEnd(t *testing.T) {
	b := New(10)
	end10 := uint32(10)
	if idx, ok := b.FindNextZero(0, &end10); !ok || idx != 0 {
		t.Fatalf("got (%d,%v) want (0,true)", idx, ok)
	}

	b.TestAndSet(0, true)
	b.TestAndSet(1, true)
	if idx, ok := b.FindNextZero(0, nil); !ok || idx != 2 {
		t.Fatalf("got (%d,%v) want (2,true)", idx, ok)
	}
	end3 := uint32(3)
	if idx, ok := b.FindNextZero(0, &end3); !ok || idx != 2 {
		t.Fatalf("got (%d,%v) want (2,true)", idx, ok)
	}
	end2 := uint32(2)
	if _, ok := b.FindNextZero(0, &end2); ok {
		t.Fatal("expected none before end=2")
	}
}

func TestBitmapRoundTrip(t *testing.T) {
	b := New(128)
	b.TestAndSet(3, true)
	b.TestAndSet(70, true)
	buf := make([]byte, b.Capacity()/8)
	b.ToBytesBE(buf)
	b2 := FromBytesBE(buf, 128)
	for i := uint32(0); i < 128; i++ {
		if b.Test(i) != b2.Test(i) {
			t.Fatalf("bit %d mismatch after round trip", i)
		}
	}
}
