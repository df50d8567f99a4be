package fdt

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildTestBlob hand-assembles a tiny two-node FDT blob (root with one
// child), independent of any builder implementation, to exercise Parse
// against the exact wire format spec §6 describes.
func buildTestBlob(t *testing.T) []byte {
	t.Helper()
	var structBuf, strings bytes.Buffer
	stringsOff := map[string]uint32{}

	writeToken := func(tok uint32) {
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], tok)
		structBuf.Write(tmp[:])
	}
	pad := func() {
		for structBuf.Len()%4 != 0 {
			structBuf.WriteByte(0)
		}
	}
	stringOff := func(name string) uint32 {
		if off, ok := stringsOff[name]; ok {
			return off
		}
		off := uint32(strings.Len())
		strings.WriteString(name)
		strings.WriteByte(0)
		stringsOff[name] = off
		return off
	}
	beginNode := func(name string) {
		writeToken(beginNodeToken)
		structBuf.WriteString(name)
		structBuf.WriteByte(0)
		pad()
	}
	endNode := func() { writeToken(endNodeToken) }
	prop := func(name string, val []byte) {
		writeToken(propToken)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(len(val)))
		structBuf.Write(tmp[:])
		binary.BigEndian.PutUint32(tmp[:], stringOff(name))
		structBuf.Write(tmp[:])
		structBuf.Write(val)
		pad()
	}

	beginNode("")
	prop("compatible", append([]byte("ns16550a"), 0))
	beginNode("plic@c000000")
	prop("compatible", append([]byte("riscv,plic0"), 0))
	endNode()
	endNode()
	writeToken(endToken)
	pad()

	structBytes := structBuf.Bytes()
	stringsBytes := strings.Bytes()
	memReserve := make([]byte, 16)

	offMemReserve := headerSize
	offStruct := offMemReserve + len(memReserve)
	offStrings := offStruct + len(structBytes)
	total := offStrings + len(stringsBytes)

	blob := make([]byte, total)
	header := blob[:headerSize]
	binary.BigEndian.PutUint32(header[0:4], magic)
	binary.BigEndian.PutUint32(header[4:8], uint32(total))
	binary.BigEndian.PutUint32(header[8:12], uint32(offStruct))
	binary.BigEndian.PutUint32(header[12:16], uint32(offStrings))
	binary.BigEndian.PutUint32(header[16:20], uint32(offMemReserve))
	binary.BigEndian.PutUint32(header[20:24], 17)
	binary.BigEndian.PutUint32(header[24:28], 16)
	binary.BigEndian.PutUint32(header[32:36], uint32(len(stringsBytes)))
	binary.BigEndian.PutUint32(header[36:40], uint32(len(structBytes)))
	copy(blob[offMemReserve:], memReserve)
	copy(blob[offStruct:], structBytes)
	copy(blob[offStrings:], stringsBytes)
	return blob
}

func TestParseWalksChildrenAndCompatible(t *testing.T) {
	blob := buildTestBlob(t)
	root, err := Parse(blob)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := root.Compatible(); len(got) != 1 || got[0] != "ns16550a" {
		t.Fatalf("expected root compatible [ns16550a], got %v", got)
	}
	if len(root.Children) != 1 {
		t.Fatalf("expected one child node, got %d", len(root.Children))
	}
	child := root.Children[0]
	if child.Name != "plic@c000000" {
		t.Fatalf("unexpected child name %q", child.Name)
	}
	if got := child.Compatible(); len(got) != 1 || got[0] != "riscv,plic0" {
		t.Fatalf("expected child compatible [riscv,plic0], got %v", got)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	blob := buildTestBlob(t)
	binary.BigEndian.PutUint32(blob[0:4], 0)
	if _, err := Parse(blob); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestParseRejectsTruncatedBlob(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a too-short blob")
	}
}
