package archif

import (
	"testing"

	"rvkernel/internal/fdt"
)

type recordingProbe struct {
	got []string
}

func (p *recordingProbe) Probe(n fdt.Node, compatible string) error {
	p.got = append(p.got, compatible)
	return nil
}

func TestWalkAndProbeSkipsUnrecognized(t *testing.T) {
	tree := fdt.Node{
		Name: "",
		Properties: map[string][]byte{
			"compatible": append([]byte("ns16550a"), 0),
		},
		Children: []fdt.Node{
			{Name: "plic", Properties: map[string][]byte{"compatible": append([]byte("riscv,plic0"), 0)}},
			{Name: "unknown", Properties: map[string][]byte{"compatible": append([]byte("acme,widget"), 0)}},
		},
	}
	p := &recordingProbe{}
	recognized := map[string]bool{"riscv,plic0": true, "virtio,mmio": true}

	if err := WalkAndProbe(tree, p, recognized); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(p.got) != 1 || p.got[0] != "riscv,plic0" {
		t.Fatalf("expected only riscv,plic0 probed, got %v", p.got)
	}
}
