// Package archif collects the architecture-specific collaborators spec
// §1 declares out of scope: boot assembly, the SBI firmware call
// interface, and device-tree-driven driver registration. Only their
// interfaces are specified here (spec §6); cmd/kdriver supplies a
// hosted stand-in so internal/thread and internal/executor have a real
// type to depend on when driven outside actual RISC-V hardware.
package archif

import (
	"rvkernel/internal/fdt"
	"rvkernel/internal/thread"
)

// SBI is the Supervisor Binary Interface legacy call set spec §6 names:
// console_putchar/console_getchar/set_timer/shutdown, each an ecall with
// the call number in a7 and arguments in a0..a2.
type SBI interface {
	ConsolePutchar(c byte)
	ConsoleGetchar() (c byte, ok bool)
	SetTimer(ticks uint64)
	Shutdown()
}

// Hart identifies the single supervisor hart this kernel boots on (spec
// §1: "the design assumes one hart; a per-hart table is sketched but
// unused").
type Hart interface {
	ID() uint64
}

// DeviceProbe registers a driver for a device-tree node once its
// "compatible" string is known (spec §6: "the kernel walks the root
// node and registers drivers by compatible string").
type DeviceProbe interface {
	Probe(node fdt.Node, compatible string) error
}

// WalkAndProbe feeds every node carrying a recognized compatible string
// to p, in tree order. Unrecognized compatible strings are skipped
// rather than treated as an error, since spec §6 only requires
// `riscv,plic0` and `virtio,mmio` (`ns16550a` is optional).
func WalkAndProbe(root fdt.Node, p DeviceProbe, recognized map[string]bool) error {
	var firstErr error
	root.Walk(func(n fdt.Node) {
		if firstErr != nil {
			return
		}
		for _, c := range n.Compatible() {
			if !recognized[c] {
				continue
			}
			if err := p.Probe(n, c); err != nil {
				firstErr = err
			}
			return
		}
	})
	return firstErr
}

// Runner is the hosted stand-in for the real `run_user` primitive (spec
// §1/§4.I): restore integer registers, enter user mode, and on the next
// trap save registers back into the context. A real implementation
// needs inline RISC-V assembly this Go module cannot express portably,
// so this type documents the boundary with a panic rather than
// pretending to execute user code.
type Runner struct{}

var _ thread.Runner = Runner{}

// RunUser always panics: there is no host CPU mode switch to perform
// here. cmd/kdriver's tests drive internal/thread with a scripted fake
// implementing thread.Runner instead of this type.
func (Runner) RunUser(ctx *thread.Context) thread.Trap {
	panic("archif: RunUser has no freestanding RISC-V target to run on in this hosted build")
}
