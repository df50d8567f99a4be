package thread

import (
	"rvkernel/internal/executor"
	"testing"
)

// fakeRunner returns a scripted sequence of traps, one per RunUser call.
type fakeRunner struct {
	traps []Trap
	i     int
}

func (r *fakeRunner) RunUser(ctx *Context) Trap {
	if r.i >= len(r.traps) {
		return Trap{Kind: TrapInterrupt}
	}
	t := r.traps[r.i]
	r.i++
	return t
}

type fakeSyscallFuture struct {
	result uintptr
}

func (f *fakeSyscallFuture) Poll(w *executor.Waker) (uintptr, bool) {
	return f.result, true
}

func TestThreadSyscallRoundTrip(t *testing.T) {
	e := executor.New(8)
	th := &Thread{
		Tid:    1,
		Runner: &fakeRunner{traps: []Trap{{Kind: TrapSyscall}}},
		Dispatch: func(th *Thread) SyscallFuture {
			return &fakeSyscallFuture{result: 42}
		},
	}
	if err := e.Spawn(th); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	// First poll: RunUser traps into Syscall, dispatch spawns the fake
	// future, wakes itself.
	e.RunReadyTasks()
	// Second poll (re-queued by the wake above): syscall future
	// resolves immediately, writes a0, returns to RunUser.
	if th.Ctx.A0 != 42 {
		t.Fatalf("expected a0 to be set to 42, got %d", th.Ctx.A0)
	}
}

func TestThreadExitRemovesFromExecutor(t *testing.T) {
	e := executor.New(8)
	exited := false
	th := &Thread{
		Tid: 1,
		Runner: &fakeRunner{traps: []Trap{{Kind: TrapSyscall}}},
		Dispatch: func(th *Thread) SyscallFuture {
			exited = true
			th.Exit(0)
			return &fakeSyscallFuture{result: 0}
		},
	}
	if err := e.Spawn(th); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	e.RunReadyTasks()
	if !exited {
		t.Fatal("dispatch never ran")
	}
	if len(e.Tasks()) != 0 {
		t.Fatalf("expected thread to be removed from executor after exit, got %v", e.Tasks())
	}
}

// sigreturnStub stands in for internal/syscall's real sigreturn handler,
// which can't be imported here without a cycle: it restores the thread's
// saved context the same way, by implementing SigreturnResumer.
type sigreturnStub struct{ th *Thread }

func (f *sigreturnStub) Poll(w *executor.Waker) (uintptr, bool) { return f.th.Sigreturn(), true }
func (f *sigreturnStub) IsSigreturn() bool                      { return true }

var _ SigreturnResumer = (*sigreturnStub)(nil)

// TestThreadSignalDeliverySigreturnRoundTrip exercises spec §4.I/§4.J's
// full deliver-then-resume cycle: a signal interrupts a thread mid
// syscall, stashing both the register context and the in-flight
// syscall future, and sigreturn must restore both so the original
// syscall's result (not sigreturn's own) ends up in a0.
func TestThreadSignalDeliverySigreturnRoundTrip(t *testing.T) {
	e := executor.New(8)
	const origRa uintptr = 0x1000
	delivered := false
	th := &Thread{
		Tid:    1,
		Ctx:    Context{Ra: origRa},
		Runner: &fakeRunner{traps: []Trap{{Kind: TrapSyscall}, {Kind: TrapSyscall}}},
		GetSignal: func(t *Thread) bool {
			if delivered || t.phase != phaseSyscall {
				return false
			}
			delivered = true
			saved := t.Ctx
			t.SavedSigCtx = &saved
			t.Ctx.Ra = 0xdead // simulate the trampoline jump
			return true
		},
		Dispatch: func(t *Thread) SyscallFuture {
			if !delivered {
				return &fakeSyscallFuture{result: 42} // the syscall the signal interrupts
			}
			return &sigreturnStub{th: t}
		},
	}
	if err := e.Spawn(th); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	// One drain covers the whole cycle: each poll's Wake immediately
	// re-queues the task, so RunReadyTasks visits dispatch, delivery,
	// sigreturn, and the resumed syscall's completion in one pass
	// (mirroring TestThreadSyscallRoundTrip's single-call pattern).
	e.RunReadyTasks()

	if !delivered {
		t.Fatal("signal was never delivered")
	}
	if th.SavedSigCtx != nil {
		t.Fatal("expected SavedSigCtx cleared after sigreturn")
	}
	if th.Ctx.Ra != origRa {
		t.Fatalf("expected Ra restored to %#x after sigreturn, got %#x", origRa, th.Ctx.Ra)
	}
	if th.Ctx.A0 != 42 {
		t.Fatalf("expected a0 to carry the interrupted syscall's result 42, got %d", th.Ctx.A0)
	}
}
