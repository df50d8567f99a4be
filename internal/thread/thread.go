// Package thread implements the thread future state machine (spec
// §4.I): the central polling loop that alternates a user thread between
// running in user mode and handling traps/syscalls/signals. The integer
// register set is grounded on
// original_source/src/arch/riscv/signal.rs's Context (the RISC-V
// general-purpose register file saved across a trap); the state-flag
// shape (RUNNING/INTERRUPTIBLE/...) is grounded on
// original_source/src/proc/process.rs's thread state enum, generalized
// to Go via explicit fields since Go has no tagged-union-with-payload
// the way Rust's Syscall(pinned future) variant needs.
package thread

import (
	"rvkernel/internal/executor"
	"rvkernel/internal/memobj"
	"rvkernel/internal/page"
)

// Context holds the RISC-V integer registers saved across a trap,
// field-for-field with original_source/src/arch/riscv/signal.rs's
// Context.
type Context struct {
	Ra, Sp, Gp, Tp                         uintptr
	T0, T1, T2                             uintptr
	S0, S1                                 uintptr
	A0, A1, A2, A3, A4, A5, A6, A7          uintptr
	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uintptr
	T3, T4, T5, T6                          uintptr
}

// State is a thread's scheduling state (spec §3's Thread type).
type State int

const (
	Running State = iota
	Interruptible
	Uninterruptible
	WakeKill
	Exited
)

// TrapKind enumerates trap causes the thread future inspects after
// run_user returns control (spec §4.I).
type TrapKind int

const (
	TrapPageFault TrapKind = iota
	TrapSyscall
	TrapTimer
	TrapInterrupt
	TrapOther
)

// Trap is what RunUser reports after the user thread traps back into
// the kernel.
type Trap struct {
	Kind TrapKind
	Addr uintptr // valid for TrapPageFault
}

// AltStack describes a thread's alternate signal stack (sigaltstack).
type AltStack struct {
	Addr    uintptr
	Size    int
	Disable bool
}

// SyscallFuture is a pinned, boxed async syscall handler: it is polled
// repeatedly by the thread future while in phase Syscall, and yields a0
// on completion.
type SyscallFuture interface {
	Poll(w *executor.Waker) (result uintptr, done bool)
}

// phase is the thread future's state machine position (spec §4.I:
// RunUser / Syscall(fut) / Exit).
type phase int

const (
	phaseRunUser phase = iota
	phaseSyscall
	phaseExit
)

// Runner is the architecture collaborator that actually executes user
// code until a trap (spec §1: boot/trap asm is external). It is
// satisfied by internal/archif in the full kernel and by a fake in
// tests.
type Runner interface {
	RunUser(ctx *Context) Trap
}

// Thread is one schedulable thread future (spec §3/§4.I). Its ID is
// also its executor task key.
type Thread struct {
	Tid   executor.ID
	State State
	Ctx   Context

	Memory *memobj.Memory
	Runner Runner

	AltStack      AltStack
	SavedSigCtx   *Context
	PendingSignal uint32 // bitmask; unused (internal/proc keeps pending signals in SignalState)

	phase       phase
	syscallFut  SyscallFuture
	savedFuture SyscallFuture // stashed across a signal taken mid-syscall

	// GetSignal is invoked once per poll (spec §4.J's get_signal
	// delivery loop); nil means "no signal subsystem wired in" (used by
	// unit tests that only exercise the RunUser/Syscall state machine).
	GetSignal func(t *Thread) (delivered bool)

	// Dispatch spawns the async syscall handler for a syscall trap and
	// returns its driving future (internal/syscall provides the real
	// implementation).
	Dispatch func(t *Thread) SyscallFuture
}

var _ executor.Future = (*Thread)(nil)

// ID implements executor.Future.
func (t *Thread) ID() executor.ID { return t.Tid }

// Poll implements spec §4.I's per-poll steps: activate the page table,
// run signal delivery, then act according to the current phase.
func (t *Thread) Poll(w *executor.Waker) executor.Status {
	if t.State == Exited {
		return executor.Ready
	}

	if t.Memory != nil {
		t.Memory.Activate()
	}

	if t.GetSignal != nil {
		delivered := t.GetSignal(t)
		if delivered && t.phase == phaseSyscall {
			// Stash the in-flight syscall future inside the saved
			// signal context so it resumes via sigreturn (spec §4.I
			// step 3).
			t.savedFuture = t.syscallFut
			t.syscallFut = nil
			t.phase = phaseRunUser
		}
	}

	switch t.phase {
	case phaseRunUser:
		return t.pollRunUser(w)
	case phaseSyscall:
		return t.pollSyscall(w)
	case phaseExit:
		t.State = Exited
		return executor.Ready
	}
	return executor.Pending
}

// pollRunUser runs the user thread until it traps, then reacts (spec
// §4.I). Only the page-fault and freshly-dispatched-syscall paths
// re-queue themselves immediately, since both have guaranteed follow-up
// work; a timer or external interrupt instead waits for whatever fires
// the next real hardware event to wake this thread again (an idle
// thread must not spin the executor).
func (t *Thread) pollRunUser(w *executor.Waker) executor.Status {
	trap := t.Runner.RunUser(&t.Ctx)
	switch trap.Kind {
	case TrapPageFault:
		if t.Memory != nil {
			_ = t.Memory.HandlePageFault(page.VA(trap.Addr))
		}
		w.Wake()
		return executor.Pending
	case TrapSyscall:
		if t.Dispatch != nil {
			t.syscallFut = t.Dispatch(t)
		}
		if t.State != Exited {
			t.phase = phaseSyscall
		}
		w.Wake()
		return executor.Pending
	default: // TrapTimer, TrapInterrupt, TrapOther
		return executor.Pending
	}
}

func (t *Thread) pollSyscall(w *executor.Waker) executor.Status {
	if t.syscallFut == nil {
		t.phase = phaseRunUser
		w.Wake()
		return executor.Pending
	}
	fut := t.syscallFut
	result, done := fut.Poll(w)
	if !done {
		return executor.Pending
	}
	if sr, ok := fut.(SigreturnResumer); ok && sr.IsSigreturn() {
		// Sigreturn already rewrote Ctx/phase/syscallFut itself; the
		// generic a0-write below would stomp the restored context.
		w.Wake()
		return executor.Pending
	}
	t.Ctx.A0 = result
	t.syscallFut = nil
	if t.State == Exited {
		t.phase = phaseExit
	} else {
		t.phase = phaseRunUser
	}
	w.Wake()
	return executor.Pending
}

// Exit marks the thread for termination; its next poll drives it to
// Ready and out of the executor's task map.
func (t *Thread) Exit(code int) {
	t.State = Exited
	t.phase = phaseExit
}

// SigreturnResumer is implemented by a SyscallFuture that, on
// completion, fully restores the thread's saved context and resumption
// state itself rather than having its result written to a0 the usual
// way (spec §4.J's sigreturn half of the deliver/resume round trip).
// internal/syscall's sigreturn handler is the only implementation.
type SigreturnResumer interface {
	SyscallFuture
	IsSigreturn() bool
}

// Sigreturn restores the register context and, if a syscall was
// interrupted by the signal that led here, the in-flight syscall future
// it was polling (spec §4.I step 3 / §4.J). It reports the restored
// a0, the value the pre-signal syscall (or plain user code) actually
// owns, so a SigreturnResumer's caller never lets sigreturn's own
// all-zero return clobber it. A thread with no saved context (sigreturn
// called without ever taking a signal) is a no-op.
func (t *Thread) Sigreturn() uintptr {
	if t.SavedSigCtx == nil {
		return t.Ctx.A0
	}
	t.Ctx = *t.SavedSigCtx
	t.SavedSigCtx = nil
	t.syscallFut = t.savedFuture
	t.savedFuture = nil
	if t.syscallFut != nil {
		t.phase = phaseSyscall
	} else {
		t.phase = phaseRunUser
	}
	return t.Ctx.A0
}
