package proc

import (
	"rvkernel/internal/accnt"
	"rvkernel/internal/executor"
	"rvkernel/internal/irqlock"
	"rvkernel/internal/memobj"
	"rvkernel/internal/page"
	"rvkernel/internal/stat"
	"rvkernel/internal/thread"
)

// Process is the process/thread-group record (spec §4.J/§4.K), grounded
// on original_source/src/proc/process.rs's Proc struct: one main thread
// id, a thread set, a parent/children tree, an open-file table, a
// current working directory, an address space, and the signal
// subsystem. Rust's Arc<RwLock<...>>-per-field shape collapses here into
// a single mutex guarding the pointer fields that change after
// construction (children, threads), matching spec §5's "IRQ-masking
// mutex" granularity without needing separate locks per field.
type Process struct {
	ID     executor.ID // == main thread's tid, spec §3
	Cmd    string
	Parent *Process

	mu       *irqlock.IRQLock
	children map[executor.ID]*Process
	threads  map[executor.ID]*thread.Thread

	Cwd    *Cwd
	Files  *OpenFiles
	Memory *memobj.Memory
	Signal *SignalState
	Accnt  *accnt.Accnt
	exe    *executor.Executor

	// Pending* fields stand in for the arguments/results a real syscall
	// handler would marshal to and from user memory via the mapper
	// (spec §4.C models address spaces as a flat simulated arena, not a
	// byte-addressable host mapping a Go slice can walk generically).
	// internal/syscall reads and writes these directly instead of
	// decoding pointers out of the thread's integer registers.
	PendingPath      string
	PendingReadBuf   []byte
	PendingWriteBuf  []byte
	PendingStat      stat.Stat
	PendingExecImage []byte
}

// NewProcess constructs a fresh process around an already-built main
// thread (process.rs's Proc::new). init marks the process UNKILLABLE
// (spec §4.J). exe is the executor the thread's task lives in, needed so
// signal delivery can wake a sibling thread by id.
func NewProcess(cmd string, cwd *Cwd, main *thread.Thread, mem *memobj.Memory, init bool, exe *executor.Executor) *Process {
	sig := NewSignalState()
	if init {
		sig.flags |= FlagUnkillable
	}
	sig.AddThread(uint64(main.Tid))

	mem.SetASID(page.ASID(main.Tid))

	p := &Process{
		ID:       main.ID(),
		Cmd:      cmd,
		mu:       irqlock.NewLock(),
		children: make(map[executor.ID]*Process),
		threads:  map[executor.ID]*thread.Thread{main.ID(): main},
		Cwd:      cwd,
		Files:    NewOpenFiles(),
		Memory:   mem,
		Signal:   sig,
		Accnt:    accnt.New(),
		exe:      exe,
	}
	wireGetSignal(p, main)
	return p
}

// wireGetSignal installs the thread's per-poll signal-delivery hook
// (spec §4.I step 3 / §4.J get_signal), bridging thread.Thread's
// narrow callback shape to this process's SignalState.
func wireGetSignal(p *Process, t *thread.Thread) {
	t.GetSignal = func(th *thread.Thread) bool {
		delivery, stopped, delivered := p.Signal.GetSignal(uint64(th.Tid), p.threadHandles())
		if stopped {
			return false
		}
		if !delivered {
			return false
		}
		deliverToContext(th, delivery)
		return true
	}
}

// deliverToContext implements the context-save-and-rewrite half of
// get_signal (spec §4.J): stash the interrupted register file, then
// point the thread at the registered handler so its next RunUser poll
// enters the trampoline.
func deliverToContext(th *thread.Thread, d Delivery) {
	saved := th.Ctx
	th.SavedSigCtx = &saved
	if d.Action.Handler != HandlerFunction {
		return
	}
	th.Ctx.A0 = uintptr(d.Info.Sig)
	th.Ctx.Ra = d.Action.HandlerAddr
	if d.Action.Flags&SA_SIGINFO != 0 && !th.AltStack.Disable {
		th.Ctx.A3 = th.AltStack.Addr
	}
}

// threadHandle adapts *thread.Thread to the narrow ThreadHandle
// interface the signal algorithm needs.
type threadHandle struct {
	t   *thread.Thread
	exe *executor.Executor
}

func (h threadHandle) ID() uint64        { return uint64(h.t.Tid) }
func (h threadHandle) IsKillable() bool  { return h.t.State == thread.WakeKill }
func (h threadHandle) SetInterruptible() { h.t.State = thread.Interruptible }
func (h threadHandle) SetRunnable()      { h.t.State = thread.Running }
func (h threadHandle) WakeSelf() {
	if h.exe != nil {
		h.exe.WakeTask(h.t.ID())
	}
}

func (p *Process) threadHandles() map[uint64]ThreadHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := make(map[uint64]ThreadHandle, len(p.threads))
	for id, t := range p.threads {
		m[uint64(id)] = threadHandle{t: t, exe: p.exe}
	}
	return m
}

// AddThread registers an additional thread (clone's new sibling thread,
// as opposed to a whole new process) into this process's thread set.
func (p *Process) AddThread(t *thread.Thread) {
	p.mu.Lock()
	p.threads[t.ID()] = t
	p.mu.Unlock()
	p.Signal.AddThread(uint64(t.Tid))
	wireGetSignal(p, t)
}

// RemoveThread drops a thread on exit.
func (p *Process) RemoveThread(id executor.ID) {
	p.mu.Lock()
	delete(p.threads, id)
	p.mu.Unlock()
	p.Signal.RemoveThread(uint64(id))
}

// Threads returns a snapshot of the live thread set.
func (p *Process) Threads() []*thread.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*thread.Thread, 0, len(p.threads))
	for _, t := range p.threads {
		out = append(out, t)
	}
	return out
}

// Fork builds a child process for clone() (spec §4.K): COW-borrowed
// memory, identical segment lists (via memobj.BorrowMemory), cloned open
// files, and cloned signal actions with empty pending queues
// (process.rs's Proc::fork).
func (p *Process) Fork(childMain *thread.Thread) (*Process, bool) {
	childMem, ok := p.Memory.BorrowMemory(page.ASID(childMain.Tid))
	if !ok {
		return nil, false
	}

	child := &Process{
		ID:       childMain.ID(),
		Cmd:      p.Cmd,
		Parent:   p,
		mu:       irqlock.NewLock(),
		children: make(map[executor.ID]*Process),
		threads:  map[executor.ID]*thread.Thread{childMain.ID(): childMain},
		Cwd:      &Cwd{Fd: p.Cwd.Fd, Path: p.Cwd.Path},
		Files:    p.Files.Fork(),
		Memory:   childMem,
		Signal:   p.Signal.Fork(),
		Accnt:    accnt.New(),
		exe:      p.exe,
	}
	child.Signal.AddThread(uint64(childMain.Tid))
	wireGetSignal(child, childMain)

	p.mu.Lock()
	p.children[child.ID] = child
	p.mu.Unlock()

	childMain.Memory = childMem
	return child, true
}

// IsInit reports whether this is the init process (process.rs's
// Proc::is_init: process id 1).
func (p *Process) IsInit() bool { return p.ID == 1 }

// Reap absorbs a fully-exited child's accumulated CPU accounting and
// drops it from the children set (accnt.Accnt.Add; stands in for the
// wait4-driven reap path, which this kernel's dispatch table doesn't
// wire up — see spec §9 on wait4 being a Non-goal's territory).
func (p *Process) Reap(child *Process) {
	p.mu.Lock()
	delete(p.children, child.ID)
	p.mu.Unlock()
	p.Accnt.Add(child.Accnt)
}
