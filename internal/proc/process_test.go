package proc

import (
	"testing"

	"rvkernel/internal/executor"
	"rvkernel/internal/frame"
	"rvkernel/internal/memobj"
	"rvkernel/internal/page"
	"rvkernel/internal/thread"
)

// idleRunner reports a timer trap on every RunUser call, so a thread
// driven by it stays Pending without issuing any syscall.
type idleRunner struct{}

func (idleRunner) RunUser(ctx *thread.Context) thread.Trap { return thread.Trap{Kind: thread.TrapTimer} }

func newTestMemory(t *testing.T) *memobj.Memory {
	t.Helper()
	arena := frame.NewArena(64*page.PageSize, page.PageSize)
	m, ok := memobj.New(arena)
	if !ok {
		t.Fatal("memobj.New failed")
	}
	return m
}

// TestForkThenExitDrainsExecutor covers scenario S4: a cloned child
// thread runs to exit and is fully removed from both its process and the
// executor's task registry.
func TestForkThenExitDrainsExecutor(t *testing.T) {
	exe := executor.New(8)
	mem := newTestMemory(t)

	main := &thread.Thread{Tid: 1, State: thread.Running, Runner: idleRunner{}}
	cwd := NewRootCwd(nil)
	parent := NewProcess("init", cwd, main, mem, true, exe)
	if err := exe.Spawn(main); err != nil {
		t.Fatalf("spawn main: %v", err)
	}

	child := &thread.Thread{Tid: 2, State: thread.Running}
	childProc, ok := parent.Fork(child)
	if !ok {
		t.Fatal("fork failed")
	}
	if err := exe.Spawn(child); err != nil {
		t.Fatalf("spawn child: %v", err)
	}

	if childProc.Parent != parent {
		t.Fatal("expected child's Parent to be the forking process")
	}
	if _, ok := parent.children[childProc.ID]; !ok {
		t.Fatal("expected child registered in parent.children")
	}

	// Drive the child thread to exit (stand-in for its last syscall
	// handler calling th.Exit), then confirm the executor reaps it.
	child.Exit(0)
	childProc.RemoveThread(child.ID())
	exe.WakeTask(child.ID())
	exe.RunReadyTasks()

	for _, id := range exe.Tasks() {
		if id == child.ID() {
			t.Fatal("expected exited child thread removed from executor")
		}
	}
	if len(childProc.Threads()) != 0 {
		t.Fatal("expected RemoveThread to drop the thread from the process's thread set")
	}
}

// TestForkClonesFilesAndSignalsIndependently checks that a forked
// process's open-file table and signal actions are deep-copied, not
// shared, matching spec §4.K's clone() semantics.
func TestForkClonesFilesAndSignalsIndependently(t *testing.T) {
	exe := executor.New(8)
	mem := newTestMemory(t)
	main := &thread.Thread{Tid: 1, State: thread.Running}
	cwd := NewRootCwd(nil)
	parent := NewProcess("sh", cwd, main, mem, false, exe)

	parent.Signal.Sigaction(SIGFPE, SigAction{Handler: HandlerIgnore})

	child := &thread.Thread{Tid: 2, State: thread.Running}
	childProc, ok := parent.Fork(child)
	if !ok {
		t.Fatal("fork failed")
	}

	// The child inherits the action...
	if childProc.Signal.actions[SIGFPE].Handler != HandlerIgnore {
		t.Fatal("expected child to inherit parent's signal action")
	}
	// ...but changing the parent's afterward must not affect the child.
	parent.Signal.Sigaction(SIGFPE, SigAction{Handler: HandlerDefault})
	if childProc.Signal.actions[SIGFPE].Handler != HandlerIgnore {
		t.Fatal("expected child's signal actions to be independent of the parent's")
	}

	if childProc.Files == parent.Files {
		t.Fatal("expected a forked process to get its own OpenFiles table")
	}
}

func TestReapMergesAccountingAndDropsChild(t *testing.T) {
	exe := executor.New(8)
	mem := newTestMemory(t)
	main := &thread.Thread{Tid: 1, State: thread.Running}
	cwd := NewRootCwd(nil)
	parent := NewProcess("sh", cwd, main, mem, false, exe)
	parent.Accnt.Systadd(100)

	child := &thread.Thread{Tid: 2, State: thread.Running}
	childProc, ok := parent.Fork(child)
	if !ok {
		t.Fatal("fork failed")
	}
	childProc.Accnt.Systadd(25)

	parent.Reap(childProc)
	if _, ok := parent.children[childProc.ID]; ok {
		t.Fatal("expected reaped child removed from parent.children")
	}
	if parent.Accnt.Sysns != 125 {
		t.Fatalf("expected parent accounting to absorb child's, got %d", parent.Accnt.Sysns)
	}
}

func TestIsInit(t *testing.T) {
	exe := executor.New(8)
	mem := newTestMemory(t)
	main := &thread.Thread{Tid: 1, State: thread.Running}
	cwd := NewRootCwd(nil)
	p := NewProcess("init", cwd, main, mem, true, exe)
	if !p.IsInit() {
		t.Fatal("expected process with main tid 1 to report IsInit")
	}
	if p.Signal.flags&FlagUnkillable == 0 {
		t.Fatal("expected the init process to be marked UNKILLABLE")
	}
}
