package proc

import "testing"

// fakeThread is a minimal ThreadHandle for exercising SendSignal/GetSignal
// without constructing a real thread.Thread.
type fakeThread struct {
	id        uint64
	killable  bool
	woken     int
	runnable  bool
	blocked   bool // set true once SetInterruptible ran
}

func (f *fakeThread) ID() uint64        { return f.id }
func (f *fakeThread) IsKillable() bool  { return f.killable }
func (f *fakeThread) SetInterruptible() { f.blocked = true }
func (f *fakeThread) SetRunnable()      { f.runnable = true }
func (f *fakeThread) WakeSelf()         { f.woken++ }

func TestSignalIgnoreDropsPending(t *testing.T) {
	s := NewSignalState()
	s.AddThread(1)
	s.Sigaction(SIGFPE, SigAction{Handler: HandlerIgnore})

	th := &fakeThread{id: 1, killable: true}
	threads := map[uint64]ThreadHandle{1: th}

	if ok := s.SendSignal(SIGFPE, Info{Sig: SIGFPE}, Target{Tid: 1}, threads); !ok {
		t.Fatal("send_signal should report success even when silently dropped")
	}
	if th.woken != 0 {
		t.Fatalf("an ignored signal must never wake its target, woken=%d", th.woken)
	}

	d, stopped, delivered := s.GetSignal(1, threads)
	if stopped || delivered {
		t.Fatalf("expected nothing pending, got stopped=%v delivered=%v delivery=%+v", stopped, delivered, d)
	}
}

func TestSignalIgnoreAfterQueueingFlushesPending(t *testing.T) {
	s := NewSignalState()
	s.AddThread(1)
	th := &fakeThread{id: 1, killable: true}
	threads := map[uint64]ThreadHandle{1: th}

	s.SendSignal(SIGFPE, Info{Sig: SIGFPE}, Target{Tid: 1}, threads)
	if th.woken != 1 {
		t.Fatalf("expected one wakeup queuing the signal, got %d", th.woken)
	}

	// Registering SIGFPE as ignored after it was already queued must flush
	// it out of every pending queue (Sigaction's isIgnored->FlushPending
	// path).
	s.Sigaction(SIGFPE, SigAction{Handler: HandlerIgnore})

	_, stopped, delivered := s.GetSignal(1, threads)
	if stopped || delivered {
		t.Fatal("expected the previously queued signal to have been flushed")
	}
}

func TestSendSignalDeliversToOwnThreadFirst(t *testing.T) {
	s := NewSignalState()
	s.AddThread(1)
	th := &fakeThread{id: 1, killable: true}
	threads := map[uint64]ThreadHandle{1: th}

	s.SendSignal(SIGFPE, Info{Sig: SIGFPE, Code: 7}, Target{Tid: 1}, threads)

	d, stopped, delivered := s.GetSignal(1, threads)
	if stopped || !delivered {
		t.Fatalf("expected a delivery, got stopped=%v delivered=%v", stopped, delivered)
	}
	if d.Info.Sig != SIGFPE || d.Info.Code != 7 {
		t.Fatalf("unexpected delivery payload %+v", d)
	}
}

func TestKernelStopThenContResumesDelivery(t *testing.T) {
	s := NewSignalState()
	s.AddThread(1)
	s.AddThread(2)
	t1 := &fakeThread{id: 1, killable: true}
	t2 := &fakeThread{id: 2, killable: true}
	threads := map[uint64]ThreadHandle{1: t1, 2: t2}

	s.SendSignal(SIGSTOP, Info{Sig: SIGSTOP}, Target{Group: true}, threads)
	_, stopped, delivered := s.GetSignal(1, threads)
	if !stopped || delivered {
		t.Fatalf("expected SIGSTOP to stop the group, got stopped=%v delivered=%v", stopped, delivered)
	}
	if !t2.blocked {
		t.Fatal("expected the sibling thread to be set interruptible on kernel-stop")
	}

	// SIGCONT clears the stop for every thread and any queued stop
	// signals (prepareSignal's SIGCONT branch).
	s.SendSignal(SIGCONT, Info{Sig: SIGCONT}, Target{Group: true}, threads)
	_, stopped, _ = s.GetSignal(1, threads)
	if stopped {
		t.Fatal("expected SIGCONT to clear the stopped state")
	}
}

func TestFatalGroupSignalWakesEveryKillableThread(t *testing.T) {
	s := NewSignalState()
	s.AddThread(1)
	s.AddThread(2)
	s.AddThread(3)
	t1 := &fakeThread{id: 1, killable: true}
	t2 := &fakeThread{id: 2, killable: false}
	t3 := &fakeThread{id: 3, killable: true}
	threads := map[uint64]ThreadHandle{1: t1, 2: t2, 3: t3}

	// SIGSEGV's default disposition is fatal (no handler registered),
	// so every killable thread in the group must be woken, not just
	// the round-robin target (signalWakeup's fatal branch).
	s.SendSignal(SIGSEGV, Info{Sig: SIGSEGV}, Target{Group: true}, threads)

	if t1.woken == 0 || t3.woken == 0 {
		t.Fatalf("expected both killable threads woken, got t1=%d t3=%d", t1.woken, t3.woken)
	}
	if t2.woken != 0 {
		t.Fatal("expected the unkillable thread to be left alone")
	}
}

func TestUnkillableProcessAbsorbsNonKernelSignals(t *testing.T) {
	s := NewSignalState()
	s.flags |= FlagUnkillable
	s.AddThread(1)
	th := &fakeThread{id: 1, killable: false}
	threads := map[uint64]ThreadHandle{1: th}

	s.SendSignal(SIGSEGV, Info{Sig: SIGSEGV}, Target{Tid: 1}, threads)
	if th.woken != 0 {
		t.Fatal("an UNKILLABLE process must silently absorb a non-kernel-only signal")
	}

	// SIGKILL still gets through (isKernelOnly bypasses UNKILLABLE).
	s.SendSignal(SIGKILL, Info{Sig: SIGKILL}, Target{Tid: 1}, threads)
	if th.woken == 0 {
		t.Fatal("SIGKILL must reach an UNKILLABLE process")
	}
}

func TestForkStripsUnkillableAndResetsPending(t *testing.T) {
	s := NewSignalState()
	s.flags |= FlagUnkillable
	s.AddThread(1)
	th := &fakeThread{id: 1, killable: true}
	s.SendSignal(SIGFPE, Info{Sig: SIGFPE}, Target{Tid: 1}, map[uint64]ThreadHandle{1: th})

	child := s.Fork()
	if child.flags&FlagUnkillable != 0 {
		t.Fatal("only the init process should stay UNKILLABLE across fork")
	}
	if len(child.threadQueues) != 0 || len(child.shared.items) != 0 {
		t.Fatal("a forked signal state must start with empty pending queues")
	}
}
