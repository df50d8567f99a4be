// Package executor implements the single-hart cooperative task executor
// that drives thread futures (spec §4.H). Grounded on the run-loop shape
// of biscuit's scheduler in biscuit/src/kernel/kernel.go (a single loop
// that repeatedly picks runnable work and runs it to its next
// suspension point), reframed around Go's Future/Poll idiom since Go has
// no native async/await: tasks here are polled explicitly rather than
// driven by goroutines, so the executor — not the Go runtime scheduler —
// controls when a thread future is resumed, matching spec §4.H's
// "suspension only at explicit await points" model.
package executor

import (
	"fmt"

	"rvkernel/internal/irqlock"
)

// ID identifies a task; for this kernel it is always a thread id (spec
// §3: "thread id equals the identifier the executor uses as its task
// key").
type ID uint64

// Status is the outcome of polling a future once.
type Status int

const (
	Pending Status = iota
	Ready
)

// Future is anything the executor can drive to completion by repeated
// polling.
type Future interface {
	ID() ID
	Poll(w *Waker) Status
}

// Waker is handed to a future's Poll call; invoking it re-queues the
// future's id for another poll, the Go stand-in for Rust's
// core::task::Waker.
type Waker struct {
	id     ID
	exe    *Executor
	onWake func() // set only by BlockOn; overrides the shared ready queue
}

// Wake re-queues this waker's task. Per spec §4.H, waking a task whose
// ready queue is full is a programming error (bounded-task design
// choice) and panics rather than silently dropping the wakeup.
func (w *Waker) Wake() {
	if w.onWake != nil {
		w.onWake()
		return
	}
	select {
	case w.exe.ready <- w.id:
	default:
		panic(fmt.Sprintf("executor: ready queue full waking task %d", w.id))
	}
}

type taskEntry struct {
	future Future
	waker  *Waker
}

// Executor holds the task registry and bounded FIFO ready queue. The
// task map is guarded by an IRQ-masking lock (spec §5: "executor task
// map: IRQ-masking mutex") since WakeTask can be called from signal
// delivery running on behalf of a different thread than the one
// currently inside RunReadyTasks.
type Executor struct {
	mu    *irqlock.IRQLock
	tasks map[ID]*taskEntry
	ready chan ID
}

// New creates an executor whose ready queue holds at most queueDepth
// pending wakeups.
func New(queueDepth int) *Executor {
	return &Executor{
		mu:    irqlock.NewLock(),
		tasks: make(map[ID]*taskEntry),
		ready: make(chan ID, queueDepth),
	}
}

// ErrQueueFull is returned by Spawn when the ready queue cannot accept
// another entry.
type ErrQueueFull struct{ ID ID }

func (e *ErrQueueFull) Error() string {
	return fmt.Sprintf("executor: ready queue full spawning task %d", e.ID)
}

// Spawn registers f and enqueues it for its first poll. Fails if the
// ready queue is already full.
func (e *Executor) Spawn(f Future) error {
	id := f.ID()
	e.mu.Lock()
	e.tasks[id] = &taskEntry{future: f}
	e.mu.Unlock()
	select {
	case e.ready <- id:
		return nil
	default:
		e.mu.Lock()
		delete(e.tasks, id)
		e.mu.Unlock()
		return &ErrQueueFull{ID: id}
	}
}

// WakeTask re-queues an arbitrary live task for its next poll, the way a
// signal_wakeup call from one thread needs to wake a sibling thread's
// task without holding that thread's own Waker (spec §4.J). Waking an
// id with no registered task is a silent no-op: the target may have
// exited between the caller observing it and calling WakeTask.
func (e *Executor) WakeTask(id ID) {
	e.mu.Lock()
	_, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case e.ready <- id:
	default:
		panic(fmt.Sprintf("executor: ready queue full waking task %d", id))
	}
}

// Tasks exposes the live task ids, for tests that need to assert the
// registry drained completely (spec scenario S4).
func (e *Executor) Tasks() []ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]ID, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	return ids
}

// RunReadyTasks drains the current ready queue once: for each id popped,
// it polls the associated future (lazily building its waker the first
// time), and removes the entry on Ready. Ids queued by wakeups fired
// during this drain are visited in the same pass, matching a single
// hart's run-to-quiescence loop.
func (e *Executor) RunReadyTasks() {
	for {
		select {
		case id := <-e.ready:
			e.mu.Lock()
			entry, ok := e.tasks[id]
			e.mu.Unlock()
			if !ok {
				continue // woken after completion; ignore
			}
			if entry.waker == nil {
				entry.waker = &Waker{id: id, exe: e}
			}
			if entry.future.Poll(entry.waker) == Ready {
				e.mu.Lock()
				delete(e.tasks, id)
				e.mu.Unlock()
			}
		default:
			return
		}
	}
}

// blockOnWaker signals a private channel instead of touching any
// executor's shared ready queue, since BlockOn drives a single future in
// isolation before the main run loop exists to service wakeups.
type blockOnWaker struct {
	notify chan struct{}
}

func (w *blockOnWaker) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// BlockOn drives f to completion synchronously, for kernel-side
// bootstrap before the main run loop starts (spec §4.H). Between polls
// it parks on a notification channel standing in for the real kernel's
// wait-for-interrupt idle instruction, waking only when f's waker fires.
func (e *Executor) BlockOn(f Future) {
	bw := &blockOnWaker{notify: make(chan struct{}, 1)}
	w := &Waker{id: f.ID(), exe: e, onWake: bw.wake}
	if f.Poll(w) == Ready {
		return
	}
	for {
		<-bw.notify
		if f.Poll(w) == Ready {
			return
		}
	}
}
