package exporter

import (
	"sync"
)

// State is the handoff state shared by the producer and the worker.
type State int

const (
	// StateWait means the worker is parked with no pending frame.
	StateWait State = iota
	// StateDump means a captured buffer is selected and waiting for the worker.
	StateDump
	// StateExit means shutdown was requested. Pending frames are not processed.
	StateExit
	// StateStopped means the worker has returned. Terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWait:
		return "wait"
	case StateDump:
		return "dump"
	case StateExit:
		return "exit"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and logs
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) terminal() bool {
	return s == StateExit || s == StateStopped
}

// owner records who may touch a capture buffer
type owner int

const (
	ownerFree owner = iota
	ownerProducer
	ownerQueued
	ownerWorker
)

type captureBuffer struct {
	pix    []byte
	owner  owner
	reuses uint64
}

// handoff is the mutex/cond pair coordinating one producer and one worker.
// Every field is guarded by mu. The pix slices themselves are read and
// written outside the lock by whichever side the owner tag names.
type handoff struct {
	mu   sync.Mutex
	work *sync.Cond // signalled when state leaves StateWait
	idle *sync.Cond // broadcast when the slot empties or a buffer is freed

	state    State
	selected int
	seq      uint64
	next     int
	bufs     [2]captureBuffer
	writing  bool
	terminal int

	requested uint64
	written   uint64
	failed    uint64
}

func newHandoff(size int) *handoff {
	h := &handoff{selected: -1}
	h.work = sync.NewCond(&h.mu)
	h.idle = sync.NewCond(&h.mu)
	for i := range h.bufs {
		h.bufs[i].pix = make([]byte, size)
	}
	return h
}

// acquire hands the next capture buffer to the producer, waiting until the
// worker has released it. Buffers alternate A, B, A, ...
func (h *handoff) acquire() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		if h.state.terminal() {
			return -1, ErrStopped
		}
		i := h.next
		if h.bufs[i].owner == ownerFree {
			h.bufs[i].owner = ownerProducer
			h.bufs[i].reuses++
			h.next = 1 - i
			return i, nil
		}
		h.idle.Wait()
	}
}

// abandon returns a buffer the producer failed to fill
func (h *handoff) abandon(i int) {
	h.mu.Lock()
	h.bufs[i].owner = ownerFree
	h.idle.Broadcast()
	h.mu.Unlock()
}

// publish queues buffer i for the worker. It blocks while a previous frame
// is still pending.
func (h *handoff) publish(i int) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.state == StateDump {
		h.idle.Wait()
	}
	if h.state.terminal() {
		h.bufs[i].owner = ownerFree
		h.idle.Broadcast()
		return 0, ErrStopped
	}

	h.bufs[i].owner = ownerQueued
	h.selected = i
	h.seq++
	h.requested++
	h.state = StateDump
	h.work.Signal()
	return h.seq, nil
}

// take parks the worker until there is a frame or an exit request. ok is
// false once the worker must return; the state is then StateStopped.
func (h *handoff) take() (i int, seq uint64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.state == StateWait {
		h.work.Wait()
	}
	if h.state == StateExit {
		h.state = StateStopped
		h.terminal++
		h.idle.Broadcast()
		return -1, 0, false
	}

	i = h.selected
	h.selected = -1
	h.bufs[i].owner = ownerWorker
	h.state = StateWait
	h.writing = true
	h.idle.Broadcast()
	return i, h.seq, true
}

// release frees buffer i once the worker no longer reads it
func (h *handoff) release(i int) {
	h.mu.Lock()
	h.bufs[i].owner = ownerFree
	h.idle.Broadcast()
	h.mu.Unlock()
}

// finish records the outcome of the write that followed take
func (h *handoff) finish(err error) {
	h.mu.Lock()
	h.writing = false
	if err != nil {
		h.failed++
	} else {
		h.written++
	}
	h.mu.Unlock()
}

// requestExit moves to StateExit unless shutdown already began. It reports
// whether this call made the transition.
func (h *handoff) requestExit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.terminal() {
		return false
	}
	h.state = StateExit
	h.work.Signal()
	h.idle.Broadcast()
	return true
}

// drained reports whether no frame is pending or in flight
func (h *handoff) drained() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != StateDump && !h.writing
}

func (h *handoff) current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *handoff) stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		State:           h.state,
		Requested:       h.requested,
		Written:         h.written,
		Failed:          h.failed,
		Reuses:          [2]uint64{h.bufs[0].reuses, h.bufs[1].reuses},
		TerminalEntries: h.terminal,
	}
}
