// Package reactor implements a single-threaded event loop: a timer
// heap, a FIFO of zero-delay callbacks, and a signal-handler table,
// all drained from one goroutine (the "reactor thread"). It is
// modelled on tinycore's IOLoop (asyncio/ioloop.cpp),
// which wraps boost::asio::io_service; Go has no io_service, so the
// loop below is built directly on a timer min-heap (container/heap)
// plus a mutex-guarded callback FIFO and a one-slot channel used as the
// loop's wakeup signal, matching the teacher's connReader pattern
// (badu-http/conn_reader.go) of a background goroutine feeding a
// single consuming loop through a channel.
package reactor

import (
	"container/heap"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/duskline/netasync/applog"
	"github.com/duskline/netasync/stackctx"
	"github.com/sirupsen/logrus"
)

// ErrSystemExit is the sentinel panic value that stops Start's loop
// instead of being swallowed like any other panic, mirroring tinycore's
// SystemExit exception caught specially in IOLoop::start.
type ErrSystemExit struct{ Code int }

func (e ErrSystemExit) Error() string { return "reactor: system exit" }

// TimerHandle identifies a scheduled timeout for cancellation. Timers
// compare equal only by identity, never by deadline.
type TimerHandle struct {
	id int64
}

type timerEntry struct {
	id       int64
	deadline time.Time
	seq      int64 // insertion order, breaks deadline ties
	cb       func()
	canceled bool
	index    int // heap index
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

type state int

const (
	stateCreated state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Reactor is a single-threaded event loop: timers, zero-delay
// callbacks and POSIX signal handlers all fire on whatever goroutine
// calls Start, in enqueue/deadline order, never concurrently with
// each other. Concurrency in the surrounding program comes entirely
// from AddCallback, the one operation safe to call from other
// goroutines (it wakes the loop).
type Reactor struct {
	log *applog.Logger

	mu       sync.Mutex // guards the fields below; held only briefly
	st       state
	timers   timerHeap
	nextID   int64
	nextSeq  int64
	callback []func()
	wake     chan struct{}

	signals   map[os.Signal]func() int
	sigCh     chan os.Signal
	sigNotify func(chan<- os.Signal, ...os.Signal)
	sigStop   func(chan<- os.Signal)

	stack *stackctx.Stack
}

// New returns a freshly created, not-yet-running Reactor.
func New() *Reactor {
	return &Reactor{
		log:       applog.Default().WithField("component", "reactor"),
		wake:      make(chan struct{}, 1),
		signals:   make(map[os.Signal]func() int),
		sigNotify: signal.Notify,
		sigStop:   signal.Stop,
		stack:     stackctx.New(),
	}
}

var (
	currentMu sync.Mutex
	current   *Reactor
)

// Current returns the process-wide default Reactor, creating it on
// first use. Components that need dependency-injected explicit
// Reactors (the usual, testable path) should be constructed with New
// instead; Current exists for simple single-reactor programs (the
// cmd/ examples) per the "thread-locals acquired by current()"
// singleton-replacement pattern.
func Current() *Reactor {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == nil {
		current = New()
	}
	return current
}

// Stack returns the Reactor's StackContext — the handler chain that
// Wrap-ed callbacks run under. Only the loop goroutine mutates it.
func (r *Reactor) Stack() *stackctx.Stack { return r.stack }

// Running reports whether the loop is between Start and Stop.
func (r *Reactor) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st == stateRunning
}

// AddTimeout schedules cb to run at deadline (monotonic-safe: computed
// from time.Now()+duration internally works fine since time.Time
// comparisons already use the monotonic reading when present). A
// deadline already in the past runs cb on the next loop turn. Safe to
// call from the loop goroutine only (use AddCallback to cross
// goroutines first).
func (r *Reactor) AddTimeout(deadline time.Time, cb func()) TimerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.nextSeq++
	e := &timerEntry{id: r.nextID, deadline: deadline, seq: r.nextSeq, cb: cb}
	heap.Push(&r.timers, e)
	return TimerHandle{id: e.id}
}

// AddTimeoutAfter is AddTimeout relative to now.
func (r *Reactor) AddTimeoutAfter(d time.Duration, cb func()) TimerHandle {
	return r.AddTimeout(time.Now().Add(d), cb)
}

// RemoveTimeout cancels a timer. Idempotent, and safe to call after
// the timer has already fired.
func (r *Reactor) RemoveTimeout(h TimerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.timers {
		if e.id == h.id {
			e.canceled = true
			return
		}
	}
}

// AddCallback enqueues a zero-delay callback that runs before the next
// poll for timers returns. Unlike every other Reactor method, this one
// may be called from any goroutine — doing so wakes the loop.
func (r *Reactor) AddCallback(cb func()) {
	r.mu.Lock()
	r.callback = append(r.callback, cb)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Signal registers a handler for POSIX signal sig. cb returning a
// negative value unregisters the handler (tinycore's _SignalSet
// convention, kept so log messages about "handler removed" read the
// same way in both implementations). Passing a nil cb also
// unregisters.
func (r *Reactor) Signal(sig os.Signal, cb func() int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb == nil {
		delete(r.signals, sig)
		if r.sigCh != nil {
			r.sigStop(r.sigCh)
			r.rearmSignalsLocked()
		}
		return
	}
	r.signals[sig] = cb
	if r.sigCh == nil {
		r.sigCh = make(chan os.Signal, 4)
	}
	r.rearmSignalsLocked()
}

func (r *Reactor) rearmSignalsLocked() {
	sigs := make([]os.Signal, 0, len(r.signals))
	for s := range r.signals {
		sigs = append(sigs, s)
	}
	if len(sigs) == 0 {
		return
	}
	r.sigNotify(r.sigCh, sigs...)
}

// Start runs the loop until Stop is called (from any callback, timer,
// or another goroutine via AddCallback).
func (r *Reactor) Start() {
	r.mu.Lock()
	if r.st == stateStopped && r.timers.Len() == 0 {
		// allow restart after a clean stop
		r.st = stateCreated
	}
	if r.st == stateRunning {
		r.mu.Unlock()
		return
	}
	r.st = stateRunning
	r.mu.Unlock()

	for {
		r.mu.Lock()
		if r.st != stateRunning {
			r.mu.Unlock()
			break
		}
		r.mu.Unlock()
		r.runOnce()
	}

	r.mu.Lock()
	r.st = stateStopped
	r.mu.Unlock()
}

// Stop requests the loop to return from Start after the in-flight
// callback (if any) finishes.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if r.st == stateRunning {
		r.st = stateStopping
	}
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// RunSync starts the loop, runs cb (which must eventually call Stop),
// and returns once the loop has stopped. A convenience for the common
// "kick off one async chain and drive it to completion" shape used by
// every example program and by AsyncTestCase.Wait.
func (r *Reactor) RunSync(cb func()) {
	r.AddCallback(cb)
	r.Start()
}

// runOnce drains the callback FIFO, fires due timers, and then blocks
// (via the wake channel) until either is due again. Panics escaping a
// callback are logged and swallowed, except ErrSystemExit which stops
// the loop, matching tinycore's IOLoop::start try/catch.
func (r *Reactor) runOnce() {
	r.drainCallbacks()
	if r.fireDueTimers() {
		return // at least one timer fired; recheck callbacks immediately
	}
	r.drainSignals()

	wait := r.nextWait()
	if wait == 0 {
		return
	}
	if wait < 0 {
		select {
		case <-r.wake:
		case sig := <-r.sigCh:
			// hand it back so drainSignals dispatches it on the next turn
			select {
			case r.sigCh <- sig:
			default:
			}
		}
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-r.wake:
	case <-timer.C:
	}
}

func (r *Reactor) drainCallbacks() {
	r.mu.Lock()
	cbs := r.callback
	r.callback = nil
	r.mu.Unlock()
	for i, cb := range cbs {
		if !r.Running() {
			// Stop (or ErrSystemExit) ran: keep the rest for the next Start.
			r.mu.Lock()
			r.callback = append(cbs[i:], r.callback...)
			r.mu.Unlock()
			return
		}
		r.invoke(cb)
	}
}

func (r *Reactor) drainSignals() {
	if r.sigCh == nil {
		return
	}
	for {
		select {
		case sig := <-r.sigCh:
			r.mu.Lock()
			cb, ok := r.signals[sig]
			r.mu.Unlock()
			if ok {
				r.invoke(func() {
					if cb() < 0 {
						r.Signal(sig, nil)
					}
				})
			}
		default:
			return
		}
	}
}

// fireDueTimers runs every timer whose deadline has passed, in
// deadline then insertion order, and reports whether it ran any.
func (r *Reactor) fireDueTimers() bool {
	fired := false
	for {
		r.mu.Lock()
		if r.timers.Len() == 0 {
			r.mu.Unlock()
			break
		}
		top := r.timers[0]
		if top.canceled {
			heap.Pop(&r.timers)
			r.mu.Unlock()
			continue
		}
		if top.deadline.After(time.Now()) {
			r.mu.Unlock()
			break
		}
		heap.Pop(&r.timers)
		r.mu.Unlock()
		r.invoke(top.cb)
		fired = true
	}
	return fired
}

// nextWait returns how long until the next timer is due: 0 if a
// callback or due timer is already waiting, a positive duration if the
// soonest timer is in the future, or a negative value meaning "block
// until woken, no deadline".
func (r *Reactor) nextWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.callback) > 0 {
		return 0
	}
	for r.timers.Len() > 0 && r.timers[0].canceled {
		heap.Pop(&r.timers)
	}
	if r.timers.Len() == 0 {
		return -1
	}
	d := time.Until(r.timers[0].deadline)
	if d < 0 {
		return 0
	}
	return d
}

// invoke runs cb with the Reactor's top-level recover: a panic is
// logged (via applog) and swallowed so one bad callback cannot bring
// down the loop, except ErrSystemExit, which stops the loop outright,
// mirroring tinycore's special-cased SystemExit catch.
func (r *Reactor) invoke(cb func()) {
	defer func() {
		if rec := recover(); rec != nil {
			if se, ok := rec.(ErrSystemExit); ok {
				r.log.WithField("code", se.Code).Warn("system exit requested, stopping reactor")
				r.Stop()
				return
			}
			r.log.WithFields(logrus.Fields{
				"error": stackctx.AsError(rec),
			}).Error("unhandled exception in reactor callback")
		}
	}()
	cb()
}
