package selector

import (
	"sync/atomic"

	"github.com/fastio/ioselect/observability"
)

type lifecycleState int32

const (
	stateClosed lifecycleState = iota
	stateOpen
	stateClosing
)

// backend is the platform-specific half of a Selector: the thin layer
// that knows how to talk to epoll or kqueue. Selector owns everything
// platform-neutral (the registration table, the lifecycle state, the
// translation from raw descriptors to Registration values) and delegates
// every kernel interaction here.
type backend interface {
	registerFD(fd int, interest IOEvent) error
	reregisterFD(fd int, newInterest, oldInterest IOEvent) error
	deregisterFD(fd int, oldInterest IOEvent) error
	wait(strategy WaitStrategy, dispatch func(fd int, readable, writable bool) error) error
	wake() error
	close() error
}

// Selector multiplexes readiness notifications for many file descriptors
// onto whichever single thread calls Wait. Register, Reregister,
// Deregister, Wait, and Close must all be called from that one thread;
// Wake is the only method safe to call concurrently from others.
type Selector struct {
	state atomic.Int32

	regs map[int]*Registration

	b       backend
	metrics *observability.Metrics
	tracer  *observability.Tracer
	cfg     Config
}

// New constructs a Selector and acquires all of its OS resources
// immediately; there is no separate "start" step.
func New(cfg Config) (*Selector, error) {
	cfg = cfg.withDefaults()

	var tracer *observability.Tracer
	if cfg.TraceSyscalls {
		tracer = observability.NewTracer()
	}

	b, err := newBackend(cfg, tracer)
	if err != nil {
		return nil, err
	}

	s := &Selector{
		regs:    make(map[int]*Registration),
		b:       b,
		metrics: observability.NewMetrics(),
		tracer:  tracer,
		cfg:     cfg,
	}
	s.state.Store(int32(stateOpen))
	return s, nil
}

func (s *Selector) isOpen() bool {
	return lifecycleState(s.state.Load()) == stateOpen
}

// Metrics returns this Selector's counters. The returned value is safe to
// read concurrently with everything else the Selector does.
func (s *Selector) Metrics() *observability.Metrics { return s.metrics }

// Register installs interest for sel's descriptor and returns the
// Registration that future Wait calls will hand back for it. It fails if
// the descriptor is already registered, sel is not open, or the selector
// itself is not open.
func (s *Selector) Register(sel Selectable, interest IOEvent, factory Factory) (*Registration, error) {
	if !s.isOpen() {
		return nil, newLifecycleError("register")
	}
	if !sel.Open() {
		return nil, newInternalError("register", "selectable is not open")
	}
	fd := sel.FD()
	if _, exists := s.regs[fd]; exists {
		return nil, ErrAlreadyRegistered
	}

	if err := s.b.registerFD(fd, interest); err != nil {
		return nil, err
	}

	var reg *Registration
	if factory != nil {
		reg = factory(fd)
	}
	if reg == nil {
		reg = &Registration{}
	}
	reg.fd = fd
	reg.Interested = interest

	s.regs[fd] = reg
	s.metrics.RecordRegister()
	return reg, nil
}

// Reregister changes the interest for an already-registered descriptor.
func (s *Selector) Reregister(sel Selectable, interest IOEvent) error {
	if !s.isOpen() {
		return newLifecycleError("reregister")
	}
	fd := sel.FD()
	reg, exists := s.regs[fd]
	if !exists {
		return ErrNotRegistered
	}

	old := reg.Interested
	if err := s.b.reregisterFD(fd, interest, old); err != nil {
		return err
	}

	reg.Interested = interest
	return nil
}

// Deregister removes fd's registration, if present. It is idempotent: a
// descriptor absent from the table is not an error.
func (s *Selector) Deregister(sel Selectable) error {
	if !s.isOpen() {
		return newLifecycleError("deregister")
	}
	fd := sel.FD()
	reg, exists := s.regs[fd]
	if !exists {
		return nil
	}

	if err := s.b.deregisterFD(fd, reg.Interested); err != nil {
		return err
	}

	delete(s.regs, fd)
	s.metrics.RecordDeregister()
	return nil
}

// Wait blocks according to strategy and invokes cb once per ready
// descriptor found in the registration table. An error from cb aborts
// the batch immediately and is returned from Wait.
func (s *Selector) Wait(strategy WaitStrategy, cb Callback) error {
	if !s.isOpen() {
		return newLifecycleError("wait")
	}

	switch {
	case strategy.isNow():
		s.metrics.RecordWait(observability.WaitNow)
	case strategy.isTimed():
		s.metrics.RecordWait(observability.WaitTimed)
	default:
		s.metrics.RecordWait(observability.WaitBlocking)
	}

	dispatched := 0
	var cbErr error
	err := s.b.wait(strategy, func(fd int, readable, writable bool) error {
		reg, ok := s.regs[fd]
		if !ok {
			// Late-queued event for a descriptor already deregistered;
			// tolerated, not an error.
			return nil
		}
		dispatched++
		if err := cb(Event{Readable: readable, Writable: writable, Registration: reg}); err != nil {
			cbErr = err
			s.metrics.RecordCallbackError()
			return err
		}
		return nil
	})

	s.metrics.RecordEventsDispatched(dispatched)

	if cbErr != nil {
		return cbErr
	}
	return err
}

// Wake causes the current or next Wait call to return promptly, even with
// zero ready descriptors. It is the only method safe to call from a
// thread other than the one driving Register/Wait/Close, and it never
// takes a lock.
func (s *Selector) Wake() error {
	s.metrics.RecordWake()
	return s.b.wake()
}

// Close transitions the selector from open to closed, releasing every OS
// resource that no in-flight Wake could still be touching. It fails if
// the selector is not currently open.
func (s *Selector) Close() error {
	if !s.state.CompareAndSwap(int32(stateOpen), int32(stateClosing)) {
		return newLifecycleError("close")
	}
	err := s.b.close()
	s.state.Store(int32(stateClosed))
	return err
}

// GentleClose iterates every live registration, calls Close on every
// Context that implements Closer, and returns a channel that closes once
// all of them have finished closing. It does not itself close the
// Selector; call Close afterward.
func (s *Selector) GentleClose() <-chan struct{} {
	done := make(chan struct{})

	var pending []<-chan struct{}
	for _, reg := range s.regs {
		closer, ok := reg.Context.(Closer)
		if !ok {
			continue
		}
		pending = append(pending, closer.Close())
	}

	go func() {
		for _, ch := range pending {
			<-ch
		}
		close(done)
	}()

	return done
}
