package observability

import "sync/atomic"

// Metrics holds the lock-free counters a Selector updates as it runs.
// A nil *Metrics is valid and every method on it is a no-op, so callers
// that disable metrics collection don't pay for a branch at every call
// site.
type Metrics struct {
	registrationsActive atomic.Int64
	registrationsTotal  atomic.Uint64
	deregistrations     atomic.Uint64
	waitsBlocking       atomic.Uint64
	waitsNow            atomic.Uint64
	waitsTimed          atomic.Uint64
	eventsDispatched    atomic.Uint64
	wakes               atomic.Uint64
	callbackErrors      atomic.Uint64
}

// NewMetrics creates an empty, ready-to-use registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordRegister() {
	if m == nil {
		return
	}
	m.registrationsActive.Add(1)
	m.registrationsTotal.Add(1)
}

func (m *Metrics) RecordDeregister() {
	if m == nil {
		return
	}
	m.registrationsActive.Add(-1)
	m.deregistrations.Add(1)
}

// WaitKind distinguishes the three wait strategies for the Metrics snapshot.
type WaitKind int

const (
	WaitBlocking WaitKind = iota
	WaitNow
	WaitTimed
)

func (m *Metrics) RecordWait(kind WaitKind) {
	if m == nil {
		return
	}
	switch kind {
	case WaitNow:
		m.waitsNow.Add(1)
	case WaitTimed:
		m.waitsTimed.Add(1)
	default:
		m.waitsBlocking.Add(1)
	}
}

func (m *Metrics) RecordEventsDispatched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDispatched.Add(uint64(n))
}

func (m *Metrics) RecordWake() {
	if m == nil {
		return
	}
	m.wakes.Add(1)
}

func (m *Metrics) RecordCallbackError() {
	if m == nil {
		return
	}
	m.callbackErrors.Add(1)
}

// Snapshot is a point-in-time copy of the counters, safe to read after the
// Metrics it came from keeps mutating.
type Snapshot struct {
	RegistrationsActive int64
	RegistrationsTotal  uint64
	Deregistrations     uint64
	WaitsBlocking       uint64
	WaitsNow            uint64
	WaitsTimed          uint64
	EventsDispatched    uint64
	Wakes               uint64
	CallbackErrors      uint64
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		RegistrationsActive: m.registrationsActive.Load(),
		RegistrationsTotal:  m.registrationsTotal.Load(),
		Deregistrations:     m.deregistrations.Load(),
		WaitsBlocking:       m.waitsBlocking.Load(),
		WaitsNow:            m.waitsNow.Load(),
		WaitsTimed:          m.waitsTimed.Load(),
		EventsDispatched:    m.eventsDispatched.Load(),
		Wakes:               m.wakes.Load(),
		CallbackErrors:      m.callbackErrors.Load(),
	}
}
