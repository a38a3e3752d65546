package observability

import "testing"

func TestMetricsRegistrationLifecycle(t *testing.T) {
	m := NewMetrics()

	m.RecordRegister()
	m.RecordRegister()
	m.RecordDeregister()

	snap := m.Snapshot()
	if snap.RegistrationsActive != 1 {
		t.Errorf("expected 1 active registration, got %d", snap.RegistrationsActive)
	}
	if snap.RegistrationsTotal != 2 {
		t.Errorf("expected 2 total registrations, got %d", snap.RegistrationsTotal)
	}
	if snap.Deregistrations != 1 {
		t.Errorf("expected 1 deregistration, got %d", snap.Deregistrations)
	}
}

func TestMetricsWaitKinds(t *testing.T) {
	m := NewMetrics()

	m.RecordWait(WaitBlocking)
	m.RecordWait(WaitNow)
	m.RecordWait(WaitNow)
	m.RecordWait(WaitTimed)

	snap := m.Snapshot()
	if snap.WaitsBlocking != 1 || snap.WaitsNow != 2 || snap.WaitsTimed != 1 {
		t.Errorf("unexpected wait counts: %+v", snap)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRegister()
	m.RecordWait(WaitNow)
	m.RecordWake()
	if snap := m.Snapshot(); snap != (Snapshot{}) {
		t.Errorf("expected zero snapshot from nil metrics, got %+v", snap)
	}
}
