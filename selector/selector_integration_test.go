//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package selector

import (
	"os"
	"syscall"
	"testing"
	"time"
)

// fdHandle adapts a raw descriptor to Selectable for tests.
type fdHandle struct {
	fd   int
	open bool
}

func (h *fdHandle) FD() int    { return h.fd }
func (h *fdHandle) Open() bool { return h.open }

func socketpair(t *testing.T) (a, b *fdHandle) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	})
	return &fdHandle{fd: fds[0], open: true}, &fdHandle{fd: fds[1], open: true}
}

func newSelectorForTest(t *testing.T) *Selector {
	t.Helper()
	s, err := New(Config{InitialCapacity: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSelectorRegisterDeliversReadable(t *testing.T) {
	s := newSelectorForTest(t)
	a, b := socketpair(t)

	reg, err := s.Register(a, IOEventRead, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := syscall.Write(b.fd, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var gotReadable bool
	err = s.Wait(Block(), func(ev Event) error {
		if ev.Registration != reg {
			t.Errorf("Registration = %v, want %v", ev.Registration, reg)
		}
		gotReadable = ev.Readable
		return nil
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !gotReadable {
		t.Error("expected a readable event")
	}
}

func TestSelectorReregisterChangesInterest(t *testing.T) {
	s := newSelectorForTest(t)
	a, _ := socketpair(t)

	if _, err := s.Register(a, IOEventWrite, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var sawWritable bool
	if err := s.Wait(Now(), func(ev Event) error {
		sawWritable = sawWritable || ev.Writable
		return nil
	}); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !sawWritable {
		t.Fatal("expected writable event on a fresh socket")
	}

	if err := s.Reregister(a, IOEventRead); err != nil {
		t.Fatalf("Reregister: %v", err)
	}

	var sawAnything bool
	if err := s.Wait(Now(), func(ev Event) error {
		sawAnything = true
		return nil
	}); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sawAnything {
		t.Error("expected no events after reregistering to read-only with no data pending")
	}
}

func TestSelectorDeregisterIsIdempotent(t *testing.T) {
	s := newSelectorForTest(t)
	a, _ := socketpair(t)

	if err := s.Deregister(a); err != nil {
		t.Fatalf("Deregister on unregistered fd: %v", err)
	}

	if _, err := s.Register(a, IOEventRead, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Deregister(a); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := s.Deregister(a); err != nil {
		t.Fatalf("second Deregister: %v", err)
	}
}

func TestSelectorWakeUnblocksWait(t *testing.T) {
	s := newSelectorForTest(t)

	done := make(chan error, 1)
	go func() {
		done <- s.Wait(Block(), func(Event) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	if err := s.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not unblock after Wake")
	}
}

func TestSelectorBlockUntilTimeoutReturnsPromptly(t *testing.T) {
	s := newSelectorForTest(t)
	a, _ := socketpair(t)
	if _, err := s.Register(a, IOEventRead, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	start := time.Now()
	err := s.Wait(BlockUntilTimeout(50*time.Millisecond.Nanoseconds()), func(Event) error { return nil })
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("Wait took %v, want well under the 1s safety margin", elapsed)
	}
}

func TestSelectorPeerCloseFoldsIntoReadable(t *testing.T) {
	s := newSelectorForTest(t)
	a, b := socketpair(t)

	reg, err := s.Register(a, IOEventRead, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	syscall.Close(b.fd)
	b.open = false

	var gotReadable bool
	err = s.Wait(Block(), func(ev Event) error {
		if ev.Registration != reg {
			t.Errorf("Registration mismatch")
		}
		gotReadable = ev.Readable
		return nil
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !gotReadable {
		t.Error("expected peer close to surface as readable (EOF)")
	}
}

func TestSelectorCallbackErrorAbortsWait(t *testing.T) {
	s := newSelectorForTest(t)
	a, b := socketpair(t)

	if _, err := s.Register(a, IOEventRead, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := syscall.Write(b.fd, []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	sentinel := os.ErrClosed
	err := s.Wait(Block(), func(Event) error { return sentinel })
	if err != sentinel {
		t.Errorf("Wait returned %v, want callback's sentinel error", err)
	}
}

func TestSelectorGentleCloseWaitsForClosers(t *testing.T) {
	s := newSelectorForTest(t)
	a, _ := socketpair(t)

	closed := make(chan struct{})
	_, err := s.Register(a, IOEventRead, func(fd int) *Registration {
		return &Registration{Context: &fakeCloser{ch: closed}}
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := s.GentleClose()
	select {
	case <-done:
		t.Fatal("GentleClose finished before its Closer signaled completion")
	case <-time.After(20 * time.Millisecond):
	}

	close(closed)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GentleClose did not finish after Closer signaled completion")
	}
}

// TestSelectorEventBufferGrowsUnderSaturation starts with an event buffer
// far smaller than the number of simultaneously ready descriptors, so every
// early Wait call fills it completely and must grow it before the next
// call. It asserts growth never drops a descriptor's event: every one of
// them is eventually reported readable.
func TestSelectorEventBufferGrowsUnderSaturation(t *testing.T) {
	s, err := New(Config{InitialCapacity: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	const n = 8
	pending := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		a, b := socketpair(t)
		if _, err := s.Register(a, IOEventRead, nil); err != nil {
			t.Fatalf("Register: %v", err)
		}
		if _, err := syscall.Write(b.fd, []byte("x")); err != nil {
			t.Fatalf("write: %v", err)
		}
		pending[a.fd] = true
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(pending) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out with %d descriptors never reported readable: %v", len(pending), pending)
		}
		if err := s.Wait(Now(), func(ev Event) error {
			delete(pending, ev.Registration.FD())
			return nil
		}); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
}
