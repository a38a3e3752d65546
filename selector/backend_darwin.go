//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package selector

import (
	"fmt"
	"runtime"

	"github.com/fastio/ioselect/observability"
	"golang.org/x/sys/unix"
)

// kqFD holds the kqueue descriptor, which on this platform doubles as the
// wake target (EVFILT_USER is submitted on the same queue Wait polls).
// Closing it in Close would race with an in-flight Wake from another
// thread, so it is only ever closed by its finalizer, after the last
// reference to the backend (and therefore the Selector) is gone.
type kqFD struct {
	fd int
}

func newKqFD(fd int) *kqFD {
	k := &kqFD{fd: fd}
	runtime.SetFinalizer(k, func(k *kqFD) {
		_ = unix.Close(k.fd)
	})
	return k
}

type kqueueBackend struct {
	kq     *kqFD
	events []unix.Kevent_t
	tracer *observability.Tracer
}

func newBackend(cfg Config, tracer *observability.Tracer) (backend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, newSyscallError("kqueue", err)
	}

	// Register the wake filter once, disarmed, so the first real Wake
	// only needs to flip NOTE_TRIGGER rather than risk ENOENT.
	initEv := unix.Kevent_t{Ident: 0, Filter: unix.EVFILT_USER, Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(fd, []unix.Kevent_t{initEv}, nil, nil); err != nil {
		_ = unix.Close(fd)
		return nil, newSyscallError("kevent_init_wake", err)
	}

	return &kqueueBackend{
		kq:     newKqFD(fd),
		events: make([]unix.Kevent_t, cfg.InitialCapacity),
		tracer: tracer,
	}, nil
}

// kqueueChanges computes the minimal EV_ADD/EV_DELETE operations needed
// to move a descriptor's installed filters from old to new interest.
func kqueueChanges(fd int, old, new IOEvent) []unix.Kevent_t {
	var changes []unix.Kevent_t

	wantRead, hadRead := new.wantsRead(), old.wantsRead()
	wantWrite, hadWrite := new.wantsWrite(), old.wantsWrite()

	switch {
	case wantRead && !hadRead:
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	case !wantRead && hadRead:
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}

	switch {
	case wantWrite && !hadWrite:
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	case !wantWrite && hadWrite:
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}

	return changes
}

// applyChanges submits a change-only kevent call (zero output slots) so
// filter errors surface immediately. Per the kqueue contract, changes
// already applied before a failing one stay applied, so a failure here is
// reported as success; see the syscall wrapper design note.
func (b *kqueueBackend) applyChanges(label string, changes []unix.Kevent_t) {
	if len(changes) == 0 {
		return
	}
	applyChangelist(b.tracer, label, func() error {
		_, err := unix.Kevent(b.kq.fd, changes, nil, nil)
		return err
	})
}

func (b *kqueueBackend) registerFD(fd int, interest IOEvent) error {
	b.applyChanges("kevent_register", kqueueChanges(fd, IOEventNone, interest))
	return nil
}

func (b *kqueueBackend) reregisterFD(fd int, newInterest, oldInterest IOEvent) error {
	b.applyChanges("kevent_reregister", kqueueChanges(fd, oldInterest, newInterest))
	return nil
}

func (b *kqueueBackend) deregisterFD(fd int, oldInterest IOEvent) error {
	b.applyChanges("kevent_deregister", kqueueChanges(fd, oldInterest, IOEventNone))
	return nil
}

func (b *kqueueBackend) wait(strategy WaitStrategy, dispatch func(fd int, readable, writable bool) error) error {
	var ts *unix.Timespec
	switch {
	case strategy.isNow():
		ts = &unix.Timespec{}
	case strategy.isTimed():
		t := unix.NsecToTimespec(strategy.timeoutNanos())
		ts = &t
	}

	n, err := retry(b.tracer, "kevent_wait", func() (int, error) {
		return unix.Kevent(b.kq.fd, nil, b.events, ts)
	})
	if err != nil {
		return err
	}

	full := n == len(b.events)

	for i := 0; i < n; i++ {
		ev := b.events[i]
		switch ev.Filter {
		case unix.EVFILT_USER:
			continue
		case unix.EVFILT_READ:
			if err := dispatch(int(ev.Ident), true, false); err != nil {
				if full {
					b.grow()
				}
				return err
			}
		case unix.EVFILT_WRITE:
			if err := dispatch(int(ev.Ident), false, true); err != nil {
				if full {
					b.grow()
				}
				return err
			}
		default:
			if full {
				b.grow()
			}
			return newInternalError("kevent_wait", fmt.Sprintf("unexpected filter %d", ev.Filter))
		}
	}

	if full {
		b.grow()
	}
	return nil
}

func (b *kqueueBackend) grow() {
	b.events = make([]unix.Kevent_t, len(b.events)*2)
}

func (b *kqueueBackend) wake() error {
	ev := unix.Kevent_t{Ident: 0, Filter: unix.EVFILT_USER, Flags: unix.EV_ADD | unix.EV_CLEAR, Fflags: unix.NOTE_TRIGGER}
	if _, err := unix.Kevent(b.kq.fd, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return newSyscallError("kevent_wake", err)
	}
	return nil
}

func (b *kqueueBackend) close() error {
	// The kqueue descriptor doubles as the wake target; it is reclaimed
	// by kqFD's finalizer, not here. See the Darwin close design note.
	return nil
}
