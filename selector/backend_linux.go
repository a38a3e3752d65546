//go:build linux

package selector

import (
	"encoding/binary"
	"runtime"

	"github.com/fastio/ioselect/observability"
	"golang.org/x/sys/unix"
)

// wakeFD holds the eventfd used as the cross-thread wake source. It is
// closed only by its finalizer, never by epollBackend.close, so that a
// Wake call racing with Close (or happening after it) still has a valid
// descriptor to write to. As long as anything reaches this struct through
// the backend through the Selector, the finalizer can't run.
type wakeFD struct {
	fd int
}

func newWakeFD(fd int) *wakeFD {
	w := &wakeFD{fd: fd}
	runtime.SetFinalizer(w, func(w *wakeFD) {
		_ = unix.Close(w.fd)
	})
	return w
}

type epollBackend struct {
	epfd       int
	timerFD    int
	wakeHandle *wakeFD
	events     []unix.EpollEvent
	tracer     *observability.Tracer
}

func newBackend(cfg Config, tracer *observability.Tracer) (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, newSyscallError("epoll_create1", err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, newSyscallError("eventfd", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}); err != nil {
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, newSyscallError("epoll_ctl_add(wake)", err)
	}

	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, newSyscallError("timerfd_create", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, tfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(tfd)}); err != nil {
		_ = unix.Close(tfd)
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, newSyscallError("epoll_ctl_add(timer)", err)
	}

	return &epollBackend{
		epfd:       epfd,
		timerFD:    tfd,
		wakeHandle: newWakeFD(efd),
		events:     make([]unix.EpollEvent, cfg.InitialCapacity),
		tracer:     tracer,
	}, nil
}

func toEpollMask(interest IOEvent) uint32 {
	mask := uint32(unix.EPOLLERR | unix.EPOLLRDHUP)
	if interest.wantsRead() {
		mask |= unix.EPOLLIN
	}
	if interest.wantsWrite() {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (b *epollBackend) registerFD(fd int, interest IOEvent) error {
	ev := unix.EpollEvent{Events: toEpollMask(interest), Fd: int32(fd)}
	_, err := retry(b.tracer, "epoll_ctl_add", func() (int, error) {
		return 0, unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	})
	return err
}

func (b *epollBackend) reregisterFD(fd int, newInterest, _ IOEvent) error {
	ev := unix.EpollEvent{Events: toEpollMask(newInterest), Fd: int32(fd)}
	_, err := retry(b.tracer, "epoll_ctl_mod", func() (int, error) {
		return 0, unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	})
	return err
}

func (b *epollBackend) deregisterFD(fd int, _ IOEvent) error {
	_, err := retry(b.tracer, "epoll_ctl_del", func() (int, error) {
		return 0, unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	})
	return err
}

func (b *epollBackend) wait(strategy WaitStrategy, dispatch func(fd int, readable, writable bool) error) error {
	timeoutMs := -1

	switch {
	case strategy.isNow():
		timeoutMs = 0
	case strategy.isTimed():
		spec := unix.ItimerSpec{Value: unix.NsecToTimespec(strategy.timeoutNanos())}
		if err := unix.TimerfdSettime(b.timerFD, 0, &spec, nil); err != nil {
			return newSyscallError("timerfd_settime", err)
		}
	}

	n, err := retry(b.tracer, "epoll_wait", func() (int, error) {
		return unix.EpollWait(b.epfd, b.events, timeoutMs)
	})
	if err != nil {
		return err
	}

	full := n == len(b.events)

	for i := 0; i < n; i++ {
		ev := b.events[i]
		fd := int(ev.Fd)

		switch fd {
		case b.wakeHandle.fd:
			b.drain(b.wakeHandle.fd)
			continue
		case b.timerFD:
			b.drain(b.timerFD)
			continue
		}

		readable := ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLRDHUP) != 0
		writable := ev.Events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLRDHUP) != 0

		if err := dispatch(fd, readable, writable); err != nil {
			if full {
				b.grow()
			}
			return err
		}
	}

	if full {
		b.grow()
	}
	return nil
}

func (b *epollBackend) grow() {
	b.events = make([]unix.EpollEvent, len(b.events)*2)
}

// drain reads and discards the 8-byte counter epoll's wake/timer fds use,
// which both rearms the eventfd and clears the timerfd's expiration count.
func (b *epollBackend) drain(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err == nil {
			return
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

func (b *epollBackend) wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(b.wakeHandle.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return newSyscallError("eventfd_write", err)
	}
	return nil
}

func (b *epollBackend) close() error {
	// The timer descriptor is exclusively ours; nothing races with
	// closing it.
	_ = unix.Close(b.timerFD)

	if err := unix.Close(b.epfd); err != nil {
		return newSyscallError("close(epfd)", err)
	}

	// The wake descriptor (b.wakeHandle.fd) is deliberately left open: a Wake
	// call from another thread may still be in flight. It is reclaimed
	// by wakeFD's finalizer once the last reference to this backend
	// drops.
	return nil
}
