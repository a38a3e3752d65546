package selector

import (
	"github.com/fastio/ioselect/observability"
	"golang.org/x/sys/unix"
)

// retry invokes fn, absorbing EINTR by calling it again, and wraps any
// other failure into a structured *Error labeled op. Every call also feeds
// the tracer so the syscall label shows up in its snapshot whether it
// succeeds, fails, or gets interrupted along the way.
func retry(tracer *observability.Tracer, op string, fn func() (int, error)) (int, error) {
	var n int
	err := tracer.Trace(op, func() error {
		for {
			var innerErr error
			n, innerErr = fn()
			if innerErr == nil {
				return nil
			}
			if innerErr == unix.EINTR {
				continue
			}
			return innerErr
		}
	})
	if err != nil {
		return 0, newSyscallError(op, err)
	}
	return n, nil
}

// applyChangelist runs a change-only kevent-style call and always
// succeeds: per the kqueue contract, every change already applied before a
// failing one stays applied, so there is nothing useful to retry or
// propagate. The outcome is still traced for observability.
func applyChangelist(tracer *observability.Tracer, op string, fn func() error) {
	_ = tracer.Trace(op, fn)
}
