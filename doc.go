/*
Package ioselect provides a portable I/O readiness selector: the core of an
event loop that multiplexes readiness notifications for many file
descriptors onto a single waiting thread. It sits directly above the
operating system's readiness primitives — epoll on Linux, kqueue on
Darwin/BSD — and below a higher-level event loop.

Scope

A Selector lets one thread register descriptors of interest, block
efficiently until one or more become readable or writable (or until a
deadline or an external wake from another thread), and deliver the
resulting events to a user-supplied callback along with per-registration
context. Buffered I/O, protocol framing, descriptor creation, and thread
pooling are left to the caller.

Modules

  - selector: the Selector itself, its platform backends, and the
    supporting types (IOEvent, Registration, WaitStrategy, Error) that make
    up its contract.
  - observability: lock-free counters and a per-syscall latency tracer used
    internally by the selector.
  - config: command-line flags for the selectorecho demo program, plus a
    runtime active-connection counter that logs to watchers on change.
  - app: lifecycle wiring — signal handling and gentle shutdown — for a
    program built around a Selector.
  - cmd/selectorecho: a TCP echo server built directly on the Selector,
    playing the role of the event-loop collaborator the selector package
    itself does not implement.
*/
package ioselect
