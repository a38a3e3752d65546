// Package selector implements the portable core of an I/O readiness event
// loop: registering file descriptors of interest, blocking efficiently
// until one or more become readable or writable (or a deadline or an
// external wake fires), and dispatching the resulting events to a
// caller-supplied callback together with per-registration context.
//
// It sits directly above the operating system's readiness primitive —
// epoll on Linux, kqueue on the BSDs and Darwin — and below a full event
// loop. Buffered I/O, protocol framing, descriptor creation, and thread
// pooling are deliberately out of scope; see Selectable, Registration and
// Callback for the only contracts this package exposes upward.
package selector
