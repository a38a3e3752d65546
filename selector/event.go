package selector

// IOEvent is the symbolic interest/readiness set a caller can register for
// and a Selector can report back. It is deliberately small and bitwise so
// that platform backends can test membership with plain masking instead of
// a switch per combination.
type IOEvent uint8

const (
	// IOEventNone means "registered, but currently interested in no
	// events". On Linux the descriptor is still monitored for error and
	// hangup; on Darwin no filter is installed for it at all.
	IOEventNone  IOEvent = 0
	IOEventRead  IOEvent = 1 << 0
	IOEventWrite IOEvent = 1 << 1
)

// IOEventAll is shorthand for read+write interest.
const IOEventAll = IOEventRead | IOEventWrite

func (e IOEvent) wantsRead() bool  { return e&IOEventRead != 0 }
func (e IOEvent) wantsWrite() bool { return e&IOEventWrite != 0 }

func (e IOEvent) String() string {
	switch e {
	case IOEventNone:
		return "none"
	case IOEventRead:
		return "read"
	case IOEventWrite:
		return "write"
	case IOEventAll:
		return "all"
	default:
		return "invalid"
	}
}

// Selectable is the minimal shape a collaborator must provide to register
// a descriptor with a Selector.
type Selectable interface {
	// FD returns the file descriptor, stable for the lifetime of the
	// registration.
	FD() int
	// Open reports whether the descriptor is currently open. It must be
	// true at the moment Register is called.
	Open() bool
}

// Event is delivered to the Callback once per ready descriptor per Wait
// call. Readable and Writable are not mutually exclusive: on Linux, error
// and hangup conditions set both regardless of which side was the
// registered interest.
type Event struct {
	Readable     bool
	Writable     bool
	Registration *Registration
}

// Callback processes one Event. An error returned from it aborts the Wait
// call it was invoked from; any further events in that batch are
// discarded and will be redelivered on the next Wait since interest is
// level-triggered.
type Callback func(Event) error
