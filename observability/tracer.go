package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// SyscallStats aggregates the latency and error count of every call made
// under one label (e.g. "epoll_wait", "kevent", "epoll_ctl_add").
type SyscallStats struct {
	Name      string
	Count     atomic.Uint64
	TotalTime atomic.Uint64 // nanoseconds
	MinTime   atomic.Uint64
	MaxTime   atomic.Uint64
	Errors    atomic.Uint64
}

// SyscallSnapshot is a read-only copy of SyscallStats for reporting.
type SyscallSnapshot struct {
	Name    string
	Count   uint64
	AvgTime time.Duration
	MinTime time.Duration
	MaxTime time.Duration
	Errors  uint64
}

// Tracer records the latency of every syscall the selector's syscall
// wrapper makes, keyed by label. A nil *Tracer is valid and costs nothing.
type Tracer struct {
	enabled  atomic.Bool
	syscalls sync.Map // map[string]*SyscallStats
}

// NewTracer creates an enabled tracer.
func NewTracer() *Tracer {
	t := &Tracer{}
	t.enabled.Store(true)
	return t
}

// Enable toggles recording. Disabling stops new samples without losing
// the ones already collected.
func (t *Tracer) Enable(on bool) {
	if t == nil {
		return
	}
	t.enabled.Store(on)
}

// Trace runs fn, timing it, and records the outcome under label regardless
// of whether fn returns an error.
func (t *Tracer) Trace(label string, fn func() error) error {
	if t == nil {
		return fn()
	}
	start := time.Now()
	err := fn()
	t.record(label, time.Since(start), err)
	return err
}

func (t *Tracer) record(label string, d time.Duration, err error) {
	if t == nil || !t.enabled.Load() {
		return
	}
	val, _ := t.syscalls.LoadOrStore(label, &SyscallStats{Name: label})
	stats := val.(*SyscallStats)

	stats.Count.Add(1)
	ns := uint64(d.Nanoseconds())
	stats.TotalTime.Add(ns)
	if err != nil {
		stats.Errors.Add(1)
	}
	updateMin(&stats.MinTime, ns)
	updateMax(&stats.MaxTime, ns)
}

func updateMin(slot *atomic.Uint64, v uint64) {
	for {
		cur := slot.Load()
		if cur != 0 && v >= cur {
			return
		}
		if slot.CompareAndSwap(cur, v) {
			return
		}
	}
}

func updateMax(slot *atomic.Uint64, v uint64) {
	for {
		cur := slot.Load()
		if v <= cur {
			return
		}
		if slot.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Snapshot returns a stable copy of every syscall label recorded so far.
func (t *Tracer) Snapshot() map[string]SyscallSnapshot {
	out := make(map[string]SyscallSnapshot)
	if t == nil {
		return out
	}
	t.syscalls.Range(func(key, value any) bool {
		name := key.(string)
		stats := value.(*SyscallStats)
		count := stats.Count.Load()
		if count == 0 {
			return true
		}
		out[name] = SyscallSnapshot{
			Name:    name,
			Count:   count,
			AvgTime: time.Duration(stats.TotalTime.Load() / count),
			MinTime: time.Duration(stats.MinTime.Load()),
			MaxTime: time.Duration(stats.MaxTime.Load()),
			Errors:  stats.Errors.Load(),
		}
		return true
	})
	return out
}
