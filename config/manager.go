package config

import "sync"

// Manager tracks the one runtime-observable knob selectorecho has: how
// many connections are currently accepted and registered. Adjust is called
// from the accept and close paths; Watch lets an operator log every change
// without polling.
type Manager struct {
	active int64

	mu       sync.Mutex
	watchers []func(active int64)
}

// NewManager creates a manager with zero active connections.
func NewManager() *Manager {
	return &Manager{}
}

// Adjust changes the active connection count by delta, notifies every
// watcher with the new value in its own goroutine, and returns the new
// value.
func (m *Manager) Adjust(delta int) int64 {
	m.mu.Lock()
	m.active += int64(delta)
	v := m.active
	watchers := append([]func(int64){}, m.watchers...)
	m.mu.Unlock()

	for _, w := range watchers {
		go w(v)
	}
	return v
}

// Active returns the current active connection count.
func (m *Manager) Active() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Watch registers callback to run, in its own goroutine, every time Adjust
// changes the count.
func (m *Manager) Watch(callback func(active int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, callback)
}
