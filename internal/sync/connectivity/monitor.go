// Package connectivity relays the platform's online/offline signal to the
// parts of the sync engine that care about transitions.
package connectivity

import (
	"sync"

	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
)

// Listener is called with the new state after a transition.
type Listener func(online bool)

// Monitor tracks the current connectivity state. Listeners only hear about
// real transitions, never repeats of the current state.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	listeners map[int]Listener
	nextID    int
	log       *logging.Logger
}

// NewMonitor creates a monitor starting in the given state.
func NewMonitor(initial bool) *Monitor {
	return &Monitor{
		online:    initial,
		listeners: make(map[int]Listener),
		log:       logging.Component("connectivity"),
	}
}

// IsOnline reports the last known state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a platform signal. It returns immediately; listeners run
// on their own goroutines.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	m.log.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})

	for _, l := range listeners {
		go l(online)
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}
