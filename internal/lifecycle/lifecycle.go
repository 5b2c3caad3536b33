// Package lifecycle provides event hooks for controlhub startup, shutdown and
// connection changes.
package lifecycle

import (
	"sync"

	"github.com/vowser/controlhub/internal/logging"
)

// Event types for lifecycle hooks
type Event string

const (
	// Server lifecycle events
	EventServerStarted    Event = "server_started"
	EventShutdownStarted  Event = "shutdown_started"
	EventShutdownComplete Event = "shutdown_complete"

	// Downstream client events, data is the session id
	EventClientConnected    Event = "client_connected"
	EventClientDisconnected Event = "client_disconnected"

	// Upstream link events, data is the upstream URL
	EventUpstreamConnected    Event = "upstream_connected"
	EventUpstreamDisconnected Event = "upstream_disconnected"
)

// Handler is a function that handles a lifecycle event
type Handler func(event Event, data any)

// Manager manages lifecycle event subscriptions and dispatching
type Manager struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// NewManager creates a manager with no handlers.
func NewManager() *Manager {
	return &Manager{handlers: make(map[Event][]Handler)}
}

// Global lifecycle manager
var global = NewManager()

// On registers a handler for a lifecycle event
func On(event Event, handler Handler) {
	global.On(event, handler)
}

// Emit dispatches an event to all registered handlers
func Emit(event Event, data any) {
	global.Emit(event, data)
}

// Reset drops every global handler.
func Reset() {
	global.mu.Lock()
	global.handlers = make(map[Event][]Handler)
	global.mu.Unlock()
}

// On registers a handler for a lifecycle event
func (m *Manager) On(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Emit dispatches an event to all registered handlers. Handlers run
// synchronously and must not block.
func (m *Manager) Emit(event Event, data any) {
	m.mu.RLock()
	handlers := m.handlers[event]
	m.mu.RUnlock()

	logging.Debugf("[lifecycle] emitting event: %s", event)
	for _, h := range handlers {
		h(event, data)
	}
}

func onString(event Event, handler func(string)) {
	On(event, func(e Event, data any) {
		if s, ok := data.(string); ok {
			handler(s)
		}
	})
}

// OnClientConnected registers a handler receiving the new session id.
func OnClientConnected(handler func(sessionID string)) {
	onString(EventClientConnected, handler)
}

// OnClientDisconnected registers a handler receiving the closed session id.
func OnClientDisconnected(handler func(sessionID string)) {
	onString(EventClientDisconnected, handler)
}

// OnUpstreamConnected registers a handler receiving the upstream URL.
func OnUpstreamConnected(handler func(url string)) {
	onString(EventUpstreamConnected, handler)
}

// OnUpstreamDisconnected registers a handler receiving the upstream URL.
func OnUpstreamDisconnected(handler func(url string)) {
	onString(EventUpstreamDisconnected, handler)
}

// OnServerStarted is a convenience function to register a server started handler
func OnServerStarted(handler func()) {
	On(EventServerStarted, func(e Event, data any) {
		handler()
	})
}

// OnShutdown is a convenience function to register a shutdown handler
func OnShutdown(handler func()) {
	On(EventShutdownStarted, func(e Event, data any) {
		handler()
	})
}
