package tunnel

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the tunnel.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PresenceListener is told when devices come and go.
// Callbacks run on the connecting or disconnecting goroutine, outside any
// registry lock, and must not block for long.
type PresenceListener interface {
	DeviceConnected(id DeviceID)
	DeviceDisconnected(id DeviceID, cause error)
}

// Registry maps device identities to their active session.
//
// At most one session per device is registered at any time. The first
// registration wins; later ones fail with ErrAlreadyConnected until the
// first session is removed.
//
// All public methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[DeviceID]*Session
	listeners []PresenceListener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[DeviceID]*Session),
	}
}

// AddListener subscribes l to presence changes.
func (r *Registry) AddListener(l PresenceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Register makes s discoverable under its device ID and marks it active.
// It returns ErrAlreadyConnected if the device already has a session and
// ErrSessionClosed if s is no longer connecting.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	if _, exists := r.sessions[s.id]; exists {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	if !s.activate() {
		r.mu.Unlock()
		return ErrSessionClosed
	}
	r.sessions[s.id] = s
	listeners := r.listeners
	r.mu.Unlock()

	for _, l := range listeners {
		l.DeviceConnected(s.id)
	}
	return nil
}

// Lookup returns the active session for id.
func (r *Registry) Lookup(id DeviceID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove unregisters s. It only removes the entry if it still refers to s,
// so a stale session can never evict its replacement. It reports whether an
// entry was removed and is safe to call more than once.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	current, ok := r.sessions[s.id]
	if !ok || current != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.id)
	listeners := r.listeners
	r.mu.Unlock()

	for _, l := range listeners {
		l.DeviceDisconnected(s.id, s.Err())
	}
	return true
}

// List returns the active sessions ordered by device ID.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
