// Package stream tracks the lifecycle of active repair sessions. Each
// session owns one operator chain for one logical stream; the manager
// provides open/close/list operations for callers running several
// recordings side by side.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strec/hlsfix/internal/hls"
	"github.com/strec/hlsfix/internal/pipeline"
)

// Session is one logical stream being repaired. Push and Close must be
// called from a single goroutine; the chain inside is a synchronous state
// machine.
type Session struct {
	ID        string
	Name      string
	StartedAt time.Time

	chain *pipeline.Chain[hls.Fragment]
	log   *slog.Logger
}

// Push feeds one fragment through the session's operator chain.
func (s *Session) Push(frag hls.Fragment) error {
	return s.chain.Process(frag)
}

// Close finalizes the chain, flushing any buffered state. Safe to call
// once; later calls return pipeline.ErrFinished.
func (s *Session) Close() error {
	s.log.Info("session closing")
	return s.chain.Finish()
}

// Manager manages the lifecycle of repair sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. If log is nil, slog.Default()
// is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "stream-manager"),
		sessions: make(map[string]*Session),
	}
}

// Open registers a new session over the given operator chain. Returns the
// session and true, or nil and false if a session with this name already
// exists.
func (m *Manager) Open(name string, chain *pipeline.Chain[hls.Fragment]) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.Name == name {
			m.log.Warn("session already exists, rejecting duplicate", "name", name)
			return nil, false
		}
	}

	s := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: time.Now(),
		chain:     chain,
		log:       m.log.With("stream", name),
	}
	m.sessions[s.ID] = s
	m.log.Info("session opened", "name", name, "id", s.ID)
	return s, true
}

// Remove drops a session from the manager by id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		m.log.Info("session removed", "id", id)
	}
}

// List returns all active sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
