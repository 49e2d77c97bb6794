// Package session holds the tool-scoped state for the two sync tools: the
// builder that records a mapping by tap, and the player that replays one.
// Each session owns exactly one mapping and the proxies for the browser-side
// engines; a Manager tracks live sessions and expires idle ones.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind distinguishes the two tools.
type Kind string

const (
	KindBuilder Kind = "builder"
	KindPlayer  Kind = "player"
)

// Session is one live tool instance.
type Session struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`

	Builder *BuilderSession `json:"-"`
	Player  *PlayerSession  `json:"-"`
}

// Manager tracks live sessions by ID and sweeps idle ones on access.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewManager creates a manager that expires sessions idle longer than
// timeout.
func NewManager(timeout time.Duration, logger *logrus.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		logger:   logger,
	}
}

// CreateBuilder registers a new builder session.
func (m *Manager) CreateBuilder() *Session {
	return m.create(KindBuilder)
}

// CreatePlayer registers a new player session.
func (m *Manager) CreatePlayer() *Session {
	return m.create(KindPlayer)
}

func (m *Manager) create(kind Kind) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		Kind:         kind,
		CreatedAt:    now,
		LastActivity: now,
	}
	switch kind {
	case KindBuilder:
		s.Builder = NewBuilderSession(m.logger)
	case KindPlayer:
		s.Player = NewPlayerSession(m.logger)
	}
	m.sessions[s.ID] = s

	m.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"kind":       kind,
	}).Info("Created session")
	return s
}

// Get returns the session and refreshes its activity timestamp.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepExpired()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.LastActivity = time.Now()
	return s, true
}

// Remove drops a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns all live sessions.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepExpired()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepExpired()
	return len(m.sessions)
}

// sweepExpired drops idle sessions (must be called with the lock held).
func (m *Manager) sweepExpired() {
	if m.timeout <= 0 {
		return
	}
	now := time.Now()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.timeout {
			delete(m.sessions, id)
			m.logger.WithFields(logrus.Fields{
				"session_id": id,
				"kind":       s.Kind,
			}).Debug("Expired idle session")
		}
	}
}
