package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rthome/SpeedCalc/internal/vm"
)

// Session is a client workspace with its own globals.
type Session struct {
	ID       string
	VM       *vm.VM
	Created  time.Time
	LastUsed time.Time
}

// SessionStore tracks sessions by id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a session running on a duplicate of base. It must be
// called on the worker goroutine.
func (s *SessionStore) Create(base *vm.VM) *Session {
	now := time.Now()
	session := &Session{
		ID:       uuid.New().String(),
		VM:       base.Duplicate(),
		Created:  now,
		LastUsed: now,
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	log.Debugf("created session %s", session.ID)
	return session
}

// Get retrieves a session and marks it used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if ok {
		session.LastUsed = time.Now()
	}
	return session, ok
}

// Destroy removes a session.
func (s *SessionStore) Destroy(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than ttl and returns how many
// were removed.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.LastUsed.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// StartSweeper sweeps idle sessions every interval until the returned
// function is called.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(ttl); n > 0 {
					log.Infof("expired %d idle sessions", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
