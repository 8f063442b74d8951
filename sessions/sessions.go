// Package sessions keeps short-lived anonymous chat history in memory.
package sessions

import (
	"sync"
	"time"
)

// DefaultMaxTurns is how many turns a session remembers.
const DefaultMaxTurns = 10

// Turn is one remembered message.
type Turn struct {
	Role string
	Text string
}

type session struct {
	turns      []Turn
	lastActive time.Time
}

// Store is a process-wide set of sessions. All methods are safe for
// concurrent use; Sweep and readers never observe a half-evicted session.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
	maxTurns int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		now:      time.Now,
		maxTurns: DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recent returns a copy of the remembered turns, oldest first.
func (s *Store) Recent(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Append records turns, creating the session if needed, and forgets all but
// the newest turns.
func (s *Store) Append(id string, turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	sess.turns = append(sess.turns, turns...)
	if over := len(sess.turns) - s.maxTurns; over > 0 {
		sess.turns = append([]Turn(nil), sess.turns[over:]...)
	}
	sess.lastActive = s.now()
}

// Delete forgets a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than maxAge and returns how many
// were removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
