package exchange

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session to jedna sesja wymiany z 1C – od checkauth do complete.
// Żyje tylko w pamięci; pliki sesji leżą w 1c_temp/<token>/.
type Session struct {
	Token    string
	Created  time.Time
	LastSeen time.Time
}

// SessionStore trzyma aktywne sesje. Osobny byt od sesji webowych –
// protokół 1C ma własny cykl życia.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxAge   time.Duration
}

func NewSessionStore(maxAge time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		maxAge:   maxAge,
	}
}

// Open zakłada nową sesję (udany checkauth) i zwraca token.
func (s *SessionStore) Open() *Session {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	now := time.Now()
	sess := &Session{Token: token, Created: now, LastSeen: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(now)
	s.sessions[token] = sess
	return sess
}

// Get zwraca sesję po tokenie i odświeża last-activity. Nil gdy nie ma
// albo wygasła.
func (s *SessionStore) Get(token string) *Session {
	if token == "" {
		return nil
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	if now.Sub(sess.LastSeen) > s.maxAge {
		delete(s.sessions, token)
		return nil
	}
	sess.LastSeen = now
	return sess
}

// Peek zwraca sesję bez odświeżania last-activity. Do inspekcji w tle
// (reaper), nie do obsługi requestu.
func (s *SessionStore) Peek(token string) *Session {
	if token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok || time.Since(sess.LastSeen) > s.maxAge {
		return nil
	}
	return sess
}

func (s *SessionStore) Close(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *SessionStore) reapLocked(now time.Time) {
	for tok, sess := range s.sessions {
		if now.Sub(sess.LastSeen) > s.maxAge {
			delete(s.sessions, tok)
		}
	}
}
