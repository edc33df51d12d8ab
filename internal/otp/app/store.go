package app

import (
	"sync"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// SessionStore holds at most one session per user in memory. Put, Remove and
// Update are the only mutation points. Reads return copies.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[domain.UserID]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[domain.UserID]*Session)}
}

// Put installs sess as userID's session. A replaced session's poll handle is
// stopped before Put returns.
func (s *SessionStore) Put(userID domain.UserID, sess Session) {
	sess.UserID = userID

	s.mu.Lock()
	old, ok := s.sessions[userID]
	s.sessions[userID] = &sess
	s.mu.Unlock()

	if ok && old.PollHandle != nil && old.PollHandle != sess.PollHandle {
		old.PollHandle.Stop()
	}
}

// Get returns a copy of userID's session.
func (s *SessionStore) Get(userID domain.UserID) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Remove deletes userID's session and stops its poll handle. It reports
// whether a session existed.
func (s *SessionStore) Remove(userID domain.UserID) bool {
	s.mu.Lock()
	old, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if ok && old.PollHandle != nil {
		old.PollHandle.Stop()
	}
	return ok
}

// Update applies fn to a copy of userID's session and commits the copy if fn
// returns nil. It returns domain.ErrNoActiveSession when there is no session.
// Update does not stop handles that fn clears; callers own that.
func (s *SessionStore) Update(userID domain.UserID, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[userID]
	if !ok {
		return domain.ErrNoActiveSession
	}
	next := *cur
	if err := fn(&next); err != nil {
		return err
	}
	next.UserID = userID
	*cur = next
	return nil
}

// ListAll returns a snapshot of every session.
func (s *SessionStore) ListAll() map[domain.UserID]Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.UserID]Session, len(s.sessions))
	for id, sess := range s.sessions {
		out[id] = *sess
	}
	return out
}

// Len returns the number of sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
