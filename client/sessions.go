package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// defaultSessionTTL bounds how long a browser session lives without a
// fresh login.
const defaultSessionTTL = 24 * time.Hour

// sessionCleanupInterval is how often expired sessions are swept.
const sessionCleanupInterval = 5 * time.Minute

// Session holds the server-side state for one browser session. A session
// starts out anonymous, carries a pending anti-forgery state while a login
// is in flight, and holds the profile and tokens once authenticated.
type Session struct {
	ID string

	// PendingState is the anti-forgery value for an in-flight login.
	// It is consumed on the first callback, match or not.
	PendingState string

	// Profile and Token are set together, only after a completed login.
	Profile *UserProfile
	Token   *oauth2.Token

	ExpiresAt time.Time
}

// Authenticated reports whether the session completed a login.
func (s *Session) Authenticated() bool {
	return s.Profile != nil && s.Token != nil
}

// sessionStore is an in-memory session store keyed by opaque session IDs.
// A background goroutine sweeps expired sessions; Stop shuts it down.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

func newSessionStore(ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	s := &sessionStore{
		sessions:    make(map[string]*Session),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Create mints a new anonymous session and returns it.
func (s *sessionStore) Create() *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		ExpiresAt: time.Now().Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess

	return sess
}

// Get returns the session for the given ID, or nil if it does not exist
// or has expired.
func (s *sessionStore) Get(id string) *Session {
	if id == "" {
		return nil
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(sess.ExpiresAt) {
		return nil
	}
	return sess
}

// StartLogin records the pending anti-forgery state on the session with the
// given ID, creating a fresh session when none exists. The write happens
// under the store lock: sessions are shared pointers, and PendingState races
// with ConsumeState otherwise.
func (s *sessionStore) StartLogin(id, state string) *Session {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || now.After(sess.ExpiresAt) {
		sess = &Session{
			ID:        uuid.NewString(),
			ExpiresAt: now.Add(s.ttl),
		}
		s.sessions[sess.ID] = sess
	}

	sess.PendingState = state
	return sess
}

// CreateAuthenticated mints a session that is already logged in. The profile
// and token are attached before the session becomes visible to other
// goroutines.
func (s *sessionStore) CreateAuthenticated(profile *UserProfile, token *oauth2.Token) *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		Profile:   profile,
		Token:     token,
		ExpiresAt: time.Now().Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess

	return sess
}

// Put stores the session under its ID, replacing any existing entry.
func (s *sessionStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// Delete removes the session for the given ID.
func (s *sessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ConsumeState atomically reads and clears the pending anti-forgery state
// for the session. The state is single-use: once consumed it is gone
// whether or not the caller's comparison succeeds.
func (s *sessionStore) ConsumeState(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || time.Now().After(sess.ExpiresAt) || sess.PendingState == "" {
		return "", false
	}

	state := sess.PendingState
	sess.PendingState = ""
	return state, true
}

// Stop terminates the cleanup goroutine. Safe to call multiple times.
func (s *sessionStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *sessionStore) cleanupLoop() {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *sessionStore) cleanupExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}
