package client

import (
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestSessionStore_CreateGetDelete(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	sess := store.Create()
	if sess.ID == "" {
		t.Fatal("Create() returned a session with no ID")
	}
	if sess.Authenticated() {
		t.Error("fresh session reports authenticated")
	}

	got := store.Get(sess.ID)
	if got == nil {
		t.Fatal("Get() returned nil for a live session")
	}
	if got.ID != sess.ID {
		t.Errorf("Get() ID = %q, want %q", got.ID, sess.ID)
	}

	store.Delete(sess.ID)
	if store.Get(sess.ID) != nil {
		t.Error("Get() returned a deleted session")
	}
}

func TestSessionStore_GetUnknown(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	if store.Get("") != nil {
		t.Error("Get(\"\") returned a session")
	}
	if store.Get("nonexistent") != nil {
		t.Error("Get() returned a session for an unknown ID")
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	sess := store.Create()
	sess.ExpiresAt = time.Now().Add(-time.Second)
	store.Put(sess)

	if store.Get(sess.ID) != nil {
		t.Error("Get() returned an expired session")
	}

	store.cleanupExpired()
	store.mu.RLock()
	_, stillThere := store.sessions[sess.ID]
	store.mu.RUnlock()
	if stillThere {
		t.Error("cleanupExpired() left an expired session behind")
	}
}

func TestSessionStore_StartLogin(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	// No existing session: a fresh one is minted with the state bound.
	sess := store.StartLogin("", "state-1")
	if sess.ID == "" {
		t.Fatal("StartLogin() returned a session with no ID")
	}
	if sess.PendingState != "state-1" {
		t.Errorf("PendingState = %q, want %q", sess.PendingState, "state-1")
	}

	// Existing session: reused, state replaced.
	again := store.StartLogin(sess.ID, "state-2")
	if again.ID != sess.ID {
		t.Errorf("StartLogin() minted a new session %q for live session %q", again.ID, sess.ID)
	}

	state, ok := store.ConsumeState(sess.ID)
	if !ok || state != "state-2" {
		t.Errorf("ConsumeState() = %q, %v, want %q, true", state, ok, "state-2")
	}

	// Expired session: replaced with a fresh one.
	expired := store.Create()
	expired.ExpiresAt = time.Now().Add(-time.Second)
	store.Put(expired)
	replacement := store.StartLogin(expired.ID, "state-3")
	if replacement.ID == expired.ID {
		t.Error("StartLogin() reused an expired session")
	}
}

// Logins and callbacks for the same session may race; state binding and
// consumption both go through the store lock.
func TestSessionStore_StartLoginConsumeStateConcurrent(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	sess := store.StartLogin("", "initial")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			store.StartLogin(sess.ID, "rebound")
		}
	}()
	for i := 0; i < 200; i++ {
		store.ConsumeState(sess.ID)
	}
	<-done
}

func TestSessionStore_CreateAuthenticated(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	profile := &UserProfile{ID: "user-1", Name: "User One"}
	token := &oauth2.Token{AccessToken: "tok"}

	sess := store.CreateAuthenticated(profile, token)
	if !sess.Authenticated() {
		t.Fatal("CreateAuthenticated() session reports unauthenticated")
	}

	got := store.Get(sess.ID)
	if got == nil {
		t.Fatal("Get() returned nil for an authenticated session")
	}
	if got.Profile.ID != "user-1" {
		t.Errorf("Profile.ID = %q, want %q", got.Profile.ID, "user-1")
	}
}

func TestSessionStore_ConsumeState(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	sess := store.StartLogin("", "state-value")

	state, ok := store.ConsumeState(sess.ID)
	if !ok {
		t.Fatal("ConsumeState() did not find the pending state")
	}
	if state != "state-value" {
		t.Errorf("ConsumeState() = %q, want %q", state, "state-value")
	}

	// Single use.
	if _, ok := store.ConsumeState(sess.ID); ok {
		t.Error("ConsumeState() succeeded twice for the same state")
	}
}

func TestSessionStore_ConsumeStateNoPending(t *testing.T) {
	store := newSessionStore(time.Hour)
	t.Cleanup(store.Stop)

	sess := store.Create()
	if _, ok := store.ConsumeState(sess.ID); ok {
		t.Error("ConsumeState() succeeded for a session with no pending state")
	}
	if _, ok := store.ConsumeState("unknown"); ok {
		t.Error("ConsumeState() succeeded for an unknown session")
	}
}

func TestSession_Authenticated(t *testing.T) {
	sess := &Session{}
	if sess.Authenticated() {
		t.Error("empty session reports authenticated")
	}

	sess.Profile = &UserProfile{ID: "user-1"}
	if sess.Authenticated() {
		t.Error("session with profile but no token reports authenticated")
	}

	sess.Token = &oauth2.Token{AccessToken: "tok"}
	if !sess.Authenticated() {
		t.Error("session with profile and token reports unauthenticated")
	}
}
