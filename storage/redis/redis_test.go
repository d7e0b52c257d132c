package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oakforge/authd/internal/testutil"
	"github.com/oakforge/authd/storage"
)

// testStore creates a test store connected to a local Redis instance.
// Tests are skipped if REDIS_TEST_ADDR is unset and no local server is
// reachable. Each test gets a unique key prefix for isolation.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("authdtest:%s:", t.Name())

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Redis at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	cleanupTestKeys(t, store)
	return store
}

// cleanupTestKeys removes all keys under the store's test prefix.
func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	pattern := s.prefix + "*"

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
}

// ============================================================
// Config Tests
// ============================================================

func TestNew_MissingAddress(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Error("Expected error for missing address")
	}
}

func TestNew_InvalidAddress(t *testing.T) {
	_, err := New(Config{Address: "invalid:99999"})
	if err == nil {
		t.Error("Expected error for invalid address")
	}
}

// ============================================================
// ClientStore Tests
// ============================================================

func TestClientStore_SaveAndGetClient(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := s.GetClient(ctx, client.ClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientID != client.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, client.ClientID)
	}
	if got.ClientName != client.ClientName {
		t.Errorf("ClientName = %q, want %q", got.ClientName, client.ClientName)
	}
	if len(got.RedirectURIs) != len(client.RedirectURIs) {
		t.Errorf("RedirectURIs length = %d, want %d", len(got.RedirectURIs), len(client.RedirectURIs))
	}
}

func TestClientStore_GetClient_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetClient(context.Background(), "no-such-client")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
}

func TestClientStore_ValidateClientSecret(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{"valid secret", client.ClientID, testutil.TestClientSecret, false},
		{"wrong secret", client.ClientID, "wrong-secret", true},
		{"unknown client", "no-such-client", testutil.TestClientSecret, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateClientSecret(ctx, tt.clientID, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClientSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, storage.ErrInvalidClientSecret) {
				t.Errorf("error = %v, want ErrInvalidClientSecret", err)
			}
		})
	}
}

func TestClientStore_ListClients(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := testutil.GenerateTestClient()
	b := testutil.GenerateTestClient()
	b.ClientID = "second-client"
	for _, c := range []*storage.Client{a, b} {
		if err := s.SaveClient(ctx, c); err != nil {
			t.Fatalf("SaveClient() error = %v", err)
		}
	}

	clients, err := s.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if len(clients) != 2 {
		t.Errorf("ListClients() returned %d clients, want 2", len(clients))
	}
}

// ============================================================
// UserStore Tests
// ============================================================

func TestUserStore_SaveAndGetUser(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	user := testutil.GenerateTestUser()
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	got, err := s.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Email != user.Email {
		t.Errorf("Email = %q, want %q", got.Email, user.Email)
	}

	byEmail, err := s.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetUserByEmail() ID = %q, want %q", byEmail.ID, user.ID)
	}
}

func TestUserStore_GetUser_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetUser(context.Background(), "no-such-user")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserStore_ValidateUserCredentials(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	user := testutil.GenerateTestUser()
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"valid credentials", user.Email, testutil.TestUserPassword, false},
		{"wrong password", user.Email, "wrong-password", true},
		{"unknown email", "nobody@example.com", testutil.TestUserPassword, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ValidateUserCredentials(ctx, tt.email, tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, storage.ErrInvalidCredentials) {
				t.Errorf("error = %v, want ErrInvalidCredentials", err)
			}
			if !tt.wantErr && got.ID != user.ID {
				t.Errorf("user ID = %q, want %q", got.ID, user.ID)
			}
		})
	}
}

// ============================================================
// CodeStore Tests
// ============================================================

func TestCodeStore_SaveAndConsumeAuthorizationCode(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	peeked, err := s.GetAuthorizationCode(ctx, code.Code)
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if peeked.ClientID != code.ClientID {
		t.Errorf("ClientID = %q, want %q", peeked.ClientID, code.ClientID)
	}

	consumed, err := s.ConsumeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI)
	if err != nil {
		t.Fatalf("ConsumeAuthorizationCode() error = %v", err)
	}
	if consumed.UserID != code.UserID {
		t.Errorf("UserID = %q, want %q", consumed.UserID, code.UserID)
	}

	_, err = s.ConsumeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI)
	if !errors.Is(err, storage.ErrCodeUsed) {
		t.Errorf("second ConsumeAuthorizationCode() error = %v, want ErrCodeUsed", err)
	}
}

func TestCodeStore_ConsumeAuthorizationCode_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.ConsumeAuthorizationCode(context.Background(), "no-such-code", "test-client-id", "https://example.com/callback")
	if !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("ConsumeAuthorizationCode() error = %v, want ErrCodeNotFound", err)
	}
}

// A mis-bound consume attempt runs inside the Lua script and must leave
// the code redeemable by the client it was issued to.
func TestCodeStore_ConsumeAuthorizationCode_BindingMismatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	record, err := s.ConsumeAuthorizationCode(ctx, code.Code, code.ClientID, "https://evil.example.com/callback")
	if !errors.Is(err, storage.ErrCodeBindingMismatch) {
		t.Fatalf("ConsumeAuthorizationCode() error = %v, want ErrCodeBindingMismatch", err)
	}
	if record == nil || record.UserID != code.UserID {
		t.Error("mismatch should return the stored record for auditing")
	}

	consumed, err := s.ConsumeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI)
	if err != nil {
		t.Fatalf("retry by the bound client failed: %v", err)
	}
	if consumed.UserID != code.UserID {
		t.Errorf("UserID = %q, want %q", consumed.UserID, code.UserID)
	}
}

func TestCodeStore_SaveAuthorizationCode_Expired(t *testing.T) {
	s := testStore(t)

	code := testutil.GenerateTestAuthorizationCode()
	code.ExpiresAt = time.Now().Add(-time.Minute)

	if err := s.SaveAuthorizationCode(context.Background(), code); err == nil {
		t.Error("Expected error saving an already-expired code")
	}
}

func TestCodeStore_ConsumeAuthorizationCode_Concurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		replays   int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, storage.ErrCodeUsed):
				replays++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if replays != attempts-1 {
		t.Errorf("replays = %d, want %d", replays, attempts-1)
	}
}

func TestCodeStore_DeleteAuthorizationCode(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	if err := s.DeleteAuthorizationCode(ctx, code.Code); err != nil {
		t.Fatalf("DeleteAuthorizationCode() error = %v", err)
	}

	_, err := s.GetAuthorizationCode(ctx, code.Code)
	if !errors.Is(err, storage.ErrCodeNotFound) {
		t.Errorf("GetAuthorizationCode() error = %v, want ErrCodeNotFound", err)
	}
}

// ============================================================
// TokenStore Tests
// ============================================================

func TestTokenStore_SaveAndGetAccessToken(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	token := testutil.GenerateTestAccessToken()
	if err := s.SaveAccessToken(ctx, token); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}

	got, err := s.GetAccessToken(ctx, token.TokenID)
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got.UserID != token.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, token.UserID)
	}
	if got.Scope != token.Scope {
		t.Errorf("Scope = %q, want %q", got.Scope, token.Scope)
	}
}

func TestTokenStore_GetAccessToken_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetAccessToken(context.Background(), "no-such-token")
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetAccessToken() error = %v, want ErrTokenNotFound", err)
	}
}

func TestTokenStore_SaveAccessToken_Expired(t *testing.T) {
	s := testStore(t)

	token := testutil.GenerateTestAccessToken()
	token.ExpiresAt = time.Now().Add(-time.Minute)

	if err := s.SaveAccessToken(context.Background(), token); err == nil {
		t.Error("Expected error saving an already-expired token")
	}
}

func TestTokenStore_RefreshTokenLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	token := testutil.GenerateTestRefreshToken()
	if err := s.SaveRefreshToken(ctx, token); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	got, err := s.GetRefreshTokenInfo(ctx, token.Token)
	if err != nil {
		t.Fatalf("GetRefreshTokenInfo() error = %v", err)
	}
	if got.UserID != token.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, token.UserID)
	}

	if err := s.DeleteRefreshToken(ctx, token.Token); err != nil {
		t.Fatalf("DeleteRefreshToken() error = %v", err)
	}

	_, err = s.GetRefreshTokenInfo(ctx, token.Token)
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetRefreshTokenInfo() error = %v, want ErrTokenNotFound", err)
	}
}
