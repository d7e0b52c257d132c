package security

import "testing"

func TestHashSecret_VerifySecret(t *testing.T) {
	hash, err := HashSecret("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("HashSecret() returned the plaintext")
	}

	if !VerifySecret(hash, "correct horse battery staple") {
		t.Error("VerifySecret() = false for matching secret")
	}
	if VerifySecret(hash, "wrong password") {
		t.Error("VerifySecret() = true for non-matching secret")
	}
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	h1, err := HashSecret("same-secret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	h2, err := HashSecret("same-secret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if h1 == h2 {
		t.Error("HashSecret() produced identical hashes; salt not applied")
	}
}

func TestVerifySecret_DummyHash(t *testing.T) {
	// The dummy hash must never validate any candidate secret but must
	// still be a well-formed bcrypt hash so the comparison runs.
	if VerifySecret(DummyBcryptHash, "anything") {
		t.Error("VerifySecret(DummyBcryptHash, ...) = true, want false")
	}
	if VerifySecret(DummyBcryptHash, "") {
		t.Error("VerifySecret(DummyBcryptHash, \"\") = true, want false")
	}
}
