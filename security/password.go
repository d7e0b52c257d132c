package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DummyBcryptHash is a pre-computed bcrypt hash used when the principal being
// authenticated does not exist. Comparing against it keeps the failure path
// as slow as the success path, so response timing does not reveal whether an
// email or client ID is registered.
const DummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashSecret hashes a password or client secret with bcrypt at the default cost.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret compares a bcrypt hash against a candidate secret.
// Pass DummyBcryptHash as the hash when the principal does not exist, so the
// comparison still runs and the caller can return a uniform error afterwards.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
