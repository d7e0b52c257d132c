package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndVerifyAccessToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	signed, tokenID, expiresAt, err := srv.mintAccessToken("user-1", "client-1", "profile email")
	if err != nil {
		t.Fatalf("mintAccessToken() error = %v", err)
	}
	if tokenID == "" {
		t.Error("mintAccessToken() returned empty token ID")
	}
	if until := time.Until(expiresAt); until <= 0 || until > time.Duration(srv.Config.AccessTokenTTL)*time.Second {
		t.Errorf("expiry %v outside expected window", expiresAt)
	}

	claims, err := srv.verifyAccessToken(signed)
	if err != nil {
		t.Fatalf("verifyAccessToken() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want client-1", claims.ClientID)
	}
	if claims.Scope != "profile email" {
		t.Errorf("Scope = %q, want %q", claims.Scope, "profile email")
	}
	if claims.ID != tokenID {
		t.Errorf("jti = %q, want %q", claims.ID, tokenID)
	}
	if claims.Issuer != srv.Config.Issuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, srv.Config.Issuer)
	}
}

func TestVerifyAccessToken_Tampered(t *testing.T) {
	srv, _, _ := newTestServer(t)

	signed, _, _, err := srv.mintAccessToken("user-1", "client-1", "profile")
	if err != nil {
		t.Fatalf("mintAccessToken() error = %v", err)
	}

	// Flip the signature segment.
	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := srv.verifyAccessToken(tampered); err == nil {
		t.Error("verifyAccessToken() accepted a tampered signature")
	}
}

func TestVerifyAccessToken_UnsignedRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, accessTokenClaims{
		Scope: "profile",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    srv.Config.Issuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := srv.verifyAccessToken(unsigned); err == nil {
		t.Error("verifyAccessToken() accepted an unsigned token")
	}
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	srv, _, _ := newTestServer(t)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessTokenClaims{
		Scope: "profile",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    srv.Config.Issuer,
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString(srv.Config.SigningKey)
	if err != nil {
		t.Fatalf("failed to build expired token: %v", err)
	}

	if _, err := srv.verifyAccessToken(expired); err == nil {
		t.Error("verifyAccessToken() accepted an expired token")
	}
}

func TestVerifyAccessToken_WrongIssuer(t *testing.T) {
	srv, _, _ := newTestServer(t)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessTokenClaims{
		Scope: "profile",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://other.example.com",
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(srv.Config.SigningKey)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	if _, err := srv.verifyAccessToken(foreign); err == nil {
		t.Error("verifyAccessToken() accepted a token from another issuer")
	}
}
