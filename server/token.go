package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessTokenClaims are the JWT claims carried by issued access tokens.
// Subject is the resource owner's user ID; the jti (RegisteredClaims.ID)
// keys the server-side token record used for revocation checks.
type accessTokenClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// mintAccessToken signs a new HS256 access token for the given user, client,
// and granted scope. Returns the compact token, its jti, and its expiry.
func (s *Server) mintAccessToken(userID, clientID, scope string) (string, string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second)
	tokenID := uuid.NewString()

	claims := accessTokenClaims{
		ClientID: clientID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Config.Issuer,
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Config.SigningKey)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, tokenID, expiresAt, nil
}

// verifyAccessToken parses and validates a bearer token. Only HS256 is
// accepted; tokens signed with any other algorithm (including "none") are
// rejected before the key is consulted.
func (s *Server) verifyAccessToken(tokenString string) (*accessTokenClaims, error) {
	claims := &accessTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.Config.SigningKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.Config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Duration(s.Config.ClockSkewGracePeriod)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token validation failed")
	}

	return claims, nil
}
