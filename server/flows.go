package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oakforge/authd/internal/util"
	"github.com/oakforge/authd/storage"
)

// AuthorizeRequest carries the query parameters of an authorization request.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	ClientIP     string
}

// ConsentPrompt describes the login/consent page to render for a validated
// authorization request. Scope is the normalized scope string the code will
// be bound to; Scopes is its whitespace-split form for display.
type ConsentPrompt struct {
	Client      *storage.Client
	Scopes      []string
	RedirectURI string
	Scope       string
	State       string
}

// ApproveRequest carries the submitted login/consent form.
type ApproveRequest struct {
	ClientID    string
	RedirectURI string
	Scope       string
	State       string
	Email       string
	Password    string
	ClientIP    string
}

// ExchangeRequest carries the token endpoint parameters.
type ExchangeRequest struct {
	GrantType    string
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	ClientIP     string
}

// TokenResponse is the token endpoint success payload (RFC 6749 Section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Profile is the scope-filtered userinfo projection. ID is always present;
// Name requires the "profile" scope and Email the "email" scope.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Authorize validates an authorization request and returns the consent
// prompt to render. Validation failures here must NOT redirect to the
// requested URI: the redirect target is not yet trusted, so the caller
// renders the error directly.
func (s *Server) Authorize(ctx context.Context, req AuthorizeRequest) (*ConsentPrompt, error) {
	if req.ResponseType != "code" {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", req.ClientID, req.ClientIP, "unsupported_response_type")
		}
		return nil, errUnsupportedResponseType(fmt.Sprintf("response_type %q is not supported (only \"code\")", req.ResponseType))
	}

	client, scope, err := s.validateAuthorizationTarget(ctx, req.ClientID, req.RedirectURI, req.Scope, req.ClientIP)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogAuthorizationRequested(req.ClientID, req.ClientIP, scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordAuthorizationRequest(ctx, req.ClientID)
	}

	return &ConsentPrompt{
		Client:      client,
		Scopes:      strings.Fields(scope),
		RedirectURI: req.RedirectURI,
		Scope:       scope,
		State:       req.State,
	}, nil
}

// Approve authenticates the resource owner and, on success, mints an
// authorization code bound to the client, redirect URI, and scope. Returns
// the redirect URL carrying the code and the verbatim state.
func (s *Server) Approve(ctx context.Context, req ApproveRequest) (string, error) {
	// Re-validate the authorization target: the form echoes client_id and
	// redirect_uri, and a tampered form must not mint a code.
	client, scope, err := s.validateAuthorizationTarget(ctx, req.ClientID, req.RedirectURI, req.Scope, req.ClientIP)
	if err != nil {
		return "", err
	}

	user, err := s.userStore.ValidateUserCredentials(ctx, req.Email, req.Password)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", req.ClientID, req.ClientIP, "invalid_user_credentials")
		}
		if m := s.metrics(); m != nil {
			m.RecordLoginAttempt(ctx, req.ClientID, false)
		}
		if errors.Is(err, storage.ErrInvalidCredentials) {
			return "", errAccessDenied("invalid email or password")
		}
		return "", NewError(ErrorCodeServerError, "failed to authenticate resource owner", http.StatusInternalServerError)
	}

	if m := s.metrics(); m != nil {
		m.RecordLoginAttempt(ctx, req.ClientID, true)
	}

	code := generateRandomToken()
	now := time.Now()
	authCode := &storage.AuthorizationCode{
		Code:        code,
		ClientID:    client.ClientID,
		UserID:      user.ID,
		RedirectURI: req.RedirectURI,
		Scope:       scope,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.codeStore.SaveAuthorizationCode(ctx, authCode); err != nil {
		s.Logger.Error("Failed to save authorization code", "client_id", client.ClientID, "error", err)
		return "", NewError(ErrorCodeServerError, "failed to issue authorization code", http.StatusInternalServerError)
	}

	if s.Auditor != nil {
		s.Auditor.LogCodeIssued(user.ID, client.ClientID, req.ClientIP, scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, client.ClientID)
	}
	s.Logger.Info("Authorization code issued",
		"client_id", client.ClientID,
		"code_prefix", util.SafeTruncate(code, 8))

	return buildCodeRedirect(req.RedirectURI, code, req.State)
}

// Exchange redeems an authorization code for tokens. The client binding
// checks run inside the store's atomic consume step: either client auth,
// binding validation, and consumption all succeed, or the code's state
// does not change. A mis-bound attempt therefore cannot burn the code for
// the client it was issued to, while two valid concurrent redemptions
// still yield exactly one winner.
func (s *Server) Exchange(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		return nil, errUnsupportedGrantType(fmt.Sprintf("grant type %q is not supported", req.GrantType))
	}
	if req.Code == "" {
		return nil, errInvalidRequest("code parameter is required")
	}

	if err := s.clientStore.ValidateClientSecret(ctx, req.ClientID, req.ClientSecret); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", req.ClientID, req.ClientIP, "invalid_client_credentials")
		}
		if m := s.metrics(); m != nil {
			m.RecordCodeExchange(ctx, req.ClientID, false)
		}
		return nil, errInvalidClient("client authentication failed")
	}

	authCode, err := s.codeStore.ConsumeAuthorizationCode(ctx, req.Code, req.ClientID, req.RedirectURI)
	if err != nil {
		return nil, s.handleConsumeFailure(ctx, authCode, err, req)
	}

	// Code is now atomically marked as used - no other request can redeem it

	accessToken, tokenID, expiresAt, err := s.mintAccessToken(authCode.UserID, req.ClientID, authCode.Scope)
	if err != nil {
		s.Logger.Error("Failed to mint access token", "client_id", req.ClientID, "error", err)
		return nil, NewError(ErrorCodeServerError, "failed to issue token", http.StatusInternalServerError)
	}

	// Introspect treats a missing token record as revocation, so a token
	// whose record cannot be written would be dead on arrival. Fail the
	// exchange instead of handing out an unusable credential.
	now := time.Now()
	if err := s.tokenStore.SaveAccessToken(ctx, &storage.AccessToken{
		TokenID:   tokenID,
		UserID:    authCode.UserID,
		ClientID:  req.ClientID,
		Scope:     authCode.Scope,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		s.Logger.Error("Failed to save access token record", "client_id", req.ClientID, "error", err)
		return nil, NewError(ErrorCodeServerError, "failed to issue token", http.StatusInternalServerError)
	}

	refreshToken := generateRandomToken()
	if err := s.tokenStore.SaveRefreshToken(ctx, &storage.RefreshToken{
		Token:     refreshToken,
		UserID:    authCode.UserID,
		ClientID:  req.ClientID,
		Scope:     authCode.Scope,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.RefreshTokenTTL) * time.Second),
	}); err != nil {
		s.Logger.Error("Failed to save refresh token", "client_id", req.ClientID, "error", err)
		return nil, NewError(ErrorCodeServerError, "failed to issue token", http.StatusInternalServerError)
	}

	// The consumed code stays marked as used until its TTL sweeps it, so
	// replay attempts remain distinguishable from never-issued codes.

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(authCode.UserID, req.ClientID, req.ClientIP, authCode.Scope)
	}
	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, req.ClientID, true)
		m.RecordTokenIssued(ctx, req.ClientID)
	}
	s.Logger.Info("Token issued",
		"client_id", req.ClientID,
		"token_id_prefix", util.SafeTruncate(tokenID, 8))

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.Config.AccessTokenTTL,
		RefreshToken: refreshToken,
		Scope:        authCode.Scope,
	}, nil
}

// handleConsumeFailure maps a failed code consumption to a generic
// invalid_grant while logging the real reason for operators. Replays are
// audited separately: a used code presented again is a theft indicator.
func (s *Server) handleConsumeFailure(ctx context.Context, authCode *storage.AuthorizationCode, err error, req ExchangeRequest) error {
	if errors.Is(err, storage.ErrCodeBindingMismatch) {
		reason := "code_redirect_mismatch"
		userID := ""
		if authCode != nil {
			userID = authCode.UserID
			if authCode.ClientID != req.ClientID {
				reason = "code_client_mismatch"
			}
		}
		s.Logger.Debug("Authorization code binding check failed",
			"reason", reason,
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(userID, req.ClientID, req.ClientIP, reason)
		}
	} else if errors.Is(err, storage.ErrCodeUsed) {
		userID := ""
		if authCode != nil {
			userID = authCode.UserID
		}
		// Rate limit logging to prevent DoS via log flooding
		if s.SecurityEventRateLimiter == nil || s.SecurityEventRateLimiter.Allow(userID+":"+req.ClientID) {
			s.Logger.Error("Authorization code replay detected",
				"user_id", userID,
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, 8))
		}
		if s.Auditor != nil {
			s.Auditor.LogCodeReuseAttempt(req.ClientID, req.ClientIP)
		}
		if m := s.metrics(); m != nil {
			m.RecordCodeReuseDetected(ctx)
		}
	} else {
		s.Logger.Debug("Authorization code validation failed",
			"reason", err.Error(),
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", req.ClientID, req.ClientIP, "invalid_authorization_code")
		}
	}

	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, req.ClientID, false)
	}

	// Generic error per RFC 6749 (don't reveal not-found vs expired vs used)
	return errInvalidGrant("authorization code is invalid or expired")
}

// Introspect validates a bearer token and returns the scope-filtered
// profile of its subject.
func (s *Server) Introspect(ctx context.Context, bearer string) (*Profile, error) {
	claims, err := s.verifyAccessToken(bearer)
	if err != nil {
		s.Logger.Debug("Bearer token rejected", "reason", err.Error())
		if m := s.metrics(); m != nil {
			m.RecordUserinfoRequest(ctx, false)
		}
		return nil, errInvalidToken("access token is invalid or expired")
	}

	// The token record doubles as a server-side validity check: a token
	// whose record is gone is treated as revoked even if the JWT verifies.
	if _, err := s.tokenStore.GetAccessToken(ctx, claims.ID); err != nil {
		s.Logger.Debug("Bearer token has no live record",
			"token_id_prefix", util.SafeTruncate(claims.ID, 8),
			"reason", err.Error())
		if m := s.metrics(); m != nil {
			m.RecordUserinfoRequest(ctx, false)
		}
		return nil, errInvalidToken("access token is invalid or expired")
	}

	user, err := s.userStore.GetUser(ctx, claims.Subject)
	if err != nil {
		if m := s.metrics(); m != nil {
			m.RecordUserinfoRequest(ctx, false)
		}
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, errUserNotFound("token subject no longer exists")
		}
		return nil, NewError(ErrorCodeServerError, "failed to resolve token subject", http.StatusInternalServerError)
	}

	profile := &Profile{ID: user.ID}
	for _, scope := range strings.Fields(claims.Scope) {
		switch scope {
		case "profile":
			profile.Name = user.Name
		case "email":
			profile.Email = user.Email
		}
	}

	if m := s.metrics(); m != nil {
		m.RecordUserinfoRequest(ctx, true)
	}

	return profile, nil
}

// buildCodeRedirect appends the code and verbatim state to the redirect URI,
// preserving any query parameters the client registered.
func buildCodeRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", errInvalidRequest("redirect_uri is not a valid URL")
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
