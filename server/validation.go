package server

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/oakforge/authd/internal/util"
	"github.com/oakforge/authd/storage"
)

// validateAuthorizationTarget resolves and validates the client, redirect
// URI, and scope of an authorization request. It is shared by Authorize and
// Approve so a tampered consent form faces the same checks as the original
// request. Returns the client and the normalized scope string.
func (s *Server) validateAuthorizationTarget(ctx context.Context, clientID, redirectURI, scope, clientIP string) (*storage.Client, string, error) {
	if clientID == "" {
		return nil, "", errInvalidRequest("client_id is required")
	}

	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, clientIP, "unknown_client")
		}
		return nil, "", errInvalidClient("unknown client")
	}

	if err := s.validateRedirectURI(client, redirectURI); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogInvalidRedirect(clientID, clientIP)
		}
		return nil, "", errInvalidRequest(err.Error())
	}

	normalized := normalizeScope(scope)
	if err := s.validateScopes(normalized); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, clientIP, "invalid_scope")
		}
		return nil, "", errInvalidScope(err.Error())
	}
	if err := s.validateClientScopes(normalized, client.Scopes); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, clientIP, "client_scope_violation")
		}
		return nil, "", errInvalidScope(err.Error())
	}

	return client, normalized, nil
}

// validateRedirectURI checks a redirect URI against the client's registered
// URIs. Matching is exact string comparison: no prefix matching, no
// normalization, per OAuth 2.0 Security Best Practices.
func (s *Server) validateRedirectURI(client *storage.Client, redirectURI string) error {
	if redirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}

	found := false
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("redirect URI not registered for client")
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("redirect URI is not a valid URL")
	}
	if !u.IsAbs() {
		return fmt.Errorf("redirect URI must be absolute")
	}
	// Fragments never survive a redirect and registered URIs carrying one
	// are a configuration error.
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI must not contain a fragment")
	}

	// Plain http is only acceptable toward loopback targets (native apps,
	// RFC 8252 Section 7.3).
	switch u.Scheme {
	case "https":
	case "http":
		if !util.IsLoopbackHostname(u.Hostname()) {
			return fmt.Errorf("redirect URI must use https unless it targets a loopback address")
		}
	default:
		return fmt.Errorf("redirect URI scheme %q is not supported", u.Scheme)
	}

	return nil
}

// normalizeScope collapses whitespace in a scope string and substitutes the
// default scope when none was requested.
func normalizeScope(scope string) string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return DefaultScope
	}
	return strings.Join(fields, " ")
}

// validateScopes validates that requested scopes are allowed
func (s *Server) validateScopes(scope string) error {
	// If no scopes configured, allow all
	if len(s.Config.SupportedScopes) == 0 {
		return nil
	}

	for _, reqScope := range strings.Fields(scope) {
		found := false
		for _, supportedScope := range s.Config.SupportedScopes {
			if reqScope == supportedScope {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported scope: %s", reqScope)
		}
	}

	return nil
}

// validateClientScopes validates that requested scopes are allowed for the
// specific client. A client registered without scope restrictions may
// request any server-supported scope.
func (s *Server) validateClientScopes(requestedScope string, clientScopes []string) error {
	if len(clientScopes) == 0 {
		return nil
	}

	for _, reqScope := range strings.Fields(requestedScope) {
		found := false
		for _, allowedScope := range clientScopes {
			if reqScope == allowedScope {
				found = true
				break
			}
		}
		if !found {
			// SECURITY: Don't reveal which specific scopes are unauthorized
			// to prevent enumeration of the client's grant.
			return fmt.Errorf("client is not authorized for one or more requested scopes")
		}
	}

	return nil
}
