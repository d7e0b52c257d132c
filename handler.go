package authd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oakforge/authd/instrumentation"
	"github.com/oakforge/authd/internal/util"
	"github.com/oakforge/authd/security"
	"github.com/oakforge/authd/server"
)

const tokenTypeBearer = "Bearer"

// Handler is a thin HTTP adapter for the authorization Server.
// It handles HTTP concerns (parsing, status codes, headers, rate limiting)
// and delegates flow logic to the Server.
type Handler struct {
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for the HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: srv,
		logger: logger,
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// RegisterRoutes registers the OAuth endpoints on the given mux.
// All routes carry the request ID middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/oauth/authorize", security.RequestIDMiddleware(http.HandlerFunc(h.ServeAuthorize)))
	mux.Handle("/oauth/token", security.RequestIDMiddleware(http.HandlerFunc(h.ServeToken)))
	mux.Handle("/oauth/userinfo", security.RequestIDMiddleware(http.HandlerFunc(h.ServeUserInfo)))
	mux.Handle("/.well-known/oauth-authorization-server", security.RequestIDMiddleware(http.HandlerFunc(h.ServeMetadata)))
}

// ServeAuthorize handles the authorization endpoint. GET renders the login
// and consent page; POST resolves the submitted form into a code redirect.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveAuthorizeGet(w, r)
	case http.MethodPost:
		h.serveAuthorizePost(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx := r.Context()
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.authorize")
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	q := r.URL.Query()
	req := server.AuthorizeRequest{
		ResponseType: q.Get("response_type"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
		ClientIP:     h.clientIP(r),
	}

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	h.addClientIPAttr(span, req.ClientIP)

	prompt, err := h.server.Authorize(ctx, req)
	if err != nil {
		// The redirect URI is not trusted at this point, so errors are
		// rendered directly rather than redirected.
		instrumentation.RecordError(span, err)
		h.writeFrontChannelError(w, err)
		h.recordHTTPMetrics(ctx, span, "authorize", http.MethodGet, frontChannelStatus(err), startTime)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, span, "authorize", http.MethodGet, http.StatusOK, startTime)

	h.serveConsentPage(w, http.StatusOK, consentData{
		ClientName:  prompt.Client.ClientName,
		Scopes:      prompt.Scopes,
		ClientID:    prompt.Client.ClientID,
		RedirectURI: prompt.RedirectURI,
		Scope:       prompt.Scope,
		State:       prompt.State,
	})
}

func (h *Handler) serveAuthorizePost(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx := r.Context()
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.approve")
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		h.recordHTTPMetrics(ctx, span, "authorize", http.MethodPost, http.StatusBadRequest, startTime)
		return
	}

	clientIP := h.clientIP(r)

	// Login attempts are the brute-forceable surface, so they carry the
	// IP rate limit.
	if !h.allowIP(ctx, clientIP, "authorize") {
		h.writeError(w, ErrorCodeRateLimitExceeded, "Too many requests", http.StatusTooManyRequests)
		h.recordHTTPMetrics(ctx, span, "authorize", http.MethodPost, http.StatusTooManyRequests, startTime)
		return
	}

	req := server.ApproveRequest{
		ClientID:    r.FormValue("client_id"),
		RedirectURI: r.FormValue("redirect_uri"),
		Scope:       r.FormValue("scope"),
		State:       r.FormValue("state"),
		Email:       r.FormValue("email"),
		Password:    r.FormValue("password"),
		ClientIP:    clientIP,
	}

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	h.addClientIPAttr(span, req.ClientIP)

	redirect, err := h.server.Approve(ctx, req)
	if err != nil {
		instrumentation.RecordError(span, err)

		// Failed login re-renders the form so the user can retry. Other
		// failures mean the request itself is bad.
		var oauthErr *Error
		if errors.As(err, &oauthErr) && oauthErr.Code == ErrorCodeAccessDenied {
			h.recordHTTPMetrics(ctx, span, "authorize", http.MethodPost, http.StatusUnauthorized, startTime)
			h.rerenderConsentWithError(w, r, req, "Invalid email or password.")
			return
		}

		h.writeFrontChannelError(w, err)
		h.recordHTTPMetrics(ctx, span, "authorize", http.MethodPost, frontChannelStatus(err), startTime)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, span, "authorize", http.MethodPost, http.StatusFound, startTime)

	http.Redirect(w, r, redirect, http.StatusFound)
}

// rerenderConsentWithError re-validates the request and serves the consent
// page with an error banner. If the request no longer validates, the
// validation error wins.
func (h *Handler) rerenderConsentWithError(w http.ResponseWriter, r *http.Request, req server.ApproveRequest, message string) {
	prompt, err := h.server.Authorize(r.Context(), server.AuthorizeRequest{
		ResponseType: "code",
		ClientID:     req.ClientID,
		RedirectURI:  req.RedirectURI,
		Scope:        req.Scope,
		State:        req.State,
		ClientIP:     req.ClientIP,
	})
	if err != nil {
		h.writeFrontChannelError(w, err)
		return
	}

	h.serveConsentPage(w, http.StatusUnauthorized, consentData{
		ClientName:   prompt.Client.ClientName,
		Scopes:       prompt.Scopes,
		ClientID:     prompt.Client.ClientID,
		RedirectURI:  prompt.RedirectURI,
		Scope:        prompt.Scope,
		State:        prompt.State,
		ErrorMessage: message,
	})
}

// ServeToken handles the token endpoint. Client credentials are accepted
// via HTTP Basic auth or form parameters (client_secret_basic and
// client_secret_post).
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx := r.Context()
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token")
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		h.recordHTTPMetrics(ctx, span, "token", r.Method, http.StatusMethodNotAllowed, startTime)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		h.recordHTTPMetrics(ctx, span, "token", http.MethodPost, http.StatusBadRequest, startTime)
		return
	}

	clientIP := h.clientIP(r)
	if !h.allowIP(ctx, clientIP, "token") {
		h.writeError(w, ErrorCodeRateLimitExceeded, "Too many requests", http.StatusTooManyRequests)
		h.recordHTTPMetrics(ctx, span, "token", http.MethodPost, http.StatusTooManyRequests, startTime)
		return
	}

	clientID, clientSecret := h.clientCredentials(r)

	req := server.ExchangeRequest{
		GrantType:    r.FormValue("grant_type"),
		Code:         r.FormValue("code"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  r.FormValue("redirect_uri"),
		ClientIP:     clientIP,
	}

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", "")
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrGrantType, req.GrantType))
	h.addClientIPAttr(span, req.ClientIP)

	resp, err := h.server.Exchange(ctx, req)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.writeOAuthError(w, err)
		h.recordHTTPMetrics(ctx, span, "token", http.MethodPost, statusOf(err), startTime)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, span, "token", http.MethodPost, http.StatusOK, startTime)

	h.writeTokenResponse(w, resp)
}

// ServeUserInfo handles the userinfo endpoint. It requires a bearer token
// and responds with the scope-filtered profile of the token's subject.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx := r.Context()
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.userinfo")
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		h.recordHTTPMetrics(ctx, span, "userinfo", r.Method, http.StatusMethodNotAllowed, startTime)
		return
	}

	token, ok := h.extractBearerToken(r)
	if !ok {
		instrumentation.SetSpanError(span, "missing bearer token")
		if h.server.Auditor != nil {
			h.server.Auditor.LogUserinfoDenied(h.clientIP(r), "missing_bearer_token")
		}
		h.writeError(w, ErrorCodeInvalidToken, "Missing or malformed Authorization header", http.StatusUnauthorized)
		h.recordHTTPMetrics(ctx, span, "userinfo", http.MethodGet, http.StatusUnauthorized, startTime)
		return
	}

	profile, err := h.server.Introspect(ctx, token)
	if err != nil {
		instrumentation.RecordError(span, err)
		if h.server.Auditor != nil {
			h.server.Auditor.LogUserinfoDenied(h.clientIP(r), "token_rejected")
		}
		h.writeOAuthError(w, err)
		h.recordHTTPMetrics(ctx, span, "userinfo", http.MethodGet, statusOf(err), startTime)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, span, "userinfo", http.MethodGet, http.StatusOK, startTime)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(profile)
}

// ServeMetadata serves OAuth 2.0 Authorization Server Metadata (RFC 8414).
func (h *Handler) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	issuer := util.NormalizeURL(h.server.Config.Issuer)
	metadata := AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		UserinfoEndpoint:                  issuer + "/oauth/userinfo",
		ScopesSupported:                   h.server.Config.SupportedScopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_ = json.NewEncoder(w).Encode(metadata)
}

// clientCredentials extracts client authentication from Basic auth or, as a
// fallback, from the form body.
func (h *Handler) clientCredentials(r *http.Request) (clientID, clientSecret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.FormValue("client_id"), r.FormValue("client_secret")
}

// extractBearerToken pulls the bearer token out of the Authorization header.
func (h *Handler) extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}

	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

// clientIP resolves the caller's IP honoring the proxy trust configuration.
func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// allowIP applies the IP rate limiter, recording denials.
func (h *Handler) allowIP(ctx context.Context, clientIP, endpoint string) bool {
	if h.server.RateLimiter == nil {
		return true
	}
	if h.server.RateLimiter.Allow(clientIP) {
		return true
	}

	h.logger.Warn("Rate limit exceeded",
		"ip", clientIP,
		"endpoint", endpoint,
		"request_id", security.GetRequestID(ctx))
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(clientIP, "")
	}
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(ctx, "ip")
	}
	return false
}

// writeTokenResponse writes the token endpoint success payload.
// RFC 6749 Section 5.1 requires no-store caching semantics.
func (h *Handler) writeTokenResponse(w http.ResponseWriter, resp *TokenResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeFrontChannelError renders an authorization endpoint error as plain
// text. The user agent at the front channel is a browser, not an OAuth
// client, so errors here are human-readable rather than JSON, and a bad
// request (including an unknown client) is a 400 rather than a 401: no
// client authentication happens on this endpoint.
func (h *Handler) writeFrontChannelError(w http.ResponseWriter, err error) {
	var oauthErr *Error
	if !errors.As(err, &oauthErr) {
		h.logger.Error("Unexpected error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Error(w, oauthErr.Description, frontChannelStatus(err))
}

// frontChannelStatus maps an error to the status the authorization endpoint
// renders it with. invalid_client is 401 on the token endpoint but a plain
// bad request here.
func frontChannelStatus(err error) int {
	var oauthErr *Error
	if !errors.As(err, &oauthErr) {
		return http.StatusInternalServerError
	}
	if oauthErr.Code == ErrorCodeInvalidClient {
		return http.StatusBadRequest
	}
	return oauthErr.Status
}

// writeOAuthError writes a protocol error, mapping unknown errors to a
// generic server_error.
func (h *Handler) writeOAuthError(w http.ResponseWriter, err error) {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}

	h.logger.Error("Unexpected error", "error", err)
	h.writeError(w, ErrorCodeServerError, "Internal server error", http.StatusInternalServerError)
}

// writeError writes an OAuth error response body with the given status.
// 401 responses carry a WWW-Authenticate challenge per RFC 6750.
func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf("%s error=%q, error_description=%q", tokenTypeBearer, code, description))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// statusOf extracts the HTTP status from an error for metric labels.
func statusOf(err error) int {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr.Status
	}
	return http.StatusInternalServerError
}

// addClientIPAttr attaches the caller IP to the span when IP logging is on.
// Client IPs may be PII; the instrumentation config gates them.
func (h *Handler) addClientIPAttr(span trace.Span, clientIP string) {
	if h.server.Instrumentation != nil && h.server.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, clientIP)
	}
}

// recordHTTPMetrics records request count and duration for an endpoint and
// stamps the span with the request outcome.
func (h *Handler) recordHTTPMetrics(ctx context.Context, span trace.Span, endpoint, method string, status int, startTime time.Time) {
	instrumentation.AddHTTPAttributes(span, method, endpoint, status)
	if h.server.Instrumentation == nil {
		return
	}
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000.0
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, durationMs)
}
