// Package client implements the relying web application for the
// authorization server: it drives the redirect dance, verifies the
// anti-forgery state on the callback, performs the back-channel code
// exchange, and keeps the resulting profile and tokens in a cookie-keyed
// server-side session.
package client

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/oakforge/authd/internal/util"
)

const (
	// sessionCookieName carries the opaque session identifier.
	sessionCookieName = "authd_session"

	// defaultRequestTimeout bounds back-channel calls to the
	// authorization server.
	defaultRequestTimeout = 30 * time.Second

	// maxUserinfoResponseSize caps how much of a userinfo response is read.
	maxUserinfoResponseSize = 64 * 1024
)

// UserProfile is the scope-filtered profile returned by the userinfo
// endpoint.
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Config holds the relying application's configuration.
type Config struct {
	// ClientID and ClientSecret identify this application to the
	// authorization server.
	ClientID     string
	ClientSecret string

	// AuthServerURL is the base URL of the authorization server.
	AuthServerURL string

	// RedirectURL is this application's callback URL. It must be
	// registered with the authorization server.
	RedirectURL string

	// Scopes to request. Defaults to profile and email.
	Scopes []string

	// SessionTTL bounds browser session lifetime (default 24h).
	SessionTTL time.Duration

	// RequestTimeout bounds back-channel HTTP calls (default 30s).
	RequestTimeout time.Duration

	// HTTPClient is an optional custom HTTP client for back-channel calls.
	HTTPClient *http.Client

	// SecureCookies marks session cookies Secure. Enable behind TLS.
	SecureCookies bool

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// App is the flow controller. Its handlers implement /login, /callback,
// /api/profile, and /logout.
type App struct {
	oauth         *oauth2.Config
	httpClient    *http.Client
	sessions      *sessionStore
	logger        *slog.Logger
	userinfoURL   string
	secureCookies bool
	timeout       time.Duration
}

// NewApp creates the flow controller from the given configuration.
func NewApp(cfg Config) (*App, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if cfg.AuthServerURL == "" {
		return nil, fmt.Errorf("authorization server URL is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"profile", "email"}
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	base := util.NormalizeURL(cfg.AuthServerURL)

	return &App{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient:    httpClient,
		sessions:      newSessionStore(cfg.SessionTTL),
		logger:        logger,
		userinfoURL:   base + "/oauth/userinfo",
		secureCookies: cfg.SecureCookies,
		timeout:       timeout,
	}, nil
}

// RegisterRoutes registers the application's endpoints on the given mux.
func (a *App) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", a.HandleIndex)
	mux.HandleFunc("/login", a.HandleLogin)
	mux.HandleFunc("/callback", a.HandleCallback)
	mux.HandleFunc("/api/profile", a.HandleProfile)
	mux.HandleFunc("/logout", a.HandleLogout)
}

// Close stops the session store's cleanup goroutine.
func (a *App) Close() {
	a.sessions.Stop()
}

// HandleLogin starts a login: it mints a fresh anti-forgery state, binds
// it to the session, and redirects to the authorization endpoint.
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sessionID = cookie.Value
	}

	state := oauth2.GenerateVerifier()
	// The store binds the state under its lock: sessions are shared
	// pointers and a concurrent callback may be consuming state for the
	// same session.
	sess := a.sessions.StartLogin(sessionID, state)
	a.setSessionCookie(w, sess.ID)

	http.Redirect(w, r, a.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback completes a login. The query parameters arrive via a
// browser redirect and are attacker-influenceable; the state check runs
// before any network call, and the stored state is discarded after one
// comparison whether it matches or not.
func (a *App) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sess := a.sessionFromRequest(r)
	if sess == nil {
		a.renderErrorPage(w, http.StatusForbidden, "Login failed",
			"No login is in progress for this session.")
		return
	}

	// An error parameter means the owner denied the request (or the
	// server rejected it). No exchange is attempted either way, and the
	// pending state is burned so it cannot be replayed.
	if errParam := q.Get("error"); errParam != "" {
		a.sessions.ConsumeState(sess.ID)
		a.logger.Info("Authorization denied", "error", errParam)
		a.renderErrorPage(w, http.StatusForbidden, "Authorization denied",
			"The authorization server reported: "+errParam)
		return
	}

	stored, ok := a.sessions.ConsumeState(sess.ID)
	if !ok {
		a.renderErrorPage(w, http.StatusForbidden, "Login failed",
			"No login is in progress for this session.")
		return
	}

	// SECURITY: constant-time state comparison, before any network call.
	if subtle.ConstantTimeCompare([]byte(stored), []byte(q.Get("state"))) != 1 {
		a.logger.Warn("State mismatch on callback, possible cross-site request forgery")
		a.renderErrorPage(w, http.StatusForbidden, "Login failed",
			"State verification failed. Please try logging in again.")
		return
	}

	code := q.Get("code")
	if code == "" {
		a.renderErrorPage(w, http.StatusBadRequest, "Login failed",
			"The callback carried no authorization code.")
		return
	}

	ctx, cancel := a.backchannelContext(r.Context())
	defer cancel()

	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		a.logger.Error("Code exchange failed", "error", err)
		a.renderErrorPage(w, http.StatusBadGateway, "Login failed",
			"Authentication with the authorization server failed.")
		return
	}

	profile, err := a.fetchUserinfo(ctx, token.AccessToken)
	if err != nil {
		a.logger.Error("Userinfo fetch failed", "error", err)
		a.renderErrorPage(w, http.StatusBadGateway, "Login failed",
			"Authentication with the authorization server failed.")
		return
	}

	// The session is written only once both the exchange and the profile
	// fetch succeeded. A fresh session ID prevents fixation.
	a.sessions.Delete(sess.ID)
	authed := a.sessions.CreateAuthenticated(profile, token)
	a.setSessionCookie(w, authed.ID)

	a.logger.Info("User logged in", "user_id", profile.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleProfile proxies the userinfo endpoint using the session's access
// token. A 401 from the server means the token expired; the session is
// destroyed rather than silently retried.
func (a *App) HandleProfile(w http.ResponseWriter, r *http.Request) {
	sess := a.sessionFromRequest(r)
	if sess == nil || !sess.Authenticated() {
		a.writeJSONError(w, http.StatusUnauthorized, "no_session")
		return
	}

	ctx, cancel := a.backchannelContext(r.Context())
	defer cancel()

	resp, err := a.userinfoRequest(ctx, sess.Token.AccessToken)
	if err != nil {
		a.logger.Error("Profile fetch failed", "error", err)
		a.writeJSONError(w, http.StatusBadGateway, "profile_unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		a.sessions.Delete(sess.ID)
		a.clearSessionCookie(w)
		a.writeJSONError(w, http.StatusUnauthorized, "session_expired")
		return
	}
	if resp.StatusCode != http.StatusOK {
		a.writeJSONError(w, http.StatusBadGateway, "profile_unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.Copy(w, io.LimitReader(resp.Body, maxUserinfoResponseSize))
}

// HandleLogout destroys the session and clears the cookie.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := a.sessionFromRequest(r); sess != nil {
		a.sessions.Delete(sess.ID)
	}
	a.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleIndex renders a minimal landing page reflecting login state.
func (a *App) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sess := a.sessionFromRequest(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if sess != nil && sess.Authenticated() {
		fmt.Fprintf(w, indexAuthenticatedHTML, html.EscapeString(sess.Profile.Name))
		return
	}
	fmt.Fprint(w, indexAnonymousHTML)
}

// backchannelContext bounds a back-channel call and routes the oauth2
// package through the configured HTTP client.
func (a *App) backchannelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *App) userinfoRequest(ctx context.Context, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	return resp, nil
}

func (a *App) fetchUserinfo(ctx context.Context, accessToken string) (*UserProfile, error) {
	resp, err := a.userinfoRequest(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var profile UserProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserinfoResponseSize)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	return &profile, nil
}

func (a *App) sessionFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	return a.sessions.Get(cookie.Value)
}

func (a *App) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
