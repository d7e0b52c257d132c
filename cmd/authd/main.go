// Command authd runs the OAuth 2.0 authorization server. All configuration
// comes from the environment; clients and users are seeded at startup from
// JSON-valued variables with secrets bcrypt-hashed before they hit the store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/oakforge/authd"
	"github.com/oakforge/authd/instrumentation"
	"github.com/oakforge/authd/security"
	"github.com/oakforge/authd/storage"
	"github.com/oakforge/authd/storage/memory"
	"github.com/oakforge/authd/storage/redis"
)

const shutdownTimeout = 10 * time.Second

type envConfig struct {
	Addr       string `env:"AUTHD_ADDR" envDefault:":8080"`
	Issuer     string `env:"AUTHD_ISSUER,required"`
	SigningKey string `env:"AUTHD_SIGNING_KEY,required"`

	CodeTTL    time.Duration `env:"AUTHD_CODE_TTL" envDefault:"10m"`
	TokenTTL   time.Duration `env:"AUTHD_TOKEN_TTL" envDefault:"1h"`
	RefreshTTL time.Duration `env:"AUTHD_REFRESH_TTL" envDefault:"720h"`

	Scopes []string `env:"AUTHD_SCOPES" envSeparator:"," envDefault:"profile,email"`

	Storage       string `env:"AUTHD_STORAGE" envDefault:"memory"`
	RedisAddr     string `env:"AUTHD_REDIS_ADDR"`
	RedisPassword string `env:"AUTHD_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTHD_REDIS_DB" envDefault:"0"`

	RateLimit      int  `env:"AUTHD_RATE_LIMIT" envDefault:"10"`
	RateBurst      int  `env:"AUTHD_RATE_BURST" envDefault:"20"`
	TrustProxy     bool `env:"AUTHD_TRUST_PROXY" envDefault:"false"`
	TrustedProxies int  `env:"AUTHD_TRUSTED_PROXY_COUNT" envDefault:"1"`

	ClientsJSON string `env:"AUTHD_CLIENTS"`
	UsersJSON   string `env:"AUTHD_USERS"`

	MetricsEnabled bool   `env:"AUTHD_METRICS_ENABLED" envDefault:"false"`
	LogLevel       string `env:"AUTHD_LOG_LEVEL" envDefault:"info"`
}

// seedClient is the JSON shape of one AUTHD_CLIENTS entry. The secret is
// plaintext in the environment and hashed before storage.
type seedClient struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
}

// seedUser is the JSON shape of one AUTHD_USERS entry.
type seedUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedStore(context.Background(), store, cfg, logger); err != nil {
		return err
	}

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: "authd",
		Enabled:     cfg.MetricsEnabled,
	})
	if err != nil {
		return fmt.Errorf("failed to set up instrumentation: %w", err)
	}

	handler, err := authd.New(authd.Config{
		Issuer:               cfg.Issuer,
		SigningKey:           []byte(cfg.SigningKey),
		AuthorizationCodeTTL: int64(cfg.CodeTTL.Seconds()),
		AccessTokenTTL:       int64(cfg.TokenTTL.Seconds()),
		RefreshTokenTTL:      int64(cfg.RefreshTTL.Seconds()),
		SupportedScopes:      cfg.Scopes,
		TrustProxy:           cfg.TrustProxy,
		TrustedProxyCount:    cfg.TrustedProxies,
		RateLimit:            authd.RateLimitConfig{Rate: cfg.RateLimit, Burst: cfg.RateBurst},
		Logger:               logger,
		Instrumentation:      inst,
	}, store, store, store, store)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer handler.Close()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Authorization server listening", "addr", cfg.Addr, "issuer", cfg.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	if err := inst.Shutdown(ctx); err != nil {
		logger.Warn("Instrumentation shutdown failed", "error", err)
	}

	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// backendStore is the store surface the server needs from one backend.
type backendStore interface {
	storage.ClientStore
	storage.UserStore
	storage.CodeStore
	storage.TokenStore
}

func openStore(cfg envConfig, logger *slog.Logger) (backendStore, func(), error) {
	switch strings.ToLower(cfg.Storage) {
	case "memory":
		store := memory.New()
		return store, store.Stop, nil
	case "redis":
		store, err := redis.New(redis.Config{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Redis close failed", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// seedStore registers the configured clients and users, hashing every
// secret before it reaches the store.
func seedStore(ctx context.Context, store backendStore, cfg envConfig, logger *slog.Logger) error {
	if cfg.ClientsJSON != "" {
		var clients []seedClient
		if err := json.Unmarshal([]byte(cfg.ClientsJSON), &clients); err != nil {
			return fmt.Errorf("failed to parse AUTHD_CLIENTS: %w", err)
		}
		for _, c := range clients {
			if c.ClientID == "" || c.ClientSecret == "" {
				return fmt.Errorf("client entries need client_id and client_secret")
			}
			hash, err := security.HashSecret(c.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to hash secret for client %s: %w", c.ClientID, err)
			}
			if err := store.SaveClient(ctx, &storage.Client{
				ClientID:         c.ClientID,
				ClientSecretHash: hash,
				ClientName:       c.ClientName,
				RedirectURIs:     c.RedirectURIs,
				Scopes:           c.Scopes,
				CreatedAt:        time.Now(),
			}); err != nil {
				return fmt.Errorf("failed to register client %s: %w", c.ClientID, err)
			}
			logger.Info("Registered client", "client_id", c.ClientID)
		}
	}

	if cfg.UsersJSON != "" {
		var users []seedUser
		if err := json.Unmarshal([]byte(cfg.UsersJSON), &users); err != nil {
			return fmt.Errorf("failed to parse AUTHD_USERS: %w", err)
		}
		for _, u := range users {
			if u.ID == "" || u.Email == "" || u.Password == "" {
				return fmt.Errorf("user entries need id, email, and password")
			}
			hash, err := security.HashSecret(u.Password)
			if err != nil {
				return fmt.Errorf("failed to hash password for user %s: %w", u.ID, err)
			}
			if err := store.SaveUser(ctx, &storage.User{
				ID:           u.ID,
				Email:        u.Email,
				PasswordHash: hash,
				Name:         u.Name,
				CreatedAt:    time.Now(),
			}); err != nil {
				return fmt.Errorf("failed to register user %s: %w", u.ID, err)
			}
			logger.Info("Registered user", "user_id", u.ID)
		}
	}

	return nil
}
