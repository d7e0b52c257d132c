// Command webapp runs the example relying application: a small web app
// that logs users in against an authd server and shows their profile.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/oakforge/authd/client"
)

const shutdownTimeout = 10 * time.Second

type envConfig struct {
	Addr          string        `env:"WEBAPP_ADDR" envDefault:":9090"`
	AuthServerURL string        `env:"WEBAPP_AUTH_SERVER_URL,required"`
	ClientID      string        `env:"WEBAPP_CLIENT_ID,required"`
	ClientSecret  string        `env:"WEBAPP_CLIENT_SECRET,required"`
	RedirectURL   string        `env:"WEBAPP_REDIRECT_URL,required"`
	Scopes        []string      `env:"WEBAPP_SCOPES" envSeparator:"," envDefault:"profile,email"`
	SessionTTL    time.Duration `env:"WEBAPP_SESSION_TTL" envDefault:"24h"`
	SecureCookies bool          `env:"WEBAPP_SECURE_COOKIES" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "webapp:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	app, err := client.NewApp(client.Config{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AuthServerURL: cfg.AuthServerURL,
		RedirectURL:   cfg.RedirectURL,
		Scopes:        cfg.Scopes,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	defer app.Close()

	mux := http.NewServeMux()
	app.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Web application listening", "addr", cfg.Addr, "auth_server", cfg.AuthServerURL)
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

	return nil
}
