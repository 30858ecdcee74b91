// Command identity-stub is a development stand-in for the marketplace
// identity service. It issues PASETO tokens for seeded demo accounts and
// answers the agent's verification calls.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobmarket/cmd/identity"
	"jobmarket/cmd/internal/app"
	"jobmarket/cmd/internal/identitystub"
	"jobmarket/cmd/security/password"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := identitystub.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	var logLevel, logFormat string
	fs := pflag.NewFlagSet("identity-stub", pflag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.SeedPassword, "seed-password", cfg.SeedPassword, `password of the demo accounts ("" disables seeding)`)
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "lifetime of issued tokens")
	fs.StringVar(&logLevel, "log-level", app.EnvString("JOBMARKET_LOG_LEVEL", "info"), "log level")
	fs.StringVar(&logFormat, "log-format", app.EnvString("JOBMARKET_LOG_FORMAT", "pretty"), "log format: json, text, pretty")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	log := app.NewLogger(logLevel, logFormat, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dir := identity.NewMemoryDirectory(password.DefaultParams())
	if cfg.SeedPassword != "" {
		users, err := identitystub.SeedDemoUsers(ctx, dir, cfg.SeedPassword)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		for _, u := range users {
			log.Info("stub.seed.user", "email", u.Email, "role", u.Role, "user_id", u.ID)
		}
	}

	tokens, err := identitystub.NewTokenManager(cfg)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	identitystub.NewHandler(log, cfg, dir, tokens).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.WithRequestLogging(mux, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("stub.start", "addr", cfg.Addr, "issuer", cfg.Issuer, "public_key", tokens.PublicKeyHex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
