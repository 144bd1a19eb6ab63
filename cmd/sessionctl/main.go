// Package main provides a CLI that signs in to a frontend profile and keeps the
// session on disk between invocations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/auth"
	"github.com/guelfi/BarbeariaSaaS/internal/app"
	"github.com/guelfi/BarbeariaSaaS/internal/cmd/sessionctl"
	"github.com/guelfi/BarbeariaSaaS/internal/config"
	"github.com/guelfi/BarbeariaSaaS/internal/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := sessionctl.ParseConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", sessionctl.Describe(err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg sessionctl.Config) error {
	c, err := config.Load(".env")
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.InitWithWriter(c.GetLogLevel(), "console", os.Stderr)

	stores, err := app.OpenStores(ctx, c, c.GetBcryptCost())
	if err != nil {
		return err
	}
	defer stores.Close()

	tokens, err := app.NewTokenManager(ctx, c)
	if err != nil {
		return err
	}
	defer tokens.Close()

	sessionStore, closeSession, err := sessionctl.OpenSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSession()

	return sessionctl.Run(ctx, cfg, auth.Dependencies{
		Credentials: stores.Credentials,
		Tokens:      tokens.Manager,
		Gate:        audience.NewGate(audience.DefaultPolicy()),
		Store:       sessionStore,
		Tenants:     stores.Tenants,
	}, os.Stdout, log.Logger.With().Str("component", "sessionctl").Logger())
}
