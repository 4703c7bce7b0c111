package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/echoperf/internal/echo"
	"github.com/wolfeidau/echoperf/internal/logger"
	"github.com/wolfeidau/echoperf/internal/pki"
	"github.com/wolfeidau/echoperf/internal/telemetry"
)

// ServerCmd runs the TLS echo test service using the generated fixtures.
type ServerCmd struct {
	Listen   string `help:"listen address" default:"localhost:4433"`
	CertDir  string `help:"directory holding the generated fixtures" default:"./certs"`
	MaxConns int    `help:"maximum concurrent connections, 0 for no limit" default:"256"`
}

func (s *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitTelemetry(ctx, "echoperf-server", globals.Version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	paths := pki.Paths(s.CertDir)

	log.Info().Str("version", globals.Version).Msg("Starting echo service")

	server := echo.NewServer(echo.ServerConfig{
		Listen:   s.Listen,
		CertFile: paths.LeafCert,
		KeyFile:  paths.LeafKey,
		MaxConns: s.MaxConns,
	})

	return server.Run(ctx)
}
