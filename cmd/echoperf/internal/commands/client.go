package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/echoperf/internal/echo"
	"github.com/wolfeidau/echoperf/internal/logger"
	"github.com/wolfeidau/echoperf/internal/pki"
	"github.com/wolfeidau/echoperf/internal/telemetry"
)

// ClientCmd runs the echo perf client against a running echo service.
type ClientCmd struct {
	Remote       string `help:"echo service address" default:"localhost:4433"`
	RequestSize  string `help:"bytes sent per request including the 8-byte header, e.g. 1MiB" default:"1MiB"`
	ResponseSize string `help:"response payload bytes requested per request, e.g. 1MiB" default:"1MiB"`
	CertDir      string `help:"directory holding the generated fixtures" default:"./certs"`
	CACert       string `help:"root CA certificate, overrides --cert-dir" default:""`
	ServerName   string `help:"expected TLS server name" default:"echo.test"`
	SamplesFile  string `help:"CSV samples file, zstd-compressed when the path ends in .zst" default:""`
	MaxRequests  int    `help:"stop after this many requests, 0 to run until interrupted" default:"0"`
}

func (c *ClientCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	requestSize, err := humanize.ParseBytes(c.RequestSize)
	if err != nil {
		return fmt.Errorf("failed to parse request size: %w", err)
	}

	responseSize, err := humanize.ParseBytes(c.ResponseSize)
	if err != nil {
		return fmt.Errorf("failed to parse response size: %w", err)
	}

	shutdown, err := telemetry.InitTelemetry(ctx, "echoperf-client", globals.Version)
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

	caCert := c.CACert
	if caCert == "" {
		caCert = pki.Paths(c.CertDir).RootCert
	}

	cfg := echo.ClientConfig{
		Remote:       c.Remote,
		ServerName:   c.ServerName,
		RootCAFile:   caCert,
		RequestSize:  requestSize,
		ResponseSize: responseSize,
		MaxRequests:  c.MaxRequests,
	}

	if c.SamplesFile != "" {
		samples, err := echo.NewSampleWriter(c.SamplesFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := samples.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close samples file")
			}
		}()

		cfg.Samples = samples
	}

	client, err := echo.NewClient(cfg)
	if err != nil {
		return err
	}

	return client.Run(ctx)
}
