package echo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/echoperf/internal/telemetry"
)

// ClientConfig configures the perf client.
type ClientConfig struct {
	// Remote is the echo service address, host:port.
	Remote string
	// ServerName is the expected TLS server name, normally echo.test.
	ServerName string
	// RootCAFile is the PEM root the service's leaf must chain to,
	// normally certs/rootCA.crt.
	RootCAFile string
	// RequestSize is the total bytes sent per request including the
	// 8-byte header, so it must be at least HeaderSize.
	RequestSize uint64
	// ResponseSize is the payload size requested from the service.
	ResponseSize uint64
	// MaxRequests stops the loop after this many requests. Zero means run
	// until the context is cancelled.
	MaxRequests int
	// DialTimeout bounds connection retries per request.
	DialTimeout time.Duration
	// Samples, when set, receives one row per completed request.
	Samples *SampleWriter
}

// RequestResult describes one completed echo request.
type RequestResult struct {
	ID              uuid.UUID
	Start           time.Time
	BytesSent       int64
	BytesReceived   int64
	SendDuration    time.Duration
	ReceiveDuration time.Duration
}

// Client drives the echo test service and measures throughput.
type Client struct {
	cfg       ClientConfig
	tlsConfig *tls.Config
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.RequestSize < HeaderSize {
		return nil, fmt.Errorf("request size must be at least %d bytes, the protocol header size", HeaderSize)
	}

	if cfg.ServerName == "" {
		cfg.ServerName = "echo.test"
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}

	caPEM, err := os.ReadFile(cfg.RootCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read root CA: %w", err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.RootCAFile)
	}

	return &Client{
		cfg: cfg,
		tlsConfig: &tls.Config{
			RootCAs:    roots,
			ServerName: cfg.ServerName,
			MinVersion: tls.VersionTLS12,
		},
	}, nil
}

// Run issues requests until the context is cancelled or MaxRequests is
// reached. The first failed request stops the loop.
func (c *Client) Run(ctx context.Context) error {
	log.Info().
		Str("remote", c.cfg.Remote).
		Str("request_size", humanize.IBytes(c.cfg.RequestSize)).
		Str("response_size", humanize.IBytes(c.cfg.ResponseSize)).
		Msg("Perf client started")

	for n := 0; c.cfg.MaxRequests == 0 || n < c.cfg.MaxRequests; n++ {
		if ctx.Err() != nil {
			log.Info().Msg("Interrupted, quitting")
			return nil
		}

		res, err := c.doRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Interrupted, quitting")
				return nil
			}
			return fmt.Errorf("request failed: %w", err)
		}

		c.report(ctx, res)
	}

	return nil
}

func (c *Client) doRequest(ctx context.Context) (*RequestResult, error) {
	m := telemetry.GetMetrics()

	res := &RequestResult{
		ID:    uuid.New(),
		Start: time.Now(),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		m.ClientRequestErrorsTotal.Add(ctx, 1)
		return nil, err
	}
	defer conn.Close()

	sendStart := time.Now()

	if err := writeHeader(conn, c.cfg.ResponseSize); err != nil {
		m.ClientRequestErrorsTotal.Add(ctx, 1)
		return nil, err
	}

	// Stream the request payload through the checksum so the service's
	// echoed checksum can be verified without buffering the payload.
	hasher := crc64nvme.New()
	payload := int64(c.cfg.RequestSize - HeaderSize)

	sent, err := io.Copy(io.MultiWriter(conn, hasher), newPatternReader(payload))
	if err != nil {
		m.ClientRequestErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to send request payload: %w", err)
	}

	if err := conn.CloseWrite(); err != nil {
		m.ClientRequestErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to close write side: %w", err)
	}

	res.BytesSent = sent + HeaderSize
	res.SendDuration = time.Since(sendStart)

	receiveStart := time.Now()

	echoed, err := readChecksum(conn)
	if err != nil {
		m.ClientRequestErrorsTotal.Add(ctx, 1)
		return nil, err
	}

	if echoed != hasher.Sum64() {
		m.ClientChecksumMismatchesTotal.Add(ctx, 1)
		return nil, fmt.Errorf("checksum mismatch: sent %016x, service received %016x", hasher.Sum64(), echoed)
	}

	received, err := io.Copy(io.Discard, conn)
	if err != nil {
		m.ClientRequestErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to read response payload: %w", err)
	}

	res.BytesReceived = received
	res.ReceiveDuration = time.Since(receiveStart)

	if uint64(received) != c.cfg.ResponseSize {
		m.ClientRequestErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("received %d response bytes, requested %d", received, c.cfg.ResponseSize)
	}

	return res, nil
}

// dial connects with exponential backoff so the client can be started
// before the service is up.
func (c *Client) dial(ctx context.Context) (*tls.Conn, error) {
	dialer := &tls.Dialer{Config: c.tlsConfig}

	return backoff.Retry(ctx, func() (*tls.Conn, error) {
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Remote)
		if err != nil {
			log.Debug().Err(err).Str("remote", c.cfg.Remote).Msg("Dial failed, retrying")
			return nil, err
		}
		return conn.(*tls.Conn), nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.cfg.DialTimeout),
	)
}

func (c *Client) report(ctx context.Context, res *RequestResult) {
	m := telemetry.GetMetrics()
	m.ClientRequestsTotal.Add(ctx, 1)
	m.ClientBytesSentTotal.Add(ctx, res.BytesSent)
	m.ClientBytesReceivedTotal.Add(ctx, res.BytesReceived)
	m.ClientRequestDuration.Record(ctx, float64(res.SendDuration.Milliseconds()+res.ReceiveDuration.Milliseconds()))

	log.Info().
		Str("request_id", res.ID.String()).
		Str("sent", humanize.IBytes(uint64(res.BytesSent))).
		Str("send_rate", rate(res.BytesSent, res.SendDuration)).
		Str("received", humanize.IBytes(uint64(res.BytesReceived))).
		Str("receive_rate", rate(res.BytesReceived, res.ReceiveDuration)).
		Msg("Request completed")

	if c.cfg.Samples != nil {
		if err := c.cfg.Samples.Record(res); err != nil {
			log.Warn().Err(err).Msg("Failed to record sample")
		}
	}
}

// rate formats a throughput in bits per second.
func rate(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}

	bps := float64(bytes) * 8 / d.Seconds()

	return humanize.SI(bps, "bit/s")
}
