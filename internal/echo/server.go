package echo

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/echoperf/internal/telemetry"
)

// ServerConfig configures the TLS echo test service.
type ServerConfig struct {
	// Listen is the TCP listen address.
	Listen string
	// CertFile and KeyFile are the leaf certificate and key the service
	// presents, normally certs/echo.test.crt and certs/echo.test.key.
	CertFile string
	KeyFile  string
	// MaxConns caps concurrent connections. Zero means no cap.
	MaxConns int
}

// Server is the echo test service the fixtures exist for. It answers each
// connection with a checksum of the request payload followed by the
// requested amount of pattern data.
type Server struct {
	cfg      ServerConfig
	listener net.Listener
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: cfg}
}

// Listen opens the TLS listener. Split from Serve so callers binding to
// port 0 can read the assigned address before serving.
func (s *Server) Listen() error {
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load server certificate: %w", err)
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}

	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	s.listener = tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})

	return nil
}

// Addr returns the listen address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return s.listener.Close()
	})

	g.Go(func() error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept failed: %w", err)
			}

			g.Go(func() error {
				// Connection failures are logged, not fatal to the server.
				s.handleConn(ctx, conn)
				return nil
			})
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// Run listens and serves.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	log.Info().Str("listen", s.Addr().String()).Msg("Echo service listening")

	return s.Serve(ctx)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	m := telemetry.GetMetrics()
	m.ServerConnectionsTotal.Add(ctx, 1)
	m.ServerActiveConnections.Add(ctx, 1)
	defer m.ServerActiveConnections.Add(ctx, -1)

	remote := conn.RemoteAddr().String()
	started := time.Now()

	responseSize, err := readHeader(conn)
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("Failed to read request header")
		return
	}

	// Drain the request payload while checksumming it. The client signals
	// the end of the request by half-closing its write side.
	hasher := crc64nvme.New()
	received, err := io.Copy(hasher, conn)
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("Failed to read request payload")
		return
	}

	m.ServerBytesReceivedTotal.Add(ctx, received)

	if err := writeChecksum(conn, hasher.Sum64()); err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("Failed to write checksum")
		return
	}

	sent, err := io.Copy(conn, newPatternReader(int64(responseSize)))
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("Failed to write response payload")
		return
	}

	m.ServerBytesSentTotal.Add(ctx, sent)

	log.Debug().
		Str("remote", remote).
		Int64("bytes_received", received).
		Int64("bytes_sent", sent).
		Dur("duration", time.Since(started)).
		Msg("Request served")
}
