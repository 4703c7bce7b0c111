package echo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/echoperf/internal/pki"
)

const testExtProfile = `basicConstraints:
  ca: false
keyUsage: [digitalSignature, keyEncipherment]
extendedKeyUsage: [serverAuth]
subjectAltName:
  dns: [echo.test, localhost]
  ip: [127.0.0.1, "::1"]
`

// startTestServer generates fixtures, starts an echo service on an ephemeral
// port and returns its address plus the fixture paths.
func startTestServer(t *testing.T, ctx context.Context) (string, pki.FixturePaths) {
	t.Helper()

	dir := t.TempDir()
	extFile := filepath.Join(dir, "echo.test.ext")
	require.NoError(t, os.WriteFile(extFile, []byte(testExtProfile), 0600))

	paths, err := pki.GenerateFixtures(pki.FixtureConfig{
		OutDir:  filepath.Join(dir, "certs"),
		ExtFile: extFile,
		KeyBits: 2048,
	})
	require.NoError(t, err)

	server := NewServer(ServerConfig{
		Listen:   "127.0.0.1:0",
		CertFile: paths.LeafCert,
		KeyFile:  paths.LeafKey,
		MaxConns: 4,
	})
	require.NoError(t, server.Listen())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()

	t.Cleanup(func() {
		require.NoError(t, <-done)
	})

	return server.Addr().String(), paths
}

func TestClientServerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, paths := startTestServer(t, ctx)

	client, err := NewClient(ClientConfig{
		Remote:       addr,
		RootCAFile:   paths.RootCert,
		RequestSize:  64 * 1024,
		ResponseSize: 32 * 1024,
		MaxRequests:  3,
		DialTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, client.Run(ctx))
}

func TestClientEmptyRequestPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, paths := startTestServer(t, ctx)

	// The minimum request is the bare header with no payload.
	client, err := NewClient(ClientConfig{
		Remote:       addr,
		RootCAFile:   paths.RootCert,
		RequestSize:  HeaderSize,
		ResponseSize: 1024,
		MaxRequests:  1,
		DialTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, client.Run(ctx))
}

func TestClientEmptyResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, paths := startTestServer(t, ctx)

	client, err := NewClient(ClientConfig{
		Remote:       addr,
		RootCAFile:   paths.RootCert,
		RequestSize:  1024,
		ResponseSize: 0,
		MaxRequests:  1,
		DialTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, client.Run(ctx))
}

func TestNewClientRejectsTinyRequests(t *testing.T) {
	_, err := NewClient(ClientConfig{
		Remote:      "localhost:4433",
		RootCAFile:  "does-not-matter.crt",
		RequestSize: HeaderSize - 1,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "protocol header size")
}

func TestNewClientMissingRootCA(t *testing.T) {
	_, err := NewClient(ClientConfig{
		Remote:      "localhost:4433",
		RootCAFile:  filepath.Join(t.TempDir(), "missing.crt"),
		RequestSize: 1024,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read root CA")
}

func TestClientRejectsUntrustedServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _ := startTestServer(t, ctx)

	// A root from a different fixture run must not validate this service.
	dir := t.TempDir()
	extFile := filepath.Join(dir, "echo.test.ext")
	require.NoError(t, os.WriteFile(extFile, []byte(testExtProfile), 0600))

	other, err := pki.GenerateFixtures(pki.FixtureConfig{
		OutDir:  filepath.Join(dir, "certs"),
		ExtFile: extFile,
		KeyBits: 2048,
	})
	require.NoError(t, err)

	client, err := NewClient(ClientConfig{
		Remote:       addr,
		RootCAFile:   other.RootCert,
		RequestSize:  1024,
		ResponseSize: 1024,
		MaxRequests:  1,
		DialTimeout:  2 * time.Second,
	})
	require.NoError(t, err)

	require.Error(t, client.Run(ctx))
}
