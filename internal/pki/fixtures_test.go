package pki

import (
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testExtProfile = `basicConstraints:
  ca: false
keyUsage: [digitalSignature, keyEncipherment]
extendedKeyUsage: [serverAuth]
subjectAltName:
  dns: [echo.test, localhost]
  ip: [127.0.0.1, "::1"]
`

// generateTestFixtures runs the full fixture sequence with a small key size
// to keep the tests fast.
func generateTestFixtures(t *testing.T) FixturePaths {
	t.Helper()

	dir := t.TempDir()
	extFile := filepath.Join(dir, "echo.test.ext")
	require.NoError(t, os.WriteFile(extFile, []byte(testExtProfile), 0600))

	paths, err := GenerateFixtures(FixtureConfig{
		OutDir:  filepath.Join(dir, "certs"),
		ExtFile: extFile,
		KeyBits: 2048,
	})
	require.NoError(t, err)

	return paths
}

func TestGenerateFixtures(t *testing.T) {
	paths := generateTestFixtures(t)

	t.Run("all output files exist and are non-empty", func(t *testing.T) {
		for _, path := range []string{
			paths.RootKey, paths.RootCert, paths.RootSerial,
			paths.LeafKey, paths.LeafCSR, paths.LeafCert, paths.ExtFile,
		} {
			info, err := os.Stat(path)
			require.NoError(t, err, path)
			require.NotZero(t, info.Size(), path)
		}
	})

	t.Run("leaf issuer matches root subject", func(t *testing.T) {
		root, err := LoadCertificate(paths.RootCert)
		require.NoError(t, err)

		leaf, err := LoadCertificate(paths.LeafCert)
		require.NoError(t, err)

		require.Equal(t, root.Subject.String(), leaf.Issuer.String())
	})

	t.Run("chain verifies", func(t *testing.T) {
		require.NoError(t, Verify(paths))
	})

	t.Run("validity periods", func(t *testing.T) {
		root, err := LoadCertificate(paths.RootCert)
		require.NoError(t, err)

		leaf, err := LoadCertificate(paths.LeafCert)
		require.NoError(t, err)

		require.WithinDuration(t, time.Now().AddDate(0, 0, RootValidityDays), root.NotAfter, time.Minute)
		require.WithinDuration(t, time.Now().AddDate(0, 0, LeafValidityDays), leaf.NotAfter, time.Minute)

		// Both are backdated an hour for clock skew.
		require.True(t, root.NotBefore.Before(time.Now().Add(-time.Minute)))
		require.True(t, leaf.NotBefore.Before(time.Now().Add(-time.Minute)))
	})

	t.Run("root is a signing CA", func(t *testing.T) {
		root, err := LoadCertificate(paths.RootCert)
		require.NoError(t, err)

		require.True(t, root.IsCA)
		require.Equal(t, x509.SHA256WithRSA, root.SignatureAlgorithm)
		require.NotZero(t, root.KeyUsage&x509.KeyUsageCertSign)
	})

	t.Run("leaf carries the profile extensions", func(t *testing.T) {
		leaf, err := LoadCertificate(paths.LeafCert)
		require.NoError(t, err)

		require.False(t, leaf.IsCA)
		require.Equal(t, x509.SHA256WithRSA, leaf.SignatureAlgorithm)
		require.Equal(t, []string{"echo.test", "localhost"}, leaf.DNSNames)
		require.Len(t, leaf.IPAddresses, 2)
		require.True(t, leaf.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))
		require.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, leaf.ExtKeyUsage)
		require.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment, leaf.KeyUsage)
	})

	t.Run("key encodings match the openssl originals", func(t *testing.T) {
		tests := []struct {
			name    string
			path    string
			pemType string
		}{
			{name: "root key is PKCS#1", path: paths.RootKey, pemType: "RSA PRIVATE KEY"},
			{name: "leaf key is PKCS#8", path: paths.LeafKey, pemType: "PRIVATE KEY"},
			{name: "leaf CSR", path: paths.LeafCSR, pemType: "CERTIFICATE REQUEST"},
			{name: "root certificate", path: paths.RootCert, pemType: "CERTIFICATE"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				data, err := os.ReadFile(tt.path)
				require.NoError(t, err)

				block, _ := pem.Decode(data)
				require.NotNil(t, block)
				require.Equal(t, tt.pemType, block.Type)
			})
		}
	})

	t.Run("leaf key pairs with leaf certificate", func(t *testing.T) {
		key, err := loadPrivateKey(paths.LeafKey)
		require.NoError(t, err)

		leaf, err := LoadCertificate(paths.LeafCert)
		require.NoError(t, err)

		require.NoError(t, verifyCertKeyPair(leaf, key))
	})
}

func TestGenerateFixturesMissingExtFile(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "certs")

	_, err := GenerateFixtures(FixtureConfig{
		OutDir:  outDir,
		ExtFile: filepath.Join(dir, "missing.ext"),
		KeyBits: 2048,
	})
	require.Error(t, err)

	// The run must fail before anything is produced.
	_, err = os.Stat(outDir)
	require.True(t, os.IsNotExist(err))
}

func TestGenerateFixturesMalformedExtFile(t *testing.T) {
	dir := t.TempDir()
	extFile := filepath.Join(dir, "echo.test.ext")
	require.NoError(t, os.WriteFile(extFile, []byte("keyUsage: [flyCasually]\n"), 0600))

	outDir := filepath.Join(dir, "certs")

	_, err := GenerateFixtures(FixtureConfig{
		OutDir:  outDir,
		ExtFile: extFile,
		KeyBits: 2048,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "flyCasually")

	_, err = os.Stat(outDir)
	require.True(t, os.IsNotExist(err))
}

func TestGenerateFixturesRerun(t *testing.T) {
	dir := t.TempDir()
	extFile := filepath.Join(dir, "echo.test.ext")
	require.NoError(t, os.WriteFile(extFile, []byte(testExtProfile), 0600))

	cfg := FixtureConfig{
		OutDir:  filepath.Join(dir, "certs"),
		ExtFile: extFile,
		KeyBits: 2048,
	}

	first, err := GenerateFixtures(cfg)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(cfg.OutDir))

	second, err := GenerateFixtures(cfg)
	require.NoError(t, err)

	// Same file set, fresh key material.
	require.Equal(t, first, second)
	require.NoError(t, Verify(second))
}
