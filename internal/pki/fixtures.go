package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const (
	// RootKeyBits is the RSA modulus size for both the root and leaf keys.
	RootKeyBits = 4096

	// RootValidityDays is the validity period of the self-signed root.
	RootValidityDays = 1024

	// LeafValidityDays is the validity period of the issued leaf.
	LeafValidityDays = 825

	// LeafCommonName is the server name the echo service presents.
	LeafCommonName = "echo.test"

	rootCommonName   = "echo.test Root CA"
	rootOrganization = "echoperf"
)

// FixturePaths holds the six output files plus the copied extension profile.
type FixturePaths struct {
	RootKey    string
	RootCert   string
	RootSerial string
	LeafKey    string
	LeafCSR    string
	LeafCert   string
	ExtFile    string
}

// Paths returns the fixture layout under dir, using the same file names as
// the openssl-based fixtures this replaces.
func Paths(dir string) FixturePaths {
	return FixturePaths{
		RootKey:    filepath.Join(dir, "rootCA.key"),
		RootCert:   filepath.Join(dir, "rootCA.crt"),
		RootSerial: filepath.Join(dir, "rootCA.srl"),
		LeafKey:    filepath.Join(dir, "echo.test.key"),
		LeafCSR:    filepath.Join(dir, "echo.test.csr"),
		LeafCert:   filepath.Join(dir, "echo.test.crt"),
		ExtFile:    filepath.Join(dir, "echo.test.ext"),
	}
}

// FixtureConfig configures fixture generation.
type FixtureConfig struct {
	// OutDir is the directory the fixtures are written to.
	OutDir string
	// ExtFile is the path of the leaf extension profile to copy and apply.
	ExtFile string
	// KeyBits overrides the RSA key size. Defaults to RootKeyBits; tests use
	// smaller keys to keep generation fast.
	KeyBits int
}

// GenerateFixtures runs the fixture sequence: copy the extension profile,
// generate the root key, self-sign the root certificate, generate the leaf
// key, create the leaf CSR, and sign it with the root. Steps run strictly in
// order and the first failure aborts the run.
func GenerateFixtures(cfg FixtureConfig) (FixturePaths, error) {
	paths := Paths(cfg.OutDir)

	keyBits := cfg.KeyBits
	if keyBits == 0 {
		keyBits = RootKeyBits
	}

	// The profile is read before any key material is generated so a missing
	// or malformed extension file fails the run with nothing produced.
	extData, err := os.ReadFile(cfg.ExtFile)
	if err != nil {
		return paths, fmt.Errorf("failed to read extension profile: %w", err)
	}

	profile, err := ParseProfile(extData)
	if err != nil {
		return paths, err
	}

	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return paths, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(paths.ExtFile, extData, 0600); err != nil {
		return paths, fmt.Errorf("failed to copy extension profile: %w", err)
	}

	rootKey, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return paths, fmt.Errorf("failed to generate root key: %w", err)
	}

	if err := savePrivateKeyPKCS1(paths.RootKey, rootKey); err != nil {
		return paths, fmt.Errorf("failed to save root key: %w", err)
	}

	if err := selfSignRoot(paths.RootCert, rootKey); err != nil {
		return paths, err
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return paths, fmt.Errorf("failed to generate leaf key: %w", err)
	}

	if err := savePrivateKeyPKCS8(paths.LeafKey, leafKey); err != nil {
		return paths, fmt.Errorf("failed to save leaf key: %w", err)
	}

	if err := createLeafCSR(paths.LeafCSR, leafKey); err != nil {
		return paths, err
	}

	// Sign via the files on disk, the same round trip the openssl commands
	// make, so a broken intermediate file fails here rather than later.
	signer, err := NewFileSigner(paths.RootKey, paths.RootCert)
	if err != nil {
		return paths, err
	}

	if err := issueLeaf(paths, signer, profile); err != nil {
		return paths, err
	}

	return paths, nil
}

func selfSignRoot(path string, key *rsa.PrivateKey) error {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate root serial: %w", err)
	}

	now := time.Now()

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   rootCommonName,
			Organization: []string{rootOrganization},
		},
		// Backdate NotBefore an hour so fixtures copied to hosts with
		// skewed clocks validate immediately.
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(0, 0, RootValidityDays),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to self-sign root certificate: %w", err)
	}

	if err := saveCertificate(path, der); err != nil {
		return fmt.Errorf("failed to save root certificate: %w", err)
	}

	return nil
}

func createLeafCSR(path string, key *rsa.PrivateKey) error {
	template := &x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:   LeafCommonName,
			Organization: []string{rootOrganization},
		},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return fmt.Errorf("failed to create leaf CSR: %w", err)
	}

	if err := saveCSR(path, der); err != nil {
		return fmt.Errorf("failed to save leaf CSR: %w", err)
	}

	return nil
}

func issueLeaf(paths FixturePaths, signer CASigner, profile *Profile) error {
	csr, err := decodeCSR(paths.LeafCSR)
	if err != nil {
		return fmt.Errorf("failed to decode leaf CSR: %w", err)
	}

	serial, err := nextSerial(paths.RootSerial)
	if err != nil {
		return err
	}

	now := time.Now()

	template := &x509.Certificate{
		SerialNumber:       serial,
		Subject:            csr.Subject,
		PublicKeyAlgorithm: csr.PublicKeyAlgorithm,
		PublicKey:          csr.PublicKey,
		SignatureAlgorithm: x509.SHA256WithRSA,
		NotBefore:          now.Add(-time.Hour),
		NotAfter:           now.AddDate(0, 0, LeafValidityDays),
	}

	if err := profile.Apply(template); err != nil {
		return err
	}

	der, err := signer.SignCertificate(template)
	if err != nil {
		return fmt.Errorf("failed to sign leaf certificate: %w", err)
	}

	if err := saveCertificate(paths.LeafCert, der); err != nil {
		return fmt.Errorf("failed to save leaf certificate: %w", err)
	}

	return nil
}

// Verify checks the generated fixtures chain: the leaf must validate against
// the root for the echo.test server name.
func Verify(paths FixturePaths) error {
	root, err := LoadCertificate(paths.RootCert)
	if err != nil {
		return fmt.Errorf("failed to load root certificate: %w", err)
	}

	leaf, err := LoadCertificate(paths.LeafCert)
	if err != nil {
		return fmt.Errorf("failed to load leaf certificate: %w", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)

	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:     roots,
		DNSName:   LeafCommonName,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}); err != nil {
		return fmt.Errorf("leaf does not verify against root: %w", err)
	}

	return nil
}
