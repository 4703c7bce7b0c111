package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// FileSigner implements CASigner using a root key and certificate stored in
// PEM files on disk. It is how test fixtures sign leaf certificates; nothing
// here is intended for production use.
type FileSigner struct {
	caKey  *rsa.PrivateKey
	caCert *x509.Certificate
}

// NewFileSigner creates a FileSigner from PEM-encoded key and certificate files.
// The key may be PKCS#1 or PKCS#8 encoded; the certificate must be X.509 PEM.
func NewFileSigner(caKeyPath, caCertPath string) (*FileSigner, error) {
	caKey, err := loadPrivateKey(caKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA key: %w", err)
	}

	rsaKey, ok := caKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("CA key is not RSA")
	}

	caCert, err := LoadCertificate(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	if err := verifyCertKeyPair(caCert, rsaKey); err != nil {
		return nil, fmt.Errorf("CA key and certificate do not match: %w", err)
	}

	return &FileSigner{
		caKey:  rsaKey,
		caCert: caCert,
	}, nil
}

// SignCertificate signs a certificate template with the CA key.
// Returns DER-encoded certificate bytes.
func (s *FileSigner) SignCertificate(template *x509.Certificate) ([]byte, error) {
	return x509.CreateCertificate(rand.Reader, template, s.caCert, template.PublicKey, s.caKey)
}

// CACertificate returns the CA certificate.
func (s *FileSigner) CACertificate() (*x509.Certificate, error) {
	return s.caCert, nil
}

// verifyCertKeyPair checks that a certificate's public key matches a private key
func verifyCertKeyPair(cert *x509.Certificate, key crypto.PrivateKey) error {
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not RSA")
	}

	certPubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not RSA")
	}

	if !rsaKey.PublicKey.Equal(certPubKey) {
		return fmt.Errorf("public keys do not match")
	}

	return nil
}
