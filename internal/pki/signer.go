package pki

import (
	"crypto/x509"
)

// CASigner signs certificate templates to create certificates.
type CASigner interface {
	// SignCertificate signs a certificate template and returns the DER-encoded certificate bytes.
	// The template must be fully populated with all required fields (subject, serial, validity,
	// extensions, public key). The signer adds its signature and returns the complete certificate.
	SignCertificate(template *x509.Certificate) ([]byte, error)

	// CACertificate returns the CA certificate (public part only).
	// Used for building chains and verification.
	CACertificate() (*x509.Certificate, error)
}
