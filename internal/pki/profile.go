package pki

import (
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes the X.509 extensions applied to a leaf certificate. It
// is the YAML counterpart of an openssl extension file and is read from
// echo.test.ext before any key material is generated.
type Profile struct {
	BasicConstraints BasicConstraints `yaml:"basicConstraints"`
	KeyUsage         []string         `yaml:"keyUsage"`
	ExtendedKeyUsage []string         `yaml:"extendedKeyUsage"`
	SubjectAltName   SubjectAltName   `yaml:"subjectAltName"`
}

type BasicConstraints struct {
	CA bool `yaml:"ca"`
}

type SubjectAltName struct {
	DNS []string `yaml:"dns"`
	IP  []string `yaml:"ip"`
}

// keyUsageNames uses the openssl spellings so profiles read like the
// extension files they replace.
var keyUsageNames = map[string]x509.KeyUsage{
	"digitalSignature": x509.KeyUsageDigitalSignature,
	"nonRepudiation":   x509.KeyUsageContentCommitment,
	"keyEncipherment":  x509.KeyUsageKeyEncipherment,
	"dataEncipherment": x509.KeyUsageDataEncipherment,
	"keyAgreement":     x509.KeyUsageKeyAgreement,
	"keyCertSign":      x509.KeyUsageCertSign,
	"cRLSign":          x509.KeyUsageCRLSign,
	"encipherOnly":     x509.KeyUsageEncipherOnly,
	"decipherOnly":     x509.KeyUsageDecipherOnly,
}

var extKeyUsageNames = map[string]x509.ExtKeyUsage{
	"any":             x509.ExtKeyUsageAny,
	"serverAuth":      x509.ExtKeyUsageServerAuth,
	"clientAuth":      x509.ExtKeyUsageClientAuth,
	"codeSigning":     x509.ExtKeyUsageCodeSigning,
	"emailProtection": x509.ExtKeyUsageEmailProtection,
	"timeStamping":    x509.ExtKeyUsageTimeStamping,
	"OCSPSigning":     x509.ExtKeyUsageOCSPSigning,
}

// LoadProfile reads and parses a leaf extension profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseProfile(data)
}

// ParseProfile parses a YAML extension profile and validates the names it uses.
func ParseProfile(data []byte) (*Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse extension profile: %w", err)
	}

	if err := profile.validate(); err != nil {
		return nil, err
	}

	return &profile, nil
}

func (p *Profile) validate() error {
	for _, name := range p.KeyUsage {
		if _, ok := keyUsageNames[name]; !ok {
			return fmt.Errorf("unknown keyUsage %q", name)
		}
	}

	for _, name := range p.ExtendedKeyUsage {
		if _, ok := extKeyUsageNames[name]; !ok {
			return fmt.Errorf("unknown extendedKeyUsage %q", name)
		}
	}

	for _, ip := range p.SubjectAltName.IP {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("invalid subjectAltName IP %q", ip)
		}
	}

	return nil
}

// Apply sets the profile's extensions on a certificate template.
func (p *Profile) Apply(template *x509.Certificate) error {
	if err := p.validate(); err != nil {
		return err
	}

	for _, name := range p.KeyUsage {
		template.KeyUsage |= keyUsageNames[name]
	}

	for _, name := range p.ExtendedKeyUsage {
		template.ExtKeyUsage = append(template.ExtKeyUsage, extKeyUsageNames[name])
	}

	template.DNSNames = append(template.DNSNames, p.SubjectAltName.DNS...)
	for _, ip := range p.SubjectAltName.IP {
		template.IPAddresses = append(template.IPAddresses, net.ParseIP(ip))
	}

	template.BasicConstraintsValid = true
	template.IsCA = p.BasicConstraints.CA

	return nil
}
