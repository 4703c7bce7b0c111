package commands

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/wolfeidau/echoperf/internal/pki"
)

// InspectCmd prints the generated fixtures for manual verification.
type InspectCmd struct {
	CertDir string `help:"directory holding the generated fixtures" default:"./certs"`
}

func (i *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	paths := pki.Paths(i.CertDir)

	root, err := pki.LoadCertificate(paths.RootCert)
	if err != nil {
		return fmt.Errorf("failed to load root certificate: %w", err)
	}

	leaf, err := pki.LoadCertificate(paths.LeafCert)
	if err != nil {
		return fmt.Errorf("failed to load leaf certificate: %w", err)
	}

	printCertificate("Root CA", root)
	printCertificate("Leaf", leaf)

	if err := pki.Verify(paths); err != nil {
		return err
	}

	fmt.Printf("Chain: leaf verifies against root for %q\n", pki.LeafCommonName)

	return nil
}

func printCertificate(title string, cert *x509.Certificate) {
	fmt.Println(title)
	fmt.Println(strings.Repeat("-", len(title)))
	fmt.Printf("  Subject:    %s\n", cert.Subject)
	fmt.Printf("  Issuer:     %s\n", cert.Issuer)
	fmt.Printf("  Serial:     %s\n", strings.ToUpper(cert.SerialNumber.Text(16)))
	fmt.Printf("  Not before: %s\n", cert.NotBefore.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  Not after:  %s\n", cert.NotAfter.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  Is CA:      %t\n", cert.IsCA)

	if len(cert.DNSNames) > 0 {
		fmt.Printf("  DNS SANs:   %s\n", strings.Join(cert.DNSNames, ", "))
	}

	if len(cert.IPAddresses) > 0 {
		ips := make([]string, 0, len(cert.IPAddresses))
		for _, ip := range cert.IPAddresses {
			ips = append(ips, ip.String())
		}
		fmt.Printf("  IP SANs:    %s\n", strings.Join(ips, ", "))
	}

	fmt.Println()
}
