package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/echoperf/internal/logger"
	"github.com/wolfeidau/echoperf/internal/pki"
)

// leafRotationThreshold is how close to expiry an existing leaf may be
// before the fixtures are regenerated on the next run.
const leafRotationThreshold = 30 * 24 * time.Hour

// CertsCmd generates the TLS test fixtures: a self-signed root CA and an
// echo.test leaf certificate signed by it.
type CertsCmd struct {
	OutDir  string `help:"output directory for the fixtures" default:"./certs"`
	ExtFile string `help:"leaf extension profile to copy and apply" default:"./echo.test.ext"`
	Force   bool   `help:"force regeneration of all fixtures" default:"false"`
}

func (c *CertsCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	paths := pki.Paths(c.OutDir)

	switch {
	case c.Force:
		log.Info().Msg("Force flag set, regenerating fixtures...")
	case c.existingFixturesValid(paths):
		return nil
	default:
		log.Info().Str("out_dir", c.OutDir).Msg("Generating fixtures...")
	}

	generated, err := pki.GenerateFixtures(pki.FixtureConfig{
		OutDir:  c.OutDir,
		ExtFile: c.ExtFile,
	})
	if err != nil {
		return err
	}

	if err := pki.Verify(generated); err != nil {
		return err
	}

	log.Info().
		Str("root_cert", generated.RootCert).
		Str("leaf_cert", generated.LeafCert).
		Msg("Generated and verified fixtures")

	c.printSummary(generated)

	return nil
}

// existingFixturesValid reports whether a previous run's fixtures can be
// reused: every file present, the chain verifying, and the leaf not inside
// its rotation window.
func (c *CertsCmd) existingFixturesValid(paths pki.FixturePaths) bool {
	for _, path := range []string{
		paths.RootKey, paths.RootCert, paths.RootSerial,
		paths.LeafKey, paths.LeafCSR, paths.LeafCert, paths.ExtFile,
	} {
		if !fileExists(path) {
			return false
		}
	}

	if err := pki.Verify(paths); err != nil {
		log.Warn().Err(err).Msg("Existing fixtures do not verify, regenerating...")
		return false
	}

	leaf, err := pki.LoadCertificate(paths.LeafCert)
	if err != nil {
		return false
	}

	remaining := time.Until(leaf.NotAfter)
	if remaining < leafRotationThreshold {
		log.Warn().
			Int("days_remaining", int(remaining.Hours()/24)).
			Msg("Leaf certificate within rotation window, regenerating...")
		return false
	}

	log.Info().
		Int("days_remaining", int(remaining.Hours()/24)).
		Msg("Fixtures are valid, using existing (pass --force to regenerate)")

	return true
}

func (c *CertsCmd) printSummary(paths pki.FixturePaths) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("Fixtures generated")
	fmt.Println(strings.Repeat("=", 50))

	fmt.Println("\nFiles:")
	fmt.Printf("  Root CA key:         %s\n", paths.RootKey)
	fmt.Printf("  Root CA certificate: %s\n", paths.RootCert)
	fmt.Printf("  Root CA serial:      %s\n", paths.RootSerial)
	fmt.Printf("  Leaf key:            %s\n", paths.LeafKey)
	fmt.Printf("  Leaf CSR:            %s\n", paths.LeafCSR)
	fmt.Printf("  Leaf certificate:    %s\n\n", paths.LeafCert)

	fmt.Println("Next steps:")
	fmt.Printf("  1. Start the echo service:\n")
	fmt.Printf("     echoperf server --cert-dir %s\n\n", c.OutDir)
	fmt.Printf("  2. Run the perf client against it:\n")
	fmt.Printf("     echoperf client --cert-dir %s --request-size 1MiB --response-size 1MiB\n\n", c.OutDir)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
