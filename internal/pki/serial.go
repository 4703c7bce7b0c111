package pki

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strings"
)

// nextSerial allocates a leaf serial number from the CA serial file,
// mirroring openssl's -CAcreateserial behaviour: the file is created with a
// random serial on first use and holds the next serial to allocate, in hex,
// after each signing.
func nextSerial(path string) (*big.Int, error) {
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return createSerial(path)
	case err != nil:
		return nil, fmt.Errorf("failed to read serial file: %w", err)
	}

	serial, ok := new(big.Int).SetString(strings.TrimSpace(string(data)), 16)
	if !ok {
		return nil, fmt.Errorf("malformed serial file %s", path)
	}

	if err := writeSerial(path, new(big.Int).Add(serial, big.NewInt(1))); err != nil {
		return nil, err
	}

	return serial, nil
}

func createSerial(path string) (*big.Int, error) {
	// 64-bit random serial, positive, like openssl -CAcreateserial.
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	if err := writeSerial(path, new(big.Int).Add(serial, big.NewInt(1))); err != nil {
		return nil, err
	}

	return serial, nil
}

func writeSerial(path string, next *big.Int) error {
	text := strings.ToUpper(next.Text(16))
	if len(text)%2 == 1 {
		text = "0" + text
	}

	if err := os.WriteFile(path, []byte(text+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write serial file: %w", err)
	}

	return nil
}
