package echo

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Wire format, per request:
//
//	client -> server: 8-byte big-endian response size, then the request
//	                  payload, then the client half-closes its write side.
//	server -> client: 8-byte big-endian CRC-64/NVME of the request payload,
//	                  then exactly the requested number of pattern bytes.
const (
	// HeaderSize is the length of the response-size prefix. Request sizes
	// are measured including the header, so the minimum request is
	// HeaderSize bytes with an empty payload.
	HeaderSize = 8

	checksumSize = 8
)

func writeHeader(w io.Writer, responseSize uint64) error {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint64(header[:], responseSize)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return nil
}

func readHeader(r io.Reader) (uint64, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	return binary.BigEndian.Uint64(header[:]), nil
}

func writeChecksum(w io.Writer, sum uint64) error {
	var buf [checksumSize]byte
	binary.BigEndian.PutUint64(buf[:], sum)

	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}

	return nil
}

func readChecksum(r io.Reader) (uint64, error) {
	var buf [checksumSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read checksum: %w", err)
	}

	return binary.BigEndian.Uint64(buf[:]), nil
}
