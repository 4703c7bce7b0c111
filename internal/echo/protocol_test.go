package echo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeHeader(&buf, 1<<32+42))
	require.Equal(t, HeaderSize, buf.Len())

	size, err := readHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<32+42), size)
}

func TestReadHeaderShort(t *testing.T) {
	_, err := readHeader(bytes.NewReader([]byte{0, 1, 2}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read header")
}

func TestChecksumRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeChecksum(&buf, 0xdeadbeefcafef00d))

	sum, err := readChecksum(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeefcafef00d), sum)
}
