package echo

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func sampleResult() *RequestResult {
	return &RequestResult{
		ID:              uuid.New(),
		Start:           time.Now(),
		BytesSent:       1024,
		BytesReceived:   2048,
		SendDuration:    3 * time.Millisecond,
		ReceiveDuration: 5 * time.Millisecond,
	}
}

func TestSampleWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")

	w, err := NewSampleWriter(path)
	require.NoError(t, err)

	res := sampleResult()
	require.NoError(t, w.Record(res))
	require.NoError(t, w.Record(sampleResult()))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, sampleHeader, rows[0])
	require.Equal(t, res.ID.String(), rows[1][1])
	require.Equal(t, "1024", rows[1][2])
	require.Equal(t, "2048", rows[1][3])
}

func TestSampleWriterZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv.zst")

	w, err := NewSampleWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Record(sampleResult()))
	require.NoError(t, w.Close())

	compressed, err := os.ReadFile(path)
	require.NoError(t, err)

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer dec.Close()

	plain, err := io.ReadAll(dec)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(plain)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, sampleHeader, rows[0])
}
