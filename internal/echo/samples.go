package echo

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var sampleHeader = []string{
	"time_ns",
	"request_id",
	"bytes_sent",
	"bytes_received",
	"send_ns",
	"receive_ns",
}

// SampleWriter writes one CSV row per completed request, for offline
// analysis of a perf run. Paths ending in .zst are zstd-compressed.
type SampleWriter struct {
	csv     *csv.Writer
	closers []io.Closer
}

func NewSampleWriter(path string) (*SampleWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create samples file: %w", err)
	}

	var w io.Writer = f
	closers := []io.Closer{f}

	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w = enc
		// Close the encoder before the file.
		closers = []io.Closer{enc, f}
	}

	s := &SampleWriter{
		csv:     csv.NewWriter(w),
		closers: closers,
	}

	if err := s.csv.Write(sampleHeader); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to write samples header: %w", err)
	}

	return s, nil
}

// Record appends one sample row.
func (s *SampleWriter) Record(res *RequestResult) error {
	return s.csv.Write([]string{
		strconv.FormatInt(res.Start.UnixNano(), 10),
		res.ID.String(),
		strconv.FormatInt(res.BytesSent, 10),
		strconv.FormatInt(res.BytesReceived, 10),
		strconv.FormatInt(res.SendDuration.Nanoseconds(), 10),
		strconv.FormatInt(res.ReceiveDuration.Nanoseconds(), 10),
	})
}

// Close flushes buffered rows and closes the underlying writers.
func (s *SampleWriter) Close() error {
	s.csv.Flush()

	err := s.csv.Error()
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}
