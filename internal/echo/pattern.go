package echo

import "io"

// patternPeriod is prime so the pattern never lines up with buffer or frame
// sizes, which would let truncation bugs go unnoticed.
const patternPeriod = 251

// fillPattern fills buf with the deterministic byte pattern starting at the
// given absolute payload offset. Both sides can generate and check payload
// bytes from the offset alone, without buffering the stream.
func fillPattern(buf []byte, offset int64) {
	for i := range buf {
		buf[i] = byte((offset + int64(i)) % patternPeriod)
	}
}

// patternReader yields n bytes of the deterministic pattern.
type patternReader struct {
	remaining int64
	offset    int64
}

func newPatternReader(n int64) *patternReader {
	return &patternReader{remaining: n}
}

func (r *patternReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}

	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	fillPattern(p, r.offset)
	r.offset += int64(len(p))
	r.remaining -= int64(len(p))

	return len(p), nil
}
