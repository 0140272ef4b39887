package memstat

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is a trace compression format.
type Codec uint8

const (
	Zstd Codec = iota
	LZ4
)

func (c Codec) String() string {
	if c == LZ4 {
		return "lz4"
	}
	return "zstd"
}

// CodecFor picks LZ4 for ".lz4" paths and zstd otherwise.
func CodecFor(path string) Codec {
	if strings.EqualFold(filepath.Ext(path), ".lz4") {
		return LZ4
	}
	return Zstd
}

func (c Codec) writer(w io.Writer) (io.WriteCloser, error) {
	if c == LZ4 {
		return lz4.NewWriter(w), nil
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return enc, nil
}

func (c Codec) reader(r io.Reader) (io.Reader, func(), error) {
	if c == LZ4 {
		return lz4.NewReader(r), func() {}, nil
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return dec, dec.Close, nil
}

// TraceWriter streams every memory reading as "elapsed_ms,bytes" CSV lines
// through a compressor.
type TraceWriter struct {
	enc io.WriteCloser
	buf []byte
}

// NewTraceWriter writes a compressed trace to w. Close flushes it; w itself is
// not closed.
func NewTraceWriter(w io.Writer, c Codec) (*TraceWriter, error) {
	enc, err := c.writer(w)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(enc, "elapsed_ms,bytes\n"); err != nil {
		return nil, fmt.Errorf("write trace header: %w", err)
	}
	return &TraceWriter{enc: enc}, nil
}

// Record appends one reading.
func (t *TraceWriter) Record(elapsed time.Duration, bytes uint64) error {
	t.buf = strconv.AppendInt(t.buf[:0], elapsed.Milliseconds(), 10)
	t.buf = append(t.buf, ',')
	t.buf = strconv.AppendUint(t.buf, bytes, 10)
	t.buf = append(t.buf, '\n')
	if _, err := t.enc.Write(t.buf); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

func (t *TraceWriter) Close() error {
	if err := t.enc.Close(); err != nil {
		return fmt.Errorf("close trace: %w", err)
	}
	return nil
}

// Point is one trace reading.
type Point struct {
	Elapsed time.Duration
	Bytes   uint64
}

// ReadTrace decodes a trace written by TraceWriter with codec c.
func ReadTrace(r io.Reader, c Codec) ([]Point, error) {
	dec, done, err := c.reader(r)
	if err != nil {
		return nil, err
	}
	defer done()

	var out []Point
	scanner := bufio.NewScanner(dec)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		ms, b, ok := strings.Cut(scanner.Text(), ",")
		if !ok {
			return nil, fmt.Errorf("malformed trace line %q", scanner.Text())
		}
		elapsed, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse elapsed: %w", err)
		}
		bytes, err := strconv.ParseUint(b, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse bytes: %w", err)
		}
		out = append(out, Point{Elapsed: time.Duration(elapsed) * time.Millisecond, Bytes: bytes})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trace: %w", err)
	}
	return out, nil
}
