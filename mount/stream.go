package mount

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a backup stream is stored on disk.
type Compression uint8

const (
	CompressionNone Compression = iota
	// CompressionLZ4 is the fast choice for archives that are already compressed.
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// Extension returns the file suffix used for backups stored with c.
func (c Compression) Extension() string {
	switch c {
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// compressWriter wraps w so that everything written is stored with c.
// Closing the result flushes the frame but leaves w open.
func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}

// decompressReader reverses compressWriter. Closing the result closes r.
func decompressReader(r io.ReadCloser, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return r, nil
	case CompressionLZ4:
		return &streamReader{Reader: lz4.NewReader(r), closers: []io.Closer{r}}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return &streamReader{Reader: dec, closers: []io.Closer{dec.IOReadCloser(), r}}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

type streamReader struct {
	io.Reader
	closers []io.Closer
}

func (sr *streamReader) Close() error {
	var first error
	for _, c := range sr.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
