package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

// Compression selects how finished output files are compressed
type Compression int

// Compression modes
const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

var compressionNames = map[Compression]string{
	CompressionNone: "none",
	CompressionGzip: "gzip",
	CompressionZstd: "zstd",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("compression(%d)", int(c))
}

// ParseCompression maps a name to a Compression. The empty string means none.
func ParseCompression(name string) (Compression, error) {
	if name == "" {
		return CompressionNone, nil
	}
	for c, n := range compressionNames {
		if n == name {
			return c, nil
		}
	}
	return CompressionNone, fmt.Errorf("unknown compression %q", name)
}

// Extension returns the file name suffix added by the compression
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// compressFile replaces path with a compressed copy and returns the new path
func compressFile(path string, c Compression, logger *logrus.Logger) (string, error) {
	if c == CompressionNone {
		return path, nil
	}

	target := path + c.Extension()
	logger.WithFields(logrus.Fields{
		"source": path,
		"target": target,
	}).Debug("Compressing output file")

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for compression: %w", path, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create compressed file %s: %w", target, err)
	}
	defer dst.Close()

	var enc io.WriteCloser
	switch c {
	case CompressionGzip:
		gz := gzip.NewWriter(dst)
		gz.Name = filepath.Base(path)
		gz.ModTime = time.Now()
		enc = gz
	case CompressionZstd:
		zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return "", fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		enc = zw
	default:
		return "", fmt.Errorf("unsupported compression %v", c)
	}

	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return "", fmt.Errorf("failed to compress %s: %w", path, err)
	}

	// Close the encoder to flush data
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to close %v encoder: %w", c, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close compressed file: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to remove original file %s: %w", path, err)
	}

	return target, nil
}

// Open opens an output file for reading, decompressing it when its name
// ends in a known compression suffix.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case CompressionGzip.Extension():
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read gzip header: %w", err)
		}
		return &readCloser{Reader: gz, close: func() error { gz.Close(); return f.Close() }}, nil
	case CompressionZstd.Extension():
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return &readCloser{Reader: zr, close: func() error { zr.Close(); return f.Close() }}, nil
	default:
		return f, nil
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error {
	return r.close()
}
