package ingestion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

// DetectFormat infers layout and compression from the file name. A
// compression suffix with no inner extension, as in "dataset.tgz" or
// "RS_2024-01.zst", means NDJSON.
func DetectFormat(path string) (Format, Compression, error) {
	name := strings.ToLower(filepath.Base(path))
	comp := CompressionNone
	switch ext := filepath.Ext(name); ext {
	case ".zst", ".zstd", ".tgz":
		comp = CompressionZstd
		name = strings.TrimSuffix(name, ext)
	case ".gz":
		comp = CompressionGzip
		name = strings.TrimSuffix(name, ext)
	}

	switch filepath.Ext(name) {
	case ".csv":
		return FormatCSV, comp, nil
	case ".json":
		return FormatJSON, comp, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, comp, nil
	case "":
		if comp != CompressionNone {
			return FormatNDJSON, comp, nil
		}
	}
	return "", "", fmt.Errorf("cannot infer dataset format of %s: %w", path, apperrors.ErrInvalidInput)
}

// Open opens path for decoding. The returned closer releases the file and
// any decompressor and must be called once the decoder is done.
func Open(path string, maxLineBytes int) (Decoder, io.Closer, error) {
	format, comp, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening dataset: %w", err)
	}

	closers := multiCloser{f}
	var r io.Reader = f
	switch comp {
	case CompressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("opening zstd stream %s: %w", path, err)
		}
		closers = append(multiCloser{zstdCloser{zr}}, closers...)
		r = zr
	case CompressionGzip:
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		closers = append(multiCloser{gr}, closers...)
		r = gr
	}

	dec, err := NewDecoder(r, format, maxLineBytes)
	if err != nil {
		closers.Close()
		return nil, nil, err
	}
	return dec, closers, nil
}

// NewDecoder wraps an uncompressed stream.
func NewDecoder(r io.Reader, format Format, maxLineBytes int) (Decoder, error) {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	switch format {
	case FormatCSV:
		return newCSVDecoder(r), nil
	case FormatJSON:
		return newJSONArrayDecoder(r), nil
	case FormatNDJSON:
		return newNDJSONDecoder(r, maxLineBytes), nil
	default:
		return nil, fmt.Errorf("dataset format %q: %w", format, apperrors.ErrInvalidInput)
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
