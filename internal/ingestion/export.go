package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

// Walker visits stored posts until visit returns false.
type Walker interface {
	Walk(visit func(p post.Post) bool)
}

type exportRecord struct {
	ID         string `json:"id"`
	CreatedUTC int64  `json:"created_utc"`
	Score      int32  `json:"score"`
}

// Export writes every post src yields to path as NDJSON, compressed according
// to the file suffix, in a shape Open reads back. The file is written under a
// temporary name and renamed once complete, so a crash never leaves a
// truncated export in place.
func Export(path string, src Walker) (int64, error) {
	format, comp, err := DetectFormat(path)
	if err != nil {
		return 0, err
	}
	if format != FormatNDJSON {
		return 0, fmt.Errorf("exporting to %s: only ndjson is written: %w", path, apperrors.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp export file: %w", err)
	}
	n, err := writeRecords(f, comp, src)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming export: %w", err)
	}
	return n, nil
}

func writeRecords(f io.Writer, comp Compression, src Walker) (int64, error) {
	var (
		w     io.Writer = f
		flush func() error
	)
	switch comp {
	case CompressionZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return 0, fmt.Errorf("opening zstd writer: %w", err)
		}
		w, flush = zw, zw.Close
	case CompressionGzip:
		gw := gzip.NewWriter(f)
		w, flush = gw, gw.Close
	}

	bw := bufio.NewWriterSize(w, 256<<10)
	enc := json.NewEncoder(bw)
	var (
		n      int64
		encErr error
	)
	src.Walk(func(p post.Post) bool {
		encErr = enc.Encode(exportRecord{ID: p.ID, CreatedUTC: p.Timestamp, Score: p.Score})
		if encErr != nil {
			return false
		}
		n++
		return true
	})
	if encErr != nil {
		return 0, fmt.Errorf("writing export record %d: %w", n, encErr)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flushing export: %w", err)
	}
	if flush != nil {
		if err := flush(); err != nil {
			return 0, fmt.Errorf("finishing compressed export: %w", err)
		}
	}
	return n, nil
}
