// Package ingestion decodes post datasets and bulk-loads them into a tree.
// Supported layouts are CSV with an id,timestamp,score header, a JSON array
// of {id, created_utc, score} objects, and newline-delimited JSON. Any of
// them may be zstd- or gzip-compressed.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
)

type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
)

// DefaultMaxLineBytes bounds a single CSV row or NDJSON line.
const DefaultMaxLineBytes = 1 << 20

// Decoder yields posts one at a time. Next returns io.EOF after the last
// record. Errors wrapping ErrMalformedRecord concern a single record and
// the caller may keep reading; any other error ends the stream.
type Decoder interface {
	Next() (post.Post, error)
}

// Sink receives decoded posts. tree.Engine and indexer.Engine satisfy it.
type Sink interface {
	Insert(p post.Post) error
}

// Options controls a Load pass.
type Options struct {
	// Timeout stops the pass early, zero means no limit.
	Timeout time.Duration
	// ProgressEvery logs progress after every N loaded records, zero disables.
	ProgressEvery int64
	// EstimateTarget is the dataset size used to extrapolate a full-load
	// time from the observed rate, zero disables.
	EstimateTarget int64
	// OnProgress, if set, is called alongside every progress log line.
	OnProgress func(Progress)
	// Label tags log lines, usually the engine kind.
	Label string
}

type Progress struct {
	Loaded  int64
	Elapsed time.Duration
	Rate    float64
	RSSMB   float64
}

// Result summarizes a Load pass. Records already inserted stay in the sink
// whatever the outcome.
type Result struct {
	Loaded          int64         `json:"loaded"`
	Skipped         int64         `json:"skipped"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	TimedOut        bool          `json:"timed_out"`
	CapacityReached bool          `json:"capacity_reached"`
	Estimated       time.Duration `json:"estimated_ns,omitempty"`
}

// Rate is loaded records per second.
func (r Result) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Loaded) / r.Elapsed.Seconds()
}
