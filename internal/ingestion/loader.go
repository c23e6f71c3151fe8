package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/sysinfo"
)

// ctxCheckEvery is how many records pass between context checks.
const ctxCheckEvery = 256

// Load drains dec into sink.
//
// Malformed and invalid records are skipped and counted. Hitting the sink's
// capacity ends the pass normally with CapacityReached set, as does the
// Timeout with TimedOut set. An allocation failure, a broken stream or
// cancellation of ctx ends the pass with an error; the Result still
// describes what was loaded before it.
func Load(ctx context.Context, dec Decoder, sink Sink, opts Options) (Result, error) {
	logger := slog.Default().With("component", "loader")
	if opts.Label != "" {
		logger = logger.With("engine", opts.Label)
	}

	parent := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var res Result
	start := time.Now()
	finish := func() {
		res.Elapsed = time.Since(start)
		if opts.EstimateTarget > 0 {
			if rate := res.Rate(); rate > 0 {
				res.Estimated = time.Duration(float64(opts.EstimateTarget) / rate * float64(time.Second))
			}
		}
	}

	for n := int64(0); ; n++ {
		if n%ctxCheckEvery == 0 && ctx.Err() != nil {
			finish()
			if parent.Err() != nil {
				return res, fmt.Errorf("load cancelled after %d records: %w", res.Loaded, parent.Err())
			}
			res.TimedOut = true
			logger.Warn("load timed out", "timeout", opts.Timeout, "loaded", res.Loaded, "rss_mb", sysinfo.MaxRSSMB())
			return res, nil
		}

		p, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, apperrors.ErrMalformedRecord) {
				res.Skipped++
				logger.Debug("skipping record", "error", err)
				continue
			}
			finish()
			return res, fmt.Errorf("reading dataset after %d records: %w", res.Loaded, err)
		}
		if err := post.Validate(p); err != nil {
			res.Skipped++
			logger.Debug("skipping invalid post", "error", err)
			continue
		}

		if err := sink.Insert(p); err != nil {
			finish()
			switch {
			case errors.Is(err, apperrors.ErrCapacityExceeded):
				res.CapacityReached = true
				logger.Warn("node capacity reached, stopping load", "loaded", res.Loaded, "rss_mb", sysinfo.MaxRSSMB())
				return res, nil
			case errors.Is(err, apperrors.ErrAllocationFailed):
				logger.Error("allocation failed during load", "loaded", res.Loaded, "rss_mb", sysinfo.MaxRSSMB(), "error", err)
			}
			return res, fmt.Errorf("inserting record %d: %w", res.Loaded+1, err)
		}
		res.Loaded++

		if opts.ProgressEvery > 0 && res.Loaded%opts.ProgressEvery == 0 {
			elapsed := time.Since(start)
			pr := Progress{
				Loaded:  res.Loaded,
				Elapsed: elapsed,
				Rate:    float64(res.Loaded) / elapsed.Seconds(),
				RSSMB:   sysinfo.MaxRSSMB(),
			}
			logger.Info("load progress",
				"posts", pr.Loaded,
				"elapsed", pr.Elapsed.Round(time.Millisecond),
				"rate", int64(pr.Rate),
				"rss_mb", int64(pr.RSSMB),
			)
			if opts.OnProgress != nil {
				opts.OnProgress(pr)
			}
		}
	}

	finish()
	attrs := []any{"posts", res.Loaded, "skipped", res.Skipped, "elapsed", res.Elapsed.Round(time.Millisecond)}
	if res.Estimated > 0 {
		attrs = append(attrs, "estimated_full_load", res.Estimated.Round(time.Second), "estimate_target", opts.EstimateTarget)
	}
	logger.Info("load complete", attrs...)
	return res, nil
}

// LoadFile opens path and loads it into sink.
func LoadFile(ctx context.Context, path string, maxLineBytes int, sink Sink, opts Options) (Result, error) {
	dec, closer, err := Open(path, maxLineBytes)
	if err != nil {
		return Result{}, err
	}
	defer closer.Close()
	return Load(ctx, dec, sink, opts)
}
