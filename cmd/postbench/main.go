// Command postbench runs the BST versus treap comparison and prints the
// result as a table or JSON.
//
// Usage:
//
//	go run ./cmd/postbench [-config configs/development.yaml] [-json] [-out report.json] [-save] [-cache]
//	go run ./cmd/postbench -dump 15
//	go run ./cmd/postbench -history 10
//	go run ./cmd/postbench -latest
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/compare"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/compare/cache"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/compare/store"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/sysinfo"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	asJSON := flag.Bool("json", false, "print the report as JSON instead of a table")
	out := flag.String("out", "", "also write the JSON report to this file")
	save := flag.Bool("save", false, "store the report in PostgreSQL")
	retain := flag.Int("retain", 20, "reports kept per configuration when saving (0 = all)")
	useCache := flag.Bool("cache", false, "serve identical runs from Redis")
	flushCache := flag.Bool("flush-cache", false, "drop every cached report and exit")
	dump := flag.Int("dump", 0, "print both trees built from the first N synthetic posts and exit")
	history := flag.Int("history", 0, "list the N newest stored reports and exit")
	latest := flag.Bool("latest", false, "print the newest stored report for this configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *dump > 0 {
		if err := compare.Dump(os.Stdout, *dump, cfg.Compare.Seed); err != nil {
			slog.Error("dump failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flushCache {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			fail(err)
		}
		defer redisClient.Close()
		n, err := cache.New(redisClient, cfg.Redis.CacheTTL, nil).Invalidate(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("dropped %d cached reports\n", n)
		return
	}

	if *history > 0 || *latest {
		if err := showStored(ctx, cfg, *history, *latest, *asJSON); err != nil {
			fail(err)
		}
		return
	}

	m := metrics.New()
	driver := compare.NewDriver(cfg.Compare, cfg.Ingest.MaxLineBytes, m)
	run := func() (*compare.Report, error) { return driver.Run(ctx) }

	var (
		report *compare.Report
		cached bool
	)
	if *useCache {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, running uncached", "error", err)
			report, err = run()
			if err != nil {
				fail(err)
			}
		} else {
			defer redisClient.Close()
			rc := cache.New(redisClient, cfg.Redis.CacheTTL, m)
			report, cached, err = rc.GetOrCompute(ctx, compare.Fingerprint(cfg.Compare), run)
			if err != nil {
				fail(err)
			}
		}
	} else {
		report, err = run()
		if err != nil {
			fail(err)
		}
	}
	slog.Info("comparison finished",
		"fingerprint", report.Fingerprint,
		"seed", report.Seed,
		"cached", cached,
		"elapsed_ms", report.ElapsedMS,
		"rss_mb", int64(sysinfo.MaxRSSMB()),
	)

	if *save && !cached {
		if err := saveReport(ctx, cfg, *retain, report); err != nil {
			slog.Error("saving report failed", "error", err)
			os.Exit(1)
		}
	}

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fail(err)
		}
		err = writeJSON(f, report)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fail(err)
		}
	}

	if *asJSON {
		err = writeJSON(os.Stdout, report)
	} else {
		err = report.WriteTable(os.Stdout)
	}
	if err != nil {
		fail(err)
	}
}

func saveReport(ctx context.Context, cfg *config.Config, retain int, report *compare.Report) error {
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	s := store.New(db, retain)
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	var id int64
	err = resilience.Retry(ctx, "save-report", resilience.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.BaseDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}, func() error {
		var err error
		id, err = s.Save(ctx, report)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("report saved", "id", id, "fingerprint", report.Fingerprint)
	return nil
}

func showStored(ctx context.Context, cfg *config.Config, history int, latest, asJSON bool) error {
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	s := store.New(db, 0)

	if latest {
		fp := compare.Fingerprint(cfg.Compare)
		e, err := s.Latest(ctx, fp)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("no stored report for fingerprint %s", fp)
		}
		slog.Info("stored report", "id", e.ID, "created_at", e.CreatedAt)
		if asJSON {
			return writeJSON(os.Stdout, &e.Report)
		}
		return e.Report.WriteTable(os.Stdout)
	}

	entries, err := s.List(ctx, history)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tFINGERPRINT\tSEED\tELAPSED (ms)\tBST HEIGHT\tTREAP HEIGHT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%.12s\t%d\t%.1f\t%.1f\t%.1f\n",
			e.ID, e.CreatedAt.Format(time.DateTime), e.Report.Fingerprint, e.Report.Seed,
			e.Report.ElapsedMS, e.Report.Summary.BST.Height, e.Report.Summary.Treap.Height)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, report *compare.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func fail(err error) {
	slog.Error("comparison failed", "error", err)
	os.Exit(1)
}
