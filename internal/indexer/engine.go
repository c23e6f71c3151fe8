// Package indexer serves one tree engine to concurrent callers: the HTTP
// API, the Kafka consumer and dataset preloads. It serializes access,
// records metrics and keeps the tree gauges fresh.
package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/tree"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/metrics"
)

type Engine struct {
	mu     sync.RWMutex
	tree   tree.Engine
	kind   string
	m      *metrics.Metrics
	logger *slog.Logger

	// rotations already reported to the metrics counter
	reportedRotations int64
}

// NewEngine builds the tree described by cfg. m may be nil.
func NewEngine(cfg config.EngineConfig, m *metrics.Metrics) (*Engine, error) {
	kind, err := tree.ParseKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	t, err := tree.New(kind, tree.Options{MaxNodes: cfg.MaxNodes, Seed: cfg.Seed})
	if err != nil {
		return nil, fmt.Errorf("creating %s engine: %w", kind, err)
	}
	return New(t, m), nil
}

// New wraps an existing tree. m may be nil.
func New(t tree.Engine, m *metrics.Metrics) *Engine {
	return &Engine{
		tree:   t,
		kind:   string(t.Kind()),
		m:      m,
		logger: slog.Default().With("component", "indexer", "engine", t.Kind()),
	}
}

func (e *Engine) Kind() tree.Kind { return e.tree.Kind() }

func (e *Engine) observe(op, result string, start time.Time) {
	if e.m == nil {
		return
	}
	e.m.PostOperationsTotal.WithLabelValues(e.kind, op, result).Inc()
	e.m.PostOperationDuration.WithLabelValues(e.kind, op).Observe(time.Since(start).Seconds())
}

func hit(ok bool) string {
	if ok {
		return "ok"
	}
	return "miss"
}

// syncRotations pushes new treap rotations to the counter. Callers hold mu.
func (e *Engine) syncRotations() {
	r, ok := e.tree.(interface{ Rotations() int64 })
	if !ok || e.m == nil {
		return
	}
	now := r.Rotations()
	if d := now - e.reportedRotations; d > 0 {
		e.m.TreapRotationsTotal.Add(float64(d))
	}
	e.reportedRotations = now
}

func (e *Engine) Insert(p post.Post) error {
	start := time.Now()
	e.mu.Lock()
	err := e.tree.Insert(p)
	e.syncRotations()
	e.mu.Unlock()
	if err != nil {
		e.observe("insert", "error", start)
		return err
	}
	e.observe("insert", "ok", start)
	return nil
}

func (e *Engine) Delete(id string) bool {
	start := time.Now()
	e.mu.Lock()
	ok := e.tree.Delete(id)
	e.syncRotations()
	e.mu.Unlock()
	e.observe("delete", hit(ok), start)
	return ok
}

func (e *Engine) Like(id string) bool {
	start := time.Now()
	e.mu.Lock()
	ok := e.tree.Like(id)
	e.syncRotations()
	e.mu.Unlock()
	e.observe("like", hit(ok), start)
	return ok
}

// FindByID takes the write lock: treap lookups reuse scratch buffers
// inside the tree.
func (e *Engine) FindByID(id string) (post.Post, bool) {
	start := time.Now()
	e.mu.Lock()
	p, ok := e.tree.FindByID(id)
	e.mu.Unlock()
	e.observe("find", hit(ok), start)
	return p, ok
}

func (e *Engine) MostPopular() (post.Post, bool) {
	start := time.Now()
	e.mu.RLock()
	p, ok := e.tree.MostPopular()
	e.mu.RUnlock()
	e.observe("most_popular", hit(ok), start)
	return p, ok
}

func (e *Engine) MostRecent(k int) []post.Post {
	start := time.Now()
	e.mu.RLock()
	posts := e.tree.MostRecent(k)
	e.mu.RUnlock()
	e.observe("most_recent", "ok", start)
	return posts
}

func (e *Engine) Len() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Len()
}

func (e *Engine) Stats() tree.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return tree.Snapshot(e.tree)
}

func (e *Engine) Verify() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Verify()
}

func (e *Engine) Render(w io.Writer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Render(w)
}

// Export writes the tree to path in level order, so loading the file into
// an empty BST rebuilds the same shape. Writers wait until it finishes.
func (e *Engine) Export(path string) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	start := time.Now()
	n, err := ingestion.Export(path, e.tree)
	if err != nil {
		return 0, fmt.Errorf("exporting %s tree: %w", e.kind, err)
	}
	e.logger.Info("tree exported", "path", path, "posts", n, "elapsed", time.Since(start).Round(time.Millisecond))
	return n, nil
}

func (e *Engine) Clear() int64 {
	e.mu.Lock()
	n := e.tree.Clear()
	e.mu.Unlock()
	e.logger.Info("tree cleared", "released", n)
	e.refreshGauges()
	return n
}

// Apply performs the mutation an event describes. applied is false when a
// like or delete names an unknown post.
func (e *Engine) Apply(ev post.Event) (applied bool, err error) {
	switch ev.Op {
	case post.OpInsert:
		if err := e.Insert(ev.Post()); err != nil {
			return false, err
		}
		return true, nil
	case post.OpLike:
		return e.Like(ev.ID), nil
	case post.OpDelete:
		return e.Delete(ev.ID), nil
	default:
		return false, post.ValidateEvent(ev)
	}
}

// bulkSink inserts under the engine lock without per-record metrics.
type bulkSink struct{ e *Engine }

func (s bulkSink) Insert(p post.Post) error {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.e.tree.Insert(p)
}

// LoadFile bulk-loads a dataset. Posts inserted before an error or timeout
// stay in the tree.
func (e *Engine) LoadFile(ctx context.Context, path string, maxLineBytes int, opts ingestion.Options) (ingestion.Result, error) {
	opts.Label = e.kind
	e.logger.Info("loading dataset", "path", path, "timeout", opts.Timeout)
	res, err := ingestion.LoadFile(ctx, path, maxLineBytes, bulkSink{e}, opts)

	e.mu.Lock()
	e.syncRotations()
	e.mu.Unlock()
	if e.m != nil {
		e.m.IngestRecordsTotal.WithLabelValues(e.kind, "loaded").Add(float64(res.Loaded))
		e.m.IngestRecordsTotal.WithLabelValues(e.kind, "skipped").Add(float64(res.Skipped))
	}
	e.refreshGauges()
	return res, err
}

func (e *Engine) refreshGauges() {
	if e.m == nil {
		return
	}
	s := e.Stats()
	e.m.TreeHeight.WithLabelValues(e.kind).Set(float64(s.Height))
	e.m.TreeNodes.WithLabelValues(e.kind).Set(float64(s.Nodes))
}

// StartStatsLoop refreshes the height and node gauges every interval until
// ctx is done. Height is O(n), so the interval should not be tiny for
// large trees.
func (e *Engine) StartStatsLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("stats loop stopping")
				return
			case <-ticker.C:
				e.refreshGauges()
			}
		}
	}()
}
