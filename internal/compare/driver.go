// Package compare runs the same workloads against the plain BST and the
// treap and reports their timings and shape side by side.
package compare

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/tree"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/tracing"
)

const (
	// baseTimestamp is 2021-01-01T00:00:00Z; synthetic posts are an hour apart.
	baseTimestamp = 1609459200
	maxScore      = 1000
	mixedOps      = 500
	bubbleIndex   = 100
	recentK       = 10
)

type Driver struct {
	cfg          config.CompareConfig
	maxLineBytes int
	m            *metrics.Metrics
	logger       *slog.Logger
}

// NewDriver creates a Driver. maxLineBytes bounds NDJSON lines when loading
// datasets; m may be nil.
func NewDriver(cfg config.CompareConfig, maxLineBytes int, m *metrics.Metrics) *Driver {
	return &Driver{
		cfg:          cfg,
		maxLineBytes: maxLineBytes,
		m:            m,
		logger:       slog.Default().With("component", "compare"),
	}
}

// Fingerprint identifies a run configuration. Runs with equal fingerprints
// and a fixed seed exercise identical workloads.
func Fingerprint(cfg config.CompareConfig) string {
	data, _ := json.Marshal(cfg)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Synthetic returns n posts named post_0..post_n-1 with hourly timestamps
// and scores in [1,1000] drawn from rng.
func Synthetic(rng *rand.Rand, n int) []post.Post {
	posts := make([]post.Post, n)
	for i := range posts {
		posts[i] = post.Post{
			ID:        "post_" + strconv.Itoa(i),
			Timestamp: baseTimestamp + int64(i)*3600,
			Score:     int32(rng.IntN(maxScore) + 1),
		}
	}
	return posts
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
}

type rotationCounter interface {
	Rotations() int64
	ResetRotations()
}

func rotations(e tree.Engine) int64 {
	if r, ok := e.(rotationCounter); ok {
		return r.Rotations()
	}
	return 0
}

func resetRotations(e tree.Engine) {
	if r, ok := e.(rotationCounter); ok {
		r.ResetRotations()
	}
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// perOp runs fn n times and returns the mean cost in microseconds.
func perOp(n int, fn func(i int)) float64 {
	if n <= 0 {
		return 0
	}
	start := time.Now()
	for i := 0; i < n; i++ {
		fn(i)
	}
	return float64(time.Since(start)) / float64(time.Microsecond) / float64(n)
}

// pair holds one engine of each kind, built over the same posts.
type pair struct {
	bst, treap tree.Engine
}

func (d *Driver) build(seed uint64, posts []post.Post) (pair, error) {
	p := pair{
		bst:   tree.NewBST(0, len(posts)),
		treap: tree.NewTreap(seed, len(posts)),
	}
	for _, e := range []tree.Engine{p.bst, p.treap} {
		for _, ps := range posts {
			if err := e.Insert(ps); err != nil {
				return pair{}, fmt.Errorf("building %s: %w", e.Kind(), err)
			}
		}
	}
	return p, nil
}

func (d *Driver) verify(phase string, engines ...tree.Engine) error {
	if !d.cfg.Verify {
		return nil
	}
	for _, e := range engines {
		if err := e.Verify(); err != nil {
			return fmt.Errorf("%s phase left %s inconsistent: %w", phase, e.Kind(), err)
		}
	}
	return nil
}

// Run executes every configured phase in order. A phase whose size is zero
// is skipped. Cancelling ctx stops the run between phases and aborts dataset
// loads.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	seed := d.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	report := &Report{
		Fingerprint: Fingerprint(d.cfg),
		Seed:        seed,
		StartedAt:   time.Now().UTC(),
	}
	rng := newRand(seed)
	ctx = logger.WithRunID(ctx, report.Fingerprint[:12])
	log := logger.FromContext(ctx).With("component", "compare")
	ctx, root := tracing.StartSpan(ctx, "compare", report.Fingerprint[:16])

	phases := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"insertion", func(context.Context) error { return d.insertion(rng, seed, report) }},
		{"search", func(context.Context) error { return d.search(rng, seed, report) }},
		{"like", func(context.Context) error { return d.like(rng, seed, report) }},
		{"deletion", func(context.Context) error { return d.deletion(rng, seed, report) }},
		{"query", func(context.Context) error { return d.query(rng, seed, report) }},
		{"loading", func(ctx context.Context) error { return d.loading(ctx, seed, report) }},
	}
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			d.count("error")
			return nil, fmt.Errorf("comparison stopped before %s: %w", ph.name, err)
		}
		pctx, span := tracing.StartChildSpan(ctx, ph.name)
		log.Info("phase starting", "phase", ph.name)
		err := ph.run(pctx)
		span.End()
		if err != nil {
			d.count("error")
			return nil, fmt.Errorf("%s phase: %w", ph.name, err)
		}
		log.Info("phase complete", "phase", ph.name, "elapsed", span.Duration.Round(time.Millisecond))
	}

	root.End()
	report.ElapsedMS = millis(root.Duration)
	report.Timings = root.Flatten()
	report.summarize()
	d.count("ok")
	return report, nil
}

func (d *Driver) count(status string) {
	if d.m != nil {
		d.m.ComparisonRunsTotal.WithLabelValues(status).Inc()
	}
}

func (d *Driver) insertion(rng *rand.Rand, seed uint64, r *Report) error {
	for _, size := range d.cfg.InsertSizes {
		posts := Synthetic(rng, size)
		measure := func(e tree.Engine) (InsertFigures, error) {
			start := time.Now()
			for _, p := range posts {
				if err := e.Insert(p); err != nil {
					return InsertFigures{}, fmt.Errorf("inserting into %s: %w", e.Kind(), err)
				}
			}
			elapsed := time.Since(start)
			s := tree.Snapshot(e)
			return InsertFigures{
				Millis:       millis(elapsed),
				Height:       s.Height,
				MinHeight:    s.MinHeight,
				BalanceRatio: s.BalanceRatio,
				Rotations:    s.Rotations,
			}, d.verify("insertion", e)
		}

		bst, err := measure(tree.NewBST(0, size))
		if err != nil {
			return err
		}
		treap, err := measure(tree.NewTreap(seed, size))
		if err != nil {
			return err
		}
		r.Insertion = append(r.Insertion, InsertionResult{Size: size, BST: bst, Treap: treap})
		d.logger.Debug("insertion measured", "size", size, "bst_ms", bst.Millis, "treap_ms", treap.Millis)
	}
	return nil
}

func (d *Driver) search(rng *rand.Rand, seed uint64, r *Report) error {
	if d.cfg.SearchSize == 0 {
		return nil
	}
	p, err := d.build(seed, Synthetic(rng, d.cfg.SearchSize))
	if err != nil {
		return err
	}
	measure := func(e tree.Engine) SearchFigures {
		return SearchFigures{
			MostPopularMicros: perOp(d.cfg.SearchOps, func(int) { e.MostPopular() }),
			MostRecentMicros:  perOp(d.cfg.RecentOps, func(int) { e.MostRecent(recentK) }),
		}
	}
	r.Search = &SearchResult{Size: d.cfg.SearchSize, BST: measure(p.bst), Treap: measure(p.treap)}
	return d.verify("search", p.bst, p.treap)
}

func (d *Driver) like(rng *rand.Rand, seed uint64, r *Report) error {
	size := d.cfg.LikeSize
	if size == 0 {
		return nil
	}
	posts := Synthetic(rng, size)
	p, err := d.build(seed, posts)
	if err != nil {
		return err
	}
	picks := make([]int, d.cfg.LikeOps)
	for i := range picks {
		picks[i] = rng.IntN(size)
	}
	target := posts[min(bubbleIndex, size-1)].ID

	measure := func(e tree.Engine) LikeFigures {
		resetRotations(e)
		var f LikeFigures
		f.LikeMicros = perOp(len(picks), func(i int) { e.Like(posts[picks[i]].ID) })
		f.Rotations = rotations(e)
		f.BubbleMicros = perOp(d.cfg.BubbleOps, func(int) { e.Like(target) })
		f.BubbleRotations = rotations(e) - f.Rotations
		return f
	}
	res := &LikeResult{
		Size:      size,
		Ops:       len(picks),
		BubbleOps: d.cfg.BubbleOps,
		TargetID:  target,
		BST:       measure(p.bst),
		Treap:     measure(p.treap),
	}
	if top, ok := p.treap.MostPopular(); ok {
		res.TargetOnTop = top.ID == target
	}
	r.Like = res
	return d.verify("like", p.bst, p.treap)
}

func (d *Driver) deletion(rng *rand.Rand, seed uint64, r *Report) error {
	for _, size := range d.cfg.DeleteSizes {
		posts := Synthetic(rng, size)
		n := int(float64(size) * d.cfg.DeleteFraction)
		p, err := d.build(seed, posts)
		if err != nil {
			return err
		}
		measure := func(e tree.Engine) (DeleteFigures, error) {
			f := DeleteFigures{InitialHeight: e.Height()}
			before := e.Len()
			resetRotations(e)
			start := time.Now()
			for _, ps := range posts[:n] {
				e.Delete(ps.ID)
			}
			f.Millis = millis(time.Since(start))
			f.FinalHeight = e.Height()
			f.Rotations = rotations(e)
			f.Deleted = before - e.Len()
			return f, d.verify("deletion", e)
		}
		bst, err := measure(p.bst)
		if err != nil {
			return err
		}
		treap, err := measure(p.treap)
		if err != nil {
			return err
		}
		r.Deletion = append(r.Deletion, DeletionResult{Size: size, BST: bst, Treap: treap})
	}
	return nil
}

func (d *Driver) query(rng *rand.Rand, seed uint64, r *Report) error {
	if d.cfg.QuerySize == 0 {
		return nil
	}
	p, err := d.build(seed, Synthetic(rng, d.cfg.QuerySize))
	if err != nil {
		return err
	}
	measure := func(e tree.Engine) QueryFigures {
		f := QueryFigures{
			MostPopularMicros: perOp(1, func(int) { e.MostPopular() }),
			RecentMicros:      make([]float64, 0, len(d.cfg.RecentKs)),
		}
		for _, k := range d.cfg.RecentKs {
			f.RecentMicros = append(f.RecentMicros, perOp(d.cfg.RecentOps, func(int) { e.MostRecent(k) }))
		}
		f.MixedMicros = perOp(mixedOps, func(i int) {
			switch i % 3 {
			case 0:
				e.MostPopular()
			case 1:
				e.MostRecent(5)
			default:
				e.MostRecent(15)
			}
		})
		return f
	}
	r.Query = &QueryResult{
		Size:  d.cfg.QuerySize,
		Ks:    append([]int(nil), d.cfg.RecentKs...),
		BST:   measure(p.bst),
		Treap: measure(p.treap),
	}
	return d.verify("query", p.bst, p.treap)
}

// loading reads each dataset into a fresh engine of each kind. The two
// engines load concurrently and each gets its own LoadTimeout budget.
func (d *Driver) loading(ctx context.Context, seed uint64, r *Report) error {
	for _, path := range d.cfg.Datasets {
		var res LoadingResult
		res.Path = path

		g, gctx := errgroup.WithContext(ctx)
		load := func(kind tree.Kind, out *LoadFigures) {
			g.Go(func() error {
				e, err := tree.New(kind, tree.Options{MaxNodes: -1, Seed: seed})
				if err != nil {
					return err
				}
				defer e.Clear()
				lr, err := ingestion.LoadFile(gctx, path, d.maxLineBytes, e, ingestion.Options{
					Timeout:       d.cfg.LoadTimeout,
					ProgressEvery: 1_000_000,
					Label:         string(kind),
				})
				if err != nil {
					return fmt.Errorf("loading %s into %s: %w", path, kind, err)
				}
				*out = LoadFigures{
					Posts:           lr.Loaded,
					Skipped:         lr.Skipped,
					Height:          e.Height(),
					Millis:          millis(lr.Elapsed),
					TimedOut:        lr.TimedOut,
					CapacityReached: lr.CapacityReached,
				}
				return d.verify("loading", e)
			})
		}
		load(tree.KindBST, &res.BST)
		load(tree.KindTreap, &res.Treap)
		if err := g.Wait(); err != nil {
			return err
		}
		r.Loading = append(r.Loading, res)
		d.logger.Info("dataset loaded",
			"path", path,
			"bst_posts", res.BST.Posts,
			"treap_posts", res.Treap.Posts,
			"bst_height", res.BST.Height,
			"treap_height", res.Treap.Height,
		)
	}
	return nil
}

// Dump renders both engines built over the first n synthetic posts.
func Dump(w io.Writer, n int, seed uint64) error {
	p, err := (&Driver{}).build(seed, Synthetic(newRand(seed), n))
	if err != nil {
		return err
	}
	for _, e := range []tree.Engine{p.bst, p.treap} {
		if _, err := fmt.Fprintf(w, "\n[%s]\n", e.Kind()); err != nil {
			return err
		}
		if err := e.Render(w); err != nil {
			return err
		}
	}
	return nil
}
