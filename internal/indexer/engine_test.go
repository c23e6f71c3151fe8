package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/tree"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/metrics"
)

func newEngine(t *testing.T, kind string) (*Engine, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	e, err := NewEngine(config.EngineConfig{Kind: kind, MaxNodes: 0, Seed: 3}, metrics.NewWithRegistry(reg))
	require.NoError(t, err)
	return e, reg
}

// metricValue sums the samples of name whose labels include want.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			found := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					found++
				}
			}
			if found != len(want) {
				continue
			}
			switch {
			case m.Counter != nil:
				total += m.GetCounter().GetValue()
			case m.Gauge != nil:
				total += m.GetGauge().GetValue()
			case m.Histogram != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestNewEngineRejectsUnknownKind(t *testing.T) {
	_, err := NewEngine(config.EngineConfig{Kind: "avl"}, nil)
	require.ErrorIs(t, err, apperrors.ErrUnknownEngine)
}

func TestEngineOperationsRecordMetrics(t *testing.T) {
	e, reg := newEngine(t, "treap")
	require.Equal(t, tree.KindTreap, e.Kind())

	require.NoError(t, e.Insert(post.Post{ID: "a", Timestamp: 100, Score: 5}))
	require.NoError(t, e.Insert(post.Post{ID: "b", Timestamp: 200, Score: 9}))
	require.NoError(t, e.Insert(post.Post{ID: "c", Timestamp: 150, Score: 7}))
	require.True(t, e.Like("c"))
	require.False(t, e.Like("zzz"))

	p, ok := e.FindByID("c")
	require.True(t, ok)
	require.EqualValues(t, 8, p.Score)

	assert.EqualValues(t, 3, metricValue(t, reg, "post_operations_total",
		map[string]string{"engine": "treap", "op": "insert", "result": "ok"}))
	assert.EqualValues(t, 1, metricValue(t, reg, "post_operations_total",
		map[string]string{"op": "like", "result": "miss"}))
	assert.EqualValues(t, e.Stats().Rotations, metricValue(t, reg, "treap_rotations_total", nil))
	require.NoError(t, e.Verify())
}

func TestApply(t *testing.T) {
	e, _ := newEngine(t, "bst")

	applied, err := e.Apply(post.InsertEvent(post.Post{ID: "x", Timestamp: 1, Score: 1}))
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = e.Apply(post.Event{Op: post.OpLike, ID: "x"})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = e.Apply(post.Event{Op: post.OpDelete, ID: "nope"})
	require.NoError(t, err)
	require.False(t, applied)

	_, err = e.Apply(post.Event{Op: "upsert", ID: "x"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	applied, err = e.Apply(post.Event{Op: post.OpDelete, ID: "x"})
	require.NoError(t, err)
	require.True(t, applied)
	require.Zero(t, e.Len())
}

func TestConcurrentAccess(t *testing.T) {
	e, _ := newEngine(t, "treap")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				assert.NoError(t, e.Insert(post.Post{ID: id, Timestamp: int64(i), Score: int32(i % 17)}))
				e.Like(id)
				e.FindByID(id)
				e.MostPopular()
				e.MostRecent(5)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 2000, e.Len())
	require.NoError(t, e.Verify())
}

func TestLoadFileRefreshesGauges(t *testing.T) {
	e, reg := newEngine(t, "bst")
	path := filepath.Join(t.TempDir(), "posts.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,timestamp,score\na,3,1\nb,1,2\nbroken\nc,2,3\n"), 0o644))

	res, err := e.LoadFile(context.Background(), path, 0, ingestion.Options{})
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Loaded)
	require.EqualValues(t, 1, res.Skipped)

	assert.EqualValues(t, 3, metricValue(t, reg, "tree_nodes", map[string]string{"engine": "bst"}))
	assert.EqualValues(t, 3, metricValue(t, reg, "tree_height", map[string]string{"engine": "bst"}))
	assert.EqualValues(t, 1, metricValue(t, reg, "ingest_records_total",
		map[string]string{"engine": "bst", "status": "skipped"}))

	require.EqualValues(t, 3, e.Clear())
	assert.Zero(t, metricValue(t, reg, "tree_nodes", map[string]string{"engine": "bst"}))
}

func TestStatsLoopStopsWithContext(t *testing.T) {
	e, reg := newEngine(t, "bst")
	require.NoError(t, e.Insert(post.Post{ID: "a", Timestamp: 1, Score: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.StartStatsLoop(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return metricValue(t, reg, "tree_nodes", map[string]string{"engine": "bst"}) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestExportAndReload(t *testing.T) {
	e, _ := newEngine(t, "treap")
	for i := range 20 {
		require.NoError(t, e.Insert(post.Post{ID: fmt.Sprintf("p%d", i), Timestamp: int64(i), Score: int32(i % 7)}))
	}
	path := filepath.Join(t.TempDir(), "tree.ndjson.zst")
	n, err := e.Export(path)
	require.NoError(t, err)
	require.EqualValues(t, 20, n)

	restored, _ := newEngine(t, "treap")
	res, err := restored.LoadFile(context.Background(), path, 0, ingestion.Options{})
	require.NoError(t, err)
	require.EqualValues(t, 20, res.Loaded)
	require.NoError(t, restored.Verify())

	want, _ := e.MostPopular()
	got, ok := restored.MostPopular()
	require.True(t, ok)
	require.Equal(t, want.Score, got.Score)
	require.Equal(t, e.MostRecent(5), restored.MostRecent(5))
}
