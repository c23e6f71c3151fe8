package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/tree"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

// drain reads dec to the end, collecting posts and counting skippable errors.
func drain(t *testing.T, dec Decoder) ([]post.Post, int) {
	t.Helper()
	var out []post.Post
	skipped := 0
	for {
		p, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out, skipped
		}
		if errors.Is(err, apperrors.ErrMalformedRecord) {
			skipped++
			continue
		}
		require.NoError(t, err)
		out = append(out, p)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		comp   Compression
	}{
		{"posts.csv", FormatCSV, CompressionNone},
		{"/data/POSTS.JSON", FormatJSON, CompressionNone},
		{"a.ndjson", FormatNDJSON, CompressionNone},
		{"a.jsonl", FormatNDJSON, CompressionNone},
		{"dataset.tgz", FormatNDJSON, CompressionZstd},
		{"RS_2024-01.zst", FormatNDJSON, CompressionZstd},
		{"posts.csv.zst", FormatCSV, CompressionZstd},
		{"posts.json.gz", FormatJSON, CompressionGzip},
		{"dump.gz", FormatNDJSON, CompressionGzip},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f, c, err := DetectFormat(tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.format, f)
			require.Equal(t, tt.comp, c)
		})
	}

	for _, bad := range []string{"posts.txt", "README"} {
		_, _, err := DetectFormat(bad)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput, bad)
	}
}

func TestCSVDecoder(t *testing.T) {
	in := "id,timestamp,score\n" +
		"a,100,5\n" +
		"short,1\n" +
		"b, 200 ,9\n" +
		"c,notanumber,1\n" +
		"d,300,99999999999\n" +
		"e,150,7\n"
	dec, err := NewDecoder(strings.NewReader(in), FormatCSV, 0)
	require.NoError(t, err)

	posts, skipped := drain(t, dec)
	require.Equal(t, 3, skipped)
	require.Equal(t, []post.Post{
		{ID: "a", Timestamp: 100, Score: 5},
		{ID: "b", Timestamp: 200, Score: 9},
		{ID: "e", Timestamp: 150, Score: 7},
	}, posts)
}

func TestJSONArrayDecoder(t *testing.T) {
	in := `[
  {"id": "a", "created_utc": 100, "score": 5},
  {"id": "b", "created_utc": "200", "score": 9},
  {"id": "c", "created_utc": 150.9, "score": 7},
  {"id": "d", "created_utc": "soon", "score": 1},
  {"id": "e", "created_utc": 10},
  {"created_utc": 10, "score": 1}
]`
	dec, err := NewDecoder(strings.NewReader(in), FormatJSON, 0)
	require.NoError(t, err)

	posts, skipped := drain(t, dec)
	require.Equal(t, 3, skipped)
	require.Equal(t, []post.Post{
		{ID: "a", Timestamp: 100, Score: 5},
		{ID: "b", Timestamp: 200, Score: 9},
		{ID: "c", Timestamp: 150, Score: 7},
	}, posts)

	dec, err = NewDecoder(strings.NewReader(`{"id":"a"}`), FormatJSON, 0)
	require.NoError(t, err)
	_, err = dec.Next()
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreatedUTCRange(t *testing.T) {
	in := `{"id":"max","created_utc":9223372036854775807,"score":1}
{"id":"over","created_utc":9223372036854775808,"score":1}
{"id":"overf","created_utc":9.223372036854775807e18,"score":1}
{"id":"under","created_utc":-9.3e18,"score":1}
{"id":"below","created_utc":9.2233720368547748e18,"score":1}
`
	dec, err := NewDecoder(strings.NewReader(in), FormatNDJSON, 0)
	require.NoError(t, err)
	posts, skipped := drain(t, dec)
	require.Equal(t, 3, skipped)
	require.Equal(t, []post.Post{
		{ID: "max", Timestamp: math.MaxInt64, Score: 1},
		{ID: "below", Timestamp: 9223372036854774784, Score: 1},
	}, posts)
}

func TestNDJSONDecoder(t *testing.T) {
	in := `{"id":"a","created_utc":100,"score":5,"title":"x"}

{"id":"b","created_utc":200,"score":9}
not json
{"id":"c","created_utc":150,"score":7}
`
	dec, err := NewDecoder(strings.NewReader(in), FormatNDJSON, 0)
	require.NoError(t, err)
	posts, skipped := drain(t, dec)
	require.Equal(t, 1, skipped)
	require.Len(t, posts, 3)

	dec, err = NewDecoder(strings.NewReader(strings.Repeat("x", 100)+"\n"), FormatNDJSON, 16)
	require.NoError(t, err)
	_, err = dec.Next()
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrMalformedRecord)
}

func ndjsonLines(n int) []byte {
	var buf bytes.Buffer
	for i := range n {
		fmt.Fprintf(&buf, `{"id":"post_%d","created_utc":%d,"score":%d}`+"\n", i, 1609459200+i*3600, i%1000+1)
	}
	return buf.Bytes()
}

func TestOpenCompressed(t *testing.T) {
	dir := t.TempDir()
	raw := ndjsonLines(500)

	zpath := filepath.Join(dir, "dataset.tgz")
	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	require.NoError(t, err)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(zpath, zbuf.Bytes(), 0o644))

	gpath := filepath.Join(dir, "dataset.ndjson.gz")
	var gbuf bytes.Buffer
	gw := gzip.NewWriter(&gbuf)
	_, err = gw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, os.WriteFile(gpath, gbuf.Bytes(), 0o644))

	for _, path := range []string{zpath, gpath} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			dec, closer, err := Open(path, 0)
			require.NoError(t, err)
			defer closer.Close()
			posts, skipped := drain(t, dec)
			require.Zero(t, skipped)
			require.Len(t, posts, 500)
			require.Equal(t, post.Post{ID: "post_499", Timestamp: 1609459200 + 499*3600, Score: 500}, posts[499])
		})
	}

	_, _, err = Open(filepath.Join(dir, "missing.csv"), 0)
	require.Error(t, err)
}

func TestLoadIntoTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.ndjson")
	require.NoError(t, os.WriteFile(path, append(ndjsonLines(1000), []byte("{\"id\":\"\",\"created_utc\":1,\"score\":1}\n")...), 0o644))

	e := tree.NewTreap(1, 0)
	var progress []int64
	res, err := LoadFile(context.Background(), path, 0, e, Options{
		ProgressEvery:  250,
		EstimateTarget: 134_000_000,
		OnProgress:     func(p Progress) { progress = append(progress, p.Loaded) },
	})
	require.NoError(t, err)
	require.EqualValues(t, 1000, res.Loaded)
	require.EqualValues(t, 1, res.Skipped)
	require.False(t, res.TimedOut)
	require.Positive(t, res.Estimated)
	require.Equal(t, []int64{250, 500, 750, 1000}, progress)
	require.EqualValues(t, 1000, e.Len())
	require.NoError(t, e.Verify())
}

func TestLoadStopsAtCapacity(t *testing.T) {
	dec, err := NewDecoder(bytes.NewReader(ndjsonLines(100)), FormatNDJSON, 0)
	require.NoError(t, err)

	b := tree.NewBST(40, 0)
	res, err := Load(context.Background(), dec, b, Options{})
	require.NoError(t, err)
	require.True(t, res.CapacityReached)
	require.EqualValues(t, 40, res.Loaded)
	require.EqualValues(t, 40, b.Len())
}

type endless struct{ n int }

func (d *endless) Next() (post.Post, error) {
	d.n++
	return post.Post{ID: "p" + strconv.Itoa(d.n), Timestamp: int64(d.n % 1000), Score: 1}, nil
}

type discard struct{}

func (discard) Insert(post.Post) error { return nil }

func TestLoadTimeout(t *testing.T) {
	res, err := Load(context.Background(), &endless{}, discard{}, Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	require.Positive(t, res.Loaded)
	require.GreaterOrEqual(t, res.Elapsed, 20*time.Millisecond)
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Load(ctx, &endless{}, discard{}, Options{Timeout: time.Minute})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, res.TimedOut)
}

type failingSink struct{ after int }

func (s *failingSink) Insert(post.Post) error {
	if s.after == 0 {
		return fmt.Errorf("arena: %w", apperrors.ErrAllocationFailed)
	}
	s.after--
	return nil
}

func TestLoadAllocationFailure(t *testing.T) {
	res, err := Load(context.Background(), &endless{}, &failingSink{after: 10}, Options{})
	require.ErrorIs(t, err, apperrors.ErrAllocationFailed)
	require.EqualValues(t, 10, res.Loaded)
	require.False(t, res.CapacityReached)
}

func TestExportRoundTrip(t *testing.T) {
	src := tree.NewBST(0, 0)
	for i := range 50 {
		require.NoError(t, src.Insert(post.Post{ID: "p" + strconv.Itoa(i), Timestamp: int64((i * 37) % 50), Score: int32(i)}))
	}
	var want strings.Builder
	require.NoError(t, src.Render(&want))

	for _, name := range []string{"snap.ndjson", "snap.ndjson.zst", "snap.ndjson.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			n, err := Export(path, src)
			require.NoError(t, err)
			require.EqualValues(t, 50, n)
			_, err = os.Stat(path + ".tmp")
			require.True(t, os.IsNotExist(err))

			dst := tree.NewBST(0, 0)
			res, err := LoadFile(context.Background(), path, 0, dst, Options{})
			require.NoError(t, err)
			require.EqualValues(t, 50, res.Loaded)

			var got strings.Builder
			require.NoError(t, dst.Render(&got))
			require.Equal(t, want.String(), got.String())
		})
	}
}

func TestExportRejectsCSV(t *testing.T) {
	_, err := Export(filepath.Join(t.TempDir(), "snap.csv"), tree.NewBST(0, 0))
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
