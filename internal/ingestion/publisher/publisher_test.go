package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/resilience"
)

type recorder struct {
	batches  [][]kafka.Event
	failures int
}

func (r *recorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("broker unavailable")
	}
	r.batches = append(r.batches, append([]kafka.Event(nil), events...))
	return nil
}

const dataset = "id,timestamp,score\n" +
	"a,100,5\n" +
	"b,200,9\n" +
	"bad\n" +
	"c,150,7\n" +
	" ,1,1\n" +
	"d,300,1\n" +
	"e,400,2\n"

func TestReplayBatchesInsertEvents(t *testing.T) {
	dec, err := ingestion.NewDecoder(strings.NewReader(dataset), ingestion.FormatCSV, 0)
	require.NoError(t, err)
	rec := &recorder{failures: 1}

	res, err := Replay(context.Background(), dec, rec, Options{
		BatchSize: 2,
		Retry:     resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	require.NoError(t, err)
	require.EqualValues(t, 5, res.Published)
	require.EqualValues(t, 2, res.Skipped)
	require.EqualValues(t, 3, res.Batches)
	require.Len(t, rec.batches, 3)

	first := rec.batches[0][0]
	require.Equal(t, "a", first.Key)
	ev, ok := first.Value.(post.Event)
	require.True(t, ok)
	require.Equal(t, post.OpInsert, ev.Op)
	require.Equal(t, post.Post{ID: "a", Timestamp: 100, Score: 5}, ev.Post())
}

func TestReplayLimit(t *testing.T) {
	dec, err := ingestion.NewDecoder(strings.NewReader(dataset), ingestion.FormatCSV, 0)
	require.NoError(t, err)
	rec := &recorder{}

	res, err := Replay(context.Background(), dec, rec, Options{BatchSize: 10, Limit: 3})
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Published)
	require.Len(t, rec.batches, 1)
}

func TestReplayGivesUp(t *testing.T) {
	dec, err := ingestion.NewDecoder(strings.NewReader(dataset), ingestion.FormatCSV, 0)
	require.NoError(t, err)
	rec := &recorder{failures: 100}

	res, err := Replay(context.Background(), dec, rec, Options{
		BatchSize: 2,
		Retry:     resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond},
	})
	require.Error(t, err)
	require.Zero(t, res.Published)
}
