package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/tree"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

func encode(t *testing.T, ev post.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleEventsAppliesMutations(t *testing.T) {
	engine := indexer.New(tree.NewTreap(9, 0), nil)
	handle := HandleEvents(engine, nil)
	ctx := context.Background()

	for _, p := range []post.Post{
		{ID: "a", Timestamp: 100, Score: 5},
		{ID: "b", Timestamp: 200, Score: 9},
		{ID: "c", Timestamp: 150, Score: 7},
	} {
		require.NoError(t, handle(ctx, []byte(p.ID), encode(t, post.InsertEvent(p))))
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, handle(ctx, []byte("c"), encode(t, post.Event{Op: post.OpLike, ID: "c"})))
	}
	require.NoError(t, handle(ctx, []byte("a"), encode(t, post.Event{Op: post.OpDelete, ID: "a"})))

	top, ok := engine.MostPopular()
	require.True(t, ok)
	require.Equal(t, post.Post{ID: "c", Timestamp: 150, Score: 11}, top)
	require.EqualValues(t, 2, engine.Len())
}

func TestHandleEventsDropsBadMessages(t *testing.T) {
	engine := indexer.New(tree.NewBST(0, 0), nil)
	handle := HandleEvents(engine, nil)
	ctx := context.Background()

	require.NoError(t, handle(ctx, nil, []byte("not json")))
	require.NoError(t, handle(ctx, nil, encode(t, post.Event{Op: "upsert", ID: "x"})))
	require.NoError(t, handle(ctx, nil, encode(t, post.Event{Op: post.OpInsert, ID: ""})))
	require.NoError(t, handle(ctx, nil, encode(t, post.Event{Op: post.OpLike, ID: "ghost"})))
	require.Zero(t, engine.Len())
}

func TestHandleEventsSurfacesCapacity(t *testing.T) {
	engine := indexer.New(tree.NewBST(1, 0), nil)
	handle := HandleEvents(engine, nil)
	ctx := context.Background()

	require.NoError(t, handle(ctx, nil, encode(t, post.InsertEvent(post.Post{ID: "a", Timestamp: 1}))))
	err := handle(ctx, nil, encode(t, post.InsertEvent(post.Post{ID: "b", Timestamp: 2})))
	require.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
}
