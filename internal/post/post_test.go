package post

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		post    Post
		wantErr bool
	}{
		{"ok", Post{ID: "abc", Timestamp: 1, Score: 0}, false},
		{"negative values allowed", Post{ID: "abc", Timestamp: -5, Score: -1}, false},
		{"empty id", Post{ID: ""}, true},
		{"blank id", Post{ID: "   "}, true},
		{"id at limit", Post{ID: strings.Repeat("x", maxIDLength)}, false},
		{"id too long", Post{ID: strings.Repeat("x", maxIDLength+1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.post)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperrors.ErrInvalidInput)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, "id")
		})
	}
}

func TestValidateEvent(t *testing.T) {
	assert.NoError(t, ValidateEvent(InsertEvent(Post{ID: "a", Timestamp: 1, Score: 2})))
	assert.NoError(t, ValidateEvent(Event{Op: OpLike, ID: "a"}))
	assert.NoError(t, ValidateEvent(Event{Op: OpDelete, ID: "a"}))
	assert.ErrorIs(t, ValidateEvent(Event{Op: OpLike}), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, ValidateEvent(Event{Op: OpInsert}), apperrors.ErrInvalidInput)

	err := ValidateEvent(Event{Op: "upsert", ID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown op "upsert"`)
}

func TestEventWireFormat(t *testing.T) {
	ev := InsertEvent(Post{ID: "p1", Timestamp: 1609459200, Score: 42})
	require.False(t, ev.EmittedAt.IsZero())

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "insert", fields["op"])
	assert.Equal(t, "p1", fields["id"])
	assert.EqualValues(t, 1609459200, fields["timestamp"])
	assert.EqualValues(t, 42, fields["score"])

	b, err = json.Marshal(Event{Op: OpLike, ID: "p1"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "timestamp")
	assert.NotContains(t, string(b), "score")
}

func TestString(t *testing.T) {
	assert.Equal(t, "p1 (TS: 10, Score: 3)", Post{ID: "p1", Timestamp: 10, Score: 3}.String())
}
