package post

import (
	"fmt"
	"time"
)

// Op names the mutation carried by an Event.
type Op string

const (
	OpInsert Op = "insert"
	OpLike   Op = "like"
	OpDelete Op = "delete"
)

// Event is the Kafka message payload for a single post mutation.
type Event struct {
	Op        Op        `json:"op"`
	ID        string    `json:"id"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Score     int32     `json:"score,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Post returns the record carried by an insert event.
func (e Event) Post() Post {
	return Post{ID: e.ID, Timestamp: e.Timestamp, Score: e.Score}
}

// InsertEvent wraps p in an insert event stamped with the current time.
func InsertEvent(p Post) Event {
	return Event{
		Op:        OpInsert,
		ID:        p.ID,
		Timestamp: p.Timestamp,
		Score:     p.Score,
		EmittedAt: time.Now().UTC(),
	}
}

// ValidateEvent checks that the event names a known op and, for inserts,
// carries a valid post.
func ValidateEvent(e Event) error {
	switch e.Op {
	case OpInsert:
		return Validate(e.Post())
	case OpLike, OpDelete:
		if e.ID == "" {
			return &ValidationError{Fields: map[string]string{"id": "id is required"}}
		}
		return nil
	default:
		return &ValidationError{Fields: map[string]string{"op": fmt.Sprintf("unknown op %q", e.Op)}}
	}
}
