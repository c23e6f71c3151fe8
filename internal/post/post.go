// Package post defines the record indexed by the tree engines and the event
// schema used to stream mutations to them over Kafka.
package post

import "fmt"

// Post is one indexed record. ID and Timestamp never change once the post is
// inserted; Score is only ever raised, one like at a time.
type Post struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Score     int32  `json:"score"`
}

func (p Post) String() string {
	return fmt.Sprintf("%s (TS: %d, Score: %d)", p.ID, p.Timestamp, p.Score)
}
