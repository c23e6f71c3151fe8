// Package tree holds the two post-indexing engines: a plain binary search
// tree and a treap that also keeps the most popular post at the root. Both
// order posts by timestamp and answer the same queries through Engine.
//
// Engines are not safe for concurrent use. Callers that share one engine
// between goroutines must serialize access themselves.
package tree

import (
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

type Kind string

const (
	KindBST   Kind = "bst"
	KindTreap Kind = "treap"
)

// Kinds lists every engine kind in report order.
var Kinds = []Kind{KindBST, KindTreap}

// DefaultMaxNodes is the BST live-node ceiling used when Options leave it unset.
const DefaultMaxNodes int64 = 150_000_000

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindBST:
		return KindBST, nil
	case KindTreap:
		return KindTreap, nil
	default:
		return "", fmt.Errorf("%q: %w", s, apperrors.ErrUnknownEngine)
	}
}

// Engine is the contract both trees implement.
type Engine interface {
	// Insert adds p. On failure the tree is left unchanged.
	Insert(p post.Post) error
	// Delete removes the first post with the given id. It reports whether
	// one was found.
	Delete(id string) bool
	// Like increments the score of the first post with the given id.
	Like(id string) bool
	FindByID(id string) (post.Post, bool)
	MostPopular() (post.Post, bool)
	// MostRecent returns up to k posts, newest first.
	MostRecent(k int) []post.Post
	Height() int
	MinHeight() int
	Len() int64
	// Clear releases every node and returns how many there were.
	Clear() int64
	Kind() Kind
	// Verify walks the whole tree and checks its ordering invariants.
	Verify() error
	Render(w io.Writer) error
	// Walk visits posts in level order until visit returns false.
	// Reinserting them in that order into an empty BST rebuilds the same
	// shape.
	Walk(visit func(p post.Post) bool)
}

type Options struct {
	// MaxNodes caps the BST live-node count. Zero means unlimited; a
	// negative value selects DefaultMaxNodes. The treap has no ceiling.
	MaxNodes int64
	// Seed feeds the treap tiebreak source. Zero picks a random seed.
	Seed uint64
	// SizeHint preallocates arena slots.
	SizeHint int
}

func New(kind Kind, opts Options) (Engine, error) {
	switch kind {
	case KindBST:
		maxNodes := opts.MaxNodes
		if maxNodes < 0 {
			maxNodes = DefaultMaxNodes
		}
		return NewBST(maxNodes, opts.SizeHint), nil
	case KindTreap:
		return NewTreap(opts.Seed, opts.SizeHint), nil
	default:
		return nil, fmt.Errorf("%q: %w", kind, apperrors.ErrUnknownEngine)
	}
}

type Stats struct {
	Kind         Kind    `json:"kind"`
	Nodes        int64   `json:"nodes"`
	Height       int     `json:"height"`
	MinHeight    int     `json:"min_height"`
	BalanceRatio float64 `json:"balance_ratio"`
	Rotations    int64   `json:"rotations"`
}

// Snapshot measures e. It walks the tree twice, so it costs O(n).
func Snapshot(e Engine) Stats {
	s := Stats{
		Kind:      e.Kind(),
		Nodes:     e.Len(),
		Height:    e.Height(),
		MinHeight: e.MinHeight(),
	}
	s.BalanceRatio = BalanceRatio(s.MinHeight, s.Height)
	if r, ok := e.(interface{ Rotations() int64 }); ok {
		s.Rotations = r.Rotations()
	}
	return s
}

// BalanceRatio is minHeight/height, or 0 for an empty tree.
func BalanceRatio(minHeight, height int) float64 {
	if height == 0 {
		return 0
	}
	return float64(minHeight) / float64(height)
}
