package tree

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

// nilSlot is the index of the sentinel slot. A child index of nilSlot means
// "no child"; slot 0 never holds a live node.
const nilSlot int32 = 0

const maxSlots = math.MaxInt32

type node struct {
	post     post.Post
	left     int32
	right    int32
	tiebreak uint32
}

// arena owns every node of one tree. Freed slots go on a free list and are
// handed out again before the backing slice grows.
type arena struct {
	nodes []node
	free  []int32
	live  int64
	limit int
}

func newArena(sizeHint int) arena {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return arena{
		nodes: make([]node, 1, sizeHint+1),
		limit: maxSlots,
	}
}

func (a *arena) alloc(p post.Post) (int32, error) {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.nodes[idx] = node{post: p}
		a.live++
		return idx, nil
	}
	if len(a.nodes) >= a.limit {
		return nilSlot, fmt.Errorf("arena exhausted at %d slots: %w", len(a.nodes)-1, apperrors.ErrAllocationFailed)
	}
	a.nodes = append(a.nodes, node{post: p})
	a.live++
	return int32(len(a.nodes) - 1), nil
}

func (a *arena) release(idx int32) {
	a.nodes[idx] = node{}
	a.free = append(a.free, idx)
	a.live--
}

// reset drops the backing storage so the garbage collector can reclaim it.
func (a *arena) reset() {
	a.nodes = make([]node, 1)
	a.free = nil
	a.live = 0
}

// childLink returns the field of parent that currently points at child.
func (a *arena) childLink(parent, child int32) *int32 {
	if a.nodes[parent].left == child {
		return &a.nodes[parent].left
	}
	return &a.nodes[parent].right
}

// link returns the field holding child: root when parent is nilSlot,
// otherwise the matching child field of parent.
func (a *arena) link(root *int32, parent, child int32) *int32 {
	if parent == nilSlot {
		return root
	}
	return a.childLink(parent, child)
}

func (a *arena) score(idx int32) int32 {
	return a.nodes[idx].post.Score
}

// bump raises a score by one, saturating at the int32 ceiling.
func (a *arena) bump(idx int32) {
	if a.nodes[idx].post.Score < math.MaxInt32 {
		a.nodes[idx].post.Score++
	}
}
