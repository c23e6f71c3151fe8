package tree

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
)

// Every traversal here is iterative. Shapes produced by sorted input or
// skewed scores can be a single chain of millions of nodes.

// fifo is a slice-backed queue. Consumed entries are compacted away once
// they make up half of the buffer.
type fifo[T any] struct {
	items []T
	head  int
}

func (q *fifo[T]) push(v T) { q.items = append(q.items, v) }

func (q *fifo[T]) pop() T {
	v := q.items[q.head]
	q.head++
	if q.head >= 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v
}

func (q *fifo[T]) len() int { return len(q.items) - q.head }

type located struct {
	idx    int32
	parent int32
}

// bfsFind returns the first node in level order whose id matches, with its
// parent. Both are nilSlot when nothing matches.
func bfsFind(a *arena, root int32, id string) (idx, parent int32) {
	if root == nilSlot {
		return nilSlot, nilSlot
	}
	var q fifo[located]
	q.push(located{idx: root})
	for q.len() > 0 {
		cur := q.pop()
		n := &a.nodes[cur.idx]
		if n.post.ID == id {
			return cur.idx, cur.parent
		}
		if n.left != nilSlot {
			q.push(located{idx: n.left, parent: cur.idx})
		}
		if n.right != nilSlot {
			q.push(located{idx: n.right, parent: cur.idx})
		}
	}
	return nilSlot, nilSlot
}

// bfsMaxScore returns the highest-scoring node. On ties the node reached
// first in level order wins.
func bfsMaxScore(a *arena, root int32) int32 {
	if root == nilSlot {
		return nilSlot
	}
	best := root
	var q fifo[int32]
	q.push(root)
	for q.len() > 0 {
		cur := q.pop()
		n := &a.nodes[cur]
		if n.post.Score > a.nodes[best].post.Score {
			best = cur
		}
		if n.left != nilSlot {
			q.push(n.left)
		}
		if n.right != nilSlot {
			q.push(n.right)
		}
	}
	return best
}

// levels walks the tree one level at a time. visit receives the 1-based level
// of each node and stops the walk by returning false.
func levels(a *arena, root int32, visit func(level int, n *node) bool) {
	if root == nilSlot {
		return
	}
	var q fifo[int32]
	q.push(root)
	for level := 1; q.len() > 0; level++ {
		for width := q.len(); width > 0; width-- {
			n := &a.nodes[q.pop()]
			if !visit(level, n) {
				return
			}
			if n.left != nilSlot {
				q.push(n.left)
			}
			if n.right != nilSlot {
				q.push(n.right)
			}
		}
	}
}

func height(a *arena, root int32) int {
	h := 0
	levels(a, root, func(level int, _ *node) bool {
		h = level
		return true
	})
	return h
}

// minHeight is the level of the shallowest node missing at least one child.
func minHeight(a *arena, root int32) int {
	h := 0
	levels(a, root, func(level int, n *node) bool {
		if n.left == nilSlot || n.right == nilSlot {
			h = level
			return false
		}
		return true
	})
	return h
}

// newestFirst collects up to k posts in descending timestamp order by walking
// right, self, left.
func newestFirst(a *arena, root int32, k int) []post.Post {
	if k <= 0 || root == nilSlot {
		return []post.Post{}
	}
	out := make([]post.Post, 0, min(int64(k), a.live))
	var stack []int32
	for cur := root; cur != nilSlot; cur = a.nodes[cur].right {
		stack = append(stack, cur)
	}
	for len(stack) > 0 && len(out) < k {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, a.nodes[cur].post)
		for c := a.nodes[cur].left; c != nilSlot; c = a.nodes[c].right {
			stack = append(stack, c)
		}
	}
	return out
}

// teardown releases every node reachable from root and returns how many
// were released.
func teardown(a *arena, root int32) int64 {
	if root == nilSlot {
		return 0
	}
	var released int64
	stack := []int32{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := a.nodes[cur]
		if n.left != nilSlot {
			stack = append(stack, n.left)
		}
		if n.right != nilSlot {
			stack = append(stack, n.right)
		}
		a.release(cur)
		released++
	}
	a.reset()
	return released
}

type bounded struct {
	idx          int32
	lo, hi       int64
	hasLo, hasHi bool
}

// checkOrder verifies that no left descendant is newer and no right
// descendant is older than its ancestor, and that the reachable node count
// matches the arena's live count. With strictLeft a left descendant must also
// be strictly older; rotations between equal timestamps break that, so only
// trees that never rotate ask for it.
func checkOrder(a *arena, root int32, strictLeft bool) error {
	var seen int64
	if root != nilSlot {
		stack := []bounded{{idx: root}}
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			seen++
			if seen > a.live {
				return fmt.Errorf("more than %d reachable nodes: cycle or leaked slot", a.live)
			}
			n := &a.nodes[b.idx]
			ts := n.post.Timestamp
			if b.hasLo && ts < b.lo {
				return fmt.Errorf("node %q: timestamp %d below lower bound %d", n.post.ID, ts, b.lo)
			}
			if b.hasHi && (ts > b.hi || strictLeft && ts == b.hi) {
				return fmt.Errorf("node %q: timestamp %d above upper bound %d", n.post.ID, ts, b.hi)
			}
			if n.left != nilSlot {
				stack = append(stack, bounded{idx: n.left, lo: b.lo, hasLo: b.hasLo, hi: ts, hasHi: true})
			}
			if n.right != nilSlot {
				stack = append(stack, bounded{idx: n.right, lo: ts, hasLo: true, hi: b.hi, hasHi: b.hasHi})
			}
		}
	}
	if seen != a.live {
		return fmt.Errorf("reachable nodes %d, live count %d", seen, a.live)
	}
	return nil
}

// checkHeap verifies that no child outscores its parent.
func checkHeap(a *arena, root int32) error {
	if root == nilSlot {
		return nil
	}
	stack := []int32{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &a.nodes[cur]
		for _, c := range [2]int32{n.left, n.right} {
			if c == nilSlot {
				continue
			}
			if a.nodes[c].post.Score > n.post.Score {
				return fmt.Errorf("node %q: score %d exceeds parent %q score %d",
					a.nodes[c].post.ID, a.nodes[c].post.Score, n.post.ID, n.post.Score)
			}
			stack = append(stack, c)
		}
	}
	return nil
}
