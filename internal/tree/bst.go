package tree

import (
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

// BST is an unbalanced binary search tree keyed by timestamp. Equal
// timestamps go to the right subtree. Id lookups scan level by level.
type BST struct {
	arena
	root     int32
	maxNodes int64
}

var _ Engine = (*BST)(nil)

// NewBST returns an empty tree that refuses inserts once it holds maxNodes
// posts. maxNodes <= 0 disables the ceiling.
func NewBST(maxNodes int64, sizeHint int) *BST {
	return &BST{arena: newArena(sizeHint), maxNodes: maxNodes}
}

func (t *BST) Kind() Kind { return KindBST }
func (t *BST) Len() int64 { return t.live }

// MaxNodes reports the live-node ceiling, 0 when unlimited.
func (t *BST) MaxNodes() int64 { return t.maxNodes }

func (t *BST) Insert(p post.Post) error {
	if t.maxNodes > 0 && t.live >= t.maxNodes {
		return fmt.Errorf("insert %q: %d nodes: %w", p.ID, t.maxNodes, apperrors.ErrCapacityExceeded)
	}
	idx, err := t.alloc(p)
	if err != nil {
		return fmt.Errorf("insert %q: %w", p.ID, err)
	}
	if t.root == nilSlot {
		t.root = idx
		return nil
	}

	cur := t.root
	for {
		n := &t.nodes[cur]
		if p.Timestamp < n.post.Timestamp {
			if n.left == nilSlot {
				n.left = idx
				return nil
			}
			cur = n.left
		} else {
			if n.right == nilSlot {
				n.right = idx
				return nil
			}
			cur = n.right
		}
	}
}

func (t *BST) FindByID(id string) (post.Post, bool) {
	idx, _ := bfsFind(&t.arena, t.root, id)
	if idx == nilSlot {
		return post.Post{}, false
	}
	return t.nodes[idx].post, true
}

// Delete unlinks the first match. A node with two children is replaced by
// its in-order successor, which keeps the relative order of equal
// timestamps intact.
func (t *BST) Delete(id string) bool {
	target, parent := bfsFind(&t.arena, t.root, id)
	if target == nilSlot {
		return false
	}

	n := t.nodes[target]
	var repl int32
	switch {
	case n.left == nilSlot:
		repl = n.right
	case n.right == nilSlot:
		repl = n.left
	default:
		succParent, succ := target, n.right
		for t.nodes[succ].left != nilSlot {
			succParent, succ = succ, t.nodes[succ].left
		}
		if succParent != target {
			t.nodes[succParent].left = t.nodes[succ].right
			t.nodes[succ].right = n.right
		}
		t.nodes[succ].left = n.left
		repl = succ
	}

	*t.link(&t.root, parent, target) = repl
	t.release(target)
	return true
}

func (t *BST) Like(id string) bool {
	idx, _ := bfsFind(&t.arena, t.root, id)
	if idx == nilSlot {
		return false
	}
	t.bump(idx)
	return true
}

// MostPopular scans every node.
func (t *BST) MostPopular() (post.Post, bool) {
	idx := bfsMaxScore(&t.arena, t.root)
	if idx == nilSlot {
		return post.Post{}, false
	}
	return t.nodes[idx].post, true
}

func (t *BST) MostRecent(k int) []post.Post { return newestFirst(&t.arena, t.root, k) }
func (t *BST) Height() int                  { return height(&t.arena, t.root) }
func (t *BST) MinHeight() int               { return minHeight(&t.arena, t.root) }

func (t *BST) Clear() int64 {
	n := teardown(&t.arena, t.root)
	t.root = nilSlot
	return n
}

func (t *BST) Verify() error {
	if err := checkOrder(&t.arena, t.root, true); err != nil {
		return fmt.Errorf("bst: %w", err)
	}
	return nil
}

func (t *BST) Render(w io.Writer) error { return render(w, &t.arena, t.root, false) }

func (t *BST) Walk(visit func(p post.Post) bool) {
	levels(&t.arena, t.root, func(_ int, n *node) bool { return visit(n.post) })
}
