package tree

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
)

// Treap orders posts by timestamp like BST and additionally keeps a max-heap
// on score, so the most popular post is always the root. Rotations restore
// the heap after inserts, likes and deletes.
//
// Each node also gets a random tiebreak value at insert time. It shows up in
// Render output and plays no part in balancing.
type Treap struct {
	arena
	root      int32
	rotations int64
	rng       *rand.Rand

	// scratch buffers reused across operations
	path   []int32
	frames []pathFrame
}

type pathFrame struct {
	idx   int32
	depth int
}

var _ Engine = (*Treap)(nil)

// NewTreap returns an empty treap. A zero seed draws one at random.
func NewTreap(seed uint64, sizeHint int) *Treap {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Treap{
		arena: newArena(sizeHint),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (t *Treap) Kind() Kind { return KindTreap }
func (t *Treap) Len() int64 { return t.live }

// Rotations counts every rotation performed since construction or the last
// ResetRotations.
func (t *Treap) Rotations() int64 { return t.rotations }
func (t *Treap) ResetRotations()  { t.rotations = 0 }

func (t *Treap) rotateRight(x int32) int32 {
	y := t.nodes[x].left
	t.nodes[x].left = t.nodes[y].right
	t.nodes[y].right = x
	t.rotations++
	return y
}

func (t *Treap) rotateLeft(x int32) int32 {
	y := t.nodes[x].right
	t.nodes[x].right = t.nodes[y].left
	t.nodes[y].left = x
	t.rotations++
	return y
}

// slot returns the link currently pointing at path[i].
func (t *Treap) slot(path []int32, i int) *int32 {
	if i == 0 {
		return &t.root
	}
	return t.childLink(path[i-1], path[i])
}

// siftUp rotates the last node of path above its ancestors while it
// outscores them. Equal scores stop the climb.
func (t *Treap) siftUp(path []int32) {
	for i := len(path) - 1; i > 0; i-- {
		child, parent := path[i], path[i-1]
		if t.score(child) <= t.score(parent) {
			return
		}
		link := t.slot(path, i-1)
		if t.nodes[parent].left == child {
			*link = t.rotateRight(parent)
		} else {
			*link = t.rotateLeft(parent)
		}
		path[i-1] = child
	}
}

func (t *Treap) Insert(p post.Post) error {
	idx, err := t.alloc(p)
	if err != nil {
		return fmt.Errorf("insert %q: %w", p.ID, err)
	}
	t.nodes[idx].tiebreak = t.rng.Uint32()
	if t.root == nilSlot {
		t.root = idx
		return nil
	}

	path := t.path[:0]
	cur := t.root
	for cur != nilSlot {
		path = append(path, cur)
		n := &t.nodes[cur]
		if p.Timestamp < n.post.Timestamp {
			if n.left == nilSlot {
				n.left = idx
				break
			}
			cur = n.left
		} else {
			if n.right == nilSlot {
				n.right = idx
				break
			}
			cur = n.right
		}
	}
	path = append(path, idx)
	t.siftUp(path)
	t.path = path[:0]
	return nil
}

// find returns the root-to-node path of the first match in pre-order
// (node, left, right), or nil.
func (t *Treap) find(id string) []int32 {
	if t.root == nilSlot {
		return nil
	}
	path := t.path[:0]
	stack := append(t.frames[:0], pathFrame{idx: t.root})
	defer func() { t.frames = stack[:0] }()

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		path = append(path[:f.depth], f.idx)

		n := &t.nodes[f.idx]
		if n.post.ID == id {
			return path
		}
		if n.right != nilSlot {
			stack = append(stack, pathFrame{idx: n.right, depth: f.depth + 1})
		}
		if n.left != nilSlot {
			stack = append(stack, pathFrame{idx: n.left, depth: f.depth + 1})
		}
	}
	t.path = path[:0]
	return nil
}

func (t *Treap) FindByID(id string) (post.Post, bool) {
	path := t.find(id)
	if path == nil {
		return post.Post{}, false
	}
	p := t.nodes[path[len(path)-1]].post
	t.path = path[:0]
	return p, true
}

func (t *Treap) Like(id string) bool {
	path := t.find(id)
	if path == nil {
		return false
	}
	t.bump(path[len(path)-1])
	t.siftUp(path)
	t.path = path[:0]
	return true
}

// Delete rotates the first match down until it has at most one child,
// always lifting the higher-scoring child into its place, then splices it
// out.
func (t *Treap) Delete(id string) bool {
	path := t.find(id)
	if path == nil {
		return false
	}
	last := len(path) - 1
	x := path[last]

	for {
		n := t.nodes[x]
		if n.left == nilSlot || n.right == nilSlot {
			break
		}
		link := t.slot(path, last)
		if t.score(n.left) > t.score(n.right) {
			*link = t.rotateRight(x)
		} else {
			*link = t.rotateLeft(x)
		}
		path[last] = *link
		path = append(path, x)
		last++
	}

	child := t.nodes[x].left
	if child == nilSlot {
		child = t.nodes[x].right
	}
	*t.slot(path, last) = child
	t.release(x)
	t.path = path[:0]
	return true
}

// MostPopular is the root.
func (t *Treap) MostPopular() (post.Post, bool) {
	if t.root == nilSlot {
		return post.Post{}, false
	}
	return t.nodes[t.root].post, true
}

func (t *Treap) MostRecent(k int) []post.Post { return newestFirst(&t.arena, t.root, k) }
func (t *Treap) Height() int                  { return height(&t.arena, t.root) }
func (t *Treap) MinHeight() int               { return minHeight(&t.arena, t.root) }

func (t *Treap) Clear() int64 {
	n := teardown(&t.arena, t.root)
	t.root = nilSlot
	t.path, t.frames = nil, nil
	return n
}

func (t *Treap) Verify() error {
	if err := checkOrder(&t.arena, t.root, false); err != nil {
		return fmt.Errorf("treap: %w", err)
	}
	if err := checkHeap(&t.arena, t.root); err != nil {
		return fmt.Errorf("treap: %w", err)
	}
	return nil
}

func (t *Treap) Render(w io.Writer) error { return render(w, &t.arena, t.root, true) }

func (t *Treap) Walk(visit func(p post.Post) bool) {
	levels(&t.arena, t.root, func(_ int, n *node) bool { return visit(n.post) })
}
