package tree

import (
	"bufio"
	"fmt"
	"io"
)

type renderFrame struct {
	idx    int32
	prefix string
	tail   bool
	side   string
}

// render prints the tree top-down, one node per line, children indented
// under their parent with box-drawing connectors. Left children are listed
// before right children. withPrio adds the treap tiebreak value.
func render(w io.Writer, a *arena, root int32, withPrio bool) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "--- Tree Structure (Vertical View) ---")
	if root == nilSlot {
		fmt.Fprintln(bw, "The tree is empty.")
		return bw.Flush()
	}

	line := func(n *node) {
		p := n.post
		if withPrio {
			fmt.Fprintf(bw, "TS: %d | Prio: %d | ID: %s | Score: %d\n", p.Timestamp, n.tiebreak, p.ID, p.Score)
			return
		}
		fmt.Fprintf(bw, "TS: %d | ID: %s | Score: %d\n", p.Timestamp, p.ID, p.Score)
	}

	fmt.Fprint(bw, "ROOT: ")
	line(&a.nodes[root])

	var stack []renderFrame
	push := func(parent int32, prefix string) {
		n := &a.nodes[parent]
		if n.right != nilSlot {
			stack = append(stack, renderFrame{idx: n.right, prefix: prefix, tail: true, side: "R"})
		}
		if n.left != nilSlot {
			stack = append(stack, renderFrame{idx: n.left, prefix: prefix, tail: n.right == nilSlot, side: "L"})
		}
	}
	push(root, "")

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		connector, indent := "├── ", "│   "
		if f.tail {
			connector, indent = "└── ", "    "
		}
		n := &a.nodes[f.idx]
		fmt.Fprintf(bw, "%s%s(%s) ", f.prefix, connector, f.side)
		line(n)
		push(f.idx, f.prefix+indent)
	}
	return bw.Flush()
}
