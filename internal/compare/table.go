package compare

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// lower-is-better winner label
func winner(bst, treap float64) string {
	switch {
	case bst < treap:
		return "BST"
	case treap < bst:
		return "Treap"
	default:
		return "tie"
	}
}

type table struct {
	tw  *tabwriter.Writer
	err error
}

func (t *table) row(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.tw, format+"\n", args...)
}

func (t *table) section(title string) {
	t.row("")
	t.row("%s\tBST\tTreap\tWinner", title)
}

func (t *table) lower(metric string, bst, treap float64) {
	t.row("  %s\t%.3f\t%.3f\t%s", metric, bst, treap, winner(bst, treap))
}

func (t *table) higher(metric string, bst, treap float64) {
	t.row("  %s\t%.3f\t%.3f\t%s", metric, bst, treap, winner(-bst, -treap))
}

func (t *table) count(metric string, bst, treap int64, higherWins bool) {
	w := winner(float64(bst), float64(treap))
	if higherWins {
		w = winner(float64(-bst), float64(-treap))
	}
	t.row("  %s\t%d\t%d\t%s", metric, bst, treap, w)
}

// WriteTable renders the report as aligned text, one section per phase.
// Lower figures win, except balance ratio where higher wins.
func (r *Report) WriteTable(w io.Writer) error {
	t := &table{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
	fp := r.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	t.row("Comparison %s\tseed %d\t%.0f ms\t", fp, r.Seed, r.ElapsedMS)

	for _, res := range r.Insertion {
		t.section(fmt.Sprintf("Insertion (%d posts)", res.Size))
		t.lower("time (ms)", res.BST.Millis, res.Treap.Millis)
		t.count("height", int64(res.BST.Height), int64(res.Treap.Height), false)
		t.higher("balance ratio", res.BST.BalanceRatio, res.Treap.BalanceRatio)
		t.row("  rotations\tn/a\t%d\t", res.Treap.Rotations)
	}

	if s := r.Search; s != nil {
		t.section(fmt.Sprintf("Search (%d posts)", s.Size))
		t.lower("most popular (us)", s.BST.MostPopularMicros, s.Treap.MostPopularMicros)
		t.lower("most recent (us)", s.BST.MostRecentMicros, s.Treap.MostRecentMicros)
	}

	if l := r.Like; l != nil {
		t.section(fmt.Sprintf("Like (%d posts)", l.Size))
		t.lower(fmt.Sprintf("random like x%d (us)", l.Ops), l.BST.LikeMicros, l.Treap.LikeMicros)
		t.lower(fmt.Sprintf("same post x%d (us)", l.BubbleOps), l.BST.BubbleMicros, l.Treap.BubbleMicros)
		t.row("  rotations\tn/a\t%d\t", l.Treap.Rotations)
		t.row("  bubble rotations\tn/a\t%d\t", l.Treap.BubbleRotations)
		t.row("  %s on top\t\t%t\t", l.TargetID, l.TargetOnTop)
	}

	for _, res := range r.Deletion {
		t.section(fmt.Sprintf("Deletion (%d posts)", res.Size))
		t.lower("time (ms)", res.BST.Millis, res.Treap.Millis)
		t.count("initial height", int64(res.BST.InitialHeight), int64(res.Treap.InitialHeight), false)
		t.count("final height", int64(res.BST.FinalHeight), int64(res.Treap.FinalHeight), false)
		t.row("  rotations\tn/a\t%d\t", res.Treap.Rotations)
		t.row("  deleted\t%d\t%d\t", res.BST.Deleted, res.Treap.Deleted)
	}

	if q := r.Query; q != nil {
		t.section(fmt.Sprintf("Query (%d posts)", q.Size))
		t.lower("most popular once (us)", q.BST.MostPopularMicros, q.Treap.MostPopularMicros)
		for i, k := range q.Ks {
			if i < len(q.BST.RecentMicros) && i < len(q.Treap.RecentMicros) {
				t.lower(fmt.Sprintf("most recent k=%d (us)", k), q.BST.RecentMicros[i], q.Treap.RecentMicros[i])
			}
		}
		t.lower("mixed (us)", q.BST.MixedMicros, q.Treap.MixedMicros)
	}

	for _, res := range r.Loading {
		t.section("Loading " + res.Path)
		t.count("posts", res.BST.Posts, res.Treap.Posts, true)
		t.count("height", int64(res.BST.Height), int64(res.Treap.Height), false)
		t.lower("time (ms)", res.BST.Millis, res.Treap.Millis)
		t.row("  timed out\t%t\t%t\t", res.BST.TimedOut, res.Treap.TimedOut)
	}

	s := r.Summary
	t.section("Summary")
	t.lower("insert (ms)", s.BST.InsertMillis, s.Treap.InsertMillis)
	t.lower("delete (ms)", s.BST.DeleteMillis, s.Treap.DeleteMillis)
	t.lower("search (us)", s.BST.SearchMicros, s.Treap.SearchMicros)
	t.lower("like (us)", s.BST.LikeMicros, s.Treap.LikeMicros)
	t.lower("query (us)", s.BST.QueryMicros, s.Treap.QueryMicros)
	t.lower("height", s.BST.Height, s.Treap.Height)
	t.higher("balance ratio", s.BST.BalanceRatio, s.Treap.BalanceRatio)

	if t.err != nil {
		return t.err
	}
	return t.tw.Flush()
}
