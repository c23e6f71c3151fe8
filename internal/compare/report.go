package compare

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/tracing"
)

// Report is the outcome of one comparison run. Durations are wall-clock:
// bulk phases in milliseconds, per-operation figures in microseconds.
type Report struct {
	Fingerprint string            `json:"fingerprint"`
	Seed        uint64            `json:"seed"`
	StartedAt   time.Time         `json:"started_at"`
	ElapsedMS   float64           `json:"elapsed_ms"`
	Insertion   []InsertionResult `json:"insertion,omitempty"`
	Search      *SearchResult     `json:"search,omitempty"`
	Like        *LikeResult       `json:"like,omitempty"`
	Deletion    []DeletionResult  `json:"deletion,omitempty"`
	Query       *QueryResult      `json:"query,omitempty"`
	Loading     []LoadingResult   `json:"loading,omitempty"`
	Summary     Summary           `json:"summary"`
	Timings     []tracing.Timing  `json:"timings,omitempty"`
}

type InsertFigures struct {
	Millis       float64 `json:"ms"`
	Height       int     `json:"height"`
	MinHeight    int     `json:"min_height"`
	BalanceRatio float64 `json:"balance_ratio"`
	Rotations    int64   `json:"rotations"`
}

type InsertionResult struct {
	Size  int           `json:"size"`
	BST   InsertFigures `json:"bst"`
	Treap InsertFigures `json:"treap"`
}

type SearchFigures struct {
	MostPopularMicros float64 `json:"most_popular_us"`
	MostRecentMicros  float64 `json:"most_recent_us"`
}

type SearchResult struct {
	Size  int           `json:"size"`
	BST   SearchFigures `json:"bst"`
	Treap SearchFigures `json:"treap"`
}

type LikeFigures struct {
	LikeMicros      float64 `json:"like_us"`
	BubbleMicros    float64 `json:"bubble_us"`
	Rotations       int64   `json:"rotations"`
	BubbleRotations int64   `json:"bubble_rotations"`
}

type LikeResult struct {
	Size      int         `json:"size"`
	Ops       int         `json:"ops"`
	BubbleOps int         `json:"bubble_ops"`
	TargetID  string      `json:"target_id"`
	BST       LikeFigures `json:"bst"`
	Treap     LikeFigures `json:"treap"`
	// TargetOnTop reports whether the repeatedly liked post ended up as the
	// treap's most popular.
	TargetOnTop bool `json:"target_on_top"`
}

type DeleteFigures struct {
	Millis        float64 `json:"ms"`
	InitialHeight int     `json:"initial_height"`
	FinalHeight   int     `json:"final_height"`
	Rotations     int64   `json:"rotations"`
	Deleted       int64   `json:"deleted"`
}

type DeletionResult struct {
	Size  int           `json:"size"`
	BST   DeleteFigures `json:"bst"`
	Treap DeleteFigures `json:"treap"`
}

type QueryFigures struct {
	MostPopularMicros float64   `json:"most_popular_us"`
	RecentMicros      []float64 `json:"recent_us"`
	MixedMicros       float64   `json:"mixed_us"`
}

type QueryResult struct {
	Size  int          `json:"size"`
	Ks    []int        `json:"ks"`
	BST   QueryFigures `json:"bst"`
	Treap QueryFigures `json:"treap"`
}

type LoadFigures struct {
	Posts           int64   `json:"posts"`
	Skipped         int64   `json:"skipped"`
	Height          int     `json:"height"`
	Millis          float64 `json:"ms"`
	TimedOut        bool    `json:"timed_out"`
	CapacityReached bool    `json:"capacity_reached"`
}

type LoadingResult struct {
	Path  string      `json:"path"`
	BST   LoadFigures `json:"bst"`
	Treap LoadFigures `json:"treap"`
}

// EngineSummary averages one engine's figures across the phases that ran.
type EngineSummary struct {
	InsertMillis float64 `json:"insert_ms"`
	DeleteMillis float64 `json:"delete_ms"`
	SearchMicros float64 `json:"search_us"`
	LikeMicros   float64 `json:"like_us"`
	QueryMicros  float64 `json:"query_us"`
	Height       float64 `json:"height"`
	BalanceRatio float64 `json:"balance_ratio"`
}

type Summary struct {
	BST   EngineSummary `json:"bst"`
	Treap EngineSummary `json:"treap"`
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// summarize fills r.Summary from the phase results.
func (r *Report) summarize() {
	pick := func(bst bool) EngineSummary {
		var ins, heights, balance, del []float64
		for _, res := range r.Insertion {
			f := res.Treap
			if bst {
				f = res.BST
			}
			ins = append(ins, f.Millis)
			heights = append(heights, float64(f.Height))
			balance = append(balance, f.BalanceRatio)
		}
		for _, res := range r.Deletion {
			f := res.Treap
			if bst {
				f = res.BST
			}
			del = append(del, f.Millis)
		}
		s := EngineSummary{
			InsertMillis: mean(ins),
			DeleteMillis: mean(del),
			Height:       mean(heights),
			BalanceRatio: mean(balance),
		}
		if r.Search != nil {
			f := r.Search.Treap
			if bst {
				f = r.Search.BST
			}
			s.SearchMicros = (f.MostPopularMicros + f.MostRecentMicros) / 2
		}
		if r.Like != nil {
			f := r.Like.Treap
			if bst {
				f = r.Like.BST
			}
			s.LikeMicros = f.LikeMicros
		}
		if r.Query != nil {
			f := r.Query.Treap
			if bst {
				f = r.Query.BST
			}
			s.QueryMicros = mean(append([]float64{f.MostPopularMicros}, f.RecentMicros...))
		}
		return s
	}
	r.Summary = Summary{BST: pick(true), Treap: pick(false)}
}
