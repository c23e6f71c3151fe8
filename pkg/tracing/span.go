// Package tracing provides a lightweight span-based tracing system that
// propagates trace context through Go contexts. Spans form parent–child trees
// that can be logged via slog or flattened into a timing list for reports.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a child span linked to the parent in ctx. Without a
// parent it behaves like an untraced root.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := &Span{
		Name:      name,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}

	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}

	return context.WithValue(ctx, spanKey, child), child
}

// End records the span's end time and duration.
func (s *Span) End() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Timing is one span in flattened form. Path joins the span names from the
// root with "/".
type Timing struct {
	Path       string         `json:"path"`
	DurationMS float64        `json:"duration_ms"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// Flatten lists the span tree depth-first, parents before children.
func (s *Span) Flatten() []Timing {
	var out []Timing
	s.walk(func(path string, sp *Span, _ int) {
		sp.mu.Lock()
		var attrs map[string]any
		if len(sp.Attrs) > 0 {
			attrs = make(map[string]any, len(sp.Attrs))
			for k, v := range sp.Attrs {
				attrs[k] = v
			}
		}
		sp.mu.Unlock()
		out = append(out, Timing{
			Path:       path,
			DurationMS: float64(sp.Duration.Microseconds()) / 1000,
			Attrs:      attrs,
		})
	})
	return out
}

// Log writes the span tree to slog.
func (s *Span) Log() {
	s.walk(func(path string, sp *Span, depth int) {
		attrs := []any{
			"trace_id", s.TraceID,
			"span", path,
			"duration_ms", sp.Duration.Milliseconds(),
			"depth", depth,
		}
		sp.mu.Lock()
		keys := make([]string, 0, len(sp.Attrs))
		for k := range sp.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, k, sp.Attrs[k])
		}
		sp.mu.Unlock()
		slog.Info("span", attrs...)
	})
}

func (s *Span) walk(visit func(path string, sp *Span, depth int)) {
	type item struct {
		path  string
		span  *Span
		depth int
	}
	stack := []item{{path: s.Name, span: s}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(it.path, it.span, it.depth)

		it.span.mu.Lock()
		children := it.span.Children
		it.span.mu.Unlock()
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			stack = append(stack, item{path: it.path + "/" + c.Name, span: c, depth: it.depth + 1})
		}
	}
}
