// Package tracing records per-request span trees in the request context and
// logs them through slog when the root span finishes.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type contextKey struct{}

var enabled atomic.Bool

// SetEnabled turns span logging on or off. Spans are always recorded.
func SetEnabled(on bool) { enabled.Store(on) }

// Span is one timed step of a search request.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    map[string]any
}

// StartSpan opens a root span for traceID, usually the request id.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, StartTime: time.Now()}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the span
// is detached and only its own attributes are kept.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, StartTime: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
	s.mu.Unlock()
}

// Attr returns a recorded attribute.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Children returns a snapshot of the direct child spans.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(contextKey{}).(*Span); ok {
		return span
	}
	return nil
}

// Finish ends a root span and logs the whole tree if logging is enabled.
func (s *Span) Finish() {
	s.End()
	if enabled.Load() {
		s.log(0)
	}
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	slog.Info("span", attrs...)
	for _, child := range children {
		child.log(depth + 1)
	}
}
