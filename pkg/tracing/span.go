// Package tracing times the stages of a request. Spans nest through the
// context and a finished tree is flattened into slash-separated stage paths
// such as "search/execute" for debug logging.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
)

type contextKey struct{}

// Span is one timed stage.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []any
	children []*Span
}

// Stage is a flattened, finished span.
type Stage struct {
	Path     string
	Duration time.Duration
	Attrs    []any
}

// Start opens a span named name. Inside an existing span it becomes a child;
// otherwise it is a root whose trace id is the request id carried by ctx, or
// a fresh UUID.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.traceID = logger.RequestID(ctx)
		if span.traceID == "" {
			span.traceID = uuid.NewString()
		}
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the innermost open span of ctx, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

func (s *Span) TraceID() string { return s.traceID }

// Set attaches an attribute. Later values for the same key are appended,
// not merged.
func (s *Span) Set(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End fixes the span's duration. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
}

// Stages flattens the tree rooted at s in depth-first order. Spans that
// never ended report the time elapsed so far.
func (s *Span) Stages() []Stage {
	var out []Stage
	s.flatten("", &out)
	return out
}

func (s *Span) flatten(prefix string, out *[]Stage) {
	s.mu.Lock()
	path := s.name
	if prefix != "" {
		path = prefix + "/" + s.name
	}
	d := s.duration
	if !s.ended {
		d = time.Since(s.start)
	}
	*out = append(*out, Stage{Path: path, Duration: d, Attrs: append([]any(nil), s.attrs...)})
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		c.flatten(path, out)
	}
}

// Log writes one debug record per stage. Nothing is computed unless debug
// logging is enabled.
func (s *Span) Log(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, st := range s.Stages() {
		attrs := append([]any{"trace_id", s.traceID, "stage", st.Path, "duration_us", st.Duration.Microseconds()}, st.Attrs...)
		l.Debug("trace stage", attrs...)
	}
}
