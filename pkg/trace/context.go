package trace

import "context"

type contextKey struct{}

// NewContext returns a context carrying the in-flight trace for one
// decision. The framework opens the trace before calling decide and clears
// it afterwards; the trace never references the behavior back.
func NewContext(ctx context.Context, t *ReasoningTrace) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the in-flight trace, or nil when tracing is disabled.
func FromContext(ctx context.Context) *ReasoningTrace {
	t, _ := ctx.Value(contextKey{}).(*ReasoningTrace)
	return t
}

// LogStep appends a step to the context's trace. It is a no-op without one,
// so behaviors can instrument unconditionally.
func LogStep(ctx context.Context, name string, data any) {
	if t := FromContext(ctx); t != nil {
		t.AddStep(name, data)
	}
}
