package logging

import "context"

type attrsKey struct{}

// WithAttrs returns a context whose log lines carry the given key-value
// pairs in addition to any already attached.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev := AttrsFrom(ctx)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// AttrsFrom returns the pairs attached with WithAttrs.
func AttrsFrom(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attrsKey{}).([]any)
	return attrs
}

func withContextAttrs(ctx context.Context, args []any) []any {
	attrs := AttrsFrom(ctx)
	if len(attrs) == 0 {
		return args
	}
	out := make([]any, 0, len(attrs)+len(args))
	out = append(out, attrs...)
	return append(out, args...)
}
