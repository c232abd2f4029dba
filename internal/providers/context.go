package providers

import "context"

type requestIDKey struct{}

// WithRequestID tags ctx with the orchestration request ID. Adapters forward
// it to providers as the X-Request-ID header so provider-side logs correlate
// with the audit trail.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request ID from ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
