package audit

import "context"

type metaKey struct{}

// WithMeta stores request metadata in the context. The requestmeta
// middleware calls this once per request.
func WithMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the request metadata, or a zero value when the
// event originates outside an HTTP request.
func MetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(metaKey{}).(RequestMeta)
	return meta
}
