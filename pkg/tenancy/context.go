package tenancy

import "context"

type ctxSessionKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey{}, s)
}

// FromContext returns the session bound to ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxSessionKey{}).(*Session)
	return s
}
