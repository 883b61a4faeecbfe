// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services and stores read them
// without importing net/http.
//
//	now := requestcontext.Now(ctx)
//	actor := requestcontext.Actor(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	actorKey       struct{}
)

// Principal identifies the back-office user acting on a request. Identity is
// established upstream by the gateway; this package only carries it.
type Principal struct {
	UserID   string
	UserName string
	Role     string
}

// IsZero reports whether no principal was attached.
func (p Principal) IsZero() bool {
	return p.UserID == ""
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() when not set (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Actor returns the principal attached to ctx, or the zero Principal.
func Actor(ctx context.Context) Principal {
	if p, ok := ctx.Value(actorKey{}).(Principal); ok {
		return p
	}
	return Principal{}
}

// WithActor attaches the acting principal.
func WithActor(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, actorKey{}, p)
}
