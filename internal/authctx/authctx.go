// Package authctx carries the authenticated caller's uid through a
// request context. Split out from internal/httpapi so the handler
// packages (internal/rerun, internal/filesapi) can read the uid without
// importing the router package that wires them onto routes.
package authctx

import "context"

type contextKey string

const contextKeyUID contextKey = "uid"

// WithUID returns a context carrying uid, set by httpapi.AuthMiddleware
// once a bearer token has been validated.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, contextKeyUID, uid)
}

// UIDFromContext returns the authenticated caller's uid, if any.
func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(contextKeyUID).(string)
	return uid, ok
}
