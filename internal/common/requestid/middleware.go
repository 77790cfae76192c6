// Package requestid annotates incoming HTTP requests with an id so log lines
// belonging to one request can be correlated.
package requestid

import (
	"context"
	"net/http"

	"github.com/renstrom/shortuuid"
)

// Request ids are carried in this header. This is the standard key used for
// request ids; opentelemetry, for example, uses the same one.
const HeaderKey = "x-request-id"

type contextKey struct{}

// FromContext returns the request id stored in ctx, if one is available.
// The second return value is true if the operation was successful.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}

// FromContextOrMissing returns the request id stored in ctx, or the string
// "missing" if none is available.
func FromContextOrMissing(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	return "missing"
}

// AddToContext returns a new context derived from ctx annotated with id.
func AddToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Middleware wraps handler so every request carries an id, generated with
// shortuuid unless the client already supplied one (or replace is true).
// The id is stored in the request context and echoed in the response headers.
func Middleware(handler http.Handler, replace bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderKey)
		if id == "" || replace {
			id = shortuuid.New()
		}
		w.Header().Set(HeaderKey, id)
		handler.ServeHTTP(w, r.WithContext(AddToContext(r.Context(), id)))
	})
}
