package middleware

import (
	"context"
	"net/http"

	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
)

// ErrorHandler writes the response for a request the middleware rejects.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type routeGroupKey struct{}

// RouteGroupFromContext returns the group MatchRoute selected.
func RouteGroupFromContext(ctx context.Context) (*routing.RouteGroup, bool) {
	group, ok := ctx.Value(routeGroupKey{}).(*routing.RouteGroup)
	return group, ok && group != nil
}

// MatchRoute selects the request's route group from table, using the
// escaped path the resolver later rewrites, and stores it on the context.
// Paths with dot segments are passed to onError with routing.ErrInvalidPath. Requests matching no group are passed to onError with an
// error wrapping routing.ErrNoRoute and go no further.
func MatchRoute(table *routing.Table, onError ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.EscapedPath()
			if err := routing.CheckPath(path); err != nil {
				onError(w, r, err)
				return
			}
			group, err := table.Match(r.Method, path)
			if err != nil {
				onError(w, r, err)
				return
			}
			SetRouteLabel(r.Context(), group.Name)
			ctx := context.WithValue(r.Context(), routeGroupKey{}, group)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
