package middleware

import (
	"fmt"
	"net/http"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
)

// Authenticate enforces the matched route group's auth method.
//
// This middleware:
//  1. Reads the route group stored by MatchRoute
//  2. Skips authentication for groups with auth method "none"
//  3. Asks the dispatcher for a session using the group's method
//  4. Attaches the session to the context, or hands the rejection to onError
//
// A rejected request never reaches next, so no target is resolved and no
// downstream call is made.
func Authenticate(dispatcher *auth.Dispatcher, onError ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			group, ok := RouteGroupFromContext(ctx)
			if !ok {
				onError(w, r, fmt.Errorf("%w: authentication ran before route matching", routing.ErrNoRoute))
				return
			}
			if group.Auth == auth.MethodNone {
				next.ServeHTTP(w, r)
				return
			}

			session, err := dispatcher.Authenticate(ctx, auth.NewAuthRequest(r), group.Auth)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(ctx, session)))
		})
	}
}
