package middleware

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/markplatform/gateway/cmd/markgw/internal/telemetry"
)

// UnmatchedLabel is the route_group label for requests no route claimed.
const UnmatchedLabel = "unmatched"

type routeLabel struct{ name string }

type routeLabelKey struct{}

// SetRouteLabel names the route group an in-flight request is counted
// under. It is a no-op outside Instrument.
func SetRouteLabel(ctx context.Context, name string) {
	if l, ok := ctx.Value(routeLabelKey{}).(*routeLabel); ok {
		l.name = name
	}
}

// Label is SetRouteLabel as middleware, for routes served locally.
func Label(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetRouteLabel(r.Context(), name)
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument records request count and latency per route group. Handlers
// further down the chain name the group with SetRouteLabel.
func Instrument(metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			label := &routeLabel{name: UnmatchedLabel}
			ctx := context.WithValue(r.Context(), routeLabelKey{}, label)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				metrics.ObserveRequest(label.name, status, time.Since(start))
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
