package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/model-catalog/internal/middleware"
)

// unmatchedRoute labels requests no chi route matched.
const unmatchedRoute = "unmatched"

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww, ok := w.(*middleware.ResponseWriter)
		if !ok {
			ww = middleware.NewResponseWriter(w)
		}
		next.ServeHTTP(ww, r)

		ObserveHTTPRequest(r.Method, routePattern(r), ww.Status(), time.Since(start), ww.BytesWritten())
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}
