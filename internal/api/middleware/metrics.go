package middleware

import (
	"net/http"
	"strconv"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// Metrics counts requests on the Prometheus registry, labelled by method,
// chi route pattern and status class. The route pattern, not the raw path,
// keeps label cardinality bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		class := strconv.Itoa(rw.statusCode/100) + "xx"

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, class).Inc()
	})
}
