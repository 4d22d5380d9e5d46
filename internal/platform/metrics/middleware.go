package metrics

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestMiddleware returns chi-compatible middleware that counts status
// server requests and the ones answered with status >= 400.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			m.IncRequests()
			// Status is 0 when the handler wrote nothing.
			if ww.Status() >= 400 {
				m.IncErrors()
			}
		})
	}
}
