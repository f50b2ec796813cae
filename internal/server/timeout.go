package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds every request context by timeout. Handlers are
// expected to observe ctx.Done(); when one returns after the deadline without
// writing anything, a 504 error envelope is sent instead of an empty 200.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w}
			next.ServeHTTP(tw, r.WithContext(ctx))

			if !tw.wrote && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				AddLogField(r.Context(), "timeout", timeout.String())
				WriteError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
			}
		})
	}
}

type timeoutWriter struct {
	http.ResponseWriter
	wrote bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.wrote = true
	return tw.ResponseWriter.Write(b)
}
