package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout buffers the handler's response and replies 504 if the handler has
// not finished within timeout. The late handler's output is discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case p := <-panicked:
				panic(p)
			case <-done:
			case <-ctx.Done():
			}

			tw.mu.Lock()
			defer tw.mu.Unlock()
			switch ctx.Err() {
			case context.Canceled:
				// client went away
				tw.timedOut = true
				return
			case context.DeadlineExceeded:
				tw.timedOut = true
				slog.Warn("request timed out",
					"method", r.Method,
					"path", r.URL.Path,
					"timeout", timeout,
					"request_id", GetRequestID(r.Context()),
				)
				writeError(w, http.StatusGatewayTimeout, "request timeout")
				return
			}
			dst := w.Header()
			for k, v := range tw.header {
				dst[k] = v
			}
			w.WriteHeader(tw.status)
			w.Write(tw.buf.Bytes())
		})
	}
}

type bufferedWriter struct {
	mu       sync.Mutex
	header   http.Header
	buf      bytes.Buffer
	status   int
	wrote    bool
	timedOut bool
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wrote || b.timedOut {
		return
	}
	b.status = code
	b.wrote = true
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	b.wrote = true
	return b.buf.Write(p)
}
