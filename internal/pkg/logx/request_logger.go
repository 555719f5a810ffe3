/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains the HTTP middleware used by the stub backing service to log
request lifecycle information such as method, path, response status, and
latency.
*/
package logx

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// remoteHost strips the port from a remote address. The stub serves loopback
// traffic only, so the bare host is logged without anonymization.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// RequestLogger returns an HTTP middleware that logs one completion line per
// request, leveled by response status.
func RequestLogger() func(next http.Handler) http.Handler {
	logger := Component("http")

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()

			logEvent := logger.Info()
			switch {
			case status >= 500:
				logEvent = logger.Error()
			case status >= 400:
				logEvent = logger.Warn()
			}

			logEvent.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote", remoteHost(r.RemoteAddr)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("Request completed")
		}

		return http.HandlerFunc(fn)
	}
}
