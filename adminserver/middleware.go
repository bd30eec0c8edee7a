/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package adminserver

import (
	"context"
	"fmt"
	"net/http"
	"runtime"

	"github.com/rs/xid"

	"github.com/acronis/go-reqbroker/log"
)

const headerRequestID = "X-Request-ID"

// recoveryStackSize defines the size of stack part which will be logged.
const recoveryStackSize = 8192

type ctxKey int

const ctxKeyLogger ctxKey = iota

// NewContextWithLogger creates a new context with logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext extracts logger from the context.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	value := ctx.Value(ctxKeyLogger)
	if value == nil {
		return nil
	}
	return value.(log.FieldLogger)
}

// requestIDAndLogger reads X-Request-ID request's header and generates a new one (xid) if it's empty.
// The id is returned in the response and put into the logger stored in the request's context.
func requestIDAndLogger(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = xid.New().String()
			}
			rw.Header().Set(headerRequestID, requestID)

			reqLogger := logger.With(
				log.String("request_id", requestID),
				log.String("method", r.Method),
				log.String("uri", r.RequestURI),
			)
			next.ServeHTTP(rw, r.WithContext(NewContextWithLogger(r.Context(), reqLogger)))
		})
	}
}

// recovery recovers from panics, logs the panic value and a stacktrace and responds with 500.
func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger := GetLoggerFromContext(r.Context())
				if p == http.ErrAbortHandler { //nolint:errorlint
					// Sentinel panic for aborting a handler, http.Server doesn't log its stack too.
					if logger != nil {
						logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
					}
					panic(p)
				}
				if logger != nil {
					stack := make([]byte, recoveryStackSize)
					stack = stack[:runtime.Stack(stack, false)]
					logger.Error(fmt.Sprintf("Panic: %+v", p), log.Bytes("stack", stack))
				}
				rw.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
