// Package mw holds the HTTP middleware shared by every route: request ids,
// access logging and panic recovery.
package mw

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID keeps a client-supplied X-Request-ID or mints one, echoes it in
// the response and stores it on the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}
			reqID, _ := RequestIDFrom(r.Context())
			if logger != nil {
				logger.Error("handler panic",
					"request_id", reqID,
					"path", r.URL.Path,
					"panic", v,
					"stack", string(debug.Stack()),
				)
			}
			WriteJSONError(w, http.StatusInternalServerError, "internal error", reqID)
		}()
		next.ServeHTTP(w, r)
	})
}

// recorder captures status and body size. Hijack passes through so the
// /connect upgrade works behind AccessLog.
type recorder struct {
	http.ResponseWriter
	status   int
	bytes    int64
	upgraded bool
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += int64(n)
	return n, err
}

func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(rec.ResponseWriter).Hijack()
	if err == nil {
		rec.upgraded = true
		rec.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (rec *recorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// AccessLog writes one record per request; 5xx responses log at error level.
func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if logger == nil {
			return
		}
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		}
		reqID, _ := RequestIDFrom(r.Context())
		logger.LogAttrs(r.Context(), level, "request",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("bytes", rec.bytes),
			slog.Bool("upgraded", rec.upgraded),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// WriteJSONError writes {"error":{"message":...,"request_id":...}}.
func WriteJSONError(w http.ResponseWriter, status int, message, requestID string) {
	var body struct {
		Error struct {
			Message   string `json:"message"`
			RequestID string `json:"request_id,omitempty"`
		} `json:"error"`
	}
	body.Error.Message = message
	body.Error.RequestID = requestID
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
