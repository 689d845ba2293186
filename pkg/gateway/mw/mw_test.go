package mw

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecover_PanicReturnsJSON(t *testing.T) {
	h := Recover(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	h = RequestID(h)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/connect", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var env struct {
		Error struct {
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error.Message != "internal error" {
		t.Fatalf("message=%q", env.Error.Message)
	}
	if env.Error.RequestID == "" || env.Error.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatalf("request_id=%q header=%q", env.Error.RequestID, rr.Header().Get("X-Request-ID"))
	}
}

func TestRequestID_KeepsClientValue(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_client")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != "req_client" {
		t.Fatalf("context id=%q", seen)
	}
	if got := rr.Header().Get("X-Request-ID"); got != "req_client" {
		t.Fatalf("header id=%q", got)
	}
}

func TestAccessLog_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log: %v (%q)", err, buf.String())
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["path"] != "/healthz" {
		t.Fatalf("entry=%v", entry)
	}
	if id, _ := entry["request_id"].(string); !strings.HasPrefix(id, "req_") {
		t.Fatalf("request_id=%v", entry["request_id"])
	}
}

func TestAccessLog_ServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusBadGateway, "upstream down", "")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log: %v (%q)", err, buf.String())
	}
	if entry["level"] != "ERROR" || entry["status"] != float64(http.StatusBadGateway) {
		t.Fatalf("entry=%v", entry)
	}
	if n, _ := entry["bytes"].(float64); n == 0 {
		t.Fatalf("bytes=%v, want body size", entry["bytes"])
	}
}

func TestRequestID_ReplacesOversizedValue(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	got := rr.Header().Get("X-Request-ID")
	if !strings.HasPrefix(got, "req_") || len(got) != len("req_")+32 {
		t.Fatalf("X-Request-ID=%q", got)
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestAccessLog_PassesHijack(t *testing.T) {
	base := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := AccessLog(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("writer does not implement http.Hijacker")
		}
		_, _, _ = hj.Hijack()
	}))

	h.ServeHTTP(base, httptest.NewRequest(http.MethodGet, "/connect", nil))
	if !base.hijacked {
		t.Fatal("expected hijack to reach the underlying writer")
	}
}
