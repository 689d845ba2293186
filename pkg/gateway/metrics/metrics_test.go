package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/modelgw"
)

func TestRecorders(t *testing.T) {
	m := New("")
	m.RecordSessionStart()
	m.RecordSessionStart()
	m.RecordSessionEnd(time.Second)
	m.RecordSessionRejected()
	m.RecordTurn("ok", 2*time.Second)
	m.RecordTurn("generate", 0)
	m.RecordAudio("in", 320)
	m.RecordAudio("in", 0)
	m.ObserveAttempt(modelgw.RoleCode, "openrouter/a", errors.New("x"), time.Millisecond)
	m.ObserveAttempt(modelgw.RoleCode, "openrouter/b", nil, time.Millisecond)
	m.ObserveAttempt(modelgw.RoleCode, "openrouter/b", core.StatusError("openrouter", 429, ""), time.Millisecond)
	m.ObserveAttempt(modelgw.RoleAnswer, "openrouter/b", modelgw.ErrEmptyResponse, time.Millisecond)
	m.ObserveSync(true, time.Millisecond, nil)
	m.ObserveSync(false, time.Millisecond, errors.New("down"))

	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Fatalf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("accepted")); got != 2 {
		t.Fatalf("sessions accepted = %v", got)
	}
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("generate")); got != 1 {
		t.Fatalf("turns generate = %v", got)
	}
	if got := testutil.ToFloat64(m.AudioBytesTotal.WithLabelValues("in")); got != 320 {
		t.Fatalf("audio in = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelAttemptsTotal.WithLabelValues("code", "openrouter/a", "unknown")); got != 1 {
		t.Fatalf("model attempts error = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelAttemptsTotal.WithLabelValues("code", "openrouter/b", "rate_limited")); got != 1 {
		t.Fatalf("model attempts rate_limited = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelAttemptsTotal.WithLabelValues("answer", "openrouter/b", "empty")); got != 1 {
		t.Fatalf("model attempts empty = %v", got)
	}
	if got := testutil.ToFloat64(m.SyncTotal.WithLabelValues("delta", "error")); got != 1 {
		t.Fatalf("sync delta error = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordSessionStart()
	m.RecordSessionEnd(time.Second)
	m.RecordTurn("ok", time.Second)
	m.ObserveAttempt(modelgw.RoleAnswer, "x", nil, 0)
	m.ObserveSync(false, 0, nil)
}

func TestHandler(t *testing.T) {
	m := New("tv")
	m.RecordTurn("ok", time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `tv_turns_total{outcome="ok"} 1`) {
		t.Fatalf("metrics body missing turn counter:\n%s", body)
	}
}
