package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vango-go/taskvoice/pkg/gateway/lifecycle"
	"github.com/vango-go/taskvoice/pkg/gateway/live/sessions"
	"github.com/vango-go/taskvoice/pkg/gateway/mw"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// InfoHandler describes the running server at /.
type InfoHandler struct {
	Name        string
	Version     string
	CodeModel   string
	AnswerModel string
	Fallbacks   []string
	Muted       bool
	Lifecycle   *lifecycle.Lifecycle
	Sessions    *sessions.Tracker
	Now         func() time.Time
}

type infoResp struct {
	Name           string   `json:"name"`
	Version        string   `json:"version,omitempty"`
	Status         string   `json:"status"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	ActiveSessions int      `json:"active_sessions"`
	CodeModel      string   `json:"code_model"`
	AnswerModel    string   `json:"answer_model"`
	Fallbacks      []string `json:"fallbacks"`
	Endpoint       string   `json:"endpoint"`
}

func (h InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	status := "running"
	if h.Lifecycle.IsDraining() {
		status = "draining"
	}
	fallbacks := h.Fallbacks
	if fallbacks == nil {
		fallbacks = []string{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(infoResp{
		Name:           h.Name,
		Version:        h.Version,
		Status:         status,
		UptimeSeconds:  int64(h.Lifecycle.Uptime(now()) / time.Second),
		ActiveSessions: h.Sessions.Count(),
		CodeModel:      h.CodeModel,
		AnswerModel:    h.AnswerModel,
		Fallbacks:      fallbacks,
		Endpoint:       "/connect",
	})
}

// NotFound answers unknown routes with the JSON error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	mw.WriteJSONError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path, reqID)
}
