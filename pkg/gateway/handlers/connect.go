package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/taskvoice/pkg/archive"
	"github.com/vango-go/taskvoice/pkg/gateway/lifecycle"
	"github.com/vango-go/taskvoice/pkg/gateway/live/session"
	"github.com/vango-go/taskvoice/pkg/gateway/live/sessions"
	"github.com/vango-go/taskvoice/pkg/gateway/metrics"
	"github.com/vango-go/taskvoice/pkg/gateway/mw"
	"github.com/vango-go/taskvoice/pkg/journal"
	"github.com/vango-go/taskvoice/pkg/sandbox"
)

const (
	AccessKeyHeader = "X-Access-Key"
	AccessKeyQuery  = "access_key"
	MuteHeader      = "X-Mute"
	MuteQuery       = "mute"
)

// ConnectHandler serves /connect websocket sessions. Every session shares
// the same task source, executor and model gateway.
type ConnectHandler struct {
	AccessKey string

	Context    session.ContextSource
	Capability sandbox.Capability
	Executor   session.Executor
	Models     session.Models
	Audio      session.Audio
	Journal    journal.Journal
	Archive    archive.Archiver

	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
	Session   session.Config
}

func (h ConnectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		mw.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed", reqID)
		return
	}
	if h.Lifecycle.IsDraining() {
		mw.WriteJSONError(w, http.StatusServiceUnavailable, "server is draining", reqID)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := h.logger()
	if !h.authorized(r) {
		h.Metrics.RecordSessionRejected()
		logger.Warn("connection rejected", "request_id", reqID, "remote_addr", r.RemoteAddr)
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}

	deps := session.Dependencies{
		Conn:       conn,
		Logger:     logger,
		Context:    h.Context,
		Capability: h.Capability,
		Executor:   h.Executor,
		Models:     h.Models,
		Audio:      h.Audio,
		Journal:    h.Journal,
		Archive:    h.Archive,
		Muted:      muted(r),
		Config:     h.Session,
	}
	if h.Metrics != nil {
		deps.Metrics = h.Metrics
	}
	s, err := session.New(deps)
	if err != nil {
		logger.Error("failed to initialize session", "request_id", reqID, "error", err)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}

	unregister := h.Sessions.Register(s.ID(), sessions.Handle{
		Cancel: s.Cancel,
		Notify: s.Notify,
	})
	defer unregister()

	start := time.Now()
	h.Metrics.RecordSessionStart()
	defer func() { h.Metrics.RecordSessionEnd(time.Since(start)) }()

	if err := s.Run(); err != nil {
		logger.Warn("session ended with error", "session_id", s.ID(), "request_id", reqID, "error", err)
	}
}

func (h ConnectHandler) authorized(r *http.Request) bool {
	if h.AccessKey == "" {
		return false
	}
	got := strings.TrimSpace(r.Header.Get(AccessKeyHeader))
	if got == "" {
		got = strings.TrimSpace(r.URL.Query().Get(AccessKeyQuery))
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.AccessKey)) == 1
}

func (h ConnectHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func muted(r *http.Request) bool {
	v := strings.TrimSpace(r.Header.Get(MuteHeader))
	if v == "" {
		v = strings.TrimSpace(r.URL.Query().Get(MuteQuery))
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
