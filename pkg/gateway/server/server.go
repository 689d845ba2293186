package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vango-go/taskvoice/pkg/archive"
	"github.com/vango-go/taskvoice/pkg/gateway/config"
	"github.com/vango-go/taskvoice/pkg/gateway/handlers"
	"github.com/vango-go/taskvoice/pkg/gateway/lifecycle"
	"github.com/vango-go/taskvoice/pkg/gateway/live/session"
	"github.com/vango-go/taskvoice/pkg/gateway/live/sessions"
	"github.com/vango-go/taskvoice/pkg/gateway/metrics"
	"github.com/vango-go/taskvoice/pkg/gateway/mw"
	"github.com/vango-go/taskvoice/pkg/journal"
	"github.com/vango-go/taskvoice/pkg/sandbox"
)

// Components are the process-wide collaborators shared by every session.
type Components struct {
	Context    session.ContextSource
	Capability sandbox.Capability
	Executor   session.Executor
	Models     session.Models
	Audio      session.Audio
	Journal    journal.Journal
	Archive    archive.Archiver

	Metrics   *metrics.Metrics
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	mux     *http.ServeMux
	comp    Components
	version string
}

func New(cfg config.Config, comp Components, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if comp.Lifecycle == nil {
		comp.Lifecycle = lifecycle.New(time.Now())
	}
	if comp.Sessions == nil {
		comp.Sessions = sessions.NewTracker()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		mux:     http.NewServeMux(),
		comp:    comp,
		version: version,
	}
	s.routes()
	return s
}

// NewHTTPClient is the client shared by the upstream model, transcription
// and task APIs.
func NewHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/connect", handlers.ConnectHandler{
		AccessKey:  s.cfg.AccessKey,
		Context:    s.comp.Context,
		Capability: s.comp.Capability,
		Executor:   s.comp.Executor,
		Models:     s.comp.Models,
		Audio:      s.comp.Audio,
		Journal:    s.comp.Journal,
		Archive:    s.comp.Archive,
		Metrics:    s.comp.Metrics,
		Logger:     s.logger,
		Lifecycle:  s.comp.Lifecycle,
		Sessions:   s.comp.Sessions,
		Session: session.Config{
			MaxMessageBytes: s.cfg.MaxMessageBytes,
			MaxAudioBytes:   s.cfg.MaxAudioBytes,
			PingInterval:    s.cfg.WSPingInterval,
			WriteTimeout:    s.cfg.WSWriteTimeout,
			ReadTimeout:     s.cfg.WSReadTimeout,
			HistoryWindow:   s.cfg.HistoryWindow,
		},
	})
	if s.comp.Metrics != nil {
		s.mux.Handle("/metrics", s.comp.Metrics.Handler())
	}
	s.mux.Handle("GET /{$}", handlers.InfoHandler{
		Name:        "taskvoice",
		Version:     s.version,
		CodeModel:   s.cfg.CodeModel,
		AnswerModel: s.cfg.AnswerModel,
		Fallbacks:   s.cfg.FallbackModels,
		Lifecycle:   s.comp.Lifecycle,
		Sessions:    s.comp.Sessions,
	})
	s.mux.HandleFunc("/", handlers.NotFound)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes /connect refuse new sessions.
func (s *Server) SetDraining() { s.comp.Lifecycle.SetDraining(true) }

// NotifySessionsDraining tells every live session the server is going away.
func (s *Server) NotifySessionsDraining() int {
	return s.comp.Sessions.NotifyAll("Server is shutting down.")
}

// WaitSessions blocks until every live session ended or ctx is done.
func (s *Server) WaitSessions(ctx context.Context) bool { return s.comp.Sessions.Wait(ctx) }

// CancelSessions aborts the sessions that outlived the grace period.
func (s *Server) CancelSessions() int {
	if ids := s.comp.Sessions.IDs(); len(ids) > 0 {
		s.logger.Warn("cancelling live sessions", "count", len(ids), "session_ids", ids)
	}
	return s.comp.Sessions.CancelAll()
}
