package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/vango-go/taskvoice/pkg/archive"
	"github.com/vango-go/taskvoice/pkg/audio"
	"github.com/vango-go/taskvoice/pkg/core/voice/stt"
	"github.com/vango-go/taskvoice/pkg/core/voice/tts"
	"github.com/vango-go/taskvoice/pkg/gateway/config"
	"github.com/vango-go/taskvoice/pkg/gateway/lifecycle"
	"github.com/vango-go/taskvoice/pkg/gateway/live/sessions"
	"github.com/vango-go/taskvoice/pkg/gateway/metrics"
	gatewayserver "github.com/vango-go/taskvoice/pkg/gateway/server"
	"github.com/vango-go/taskvoice/pkg/gateway/upstream"
	"github.com/vango-go/taskvoice/pkg/journal"
	"github.com/vango-go/taskvoice/pkg/modelgw"
	"github.com/vango-go/taskvoice/pkg/sandbox"
	"github.com/vango-go/taskvoice/pkg/taskcache"
	"github.com/vango-go/taskvoice/pkg/tasksync"
)

// appDeps are the seams main_test replaces.
type appDeps struct {
	loadConfig    func() (config.Config, error)
	newTaskClient func(config.Config, *slog.Logger, tasksync.SyncObserver) (*tasksync.Client, error)
	openJournal   func(context.Context, string) (journal.Journal, error)
	listen        func(*http.Server) error
	signalNotify  func(chan<- os.Signal, ...os.Signal)
	signalStop    func(chan<- os.Signal)
	now           func() time.Time
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newTaskClient(cfg config.Config, logger *slog.Logger, obs tasksync.SyncObserver) (*tasksync.Client, error) {
	remote := tasksync.NewRemote(cfg.TodoistAPIKey,
		tasksync.WithBaseURL(cfg.TodoistBaseURL),
		tasksync.WithHTTPClient(gatewayserver.NewHTTPClient(cfg)),
	)
	opts := []tasksync.Option{tasksync.WithLogger(logger), tasksync.WithSyncTimeout(cfg.SyncTimeout)}
	if obs != nil {
		opts = append(opts, tasksync.WithObserver(obs))
	}
	client, err := tasksync.New(remote, taskcache.NewFileStore(cfg.DataDir), opts...)
	if err != nil {
		return nil, fmt.Errorf("task client: %w", err)
	}
	return client, nil
}

func openJournal(ctx context.Context, url string) (journal.Journal, error) {
	j, err := journal.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

// application is everything runServe starts and stops.
type application struct {
	server    *gatewayserver.Server
	refresher *tasksync.Refresher
	journal   journal.Journal
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger, deps appDeps) (*application, error) {
	m := metrics.New(cfg.MetricsNamespace)
	httpClient := gatewayserver.NewHTTPClient(cfg)

	client, err := deps.newTaskClient(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	engine, err := upstream.Factory{
		HTTPClient: httpClient,
		SiteURL:    cfg.OpenRouterSiteURL,
		SiteName:   cfg.OpenRouterSiteName,
	}.Engine(cfg.ProviderKeys())
	if err != nil {
		return nil, fmt.Errorf("model engine: %w", err)
	}
	models := modelgw.New(engine, modelgw.Config{
		CodeModel:      cfg.CodeModel,
		AnswerModel:    cfg.AnswerModel,
		Fallbacks:      cfg.FallbackModels,
		AttemptTimeout: cfg.ModelAttemptTimeout,
		MaxTokens:      cfg.ModelMaxTokens,
		Temperature:    modelgw.DefaultTemperature,
	}, modelgw.WithLogger(logger), modelgw.WithObserver(m))

	var synthesizer tts.Provider
	if cfg.ElevenLabsAPIKey != "" {
		synthesizer = tts.NewElevenLabs(cfg.ElevenLabsAPIKey)
	} else {
		logger.Warn("TASKVOICE_ELEVENLABS_API_KEY not set, speech output disabled")
	}
	pipeline := audio.New(stt.NewGroqWithClient(cfg.GroqAPIKey, httpClient), synthesizer, audio.Config{
		InputFormat: cfg.AudioInputFormat,
		Language:    cfg.STTLanguage,
		STTModel:    cfg.STTModel,
		Voice:       cfg.Voice,
		TTSModel:    cfg.TTSModel,
		TTSFormat:   cfg.TTSFormat,
		Speed:       cfg.TTSSpeed,
	}, logger)

	var j journal.Journal = journal.Noop{}
	if cfg.DatabaseURL != "" {
		j, err = deps.openJournal(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}

	var arch archive.Archiver = archive.Noop{}
	if cfg.ArchiveEndpoint != "" {
		ac, err := archive.New(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			UseSSL:    cfg.ArchiveUseSSL,
		})
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		if err := ac.Init(ctx); err != nil {
			j.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		arch = ac
	}

	var refresher *tasksync.Refresher
	if cfg.SyncSchedule != "" {
		refresher, err = tasksync.NewRefresher(client, cfg.SyncSchedule, cfg.SyncTimeout, logger)
		if err != nil {
			j.Close()
			return nil, err
		}
	}

	now := deps.now
	if now == nil {
		now = time.Now
	}
	srv := gatewayserver.New(cfg, gatewayserver.Components{
		Context:    client,
		Capability: client.Capability(),
		Executor:   sandbox.New(sandbox.WithLogger(logger)),
		Models:     models,
		Audio:      pipeline,
		Journal:    j,
		Archive:    arch,
		Metrics:    m,
		Lifecycle:  lifecycle.New(now()),
		Sessions:   sessions.NewTracker(),
	}, version, logger)

	return &application{server: srv, refresher: refresher, journal: j}, nil
}
