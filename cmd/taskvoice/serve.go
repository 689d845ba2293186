package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/taskvoice/pkg/gateway/config"
)

func defaultAppDeps() appDeps {
	return appDeps{
		loadConfig:    config.LoadFromEnv,
		newTaskClient: newTaskClient,
		openJournal:   openJournal,
		listen:        func(srv *http.Server) error { return srv.ListenAndServe() },
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, deps appDeps) error {
	if deps.newTaskClient == nil || deps.openJournal == nil || deps.listen == nil {
		return errors.New("missing application dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	app, err := buildApplication(ctx, cfg, logger, deps)
	if err != nil {
		return err
	}
	defer app.journal.Close()

	httpSrv := buildHTTPServer(cfg, app.server.Handler())
	logger.Info("starting server", "addr", cfg.Addr, "code_model", cfg.CodeModel, "answer_model", cfg.AnswerModel, "fallbacks", len(cfg.FallbackModels))

	if app.refresher != nil {
		app.refresher.Start()
	}

	listenErrCh := make(chan error, 1)
	go func() {
		err := deps.listen(httpSrv)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if app.refresher != nil {
			app.refresher.Stop(context.Background())
		}
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	app.server.SetDraining()
	notified := app.server.NotifySessionsDraining()
	logger.Info("draining sessions", "sessions", notified)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if app.refresher != nil {
		app.refresher.Stop(shutdownCtx)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	if !app.server.WaitSessions(shutdownCtx) {
		canceled := app.server.CancelSessions()
		logger.Warn("grace period elapsed, canceled sessions", "sessions", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
