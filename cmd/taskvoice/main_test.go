package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/vango-go/taskvoice/pkg/gateway/config"
	"github.com/vango-go/taskvoice/pkg/journal"
	"github.com/vango-go/taskvoice/pkg/taskcache"
	"github.com/vango-go/taskvoice/pkg/tasksync"
)

type staticSource struct{}

func (staticSource) Sync(context.Context, string, []tasksync.Command) (tasksync.Result, error) {
	return tasksync.Result{
		Cursor: "c1",
		Delta: taskcache.Delta{
			Full:     true,
			Projects: []taskcache.Project{{ID: "p1", Name: "Groceries"}},
			Items:    []taskcache.Item{{ID: "i1", Content: "buy milk", ProjectID: "p1"}},
		},
	}, nil
}

func testDeps(t *testing.T) appDeps {
	t.Helper()
	return appDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{LogFormat: "text"}, nil
		},
		newTaskClient: func(_ config.Config, logger *slog.Logger, obs tasksync.SyncObserver) (*tasksync.Client, error) {
			opts := []tasksync.Option{tasksync.WithLogger(logger)}
			if obs != nil {
				opts = append(opts, tasksync.WithObserver(obs))
			}
			return tasksync.New(staticSource{}, &taskcache.MemoryStore{}, opts...)
		},
		openJournal: func(context.Context, string) (journal.Journal, error) {
			return nil, errors.New("no database in tests")
		},
		listen:       func(*http.Server) error { return nil },
		signalNotify: func(chan<- os.Signal, ...os.Signal) {},
		signalStop:   func(chan<- os.Signal) {},
	}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Chdir(t.TempDir())
	deps := testDeps(t)
	deps.loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("boom")
	}
	deps.newTaskClient = func(config.Config, *slog.Logger, tasksync.SyncObserver) (*tasksync.Client, error) {
		t.Fatalf("newTaskClient should not be called when config load fails")
		return nil, nil
	}

	var stderr bytes.Buffer
	if code := runMain(t.Context(), []string{"serve"}, io.Discard, &stderr, deps); code != 1 {
		t.Fatalf("exitCode=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRunMain_Version(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout bytes.Buffer
	if code := runMain(t.Context(), []string{"version"}, &stdout, io.Discard, testDeps(t)); code != 0 {
		t.Fatalf("exitCode=%d, want 0", code)
	}
	if strings.TrimSpace(stdout.String()) != version {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRunMain_ContextPrintsOverview(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout bytes.Buffer
	if code := runMain(t.Context(), []string{"context"}, &stdout, io.Discard, testDeps(t)); code != 0 {
		t.Fatalf("exitCode=%d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "Groceries") || !strings.Contains(stdout.String(), "buy milk") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRunMain_TurnsRequiresDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	var stderr bytes.Buffer
	if code := runMain(t.Context(), []string{"turns"}, io.Discard, &stderr, testDeps(t)); code != 1 {
		t.Fatalf("exitCode=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "TASKVOICE_DATABASE_URL") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRunMain_LoadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(".env", []byte("TASKVOICE_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("TASKVOICE_DOTENV_PROBE", "")
	_ = os.Unsetenv("TASKVOICE_DOTENV_PROBE")

	if code := runMain(t.Context(), []string{"version"}, io.Discard, io.Discard, testDeps(t)); code != 0 {
		t.Fatalf("exitCode=%d", code)
	}
	if got := os.Getenv("TASKVOICE_DOTENV_PROBE"); got != "loaded" {
		t.Fatalf("TASKVOICE_DOTENV_PROBE=%q", got)
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	cfg := config.Config{Addr: "127.0.0.1:9999", ReadHeaderTimeout: 2 * time.Second}
	srv := buildHTTPServer(cfg, http.NotFoundHandler())
	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
}

func TestNewLogger_JSONAndDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{LogFormat: "json", Debug: true})
	logger.Debug("probe", "session_id", "s1")
	if !strings.Contains(buf.String(), `"msg":"probe"`) || !strings.Contains(buf.String(), `"session_id":"s1"`) {
		t.Fatalf("log=%q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, config.Config{LogFormat: "text"}).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line logged at info level: %q", buf.String())
	}
}

func TestRunServe_GracefulShutdownOnSignal(t *testing.T) {
	deps := testDeps(t)
	addrCh := make(chan string, 1)
	deps.listen = func(srv *http.Server) error {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		addrCh <- ln.Addr().String()
		return srv.Serve(ln)
	}
	sigReady := make(chan chan<- os.Signal, 1)
	deps.signalNotify = func(c chan<- os.Signal, _ ...os.Signal) { sigReady <- c }

	cfg := config.Config{
		AccessKey:           "secret",
		CodeModel:           "openrouter/code",
		AnswerModel:         "openrouter/answer",
		ReadHeaderTimeout:   time.Second,
		ShutdownGracePeriod: 2 * time.Second,
		LogFormat:           "text",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	errCh := make(chan error, 1)
	go func() { errCh <- runServe(t.Context(), cfg, logger, deps) }()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start listening")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	sig := <-sigReady
	sig <- syscall.SIGTERM

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after SIGTERM")
	}
}

func TestRunServe_ListenErrorSurfaces(t *testing.T) {
	deps := testDeps(t)
	deps.listen = func(*http.Server) error { return errors.New("address in use") }

	err := runServe(t.Context(), config.Config{ShutdownGracePeriod: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)), deps)
	if err == nil || !strings.Contains(err.Error(), "address in use") {
		t.Fatalf("err=%v", err)
	}
}
