package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"TASKVOICE_ADDR",
	"TASKVOICE_ACCESS_KEY",
	"ACCESS_KEY",
	"TASKVOICE_DATA_DIR",
	"TASKVOICE_OPENROUTER_API_KEY",
	"OPENROUTER_API_KEY",
	"TASKVOICE_ANTHROPIC_API_KEY",
	"ANTHROPIC_API_KEY",
	"TASKVOICE_GEMINI_API_KEY",
	"GEMINI_API_KEY",
	"TASKVOICE_OPENAI_API_KEY",
	"OPENAI_API_KEY",
	"TASKVOICE_GROQ_API_KEY",
	"GROQ_API_KEY",
	"TASKVOICE_ELEVENLABS_API_KEY",
	"ELEVENLABS_API_KEY",
	"TASKVOICE_TODOIST_API_KEY",
	"TODOIST_API_KEY",
	"TASKVOICE_CODE_MODEL",
	"TASKVOICE_ANSWER_MODEL",
	"TASKVOICE_FALLBACK_MODELS",
	"TASKVOICE_MODELS_FILE",
	"TASKVOICE_MODEL_ATTEMPT_TIMEOUT",
	"TASKVOICE_MODEL_MAX_TOKENS",
	"TASKVOICE_HISTORY_WINDOW",
	"TASKVOICE_TTS_SPEED",
	"TASKVOICE_SYNC_SCHEDULE",
	"TASKVOICE_SYNC_TIMEOUT",
	"TASKVOICE_DATABASE_URL",
	"TASKVOICE_ARCHIVE_ENDPOINT",
	"TASKVOICE_ARCHIVE_ACCESS_KEY",
	"TASKVOICE_ARCHIVE_SECRET_KEY",
	"TASKVOICE_MAX_AUDIO_BYTES",
	"TASKVOICE_WS_PING_INTERVAL",
	"TASKVOICE_LOG_FORMAT",
	"TASKVOICE_DEBUG",
}

// clearEnv unsets every variable LoadFromEnv reads and restores them after
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TASKVOICE_ACCESS_KEY", "secret")
	t.Setenv("TASKVOICE_TODOIST_API_KEY", "todoist")
	t.Setenv("TASKVOICE_GROQ_API_KEY", "groq")
	t.Setenv("TASKVOICE_DATA_DIR", t.TempDir())
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Fatalf("Addr = %q, want :8000", cfg.Addr)
	}
	if cfg.CodeModel != DefaultCodeModel || cfg.AnswerModel != DefaultAnswerModel {
		t.Fatalf("models = %q/%q", cfg.CodeModel, cfg.AnswerModel)
	}
	if !reflect.DeepEqual(cfg.FallbackModels, DefaultFallbacks) {
		t.Fatalf("FallbackModels = %v", cfg.FallbackModels)
	}
	if cfg.ModelAttemptTimeout != 30*time.Second {
		t.Fatalf("ModelAttemptTimeout = %v, want 30s", cfg.ModelAttemptTimeout)
	}
	if cfg.ModelMaxTokens != 2048 {
		t.Fatalf("ModelMaxTokens = %d, want 2048", cfg.ModelMaxTokens)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("HistoryWindow = %d, want 10", cfg.HistoryWindow)
	}
	if cfg.SyncSchedule != "@every 15m" {
		t.Fatalf("SyncSchedule = %q, want @every 15m", cfg.SyncSchedule)
	}
	if cfg.MaxAudioBytes != 25<<20 {
		t.Fatalf("MaxAudioBytes = %d, want %d", cfg.MaxAudioBytes, 25<<20)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("WSPingInterval = %v, want 20s", cfg.WSPingInterval)
	}
	if cfg.LogFormat != "text" || cfg.Debug {
		t.Fatalf("LogFormat = %q Debug = %v", cfg.LogFormat, cfg.Debug)
	}
	if cfg.DatabaseURL != "" || cfg.ArchiveEndpoint != "" {
		t.Fatalf("journal/archive should default to disabled")
	}
}

func TestLoadFromEnv_BareKeyNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACCESS_KEY", "secret")
	t.Setenv("TODOIST_API_KEY", "todoist")
	t.Setenv("GROQ_API_KEY", "groq")
	t.Setenv("OPENROUTER_API_KEY", "or")
	t.Setenv("TASKVOICE_OPENROUTER_API_KEY", "or-prefixed")
	t.Setenv("TASKVOICE_DATA_DIR", t.TempDir())

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.AccessKey != "secret" || cfg.TodoistAPIKey != "todoist" || cfg.GroqAPIKey != "groq" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.OpenRouterAPIKey != "or-prefixed" {
		t.Fatalf("OpenRouterAPIKey = %q, want prefixed value to win", cfg.OpenRouterAPIKey)
	}
	keys := cfg.ProviderKeys()
	if keys["openrouter"] != "or-prefixed" || keys["groq"] != "groq" || keys["anthropic"] != "" {
		t.Fatalf("ProviderKeys() = %v", keys)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("TASKVOICE_FALLBACK_MODELS", " anthropic/claude-3-7-sonnet-latest , ,gemini/gemini-2.0-flash ")
	t.Setenv("TASKVOICE_SYNC_SCHEDULE", "")
	t.Setenv("TASKVOICE_MODEL_ATTEMPT_TIMEOUT", "5s")
	t.Setenv("TASKVOICE_LOG_FORMAT", "JSON")
	t.Setenv("TASKVOICE_DEBUG", "yes")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	want := []string{"anthropic/claude-3-7-sonnet-latest", "gemini/gemini-2.0-flash"}
	if !reflect.DeepEqual(cfg.FallbackModels, want) {
		t.Fatalf("FallbackModels = %v, want %v", cfg.FallbackModels, want)
	}
	if cfg.SyncSchedule != "" {
		t.Fatalf("SyncSchedule = %q, want disabled", cfg.SyncSchedule)
	}
	if cfg.ModelAttemptTimeout != 5*time.Second {
		t.Fatalf("ModelAttemptTimeout = %v", cfg.ModelAttemptTimeout)
	}
	if cfg.LogFormat != "json" || !cfg.Debug {
		t.Fatalf("LogFormat = %q Debug = %v", cfg.LogFormat, cfg.Debug)
	}
}

func TestLoadFromEnv_ModelsFile(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	path := filepath.Join(t.TempDir(), "models.yaml")
	body := `code: anthropic/claude-3-7-sonnet-latest
fallbacks:
  - gemini/gemini-2.0-flash
attempt_timeout: 12s
max_tokens: 1024
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TASKVOICE_MODELS_FILE", path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.CodeModel != "anthropic/claude-3-7-sonnet-latest" {
		t.Fatalf("CodeModel = %q", cfg.CodeModel)
	}
	if cfg.AnswerModel != DefaultAnswerModel {
		t.Fatalf("AnswerModel = %q, want default kept", cfg.AnswerModel)
	}
	if !reflect.DeepEqual(cfg.FallbackModels, []string{"gemini/gemini-2.0-flash"}) {
		t.Fatalf("FallbackModels = %v", cfg.FallbackModels)
	}
	if cfg.ModelAttemptTimeout != 12*time.Second || cfg.ModelMaxTokens != 1024 {
		t.Fatalf("timeout = %v max_tokens = %d", cfg.ModelAttemptTimeout, cfg.ModelMaxTokens)
	}
}

func TestLoadFromEnv_ModelsFileErrors(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	t.Setenv("TASKVOICE_MODELS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "TASKVOICE_MODELS_FILE") {
		t.Fatalf("missing file err = %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("code: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TASKVOICE_MODELS_FILE", path)
	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("bad yaml err = %v", err)
	}
}

func TestLoadFromEnv_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "access key", env: map[string]string{"TASKVOICE_ACCESS_KEY": ""}, want: "TASKVOICE_ACCESS_KEY"},
		{name: "todoist key", env: map[string]string{"TASKVOICE_TODOIST_API_KEY": ""}, want: "TASKVOICE_TODOIST_API_KEY"},
		{name: "groq key", env: map[string]string{"TASKVOICE_GROQ_API_KEY": ""}, want: "TASKVOICE_GROQ_API_KEY"},
		{name: "code model", env: map[string]string{"TASKVOICE_CODE_MODEL": "llama"}, want: "TASKVOICE_CODE_MODEL"},
		{name: "fallback model", env: map[string]string{"TASKVOICE_FALLBACK_MODELS": "openrouter/x,/y"}, want: "TASKVOICE_FALLBACK_MODELS"},
		{name: "max tokens", env: map[string]string{"TASKVOICE_MODEL_MAX_TOKENS": "0"}, want: "TASKVOICE_MODEL_MAX_TOKENS"},
		{name: "archive credentials", env: map[string]string{"TASKVOICE_ARCHIVE_ENDPOINT": "localhost:9000"}, want: "TASKVOICE_ARCHIVE_ACCESS_KEY"},
		{name: "log format", env: map[string]string{"TASKVOICE_LOG_FORMAT": "xml"}, want: "TASKVOICE_LOG_FORMAT"},
		{name: "ping interval", env: map[string]string{"TASKVOICE_WS_PING_INTERVAL": "-1s"}, want: "TASKVOICE_WS_PING_INTERVAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}
