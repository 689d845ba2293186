package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCodeModel   = "openrouter/meta-llama/llama-4-maverick:free"
	DefaultAnswerModel = DefaultCodeModel
	DefaultVoice       = "JBFqnCBsd6RMkjVDRZzb"
)

// DefaultFallbacks is tried in order after the role's primary model.
var DefaultFallbacks = []string{
	"openrouter/meta-llama/llama-4-maverick",
	"openrouter/anthropic/claude-3.7-sonnet",
	"openrouter/google/gemini-2.0-flash-001",
	"openrouter/google/gemini-2.5-pro-exp-03-25:free",
}

type Config struct {
	Addr string

	// AccessKey is the pre-shared secret clients present on /connect.
	AccessKey string
	DataDir   string

	// Provider keys. A completion backend is registered only when its key
	// is set.
	OpenRouterAPIKey string
	AnthropicAPIKey  string
	GeminiAPIKey     string
	OpenAIAPIKey     string
	GroqAPIKey       string
	ElevenLabsAPIKey string
	TodoistAPIKey    string

	OpenRouterSiteURL  string
	OpenRouterSiteName string

	// Model chain
	CodeModel           string
	AnswerModel         string
	FallbackModels      []string
	ModelsFile          string
	ModelAttemptTimeout time.Duration
	ModelMaxTokens      int
	HistoryWindow       int

	// Audio
	STTModel         string
	STTLanguage      string
	AudioInputFormat string
	Voice            string
	TTSModel         string
	TTSFormat        string
	TTSSpeed         float64

	// Task sync
	TodoistBaseURL string
	SyncSchedule   string
	SyncTimeout    time.Duration

	// Journal and archive. Both are disabled when unset.
	DatabaseURL      string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveUseSSL    bool

	// WebSocket sessions
	MaxMessageBytes int64
	MaxAudioBytes   int
	WSPingInterval  time.Duration
	WSWriteTimeout  time.Duration
	WSReadTimeout   time.Duration

	// Operational defaults
	ReadHeaderTimeout             time.Duration
	ShutdownGracePeriod           time.Duration
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration

	LogFormat        string
	Debug            bool
	MetricsNamespace string
}

// ProviderKeys maps routing prefixes to API keys for the completion engine.
func (c Config) ProviderKeys() map[string]string {
	return map[string]string{
		"openrouter": c.OpenRouterAPIKey,
		"anthropic":  c.AnthropicAPIKey,
		"gemini":     c.GeminiAPIKey,
		"openai":     c.OpenAIAPIKey,
		"groq":       c.GroqAPIKey,
	}
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("TASKVOICE_ADDR", ":8000"),
		AccessKey:                     envFirst("TASKVOICE_ACCESS_KEY", "ACCESS_KEY"),
		DataDir:                       envOr("TASKVOICE_DATA_DIR", defaultDataDir()),
		OpenRouterAPIKey:              envFirst("TASKVOICE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"),
		AnthropicAPIKey:               envFirst("TASKVOICE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"),
		GeminiAPIKey:                  envFirst("TASKVOICE_GEMINI_API_KEY", "GEMINI_API_KEY"),
		OpenAIAPIKey:                  envFirst("TASKVOICE_OPENAI_API_KEY", "OPENAI_API_KEY"),
		GroqAPIKey:                    envFirst("TASKVOICE_GROQ_API_KEY", "GROQ_API_KEY"),
		ElevenLabsAPIKey:              envFirst("TASKVOICE_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY"),
		TodoistAPIKey:                 envFirst("TASKVOICE_TODOIST_API_KEY", "TODOIST_API_KEY"),
		OpenRouterSiteURL:             envOr("TASKVOICE_OPENROUTER_SITE_URL", ""),
		OpenRouterSiteName:            envOr("TASKVOICE_OPENROUTER_SITE_NAME", "taskvoice"),
		CodeModel:                     envOr("TASKVOICE_CODE_MODEL", DefaultCodeModel),
		AnswerModel:                   envOr("TASKVOICE_ANSWER_MODEL", DefaultAnswerModel),
		FallbackModels:                append([]string(nil), DefaultFallbacks...),
		ModelsFile:                    envOr("TASKVOICE_MODELS_FILE", ""),
		ModelAttemptTimeout:           envDurationOr("TASKVOICE_MODEL_ATTEMPT_TIMEOUT", 30*time.Second),
		ModelMaxTokens:                envIntOr("TASKVOICE_MODEL_MAX_TOKENS", 2048),
		HistoryWindow:                 envIntOr("TASKVOICE_HISTORY_WINDOW", 10),
		STTModel:                      envOr("TASKVOICE_STT_MODEL", "whisper-large-v3"),
		STTLanguage:                   envOr("TASKVOICE_STT_LANGUAGE", ""),
		AudioInputFormat:              envOr("TASKVOICE_AUDIO_INPUT_FORMAT", ""),
		Voice:                         envOr("TASKVOICE_ELEVENLABS_VOICE_ID", DefaultVoice),
		TTSModel:                      envOr("TASKVOICE_TTS_MODEL", "eleven_flash_v2_5"),
		TTSFormat:                     envOr("TASKVOICE_TTS_FORMAT", "mp3_44100_128"),
		TTSSpeed:                      envFloat64Or("TASKVOICE_TTS_SPEED", 0),
		TodoistBaseURL:                envOr("TASKVOICE_TODOIST_BASE_URL", "https://api.todoist.com/api/v1"),
		SyncSchedule:                  envScheduleOr("TASKVOICE_SYNC_SCHEDULE", "@every 15m"),
		SyncTimeout:                   envDurationOr("TASKVOICE_SYNC_TIMEOUT", 30*time.Second),
		DatabaseURL:                   envOr("TASKVOICE_DATABASE_URL", ""),
		ArchiveEndpoint:               envOr("TASKVOICE_ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey:              envOr("TASKVOICE_ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey:              envOr("TASKVOICE_ARCHIVE_SECRET_KEY", ""),
		ArchiveBucket:                 envOr("TASKVOICE_ARCHIVE_BUCKET", "taskvoice"),
		ArchiveRegion:                 envOr("TASKVOICE_ARCHIVE_REGION", "us-east-1"),
		ArchiveUseSSL:                 envBoolOr("TASKVOICE_ARCHIVE_USE_SSL", true),
		MaxMessageBytes:               envInt64Or("TASKVOICE_MAX_MESSAGE_BYTES", 4<<20),
		MaxAudioBytes:                 envIntOr("TASKVOICE_MAX_AUDIO_BYTES", 25<<20),
		WSPingInterval:                envDurationOr("TASKVOICE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:                envDurationOr("TASKVOICE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:                 envDurationOr("TASKVOICE_WS_READ_TIMEOUT", 0),
		ReadHeaderTimeout:             envDurationOr("TASKVOICE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:           envDurationOr("TASKVOICE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("TASKVOICE_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("TASKVOICE_RESPONSE_HEADER_TIMEOUT", 60*time.Second),
		LogFormat:                     strings.ToLower(envOr("TASKVOICE_LOG_FORMAT", "text")),
		Debug:                         envBoolOr("TASKVOICE_DEBUG", false),
		MetricsNamespace:              envOr("TASKVOICE_METRICS_NAMESPACE", "taskvoice"),
	}

	if raw, ok := os.LookupEnv("TASKVOICE_FALLBACK_MODELS"); ok {
		cfg.FallbackModels = splitCSV(raw)
	}
	if cfg.ModelsFile != "" {
		if err := cfg.applyModelsFile(cfg.ModelsFile); err != nil {
			return Config{}, err
		}
	}

	if cfg.AccessKey == "" {
		return Config{}, fmt.Errorf("TASKVOICE_ACCESS_KEY must be set")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return Config{}, fmt.Errorf("TASKVOICE_DATA_DIR must not be empty")
	}
	if cfg.TodoistAPIKey == "" {
		return Config{}, fmt.Errorf("TASKVOICE_TODOIST_API_KEY must be set")
	}
	if cfg.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("TASKVOICE_GROQ_API_KEY must be set")
	}
	if err := cfg.validateModels(); err != nil {
		return Config{}, err
	}
	if cfg.ModelAttemptTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_MODEL_ATTEMPT_TIMEOUT must be > 0")
	}
	if cfg.ModelMaxTokens <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_MODEL_MAX_TOKENS must be > 0")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_HISTORY_WINDOW must be > 0")
	}
	if cfg.TTSSpeed < 0 {
		return Config{}, fmt.Errorf("TASKVOICE_TTS_SPEED must be >= 0")
	}
	if cfg.SyncTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_SYNC_TIMEOUT must be > 0")
	}
	if cfg.ArchiveEndpoint != "" && (cfg.ArchiveAccessKey == "" || cfg.ArchiveSecretKey == "") {
		return Config{}, fmt.Errorf("TASKVOICE_ARCHIVE_ACCESS_KEY and TASKVOICE_ARCHIVE_SECRET_KEY must be set when TASKVOICE_ARCHIVE_ENDPOINT is set")
	}
	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.MaxAudioBytes <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_MAX_AUDIO_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("TASKVOICE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKVOICE_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("TASKVOICE_LOG_FORMAT must be one of text|json")
	}

	return cfg, nil
}

// modelsFile is the optional YAML routing file:
//
//	code: openrouter/meta-llama/llama-4-maverick:free
//	answer: anthropic/claude-3-7-sonnet-latest
//	fallbacks:
//	  - openrouter/google/gemini-2.0-flash-001
//	attempt_timeout: 20s
type modelsFile struct {
	Code           string        `yaml:"code"`
	Answer         string        `yaml:"answer"`
	Fallbacks      *[]string     `yaml:"fallbacks"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxTokens      int           `yaml:"max_tokens"`
}

func (c *Config) applyModelsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("TASKVOICE_MODELS_FILE: %w", err)
	}
	var mf modelsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("TASKVOICE_MODELS_FILE: parse %s: %w", path, err)
	}
	if v := strings.TrimSpace(mf.Code); v != "" {
		c.CodeModel = v
	}
	if v := strings.TrimSpace(mf.Answer); v != "" {
		c.AnswerModel = v
	}
	if mf.Fallbacks != nil {
		c.FallbackModels = c.FallbackModels[:0]
		for _, m := range *mf.Fallbacks {
			if m = strings.TrimSpace(m); m != "" {
				c.FallbackModels = append(c.FallbackModels, m)
			}
		}
	}
	if mf.AttemptTimeout > 0 {
		c.ModelAttemptTimeout = mf.AttemptTimeout
	}
	if mf.MaxTokens > 0 {
		c.ModelMaxTokens = mf.MaxTokens
	}
	return nil
}

func (c Config) validateModels() error {
	if err := validModelID(c.CodeModel); err != nil {
		return fmt.Errorf("TASKVOICE_CODE_MODEL %w", err)
	}
	if err := validModelID(c.AnswerModel); err != nil {
		return fmt.Errorf("TASKVOICE_ANSWER_MODEL %w", err)
	}
	for _, m := range c.FallbackModels {
		if err := validModelID(m); err != nil {
			return fmt.Errorf("TASKVOICE_FALLBACK_MODELS entry %q %w", m, err)
		}
	}
	return nil
}

func validModelID(id string) error {
	provider, model, ok := strings.Cut(id, "/")
	if !ok || strings.TrimSpace(provider) == "" || strings.TrimSpace(model) == "" {
		return fmt.Errorf("must be of the form provider/model")
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir + string(os.PathSeparator) + "taskvoice"
	}
	return ".taskvoice"
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// envFirst returns the first non-empty value among keys.
func envFirst(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// envScheduleOr distinguishes an explicitly empty value, which disables the
// schedule, from an unset one.
func envScheduleOr(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
