// Package modelgw runs chat completions against an ordered chain of models,
// falling through to the next candidate on errors and empty responses.
package modelgw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/core/types"
)

// Role selects the primary model and the post-processing applied to output.
type Role string

const (
	RoleCode   Role = "code"
	RoleAnswer Role = "answer"
)

const (
	DefaultAttemptTimeout = 30 * time.Second
	DefaultMaxTokens      = 2048
	DefaultTemperature    = 0.1
)

// ErrEmptyResponse marks an attempt whose model returned no usable text.
var ErrEmptyResponse = errors.New("empty response")

// Completer is satisfied by core.Engine.
type Completer interface {
	CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error)
}

// Observer receives one call per attempt.
type Observer interface {
	ObserveAttempt(role Role, model string, err error, elapsed time.Duration)
}

// Config holds the model chain. Model ids are "provider/model".
type Config struct {
	CodeModel      string
	AnswerModel    string
	Fallbacks      []string
	AttemptTimeout time.Duration
	MaxTokens      int
	Temperature    float64
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

type Gateway struct {
	completer Completer
	cfg       Config
	fallbacks []string
	logger    *slog.Logger
	observer  Observer
}

func New(completer Completer, cfg Config, opts ...Option) *Gateway {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	g := &Gateway{
		completer: completer,
		cfg:       cfg,
		fallbacks: append([]string(nil), cfg.Fallbacks...),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Candidates returns the primary model for role followed by the fallbacks.
// The primary is listed even when it also appears among the fallbacks.
func (g *Gateway) Candidates(role Role) []string {
	primary := g.cfg.AnswerModel
	if role == RoleCode {
		primary = g.cfg.CodeModel
	}
	out := make([]string, 0, len(g.fallbacks)+1)
	if strings.TrimSpace(primary) != "" {
		out = append(out, primary)
	}
	return append(out, g.fallbacks...)
}

// Complete asks each candidate in order and returns the first non-empty
// response. It never returns a Go error; failures are reported through the
// Outcome.
func (g *Gateway) Complete(ctx context.Context, role Role, system, user string, history []types.Message) Outcome {
	messages := make([]types.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, types.UserMessage(user))

	out := Outcome{Role: role}
	for _, model := range g.Candidates(role) {
		if err := ctx.Err(); err != nil {
			out.Attempts = append(out.Attempts, Attempt{Model: model, Err: err})
			break
		}
		start := time.Now()
		text, err := g.attempt(ctx, role, model, system, messages)
		elapsed := time.Since(start)
		out.Attempts = append(out.Attempts, Attempt{Model: model, Err: err, Elapsed: elapsed})
		if g.observer != nil {
			g.observer.ObserveAttempt(role, model, err, elapsed)
		}
		if err != nil {
			g.logger.Warn("model attempt failed",
				"role", string(role),
				"model", model,
				"elapsed_ms", elapsed.Milliseconds(),
				"kind", string(core.KindOf(err)),
				"error", err,
			)
			continue
		}
		out.Text = text
		out.Model = model
		out.ok = true
		return out
	}
	return out
}

func (g *Gateway) attempt(ctx context.Context, role Role, model, system string, messages []types.Message) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()

	resp, err := g.completer.CreateMessage(attemptCtx, &types.MessageRequest{
		Model:       model,
		System:      system,
		Messages:    messages,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: types.Float64(g.cfg.Temperature),
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := Clean(role, resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Attempt records one candidate call.
type Attempt struct {
	Model   string
	Err     error
	Elapsed time.Duration
}

// Outcome is either a success carrying Text and Model, or an exhausted chain
// carrying only Attempts.
type Outcome struct {
	Role     Role
	Text     string
	Model    string
	Attempts []Attempt
	ok       bool
}

func (o Outcome) OK() bool { return o.ok }

// Err returns nil on success, otherwise an *ExhaustedError.
func (o Outcome) Err() error {
	if o.ok {
		return nil
	}
	return &ExhaustedError{Role: o.Role, Attempts: o.Attempts}
}

// ExhaustedError reports that no candidate produced a usable response.
type ExhaustedError struct {
	Role     Role
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("modelgw: no models configured for role %s", e.Role)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Model, a.Err))
	}
	return fmt.Sprintf("modelgw: all %d models failed for role %s (%s)", len(e.Attempts), e.Role, strings.Join(parts, "; "))
}
