// Package anthropic implements the Anthropic Messages API provider on top of
// the official SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/core/types"
)

// DefaultMaxTokens is used when the request does not set MaxTokens.
const DefaultMaxTokens = 4096

// Option configures the Anthropic provider.
type Option func(*config)

type config struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL sets a custom base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// Provider implements core.Provider for Anthropic.
type Provider struct {
	client anthropic.Client
}

// New creates a new Anthropic provider. SDK retries are disabled; callers
// retry by moving down their fallback chain.
func New(apiKey string, opts ...Option) *Provider {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	return &Provider{client: anthropic.NewClient(reqOpts...)}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "anthropic"
}

// CreateMessage sends a non-streaming request.
func (p *Provider) CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error) {
	params := buildParams(req)
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	return parseResponse(resp), nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		e := core.StatusError("anthropic", apiErr.StatusCode, "")
		e.Err = err
		return e
	}
	return core.TransportError("anthropic", err)
}

func buildParams(req *types.MessageRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     req.Model,
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

func convertMessages(messages []types.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}

func parseResponse(resp *anthropic.Message) *types.MessageResponse {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	stop := types.StopReasonOther
	switch string(resp.StopReason) {
	case "end_turn", "stop_sequence":
		stop = types.StopReasonEndTurn
	case "max_tokens":
		stop = types.StopReasonMaxTokens
	}

	return &types.MessageResponse{
		ID:         resp.ID,
		Model:      fmt.Sprintf("anthropic/%s", resp.Model),
		Text:       text.String(),
		StopReason: stop,
		Usage: types.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
}
