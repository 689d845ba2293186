// Package gemini implements the Gemini API provider on top of the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/core/types"
)

// DefaultMaxTokens is used when the request does not set MaxTokens.
const DefaultMaxTokens = 4096

// Option configures the Gemini provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// Provider implements core.Provider for Gemini. The SDK client is created
// lazily on first use because construction takes a context.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	once    sync.Once
	client  *genai.Client
	initErr error
}

// New creates a new Gemini provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) sdk(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     p.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.httpClient,
		}
		if p.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
		}
		p.client, p.initErr = genai.NewClient(ctx, cfg)
	})
	return p.client, p.initErr
}

// CreateMessage sends a non-streaming request.
func (p *Provider) CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error) {
	client, err := p.sdk(ctx)
	if err != nil {
		return nil, core.TransportError("gemini", err)
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, buildContents(req.Messages), buildConfig(req))
	if err != nil {
		return nil, core.TransportError("gemini", err)
	}
	return parseResponse(req.Model, resp), nil
}

func buildContents(messages []types.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func buildConfig(req *types.MessageRequest) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	return cfg
}

func parseResponse(model string, resp *genai.GenerateContentResponse) *types.MessageResponse {
	out := &types.MessageResponse{
		Model:      fmt.Sprintf("gemini/%s", model),
		Text:       resp.Text(),
		StopReason: types.StopReasonOther,
	}
	if resp.ModelVersion != "" {
		out.Model = "gemini/" + resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonStop:
			out.StopReason = types.StopReasonEndTurn
		case genai.FinishReasonMaxTokens:
			out.StopReason = types.StopReasonMaxTokens
		}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = types.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out
}
