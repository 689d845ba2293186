// Package openai talks to Chat Completions endpoints: OpenAI itself and the
// compatible gateways (OpenRouter, Groq) built in compatible.go.
package openai

import (
	"context"
	"net/http"

	"github.com/vango-go/taskvoice/pkg/core/types"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultMaxTokens = 4096
)

type Provider struct {
	apiKey          string
	baseURL         string
	name            string
	httpClient      *http.Client
	legacyMaxTokens bool
	headers         map[string]string
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		name:       "openai",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error) {
	resp, err := p.post(ctx, p.newChatRequest(req))
	if err != nil {
		return nil, err
	}
	return p.toMessageResponse(resp)
}
