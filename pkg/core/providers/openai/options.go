package openai

import (
	"net/http"
	"strings"
)

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API root. Empty values are ignored.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithName sets the routing name, which also prefixes response models.
func WithName(name string) Option {
	return func(p *Provider) {
		if name = strings.TrimSpace(name); name != "" {
			p.name = name
		}
	}
}

// WithLegacyMaxTokens sends the output limit as max_tokens instead of
// max_completion_tokens. Most OpenAI-compatible gateways only read the former.
func WithLegacyMaxTokens() Option {
	return func(p *Provider) { p.legacyMaxTokens = true }
}

// WithHeader adds a header to every request. Empty keys or values are ignored.
func WithHeader(key, value string) Option {
	return func(p *Provider) {
		if key == "" || value == "" {
			return
		}
		if p.headers == nil {
			p.headers = make(map[string]string)
		}
		p.headers[key] = value
	}
}
