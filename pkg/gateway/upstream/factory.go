package upstream

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/core/providers/anthropic"
	"github.com/vango-go/taskvoice/pkg/core/providers/gemini"
	"github.com/vango-go/taskvoice/pkg/core/providers/openai"
)

// Factory builds completion backends keyed by their routing prefix.
type Factory struct {
	HTTPClient *http.Client
	// SiteURL and SiteName are forwarded to OpenRouter for attribution.
	SiteURL  string
	SiteName string
}

func (f Factory) New(providerName, apiKey string) (core.Provider, error) {
	client := f.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	switch providerName {
	case "anthropic":
		return anthropic.New(apiKey, anthropic.WithHTTPClient(client)), nil
	case "openai":
		return openai.New(apiKey, openai.WithHTTPClient(client)), nil
	case "groq":
		return openai.NewGroq(apiKey, openai.WithHTTPClient(client)), nil
	case "openrouter":
		return openai.NewOpenRouter(apiKey, f.SiteURL, f.SiteName, openai.WithHTTPClient(client)), nil
	case "gemini":
		return gemini.New(apiKey, gemini.WithHTTPClient(client)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

// Engine registers one backend per non-empty key. Providers without a key
// stay unregistered so requests routed to them fail as unconfigured.
func (f Factory) Engine(keys map[string]string) (*core.Engine, error) {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	engine := core.NewEngine()
	for _, name := range names {
		key := strings.TrimSpace(keys[name])
		if key == "" {
			continue
		}
		p, err := f.New(name, key)
		if err != nil {
			return nil, err
		}
		engine.Register(p)
	}
	return engine, nil
}
