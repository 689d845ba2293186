package core

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vango-go/taskvoice/pkg/core/types"
)

// Provider is one LLM backend. CreateMessage receives the bare model name,
// with the routing prefix already stripped.
type Provider interface {
	Name() string
	CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error)
}

// Engine routes "provider/model" ids to registered providers.
type Engine struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewEngine registers the non-nil providers.
func NewEngine(providers ...Provider) *Engine {
	e := &Engine{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		e.Register(p)
	}
	return e
}

// Register adds p, replacing any provider with the same name.
func (e *Engine) Register(p Provider) {
	if p == nil {
		return
	}
	e.mu.Lock()
	e.providers[p.Name()] = p
	e.mu.Unlock()
}

func (e *Engine) lookup(name string) (Provider, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.providers[name]
	return p, ok
}

// Providers returns the registered names, sorted.
func (e *Engine) Providers() []string {
	e.mu.RLock()
	names := make([]string, 0, len(e.providers))
	for name := range e.providers {
		names = append(names, name)
	}
	e.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Routable reports whether model parses and names a registered provider.
func (e *Engine) Routable(model string) bool {
	provider, _, err := SplitModel(model)
	if err != nil {
		return false
	}
	_, ok := e.lookup(provider)
	return ok
}

func (e *Engine) CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error) {
	if req == nil {
		return nil, invalidRequest("request is required")
	}
	providerName, model, err := SplitModel(req.Model)
	if err != nil {
		return nil, err
	}
	p, ok := e.lookup(providerName)
	if !ok {
		return nil, &Error{Kind: KindUnconfigured, Provider: providerName, Message: "provider not configured"}
	}
	forwarded := *req
	forwarded.Model = model
	return p.CreateMessage(ctx, &forwarded)
}

// SplitModel splits "provider/model". Only the first slash separates, so
// "openrouter/meta-llama/llama-4-maverick" routes to openrouter.
func SplitModel(id string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(id), "/")
	if !ok || provider == "" || model == "" {
		return "", "", invalidRequest("invalid model id %q, want provider/model", id)
	}
	return provider, model, nil
}
