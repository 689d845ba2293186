package types

// MessageRequest is a single non-streaming completion request.
type MessageRequest struct {
	// Model is "provider/model" when routed through core.Engine, and the bare
	// model name once it reaches a provider.
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
