package types

// Stop reasons normalized across providers.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonMaxTokens = "max_tokens"
	StopReasonOther     = "other"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessageResponse is a completed response. Text concatenates all text
// blocks the provider returned.
type MessageResponse struct {
	ID         string `json:"id,omitempty"`
	Model      string `json:"model"`
	Text       string `json:"text"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}
