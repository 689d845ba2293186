package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/core/types"
)

const chatCompletionsPath = "/chat/completions"

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
	Temperature         *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content chatContent `json:"content"`
}

// chatContent is a plain string on the way out. Responses may carry either a
// string or an array of typed parts; only text parts are kept.
type chatContent string

func (c *chatContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = chatContent(s)
		return nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	var b strings.Builder
	for _, part := range parts {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	*c = chatContent(b.String())
	return nil
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiErrorBody `json:"error"`
}

func (p *Provider) newChatRequest(req *types.MessageRequest) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)+1),
		Temperature: req.Temperature,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: chatContent(req.System)})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: chatContent(m.Content)})
	}

	limit := req.MaxTokens
	if limit <= 0 {
		limit = DefaultMaxTokens
	}
	if p.legacyMaxTokens {
		out.MaxTokens = &limit
	} else {
		out.MaxCompletionTokens = &limit
	}
	return out
}

func (p *Provider) post(ctx context.Context, payload *chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.baseURL, "/")+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for key, value := range p.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.TransportError(p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, p.parseError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.TransportError(p.name, fmt.Errorf("read response: %w", err))
	}
	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%s: unmarshal response: %w", p.name, err)
	}
	// OpenRouter reports failures of the routed model inside a 200 body.
	if decoded.Error != nil {
		return nil, p.bodyError(decoded.Error, http.StatusBadGateway)
	}
	return &decoded, nil
}

func (p *Provider) toMessageResponse(resp *chatResponse) (*types.MessageResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", p.name)
	}
	choice := resp.Choices[0]
	return &types.MessageResponse{
		ID:         resp.ID,
		Model:      p.name + "/" + resp.Model,
		Text:       string(choice.Message.Content),
		StopReason: stopReason(choice.FinishReason),
		Usage: types.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func stopReason(finish string) string {
	switch finish {
	case "stop":
		return types.StopReasonEndTurn
	case "length":
		return types.StopReasonMaxTokens
	}
	return types.StopReasonOther
}
