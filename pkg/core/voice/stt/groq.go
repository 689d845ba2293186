package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/vango-go/taskvoice/pkg/core"
)

const (
	groqDefaultBaseURL = "https://api.groq.com/openai/v1"

	DefaultGroqModel = "whisper-large-v3"
)

// GroqProvider posts clips to Groq's Whisper transcription endpoint.
type GroqProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewGroq(apiKey string) *GroqProvider { return NewGroqWithClient(apiKey, nil) }

func NewGroqWithClient(apiKey string, client *http.Client) *GroqProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GroqProvider{apiKey: strings.TrimSpace(apiKey), baseURL: groqDefaultBaseURL, httpClient: client}
}

func (g *GroqProvider) WithBaseURL(base string) *GroqProvider {
	if base = strings.TrimSpace(base); base != "" {
		g.baseURL = strings.TrimRight(base, "/")
	}
	return g
}

func (g *GroqProvider) Name() string { return "groq" }

var errEmptyAudio = errors.New("audio is empty")

func (g *GroqProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("groq api key is required")
	}
	clip, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(clip) == 0 {
		return nil, errEmptyAudio
	}
	if opts.Format == "" {
		opts.Format = DetectFormat(clip)
	}
	if opts.Model == "" {
		opts.Model = DefaultGroqModel
	}

	body, contentType, err := transcriptionForm(clip, opts)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, core.TransportError("groq", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, groqStatusError(resp)
	}

	var decoded struct {
		Text     string   `json:"text"`
		Language string   `json:"language"`
		Duration *float64 `json:"duration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := &Transcript{Text: strings.TrimSpace(decoded.Text), Language: decoded.Language}
	if decoded.Duration != nil {
		out.Duration = *decoded.Duration
	}
	return out, nil
}

func transcriptionForm(clip []byte, opts TranscribeOptions) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	ext, ctype := mediaType(opts.Format)
	part := make(textproto.MIMEHeader)
	part.Set("Content-Disposition", `form-data; name="file"; filename="audio.`+ext+`"`)
	part.Set("Content-Type", ctype)
	fw, err := form.CreatePart(part)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(clip); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	fields := []struct{ key, value string }{
		{"model", opts.Model},
		{"response_format", "verbose_json"},
		{"language", opts.Language},
		{"prompt", opts.Prompt},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := form.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", f.key, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, form.FormDataContentType(), nil
}

func groqStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(raw))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	return core.StatusError("groq", resp.StatusCode, message)
}
