// Package audio turns accumulated speech into text and summaries into speech.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vango-go/taskvoice/pkg/core/voice/stt"
	"github.com/vango-go/taskvoice/pkg/core/voice/tts"
)

// ErrNoAudio is returned when a turn ends with an empty buffer.
var ErrNoAudio = errors.New("no audio received")

// Config selects models and voice for the two directions.
type Config struct {
	InputFormat string // container of client audio; empty detects it per clip
	Language    string
	STTModel    string
	Voice       string
	TTSModel    string
	TTSFormat   string
	Speed       float64
}

type Pipeline struct {
	stt    stt.Provider
	tts    tts.Provider
	cfg    Config
	logger *slog.Logger
}

// New builds a Pipeline. A nil synthesizer disables speech.
func New(transcriber stt.Provider, synthesizer tts.Provider, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{stt: transcriber, tts: synthesizer, cfg: cfg, logger: logger}
}

// Transcribe sends the whole buffer in one request.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoAudio
	}
	if p.stt == nil {
		return "", fmt.Errorf("transcription is not configured")
	}
	out, err := p.stt.Transcribe(ctx, bytes.NewReader(audio), stt.TranscribeOptions{
		Model:    p.cfg.STTModel,
		Language: p.cfg.Language,
		Format:   p.cfg.InputFormat,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("transcribe: empty transcript")
	}
	return text, nil
}

// SynthesizeSpeech returns the encoded clip, or ok=false when synthesis is
// disabled, fails or yields nothing.
func (p *Pipeline) SynthesizeSpeech(ctx context.Context, text string) ([]byte, bool) {
	if p.tts == nil || strings.TrimSpace(text) == "" {
		return nil, false
	}
	out, err := p.tts.Synthesize(ctx, text, tts.SynthesizeOptions{
		Voice:  p.cfg.Voice,
		Model:  p.cfg.TTSModel,
		Format: p.cfg.TTSFormat,
		Speed:  p.cfg.Speed,
	})
	if err != nil {
		p.logger.Warn("speech synthesis failed", "provider", p.tts.Name(), "error", err)
		return nil, false
	}
	if out == nil || len(out.Audio) == 0 {
		p.logger.Warn("speech synthesis returned no audio", "provider", p.tts.Name())
		return nil, false
	}
	return out.Audio, true
}
