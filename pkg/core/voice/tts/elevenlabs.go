package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/taskvoice/pkg/core"
)

const (
	elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"

	DefaultElevenLabsModel  = "eleven_flash_v2_5"
	DefaultElevenLabsFormat = "mp3_44100_128"
)

// ElevenLabsProvider synthesizes over the stream-input websocket: the whole
// answer is sent as one flushed chunk and the audio chunks are concatenated.
type ElevenLabsProvider struct {
	apiKey       string
	wsBaseURL    string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:       strings.TrimSpace(apiKey),
		wsBaseURL:    elevenLabsDefaultWSBase,
		dialer:       websocket.DefaultDialer,
		writeTimeout: 5 * time.Second,
	}
}

// WithWSBaseURL overrides the socket URL. "{voice_id}" is substituted.
func (e *ElevenLabsProvider) WithWSBaseURL(base string) *ElevenLabsProvider {
	if base = strings.TrimSpace(base); base != "" {
		e.wsBaseURL = base
	}
	return e
}

func (e *ElevenLabsProvider) Name() string { return "elevenlabs" }

type streamChunk struct {
	Audio   string `json:"audio"`
	IsFinal *bool  `json:"isFinal"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	switch {
	case e.apiKey == "":
		return nil, fmt.Errorf("elevenlabs api key is required")
	case strings.TrimSpace(opts.Voice) == "":
		return nil, fmt.Errorf("voice id is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if opts.Format == "" {
		opts.Format = DefaultElevenLabsFormat
	}
	if opts.Model == "" {
		opts.Model = DefaultElevenLabsModel
	}
	wsURL, err := buildElevenLabsProviderWSURL(e.wsBaseURL, strings.TrimSpace(opts.Voice), opts.Model, opts.Format)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, resp, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, core.StatusError("elevenlabs", resp.StatusCode, "")
		}
		return nil, core.TransportError("elevenlabs", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := e.send(conn, text, opts.Speed); err != nil {
		return nil, err
	}
	audio, err := collect(ctx, conn)
	if err != nil {
		return nil, err
	}
	return &Synthesis{Audio: audio, Format: opts.Format}, nil
}

// send writes the opening frame, the text with a flush, and the empty frame
// that ends the input stream.
func (e *ElevenLabsProvider) send(conn *websocket.Conn, text string, speed float64) error {
	opening := map[string]any{"text": " "}
	if speed > 0 {
		opening["voice_settings"] = map[string]any{"speed": speed}
	}
	for _, frame := range []map[string]any{
		opening,
		{"text": text + " ", "flush": true},
		{"text": ""},
	} {
		_ = conn.SetWriteDeadline(time.Now().Add(e.writeTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}
	return nil
}

// collect reads until the final marker or a normal close. An abnormal close
// after some audio has arrived still returns that audio.
func collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case websocket.IsCloseError(err, websocket.CloseNormalClosure), errors.Is(err, websocket.ErrCloseSent):
			return audio, nil
		case len(audio) > 0 && websocket.IsUnexpectedCloseError(err):
			return audio, nil
		default:
			return nil, fmt.Errorf("read audio: %w", err)
		}

		var chunk streamChunk
		if json.Unmarshal(data, &chunk) != nil {
			continue
		}
		if chunk.Error != "" {
			return nil, &core.Error{Kind: core.KindUpstream, Provider: "elevenlabs", Message: strings.TrimSpace(chunk.Error + " " + chunk.Message)}
		}
		if chunk.Audio != "" {
			if decoded, err := base64.StdEncoding.DecodeString(chunk.Audio); err == nil {
				audio = append(audio, decoded...)
			}
		}
		if chunk.IsFinal != nil && *chunk.IsFinal {
			return audio, nil
		}
	}
}

func buildElevenLabsProviderWSURL(base, voiceID, model, format string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = elevenLabsDefaultWSBase
	}
	u, err := url.Parse(strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID)))
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + voiceID + "/stream-input"
	}
	if model == "" {
		model = DefaultElevenLabsModel
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", model)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", format)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
