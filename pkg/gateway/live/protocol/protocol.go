package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Control words sent as bare text frames.
const (
	ControlInit       = "INIT"
	ControlStartAudio = "START_AUDIO"
	ControlEndAudio   = "END_AUDIO"
	ControlPing       = "ping"

	// Pong is the bare text reply to ControlPing.
	Pong = "pong"
)

// Outbound envelope kinds.
const (
	KindError         = "error"
	KindInfo          = "info"
	KindTranscription = "transcription"
	KindCode          = "code"
	KindAnswer        = "answer"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type ClientInit struct{}

type ClientStartAudio struct{}

type ClientEndAudio struct{}

type ClientPing struct{}

// ClientTranscription supplies a transcript directly, bypassing audio.
type ClientTranscription struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DecodeClientText decodes one inbound text frame. Control words match
// exactly after trimming surrounding whitespace; anything else must be a JSON
// object with a known type.
func DecodeClientText(data []byte) (any, error) {
	text := strings.TrimSpace(string(data))
	switch text {
	case ControlInit:
		return ClientInit{}, nil
	case ControlStartAudio:
		return ClientStartAudio{}, nil
	case ControlEndAudio:
		return ClientEndAudio{}, nil
	case ControlPing:
		return ClientPing{}, nil
	case "":
		return nil, badRequest("empty text frame", "")
	}

	if !strings.HasPrefix(text, "{") {
		return nil, unsupported(fmt.Sprintf("unknown message %q", truncate(text, 64)), "")
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case KindTranscription:
		var msg ClientTranscription
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return nil, badRequest("invalid transcription frame", "message")
		}
		msg.Message = strings.TrimSpace(msg.Message)
		if msg.Message == "" {
			return nil, badRequest("transcription.message is required", "message")
		}
		return msg, nil
	default:
		return nil, unsupported(fmt.Sprintf("unsupported message type %q", typ), "type")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ServerMessage is the single outbound JSON envelope.
type ServerMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Error(message string) ServerMessage { return ServerMessage{Type: KindError, Message: message} }
func Info(message string) ServerMessage  { return ServerMessage{Type: KindInfo, Message: message} }
func Transcription(message string) ServerMessage {
	return ServerMessage{Type: KindTranscription, Message: message}
}
func Code(message string) ServerMessage   { return ServerMessage{Type: KindCode, Message: message} }
func Answer(message string) ServerMessage { return ServerMessage{Type: KindAnswer, Message: message} }
