package session

import "github.com/vango-go/taskvoice/pkg/core/types"

// turnRecord is one completed turn. Only turns that reached a summary are
// recorded.
type turnRecord struct {
	transcript string
	script     string
	output     string
	summary    string
}

type historyManager struct {
	turns []turnRecord
	// window bounds how many recent turns are replayed to the code model.
	window int
}

func newHistoryManager(window int) *historyManager {
	return &historyManager{
		turns:  make([]turnRecord, 0, 16),
		window: window,
	}
}

func (h *historyManager) append(r turnRecord) {
	h.turns = append(h.turns, r)
}

func (h *historyManager) reset() {
	h.turns = h.turns[:0]
}

func (h *historyManager) len() int {
	return len(h.turns)
}

// codeMessages replays prior turns as request/script pairs so the code model
// can resolve references like "that task" against its own earlier output.
func (h *historyManager) codeMessages() []types.Message {
	turns := h.turns
	if h.window > 0 && len(turns) > h.window {
		turns = turns[len(turns)-h.window:]
	}
	out := make([]types.Message, 0, len(turns)*2)
	for _, t := range turns {
		out = append(out,
			types.UserMessage(codeUserMessage(t.transcript)),
			types.AssistantMessage(t.script),
		)
	}
	return out
}
