// Package journal records completed turns.
package journal

import (
	"context"
	"time"
)

// Entry is one completed turn.
type Entry struct {
	SessionID   string
	Turn        int
	Transcript  string
	Script      string
	Output      string
	Summary     string
	CodeModel   string
	AnswerModel string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Journal persists entries. Implementations are safe for concurrent use.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close()
}

// Noop discards entries.
type Noop struct{}

func (Noop) Record(context.Context, Entry) error          { return nil }
func (Noop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Noop) Close()                                       {}
