// Package sessions keeps the set of live /connect sessions so shutdown can
// warn them, wait for them, and finally cancel them.
package sessions

import (
	"context"
	"sort"
	"sync"
)

// Handle is how the tracker reaches a live session.
type Handle struct {
	Cancel func()
	Notify func(message string) error
}

type entry struct {
	id     string
	handle Handle
}

// Tracker is safe for concurrent use; a nil *Tracker tracks nothing.
type Tracker struct {
	mu   sync.Mutex
	live map[*entry]struct{}
	// idle is closed whenever live is empty.
	idle chan struct{}
}

func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{live: make(map[*entry]struct{}), idle: idle}
}

// Register adds a session. The returned func removes it and is safe to call
// more than once. Two sessions with the same id are tracked independently.
func (t *Tracker) Register(id string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}
	e := &entry{id: id, handle: h}
	t.mu.Lock()
	if len(t.live) == 0 {
		t.idle = make(chan struct{})
	}
	t.live[e] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { t.remove(e) }) }
}

func (t *Tracker) remove(e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.live[e]; !ok {
		return
	}
	delete(t.live, e)
	if len(t.live) == 0 {
		close(t.idle)
	}
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// IDs returns the ids of live sessions, sorted.
func (t *Tracker) IDs() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	ids := make([]string, 0, len(t.live))
	for e := range t.live {
		ids = append(ids, e.id)
	}
	t.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// snapshot copies the handles so callbacks run without holding mu.
func (t *Tracker) snapshot() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.live))
	for e := range t.live {
		out = append(out, e.handle)
	}
	return out
}

// NotifyAll sends message to every session and reports how many accepted it.
// A session whose outbound queue is full returns an error and is not counted.
func (t *Tracker) NotifyAll(message string) (sent int) {
	if t == nil {
		return 0
	}
	for _, h := range t.snapshot() {
		if h.Notify != nil && h.Notify(message) == nil {
			sent++
		}
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	for _, h := range t.snapshot() {
		if h.Cancel != nil {
			h.Cancel()
			canceled++
		}
	}
	return canceled
}

// Wait blocks until no sessions remain or ctx is done, reporting which.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return true
	case <-ctx.Done():
		return false
	}
}
