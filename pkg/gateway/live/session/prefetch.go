package session

import "context"

// contextFetch is a started, not yet joined, task context load.
type contextFetch struct {
	done chan struct{}
	text string
	err  error
}

func startContextFetch(ctx context.Context, src ContextSource) *contextFetch {
	f := &contextFetch{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.text, f.err = src.FetchContext(ctx)
	}()
	return f
}

// wait joins the fetch. A canceled ctx abandons the wait, not the fetch.
func (f *contextFetch) wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.text, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
