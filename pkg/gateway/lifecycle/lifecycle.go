package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle is process state shared across handlers. Draining makes the
// connect endpoint refuse new sessions during graceful shutdown.
type Lifecycle struct {
	draining atomic.Bool
	started  atomic.Int64
}

func New(now time.Time) *Lifecycle {
	l := &Lifecycle{}
	l.started.Store(now.UnixNano())
	return l
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// Uptime is zero for a Lifecycle not built with New.
func (l *Lifecycle) Uptime(now time.Time) time.Duration {
	if l == nil || l.started.Load() == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, l.started.Load()))
}
