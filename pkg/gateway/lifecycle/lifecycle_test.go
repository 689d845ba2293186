package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle(t *testing.T) {
	start := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	l := New(start)
	if l.IsDraining() {
		t.Fatal("new lifecycle should not be draining")
	}
	l.SetDraining(true)
	if !l.IsDraining() {
		t.Fatal("expected draining")
	}
	if got := l.Uptime(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Fatalf("uptime = %v", got)
	}

	var zero *Lifecycle
	zero.SetDraining(true)
	if zero.IsDraining() || zero.Uptime(start) != 0 {
		t.Fatal("nil lifecycle should be inert")
	}
}
