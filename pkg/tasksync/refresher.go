package tasksync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Refresher syncs the cache in the background so a session's first fetch
// has a small delta to pull.
type Refresher struct {
	cron    *cron.Cron
	client  *Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewRefresher schedules client.Sync. schedule accepts five-field cron
// expressions and descriptors such as "@every 15m".
func NewRefresher(client *Client, schedule string, timeout time.Duration, logger *slog.Logger) (*Refresher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Refresher{
		cron:    cron.New(cron.WithParser(scheduleParser)),
		client:  client,
		logger:  logger,
		timeout: timeout,
	}
	if _, err := r.cron.AddFunc(schedule, r.refresh); err != nil {
		return nil, fmt.Errorf("parse sync schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Refresher) Start() { r.cron.Start() }

// Stop prevents new runs and waits for a running refresh up to ctx.
func (r *Refresher) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.client.Sync(ctx); err != nil {
		r.logger.Warn("scheduled task sync failed", "error", err)
	}
}
