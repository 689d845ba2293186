// Package tasksync keeps the local task cache current against the remote
// dataset and renders it as model context.
package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vango-go/taskvoice/pkg/taskcache"
)

// SyncObserver receives one call per completed sync round trip.
type SyncObserver interface {
	ObserveSync(full bool, elapsed time.Duration, err error)
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithObserver(obs SyncObserver) Option {
	return func(c *Client) { c.observer = obs }
}

// WithSyncTimeout bounds a shared sync round trip. Callers that stop waiting
// do not shorten it.
func WithSyncTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.syncTimeout = d
		}
	}
}

const DefaultSyncTimeout = 30 * time.Second

// Client is shared by all sessions. Read-merge-write of the cache is
// serialized; concurrent FetchContext calls share one round trip.
type Client struct {
	source   Source
	store    taskcache.Store
	logger   *slog.Logger
	now      func() time.Time
	observer SyncObserver

	syncTimeout time.Duration

	mu   sync.Mutex
	snap taskcache.Snapshot

	group singleflight.Group
}

// New loads the cached snapshot from store. A cache that cannot be read is
// logged and replaced by an empty one.
func New(source Source, store taskcache.Store, opts ...Option) (*Client, error) {
	if source == nil {
		return nil, errors.New("tasksync: source is required")
	}
	if store == nil {
		return nil, errors.New("tasksync: store is required")
	}
	c := &Client{
		source: source,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,

		syncTimeout: DefaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	snap, err := store.Load()
	if err != nil {
		c.logger.Warn("task cache unusable, starting from empty", "error", err)
		snap = taskcache.Empty()
	}
	c.snap = snap
	return c, nil
}

// FetchContext syncs and returns the formatted dataset.
func (c *Client) FetchContext(ctx context.Context) (string, error) {
	ds, err := c.Sync(ctx)
	if err != nil {
		return "", err
	}
	return FormatContext(ds, c.now()), nil
}

// Sync performs one incremental sync and returns the merged dataset. The
// round trip is shared by concurrent callers and runs detached from any one
// of them: a caller whose ctx ends gets ctx.Err() while the others keep
// waiting on the same flight.
func (c *Client) Sync(ctx context.Context) (taskcache.Dataset, error) {
	ch := c.group.DoChan("sync", func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.syncTimeout)
		defer cancel()
		_, ds, err := c.roundTrip(shared, nil)
		return ds, err
	})
	select {
	case <-ctx.Done():
		return taskcache.Dataset{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return taskcache.Dataset{}, res.Err
		}
		return res.Val.(taskcache.Dataset).Clone(), nil
	}
}

// Dataset returns the last merged dataset without a round trip.
func (c *Client) Dataset() taskcache.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Dataset.Clone()
}

// Cursor returns the current cursor token.
func (c *Client) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Cursor
}

// roundTrip sends the current cursor plus commands, merges the response and
// persists it. In-memory state only advances once the save succeeds.
func (c *Client) roundTrip(ctx context.Context, commands []Command) (Result, taskcache.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	res, err := c.source.Sync(ctx, c.snap.Cursor, commands)
	if c.observer != nil {
		c.observer.ObserveSync(res.Delta.Full, time.Since(start), err)
	}
	if err != nil {
		return Result{}, taskcache.Dataset{}, err
	}

	next := taskcache.Snapshot{
		Cursor:  res.Cursor,
		Dataset: taskcache.Merge(c.snap.Dataset, res.Delta),
	}
	if err := c.store.Save(next); err != nil {
		return Result{}, taskcache.Dataset{}, fmt.Errorf("persist task cache: %w", err)
	}
	c.snap = next

	c.logger.Debug("task cache synced",
		"full", res.Delta.Full,
		"projects", len(next.Dataset.Projects),
		"items", len(next.Dataset.Items),
	)
	return res, next.Dataset.Clone(), nil
}
