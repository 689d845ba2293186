package tasksync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/taskvoice/pkg/taskcache"
)

// ErrNotFound is returned when a referenced project or item is not in the
// cache after the write round trip.
var ErrNotFound = errors.New("tasksync: not found")

// Capability is the task surface handed to generated scripts. Reads come
// from the cache the turn's context fetch just refreshed; writes are sent as
// sync commands and merged through the same persist path as FetchContext.
type Capability struct {
	client *Client
}

func (c *Client) Capability() *Capability {
	return &Capability{client: c}
}

func (c *Capability) Projects(ctx context.Context) ([]taskcache.Project, error) {
	return c.client.Dataset().Projects, nil
}

// Items lists active items, restricted to projectID when it is non-empty.
func (c *Capability) Items(ctx context.Context, projectID string) ([]taskcache.Item, error) {
	ds := c.client.Dataset()
	if projectID == "" {
		return ds.Items, nil
	}
	out := make([]taskcache.Item, 0, len(ds.Items))
	for _, it := range ds.Items {
		if it.ProjectID == projectID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (c *Capability) AddItem(ctx context.Context, in taskcache.NewItem) (taskcache.Item, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return taskcache.Item{}, errors.New("content is required")
	}
	if in.Priority < 0 || in.Priority > 4 {
		return taskcache.Item{}, fmt.Errorf("priority must be between 1 and 4, got %d", in.Priority)
	}

	args := map[string]any{"content": content}
	if in.ProjectID != "" {
		args["project_id"] = in.ProjectID
	}
	if in.Priority > 0 {
		args["priority"] = in.Priority
	}
	switch {
	case in.DueString != "":
		args["due"] = map[string]any{"string": in.DueString}
	case in.DueDate != "":
		if _, err := time.Parse(time.DateOnly, in.DueDate); err != nil {
			return taskcache.Item{}, fmt.Errorf("due date %q is not YYYY-MM-DD", in.DueDate)
		}
		args["due"] = map[string]any{"date": in.DueDate}
	case in.DueDatetime != "":
		args["due"] = map[string]any{"date": in.DueDatetime}
	}

	cmd := newCommand("item_add", args, true)
	res, ds, err := c.client.run(ctx, cmd)
	if err != nil {
		return taskcache.Item{}, err
	}
	item, ok := ds.Item(resolveID(res, cmd.TempID))
	if !ok {
		return taskcache.Item{}, fmt.Errorf("%w: created item", ErrNotFound)
	}
	return item, nil
}

func (c *Capability) CompleteItem(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("item id is required")
	}
	_, _, err := c.client.run(ctx, newCommand("item_close", map[string]any{"id": id}, false))
	return err
}

func (c *Capability) AddProject(ctx context.Context, name string, favorite bool) (taskcache.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return taskcache.Project{}, errors.New("project name is required")
	}
	args := map[string]any{"name": name}
	if favorite {
		args["is_favorite"] = true
	}
	cmd := newCommand("project_add", args, true)
	res, ds, err := c.client.run(ctx, cmd)
	if err != nil {
		return taskcache.Project{}, err
	}
	p, ok := ds.Project(resolveID(res, cmd.TempID))
	if !ok {
		return taskcache.Project{}, fmt.Errorf("%w: created project", ErrNotFound)
	}
	return p, nil
}

func (c *Capability) DeleteProject(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("project id is required")
	}
	_, _, err := c.client.run(ctx, newCommand("project_delete", map[string]any{"id": id}, false))
	return err
}

// Today is the current local date as YYYY-MM-DD.
func (c *Capability) Today() string {
	return c.client.now().Format(time.DateOnly)
}

func newCommand(kind string, args map[string]any, withTempID bool) Command {
	cmd := Command{Type: kind, UUID: uuid.NewString(), Args: args}
	if withTempID {
		cmd.TempID = uuid.NewString()
	}
	return cmd
}

func resolveID(res Result, tempID string) string {
	if id, ok := res.TempIDs[tempID]; ok {
		return id
	}
	return tempID
}

// run sends one command with an incremental sync and fails if the remote
// rejected it.
func (c *Client) run(ctx context.Context, cmd Command) (Result, taskcache.Dataset, error) {
	res, ds, err := c.roundTrip(ctx, []Command{cmd})
	if err != nil {
		return Result{}, taskcache.Dataset{}, err
	}
	if cerr, ok := res.CommandErrors[cmd.UUID]; ok {
		return Result{}, taskcache.Dataset{}, fmt.Errorf("%s: %w", cmd.Type, cerr)
	}
	return res, ds, nil
}
