package tasksync

import (
	"strings"
	"testing"

	"github.com/vango-go/taskvoice/pkg/taskcache"
)

func TestCapability_AddItemSendsCommand(t *testing.T) {
	fake, srv := newFakeTodoist(t)
	fake.projects = []wireProject{{ID: "p1", Name: "Home"}}
	c := newTestClient(t, srv, &taskcache.MemoryStore{})
	if _, err := c.Sync(t.Context()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	item, err := c.Capability().AddItem(t.Context(), taskcache.NewItem{
		Content:   "buy milk",
		ProjectID: "p1",
		DueString: "tomorrow",
		Priority:  4,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ID != "srv-100" || item.Content != "buy milk" || item.Due == nil || item.Due.String != "tomorrow" {
		t.Fatalf("item=%+v", item)
	}

	cmd := fake.requests[1].commands[0]
	if cmd.Type != "item_add" || cmd.UUID == "" || cmd.TempID == "" {
		t.Fatalf("command=%+v", cmd)
	}
	if got := cmd.Args["priority"]; got != float64(4) {
		t.Fatalf("priority arg=%v", got)
	}

	items, err := c.Capability().Items(t.Context(), "p1")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items=%+v", items)
	}
}

func TestCapability_CompleteItemRemovesFromCache(t *testing.T) {
	fake, srv := newFakeTodoist(t)
	fake.items = []wireItem{{ID: "1", Content: "a"}, {ID: "2", Content: "b"}}
	c := newTestClient(t, srv, &taskcache.MemoryStore{})
	if _, err := c.Sync(t.Context()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := c.Capability().CompleteItem(t.Context(), "1"); err != nil {
		t.Fatalf("CompleteItem: %v", err)
	}
	items, _ := c.Capability().Items(t.Context(), "")
	if len(items) != 1 || items[0].ID != "2" {
		t.Fatalf("items=%+v", items)
	}
}

func TestCapability_ProjectLifecycle(t *testing.T) {
	_, srv := newFakeTodoist(t)
	c := newTestClient(t, srv, &taskcache.MemoryStore{})
	capability := c.Capability()

	p, err := capability.AddProject(t.Context(), "Garden", true)
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if p.Name != "Garden" {
		t.Fatalf("project=%+v", p)
	}
	if err := capability.DeleteProject(t.Context(), p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	projects, _ := capability.Projects(t.Context())
	if len(projects) != 0 {
		t.Fatalf("projects=%+v", projects)
	}
}

func TestCapability_RejectedCommand(t *testing.T) {
	fake, srv := newFakeTodoist(t)
	fake.reject = "item_close"
	c := newTestClient(t, srv, &taskcache.MemoryStore{})

	err := c.Capability().CompleteItem(t.Context(), "42")
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("err=%v, want rejected", err)
	}
}

func TestCapability_Validation(t *testing.T) {
	_, srv := newFakeTodoist(t)
	capability := newTestClient(t, srv, &taskcache.MemoryStore{}).Capability()

	if _, err := capability.AddItem(t.Context(), taskcache.NewItem{Content: "  "}); err == nil {
		t.Fatal("expected error for empty content")
	}
	if _, err := capability.AddItem(t.Context(), taskcache.NewItem{Content: "x", Priority: 9}); err == nil {
		t.Fatal("expected error for bad priority")
	}
	if _, err := capability.AddItem(t.Context(), taskcache.NewItem{Content: "x", DueDate: "June 1"}); err == nil {
		t.Fatal("expected error for bad due date")
	}
	if err := capability.DeleteProject(t.Context(), ""); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestCapability_Today(t *testing.T) {
	_, srv := newFakeTodoist(t)
	if got := newTestClient(t, srv, &taskcache.MemoryStore{}).Capability().Today(); got != "2025-06-21" {
		t.Fatalf("Today=%q", got)
	}
}

func TestResolveID(t *testing.T) {
	res := Result{TempIDs: map[string]string{"tmp": "real"}}
	if got := resolveID(res, "tmp"); got != "real" {
		t.Fatalf("got=%q", got)
	}
	if got := resolveID(res, "other"); got != "other" {
		t.Fatalf("got=%q", got)
	}
}
