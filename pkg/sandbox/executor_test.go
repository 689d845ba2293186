package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/taskvoice/pkg/taskcache"
)

type fakeCapability struct {
	projects  []taskcache.Project
	items     []taskcache.Item
	added     []taskcache.NewItem
	completed []string
	fail      error
	panicMsg  string
}

func (f *fakeCapability) Projects(context.Context) ([]taskcache.Project, error) {
	return f.projects, f.fail
}

func (f *fakeCapability) Items(_ context.Context, projectID string) ([]taskcache.Item, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	var out []taskcache.Item
	for _, it := range f.items {
		if projectID == "" || it.ProjectID == projectID {
			out = append(out, it)
		}
	}
	return out, f.fail
}

func (f *fakeCapability) AddItem(_ context.Context, in taskcache.NewItem) (taskcache.Item, error) {
	if f.fail != nil {
		return taskcache.Item{}, f.fail
	}
	f.added = append(f.added, in)
	return taskcache.Item{ID: "new-1", Content: in.Content, ProjectID: in.ProjectID, Priority: in.Priority}, nil
}

func (f *fakeCapability) CompleteItem(_ context.Context, id string) error {
	f.completed = append(f.completed, id)
	return f.fail
}

func (f *fakeCapability) AddProject(_ context.Context, name string, favorite bool) (taskcache.Project, error) {
	return taskcache.Project{ID: "p-new", Name: name, Favorite: favorite}, f.fail
}

func (f *fakeCapability) DeleteProject(context.Context, string) error { return f.fail }

func (f *fakeCapability) Today() string { return "2025-06-21" }

func TestExecute_CapturesOutput(t *testing.T) {
	capability := &fakeCapability{
		projects: []taskcache.Project{{ID: "p1", Name: "Home"}},
		items:    []taskcache.Item{{ID: "1", Content: "milk", ProjectID: "p1", Due: &taskcache.Due{Date: "2025-06-21"}}},
	}
	got := New().Execute(t.Context(), capability, `
var ps = client.getProjects();
console.log("projects:", ps.length, ps[0].name);
var ts = client.getTasks("p1");
print(ts[0].content, ts[0].due.date);
console.log({n: 1});
`)
	want := "projects: 1 Home\nmilk 2025-06-21\n{\"n\":1}"
	if got != want {
		t.Fatalf("got=%q, want %q", got, want)
	}
}

func TestExecute_EmptyOutputPlaceholder(t *testing.T) {
	got := New().Execute(t.Context(), &fakeCapability{}, `var x = 1 + 1;`)
	if got != NoOutput {
		t.Fatalf("got=%q", got)
	}
	if strings.Contains(got, "failed") {
		t.Fatalf("placeholder reads as failure: %q", got)
	}
}

func TestExecute_ExceptionKeepsPartialOutput(t *testing.T) {
	ex := New()
	got := ex.Execute(t.Context(), &fakeCapability{}, `
console.log("before");
throw new RangeError("division by zero");
console.log("after");
`)
	if !strings.HasPrefix(got, "Script failed: RangeError: division by zero") {
		t.Fatalf("got=%q", got)
	}
	if !strings.Contains(got, "Output before failure:\nbefore") || strings.Contains(got, "after") {
		t.Fatalf("got=%q", got)
	}

	// The next run starts with a clean buffer.
	if got := ex.Execute(t.Context(), &fakeCapability{}, `print("clean")`); got != "clean" {
		t.Fatalf("second run=%q", got)
	}
}

func TestExecute_SyntaxError(t *testing.T) {
	got := New().Execute(t.Context(), &fakeCapability{}, `this is not javascript`)
	if !strings.HasPrefix(got, "Script failed: ") {
		t.Fatalf("got=%q", got)
	}
}

func TestExecute_CapabilityErrorIsCatchable(t *testing.T) {
	capability := &fakeCapability{fail: errors.New("remote said no")}
	got := New().Execute(t.Context(), capability, `
try {
  client.addTask({content: "x"});
} catch (e) {
  console.log("caught", String(e).indexOf("remote said no") >= 0);
}
`)
	if got != "caught true" {
		t.Fatalf("got=%q", got)
	}
}

func TestExecute_UncaughtCapabilityError(t *testing.T) {
	capability := &fakeCapability{fail: errors.New("remote said no")}
	got := New().Execute(t.Context(), capability, `client.completeTask("1")`)
	if !strings.HasPrefix(got, "Script failed: ") || !strings.Contains(got, "remote said no") {
		t.Fatalf("got=%q", got)
	}
}

func TestExecute_CapabilityPanicDoesNotEscape(t *testing.T) {
	capability := &fakeCapability{panicMsg: "kaboom"}
	got := New().Execute(t.Context(), capability, `print("start"); client.getTasks();`)
	if !strings.HasPrefix(got, "Script failed: ") || !strings.Contains(got, "kaboom") {
		t.Fatalf("got=%q", got)
	}
	if !strings.Contains(got, "start") {
		t.Fatalf("partial output missing: %q", got)
	}
}

func TestExecute_AddTaskArguments(t *testing.T) {
	capability := &fakeCapability{}
	got := New().Execute(t.Context(), capability, `
var t = client.addTask({content: "buy milk", projectId: "p1", dueString: "tomorrow", priority: 4});
print(t.id, t.content);
client.addTask("call mom");
print(client.completeTask("9"), client.today());
`)
	if got != "new-1 buy milk\ntrue 2025-06-21" {
		t.Fatalf("got=%q", got)
	}
	if len(capability.added) != 2 {
		t.Fatalf("added=%+v", capability.added)
	}
	first := capability.added[0]
	if first.ProjectID != "p1" || first.DueString != "tomorrow" || first.Priority != 4 {
		t.Fatalf("first=%+v", first)
	}
	if capability.added[1].Content != "call mom" {
		t.Fatalf("second=%+v", capability.added[1])
	}
	if len(capability.completed) != 1 || capability.completed[0] != "9" {
		t.Fatalf("completed=%v", capability.completed)
	}
}

func TestExecute_OnlyCapabilityIsBound(t *testing.T) {
	got := New().Execute(t.Context(), &fakeCapability{}, `
print(typeof client, typeof require, typeof process, typeof setTimeout);
`)
	if got != "object undefined undefined undefined" {
		t.Fatalf("got=%q", got)
	}
}

func TestExecute_ContextCancelInterrupts(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	done := make(chan string, 1)
	go func() { done <- New().Execute(ctx, &fakeCapability{}, `print("spin"); for (;;) {}`) }()
	select {
	case got := <-done:
		if !strings.HasPrefix(got, "Script failed: interrupted") || !strings.Contains(got, "spin") {
			t.Fatalf("got=%q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("script was not interrupted")
	}
}

func TestDescribe_UsesBinding(t *testing.T) {
	desc := New(WithBinding("todo")).Describe(nil)
	if !strings.Contains(desc, "todo.addTask(") || strings.Contains(desc, "{{name}}") {
		t.Fatalf("desc=%q", desc)
	}
}
