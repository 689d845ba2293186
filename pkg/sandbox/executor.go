// Package sandbox evaluates generated JavaScript against a single injected
// capability object. Isolation is limited to the callable surface: scripts
// see the capability binding, console/print, and the language builtins.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"

	"github.com/vango-go/taskvoice/pkg/taskcache"
)

const (
	// DefaultBinding is the global name the capability is bound to.
	DefaultBinding = "client"

	NoOutput = "Script completed with no output."
)

// Capability is the task surface a script may call.
type Capability interface {
	Projects(ctx context.Context) ([]taskcache.Project, error)
	Items(ctx context.Context, projectID string) ([]taskcache.Item, error)
	AddItem(ctx context.Context, item taskcache.NewItem) (taskcache.Item, error)
	CompleteItem(ctx context.Context, id string) error
	AddProject(ctx context.Context, name string, favorite bool) (taskcache.Project, error)
	DeleteProject(ctx context.Context, id string) error
	Today() string
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithBinding(name string) Option {
	return func(e *Executor) {
		if strings.TrimSpace(name) != "" {
			e.binding = name
		}
	}
}

type Executor struct {
	logger  *slog.Logger
	binding string
}

func New(opts ...Option) *Executor {
	e := &Executor{logger: slog.Default(), binding: DefaultBinding}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs script and describes the outcome. It never returns an error
// and never panics: script exceptions, syntax errors, interrupts and panics
// in capability calls all become a failure description that includes the
// output captured up to that point.
func (e *Executor) Execute(ctx context.Context, capability Capability, script string) (outcome string) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{ctx: ctx, vm: goja.New(), capability: capability}

	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("sandbox panic", "panic", fmt.Sprint(p))
			outcome = failure(fmt.Sprintf("internal error: %v", p), r.output.String())
		}
	}()

	if err := r.install(e.binding); err != nil {
		return failure(err.Error(), "")
	}

	stop := context.AfterFunc(ctx, func() { r.vm.Interrupt(ctx.Err()) })
	defer stop()

	if _, err := r.vm.RunString(script); err != nil {
		desc := describeError(err)
		e.logger.Debug("script failed", "error", desc)
		return failure(desc, r.output.String())
	}

	out := strings.TrimSpace(r.output.String())
	if out == "" {
		return NoOutput
	}
	return out
}

func failure(desc, output string) string {
	var b strings.Builder
	b.WriteString("Script failed: ")
	b.WriteString(desc)
	if out := strings.TrimSpace(output); out != "" {
		b.WriteString("\nOutput before failure:\n")
		b.WriteString(out)
	}
	return b.String()
}

func describeError(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if v := ex.Value(); v != nil {
			return v.String()
		}
		return ex.Error()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return "interrupted: " + interrupted.String()
	}
	return err.Error()
}

// run is the state of one evaluation. Each run owns its runtime and output
// buffer, so nothing written by a script outlives it.
type run struct {
	ctx        context.Context
	vm         *goja.Runtime
	capability Capability
	output     strings.Builder
}

func (r *run) install(binding string) error {
	console := r.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, r.print); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}
	if err := r.vm.Set("print", r.print); err != nil {
		return err
	}
	if r.capability == nil {
		return nil
	}
	return r.vm.Set(binding, r.capabilityObject())
}

func (r *run) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = r.format(arg)
	}
	r.output.WriteString(strings.Join(parts, " "))
	r.output.WriteByte('\n')
	return goja.Undefined()
}

func (r *run) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Function", "Error":
			return v.String()
		}
		if b, err := json.Marshal(obj.Export()); err == nil {
			return string(b)
		}
	}
	return v.String()
}

// throw raises err as a JavaScript exception in the running script.
func (r *run) throw(err error) {
	panic(r.vm.NewGoError(err))
}
