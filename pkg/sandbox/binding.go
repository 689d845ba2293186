package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/vango-go/taskvoice/pkg/taskcache"
)

func (r *run) capabilityObject() *goja.Object {
	obj := r.vm.NewObject()
	_ = obj.Set("getProjects", r.getProjects)
	_ = obj.Set("getTasks", r.getTasks)
	_ = obj.Set("addTask", r.addTask)
	_ = obj.Set("completeTask", r.completeTask)
	_ = obj.Set("addProject", r.addProject)
	_ = obj.Set("deleteProject", r.deleteProject)
	_ = obj.Set("today", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(r.capability.Today())
	})
	return obj
}

func (r *run) getProjects(call goja.FunctionCall) goja.Value {
	projects, err := r.capability.Projects(r.ctx)
	if err != nil {
		r.throw(err)
	}
	out := make([]any, len(projects))
	for i, p := range projects {
		out[i] = r.projectValue(p)
	}
	return r.vm.NewArray(out...)
}

func (r *run) getTasks(call goja.FunctionCall) goja.Value {
	items, err := r.capability.Items(r.ctx, optionalString(call.Argument(0)))
	if err != nil {
		r.throw(err)
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = r.itemValue(it)
	}
	return r.vm.NewArray(out...)
}

// addTask accepts either a content string or an options object
// {content, projectId, dueString, dueDate, dueDatetime, priority}.
func (r *run) addTask(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	var in taskcache.NewItem
	if obj, ok := arg.(*goja.Object); ok {
		in = taskcache.NewItem{
			Content:     stringField(obj, "content"),
			ProjectID:   stringField(obj, "projectId"),
			DueString:   stringField(obj, "dueString"),
			DueDate:     stringField(obj, "dueDate"),
			DueDatetime: stringField(obj, "dueDatetime"),
			Priority:    int(intField(obj, "priority")),
		}
	} else {
		in.Content = optionalString(arg)
		in.ProjectID = optionalString(call.Argument(1))
	}
	item, err := r.capability.AddItem(r.ctx, in)
	if err != nil {
		r.throw(fmt.Errorf("addTask: %w", err))
	}
	return r.itemValue(item)
}

func (r *run) completeTask(call goja.FunctionCall) goja.Value {
	if err := r.capability.CompleteItem(r.ctx, optionalString(call.Argument(0))); err != nil {
		r.throw(fmt.Errorf("completeTask: %w", err))
	}
	return r.vm.ToValue(true)
}

func (r *run) addProject(call goja.FunctionCall) goja.Value {
	favorite := false
	if v := call.Argument(1); !goja.IsUndefined(v) && !goja.IsNull(v) {
		favorite = v.ToBoolean()
	}
	p, err := r.capability.AddProject(r.ctx, optionalString(call.Argument(0)), favorite)
	if err != nil {
		r.throw(fmt.Errorf("addProject: %w", err))
	}
	return r.projectValue(p)
}

func (r *run) deleteProject(call goja.FunctionCall) goja.Value {
	if err := r.capability.DeleteProject(r.ctx, optionalString(call.Argument(0))); err != nil {
		r.throw(fmt.Errorf("deleteProject: %w", err))
	}
	return r.vm.ToValue(true)
}

func (r *run) projectValue(p taskcache.Project) *goja.Object {
	obj := r.vm.NewObject()
	_ = obj.Set("id", p.ID)
	_ = obj.Set("name", p.Name)
	_ = obj.Set("isFavorite", p.Favorite)
	return obj
}

func (r *run) itemValue(it taskcache.Item) *goja.Object {
	obj := r.vm.NewObject()
	_ = obj.Set("id", it.ID)
	_ = obj.Set("content", it.Content)
	_ = obj.Set("projectId", it.ProjectID)
	_ = obj.Set("priority", it.Priority)
	if it.Due != nil {
		due := r.vm.NewObject()
		_ = due.Set("date", it.Due.Date)
		_ = due.Set("string", it.Due.String)
		_ = obj.Set("due", due)
	} else {
		_ = obj.Set("due", goja.Null())
	}
	return obj
}

func optionalString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func stringField(obj *goja.Object, name string) string {
	return optionalString(obj.Get(name))
}

func intField(obj *goja.Object, name string) int64 {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return v.ToInteger()
}
