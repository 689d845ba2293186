package sandbox

import "strings"

const capabilityDoc = `Scripts are plain JavaScript (ES5.1 plus common ES6 features), run top to bottom.
There is no module system, no network, no filesystem, no timers and no async/await.
Write results with console.log(...) or print(...); everything printed is returned.
The global object {{name}} is the only way to read or change tasks:

  {{name}}.getProjects()
      -> [{id, name, isFavorite}]
  {{name}}.getTasks(projectId?)
      -> [{id, content, projectId, priority, due}]   due is null or {date, string}
  {{name}}.addTask({content, projectId?, dueString?, dueDate?, dueDatetime?, priority?})
      -> task. dueString is natural language ("tomorrow at 5pm"), dueDate is
         "YYYY-MM-DD", dueDatetime is "YYYY-MM-DDTHH:MM:SS". priority is 1 (normal) to 4 (urgent).
  {{name}}.addTask(content, projectId?)
      -> task
  {{name}}.completeTask(taskId)
      -> true
  {{name}}.addProject(name, isFavorite?)
      -> project
  {{name}}.deleteProject(projectId)
      -> true
  {{name}}.today()
      -> current date as "YYYY-MM-DD"

Calls throw on failure. Look up ids with getProjects/getTasks before using them.`

// Describe returns the capability surface in prompt form.
func (e *Executor) Describe(Capability) string {
	return strings.ReplaceAll(capabilityDoc, "{{name}}", e.binding)
}
