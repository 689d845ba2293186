package session

import (
	"fmt"
	"strings"
	"time"
)

const codeSystemTemplate = `<info>
You are a programming agent that manages the user's Todoist tasks.
Read the user's request (it may be in any language) and write a JavaScript
script that fulfils it. The script runs immediately in a sandbox.
</info>

<api>
%s
</api>

<tasks>
The user's current tasks, grouped by project, with optional due dates:
%s
</tasks>

<date>
Today is %s
</date>

<constraints>
Output ONLY JavaScript. It is executed as is.
Do not write comments or explanations.
Use the capability object described above for every task operation.
Print what the user asked to know, and a short confirmation for every change.
Keep the script short.
</constraints>`

const answerSystemPrompt = `<info>
You are given a user's request, the script that was run for it and the script's output.
Briefly tell the user what happened, in the language of their request.
</info>

<constraints>
Answer in one to three short sentences suitable for reading aloud.
No markdown, no code, no lists. Spell out symbols.
If the output says the script failed, say that the request could not be completed and why.
</constraints>`

func codeSystemPrompt(tasks, capability string, now time.Time) string {
	if strings.TrimSpace(tasks) == "" {
		tasks = "(no tasks)"
	}
	return fmt.Sprintf(codeSystemTemplate, capability, tasks, now.Format("02 Jan 2006 15:04"))
}

func codeUserMessage(transcript string) string {
	return "<user_request>\n" + transcript + "\n</user_request>"
}

func answerUserMessage(transcript, tasks, script, output string) string {
	var b strings.Builder
	b.WriteString("<user_request>\n")
	b.WriteString(transcript)
	b.WriteString("\n</user_request>\n\n<tasks>\n")
	b.WriteString(tasks)
	b.WriteString("\n</tasks>\n\n<code>\n")
	b.WriteString(script)
	b.WriteString("\n</code>\n\n<output>\n")
	b.WriteString(output)
	b.WriteString("\n</output>")
	return b.String()
}
