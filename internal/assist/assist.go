// Package assist asks a language model for help with tasks. Every call
// degrades to an empty or canned answer when the model is unavailable.
package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/GolferGeek/sync-focus/internal/model"
)

const (
	maxSubtasks       = 5
	maxSuggestContext = 15

	defaultMotivation  = "Keep crushing it!"
	fallbackMotivation = "You're doing great!"
)

type Assistant interface {
	// BreakDownTask returns up to five short sub-task titles.
	BreakDownTask(ctx context.Context, title string) []string
	// SuggestNextTask returns the id of one of tasks, or "".
	SuggestNextTask(ctx context.Context, tasks []model.Task, projects []model.Project) string
	Motivation(ctx context.Context, completed int, currentTask string) string
}

// Noop is used when no model is configured.
type Noop struct{}

func (Noop) BreakDownTask(context.Context, string) []string { return nil }

func (Noop) SuggestNextTask(context.Context, []model.Task, []model.Project) string { return "" }

func (Noop) Motivation(context.Context, int, string) string { return fallbackMotivation }

func breakdownPrompt(title string) string {
	return fmt.Sprintf("You are an expert project manager. Break down the following task into 3-5 smaller, "+
		"actionable sub-tasks. Task: %q. Keep them concise.", title)
}

func suggestPrompt(tasks []model.Task, projects []model.Project) string {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}

	var b strings.Builder
	b.WriteString("As a project manager, review these pending tasks and suggest the ONE single most impactful task to work on next.\n")
	b.WriteString("Return ONLY the ID of the task.\n\nTasks:\n")
	for _, t := range limit(tasks) {
		project, ok := names[model.Deref(t.ProjectID)]
		if !ok {
			project = "Inbox"
		}
		fmt.Fprintf(&b, "- [ID: %s] %s (Project: %s)\n", t.ID, t.Title, project)
	}
	return b.String()
}

func motivationPrompt(completed int, currentTask string) string {
	if currentTask != "" {
		return fmt.Sprintf("I'm currently working on %q. I've finished %d tasks today. "+
			"Give me a short, punchy 1-sentence motivation.", currentTask, completed)
	}
	return fmt.Sprintf("I've finished %d tasks today. Give me a short 1-sentence high five.", completed)
}

func limit(tasks []model.Task) []model.Task {
	if len(tasks) > maxSuggestContext {
		return tasks[:maxSuggestContext]
	}
	return tasks
}

// cleanSubtasks trims titles, drops empty ones and caps the list.
func cleanSubtasks(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxSubtasks {
			break
		}
	}
	return out
}

// matchTaskID accepts the answer only if it is exactly one of the offered ids.
func matchTaskID(answer string, tasks []model.Task) string {
	answer = strings.TrimSpace(answer)
	for _, t := range limit(tasks) {
		if t.ID == answer {
			return answer
		}
	}
	return ""
}
