package agent

import (
	"regexp"
	"strings"
)

// maxFallbackTodos caps sentence-derived items when the text carries no
// explicit bullets.
const maxFallbackTodos = 8

var (
	bulletLine    = regexp.MustCompile(`^(\-|\*|\d+[\).\]])\s+(.*)$`)
	sentenceSplit = regexp.MustCompile(`[。.!?]\s+|\n+`)
)

// Todo is one extracted action item with a stable 1-based id.
type Todo struct {
	ID   int    `json:"id"`
	Task string `json:"task"`
}

// ExtractTodos pulls action items out of free text. Bulleted or
// numbered lines win when present; otherwise the text is split into
// sentences, capped at 8 items. Ids are assigned in extraction order.
func ExtractTodos(text string) []Todo {
	var tasks []string
	for _, line := range strings.Split(text, "\n") {
		m := bulletLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if task := strings.TrimSpace(m[2]); task != "" {
			tasks = append(tasks, task)
		}
	}

	if len(tasks) == 0 {
		for _, part := range sentenceSplit.Split(text, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			tasks = append(tasks, part)
			if len(tasks) == maxFallbackTodos {
				break
			}
		}
	}

	todos := make([]Todo, 0, len(tasks))
	for i, task := range tasks {
		todos = append(todos, Todo{ID: i + 1, Task: task})
	}
	return todos
}
