package orchestrator

import (
	_ "embed"
	"fmt"
)

//go:embed prompts/initializer.md
var initializerTmpl string

//go:embed prompts/continuation.md
var continuationTmpl string

// InitializerPrompt is the task for the first session of a fresh
// project: create the feature checklist, then start implementing.
func InitializerPrompt(goal string) string {
	return fmt.Sprintf(initializerTmpl, goal)
}

// ContinuationPrompt is the task for every later session.
func ContinuationPrompt(passing, total int) string {
	return fmt.Sprintf(continuationTmpl, passing, total)
}
