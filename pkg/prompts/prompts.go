// Package prompts builds the completion prompts for each pipeline stage.
// Tabular inputs (entities, evidence, paths) are rendered as TSV to keep
// token counts down and parsing reliable.
package prompts

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/soundprediction/groundgraph/pkg/nlp"
)

// PromptFunction builds a prompt from named inputs.
type PromptFunction func(context map[string]any) (nlp.Prompt, error)

// PromptVersion is a versioned prompt builder.
type PromptVersion interface {
	Call(context map[string]any) (nlp.Prompt, error)
}

type promptVersionImpl struct {
	fn PromptFunction
}

// Call executes the prompt function and appends the shared system suffix.
func (p *promptVersionImpl) Call(context map[string]any) (nlp.Prompt, error) {
	prompt, err := p.fn(context)
	if err != nil {
		return nlp.Prompt{}, err
	}
	if prompt.System != "" {
		prompt.System += "\nDo not escape unicode characters."
	}
	logPrompts(loggerFrom(context), prompt)
	return prompt, nil
}

// NewPromptVersion wraps fn as a PromptVersion.
func NewPromptVersion(fn PromptFunction) PromptVersion {
	return &promptVersionImpl{fn: fn}
}

// Library holds the prompt for every stage that calls the completion backend.
type Library struct {
	Route     PromptVersion
	Traversal PromptVersion
	Narrative PromptVersion
	Report    PromptVersion
}

// NewLibrary returns the default prompts.
func NewLibrary() *Library {
	return &Library{
		Route:     NewPromptVersion(routePrompt),
		Traversal: NewPromptVersion(traversalPrompt),
		Narrative: NewPromptVersion(narrativePrompt),
		Report:    NewPromptVersion(reportPrompt),
	}
}

func loggerFrom(context map[string]any) *slog.Logger {
	if l, ok := context["logger"].(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func requireString(context map[string]any, key string) (string, error) {
	s, ok := context[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("prompt input %q is required", key)
	}
	return s, nil
}

func optionalString(context map[string]any, key string) string {
	s, _ := context[key].(string)
	return s
}

// logPrompts writes the full prompt at debug level when DEBUG_LLM_PROMPTS
// is set. Prompts can be long and may carry source text.
func logPrompts(logger *slog.Logger, prompt nlp.Prompt) {
	if os.Getenv("DEBUG_LLM_PROMPTS") != "true" {
		return
	}
	logger.Debug("Generated prompt", "system", prompt.System, "user", prompt.User)
}
