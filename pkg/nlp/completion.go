package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	"github.com/soundprediction/groundgraph/pkg/types"
)

// ConstraintKind names the shape a completion output must take.
type ConstraintKind string

const (
	// ConstraintText accepts any non-empty text.
	ConstraintText ConstraintKind = "text"
	// ConstraintLabel accepts exactly one label out of a closed set.
	ConstraintLabel ConstraintKind = "label"
	// ConstraintJSON accepts a single JSON object, repaired if needed.
	ConstraintJSON ConstraintKind = "json"
)

// OutputConstraint restricts what Complete will return.
type OutputConstraint struct {
	Kind   ConstraintKind
	Labels []string
}

// TextOutput is the unconstrained output constraint.
func TextOutput() OutputConstraint { return OutputConstraint{Kind: ConstraintText} }

// LabelOutput constrains output to one of labels.
func LabelOutput(labels ...string) OutputConstraint {
	return OutputConstraint{Kind: ConstraintLabel, Labels: labels}
}

// JSONOutput constrains output to a JSON object.
func JSONOutput() OutputConstraint { return OutputConstraint{Kind: ConstraintJSON} }

// Prompt is a system/user prompt pair.
type Prompt struct {
	System string
	User   string
}

// Messages converts the prompt to chat messages.
func (p Prompt) Messages() []types.Message {
	msgs := make([]types.Message, 0, 2)
	if p.System != "" {
		msgs = append(msgs, NewSystemMessage(p.System))
	}
	return append(msgs, NewUserMessage(p.User))
}

var (
	thinkTagPattern  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// RemoveThinkTags removes <think> blocks some reasoning models emit.
func RemoveThinkTags(input string) string {
	return thinkTagPattern.ReplaceAllString(input, "")
}

// Complete sends prompt to client at the given temperature and checks the
// output against constraint. Backend failures come back as
// types.ServiceUnavailableError; outputs that break the constraint come back
// as *ConstraintError. The returned text is normalized: a label is returned
// exactly as listed, JSON is returned repaired and trimmed to the object.
func Complete(ctx context.Context, client Client, prompt Prompt, temperature float32, constraint OutputConstraint) (string, error) {
	if client == nil {
		return "", types.NewServiceUnavailableError(types.CollaboratorCompletion, UsageFromContext(ctx), fmt.Errorf("no completion client configured"))
	}

	ctx = WithTemperature(ctx, temperature)
	messages := prompt.Messages()

	var (
		resp *types.Response
		err  error
	)
	if constraint.Kind == ConstraintJSON {
		resp, err = client.ChatWithStructuredOutput(ctx, messages, nil)
	} else {
		resp, err = client.Chat(ctx, messages)
	}
	if err != nil {
		return "", types.NewServiceUnavailableError(types.CollaboratorCompletion, UsageFromContext(ctx), err)
	}
	if resp == nil {
		return "", types.NewServiceUnavailableError(types.CollaboratorCompletion, UsageFromContext(ctx), NewEmptyResponseError("nil response"))
	}

	return ApplyConstraint(resp.Content, constraint)
}

// ApplyConstraint checks raw model output against constraint.
func ApplyConstraint(raw string, constraint OutputConstraint) (string, error) {
	out := strings.TrimSpace(RemoveThinkTags(raw))
	if out == "" {
		return "", &ConstraintError{Kind: constraint.Kind, Output: raw, Reason: "empty output"}
	}

	switch constraint.Kind {
	case ConstraintLabel:
		return matchLabel(out, constraint.Labels)
	case ConstraintJSON:
		return extractJSONObject(out)
	default:
		return out, nil
	}
}

// matchLabel accepts the output only when exactly one label appears as a
// whole token, ignoring case and surrounding punctuation.
func matchLabel(out string, labels []string) (string, error) {
	normalized := strings.ToUpper(strings.Trim(out, " \t\r\n.\"'`*:"))
	for _, label := range labels {
		if normalized == strings.ToUpper(label) {
			return label, nil
		}
	}

	var found []string
	for _, label := range labels {
		re := regexp.MustCompile(`(?i)(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(label) + `($|[^A-Za-z0-9_])`)
		if re.MatchString(out) {
			found = append(found, label)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	reason := "no label found"
	if len(found) > 1 {
		reason = fmt.Sprintf("several labels found: %s", strings.Join(found, ", "))
	}
	return "", &ConstraintError{Kind: ConstraintLabel, Output: out, Reason: reason}
}

func extractJSONObject(out string) (string, error) {
	if m := codeFencePattern.FindStringSubmatch(out); m != nil {
		out = strings.TrimSpace(m[1])
	}
	if start := strings.Index(out, "{"); start > 0 {
		out = out[start:]
	}
	if end := strings.LastIndex(out, "}"); end >= 0 && end < len(out)-1 {
		out = out[:end+1]
	}

	if !json.Valid([]byte(out)) {
		repaired, err := jsonrepair.JSONRepair(out)
		if err != nil {
			return "", &ConstraintError{Kind: ConstraintJSON, Output: out, Reason: err.Error()}
		}
		out = repaired
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(out), &obj); err != nil {
		return "", &ConstraintError{Kind: ConstraintJSON, Output: out, Reason: "not a JSON object"}
	}
	return out, nil
}
