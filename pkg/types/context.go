package types

type contextKey string

const (
	// ContextKeyUsage names the pipeline stage issuing a completion, used by
	// nlp.RouterClient to pick a model.
	ContextKeyUsage contextKey = "usage"
	// ContextKeyTemperature carries a per-call sampling temperature.
	ContextKeyTemperature contextKey = "temperature"
	// ContextKeyQueryID tags logs and audit rows for one question.
	ContextKeyQueryID contextKey = "query_id"
)

// Usage values for ContextKeyUsage.
const (
	UsageRoute     = "route"
	UsageTraversal = "traversal"
	UsageNarrative = "narrative"
	UsageReport    = "report"
)
