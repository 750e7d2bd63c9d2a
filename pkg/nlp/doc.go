// Package nlp provides the completion backend used by every pipeline stage.
//
// The Client interface is implemented by OpenAIClient, which talks to OpenAI
// and to any OpenAI-compatible service (Ollama, vLLM) through a base URL.
//
// # Client Wrappers
//
//   - RetryClient: bounded retries with exponential backoff
//   - TokenTrackingClient: reports token usage per pipeline stage
//   - CircuitBreakerClient: fails fast while a backend is unhealthy
//   - RouterClient: picks a backend by pipeline stage (route, traversal,
//     narrative, report) read from the context
//
// NewClientFromConfig assembles the whole stack from config.Config.
//
// # Constrained completion
//
// Complete is the only entry point the pipeline uses. It fixes the sampling
// temperature, then checks the output against an OutputConstraint: free
// text, exactly one label from a closed set, or a single JSON object
// (repaired with jsonrepair when a model emits almost-JSON). Backend
// failures are returned as types.ServiceUnavailableError and constraint
// violations as *ConstraintError, so callers can tell "no answer" from
// "bad answer".
//
//	out, err := nlp.Complete(ctx, client, nlp.Prompt{System: sys, User: q}, 0,
//		nlp.LabelOutput("GRAPH", "LIVE_SEARCH"))
package nlp
