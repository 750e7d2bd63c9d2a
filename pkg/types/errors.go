package types

import (
	"errors"
	"fmt"
	"strings"
)

// Validation and lookup errors
var (
	ErrEmptyName             = errors.New("name cannot be empty")
	ErrEmptyID               = errors.New("id cannot be empty")
	ErrEmptyRelationType     = errors.New("relationship type cannot be empty")
	ErrInvalidProperty       = errors.New("property values must be scalars or flat lists of scalars")
	ErrEntityNotFound        = errors.New("entity not found")
	ErrRelationshipNotFound  = errors.New("relationship not found")
	ErrServiceUnavailable    = errors.New("service unavailable")
	ErrLiveSearchUnavailable = errors.New("live search is not configured")
)

// Collaborator names used in ServiceUnavailableError.
const (
	CollaboratorCompletion = "completion"
	CollaboratorStore      = "graph_store"
	CollaboratorSearch     = "live_search"
)

// ServiceUnavailableError reports that a collaborator was unreachable or timed
// out. Callers may retry the whole operation once; nothing retries it
// internally without bound.
type ServiceUnavailableError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable during %s", e.Collaborator, e.Op)
	}
	return fmt.Sprintf("%s unavailable during %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support so that both ErrServiceUnavailable and
// &ServiceUnavailableError{} match.
func (e *ServiceUnavailableError) Is(target error) bool {
	if target == ErrServiceUnavailable {
		return true
	}
	_, ok := target.(*ServiceUnavailableError)
	return ok
}

// Retryable is always true; it exists so callers can test for it through an
// interface without importing this package.
func (e *ServiceUnavailableError) Retryable() bool {
	return true
}

// NewServiceUnavailableError wraps err for the given collaborator.
func NewServiceUnavailableError(collaborator, op string, err error) *ServiceUnavailableError {
	return &ServiceUnavailableError{Collaborator: collaborator, Op: op, Err: err}
}

// TraversalSpecInvalidError is returned when a generated traversal spec
// violates the safe grammar. It is rejected before reaching the store.
type TraversalSpecInvalidError struct {
	Reasons []string
}

func (e *TraversalSpecInvalidError) Error() string {
	return "invalid traversal spec: " + strings.Join(e.Reasons, "; ")
}

// Is implements errors.Is support for TraversalSpecInvalidError.
func (e *TraversalSpecInvalidError) Is(target error) bool {
	_, ok := target.(*TraversalSpecInvalidError)
	return ok
}

// CitationInvalidError describes one citation the validator rejected.
type CitationInvalidError struct {
	Index  int
	Reason string
}

func (e *CitationInvalidError) Error() string {
	return fmt.Sprintf("citation [%d] invalid: %s", e.Index, e.Reason)
}

// Is implements errors.Is support for CitationInvalidError.
func (e *CitationInvalidError) Is(target error) bool {
	_, ok := target.(*CitationInvalidError)
	return ok
}

// ResolutionAmbiguity is a non-fatal note that an entity name matched with
// low confidence or tied between candidates.
type ResolutionAmbiguity struct {
	RawName    string
	Candidates []string
	Score      float64
}

func (e *ResolutionAmbiguity) Error() string {
	return fmt.Sprintf("ambiguous resolution for %q (score %.2f, candidates %s)",
		e.RawName, e.Score, strings.Join(e.Candidates, ", "))
}

// Is implements errors.Is support for ResolutionAmbiguity.
func (e *ResolutionAmbiguity) Is(target error) bool {
	_, ok := target.(*ResolutionAmbiguity)
	return ok
}

// IngestionConflict notes that a scalar property was overwritten by a later
// source. The merge rule already resolved it; it is reported, never raised.
type IngestionConflict struct {
	Key      string
	Property string
	SourceID string
}

func (e *IngestionConflict) Error() string {
	return fmt.Sprintf("conflicting value for %s.%s from %s (last write wins)", e.Key, e.Property, e.SourceID)
}

// Is implements errors.Is support for IngestionConflict.
func (e *IngestionConflict) Is(target error) bool {
	_, ok := target.(*IngestionConflict)
	return ok
}
