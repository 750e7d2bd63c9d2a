// Package types defines the core data types shared by groundgraph packages.
//
// This package contains:
//   - CanonicalEntity: the deduplicated identity behind a set of name variants
//   - Relationship: a typed, weighted, directed edge between two entities
//   - ReasoningPath and Hop: per-query traversal results, never persisted
//   - Evidence and ValidationResult: the citation grounding model
//   - Message and Response: the completion backend wire types
//
// # Merging
//
// MergeEntity and MergeRelationship implement the graph's merge rules. Scalar
// properties are last-write-wins, list properties are unioned, provenance only
// grows, and relationship weights are folded with a CombineRule. Numeric
// weight-like properties on a relationship always hold the folded weight.
// Both report whether anything changed so that re-ingesting a record can be
// detected as a no-op, and list the scalar keys they replaced.
//
// # Errors
//
// Sentinel errors cover validation. Typed errors (ServiceUnavailableError,
// TraversalSpecInvalidError, CitationInvalidError, ResolutionAmbiguity,
// IngestionConflict) implement Is so they can be matched with errors.Is.
package types
