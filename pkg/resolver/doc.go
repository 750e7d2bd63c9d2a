// Package resolver canonicalizes entity names to stable identities.
//
// Resolution runs in a fixed order: the alias table (including localized
// seed aliases), the ticker and abbreviation table, then a fuzzy match over
// all canonical names that must clear a similarity threshold. A name that
// matches nothing becomes a new canonical entity. Fuzzy merges write the raw
// name back into the alias table so the next lookup is exact.
//
// Ids are UUIDv5 values derived from the normalized canonical name, so
// reprocessing the same sources always produces the same ids. The alias
// table can be persisted with BadgerAliasStore.
package resolver
