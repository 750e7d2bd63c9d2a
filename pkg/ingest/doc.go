// Package ingest merges structured records and pre-extracted entity and
// relationship tuples into the graph.
//
// Every entity name goes through the resolver before it is written, so
// repeated mentions of the same thing converge on one canonical entity.
// Ingestion only adds or strengthens: properties merge per key, aliases and
// provenance are unioned, and relationship weights combine by the
// configured rule. Nothing is ever deleted, and ingesting the same record
// twice leaves the graph unchanged.
//
// IngestBatch runs records concurrently and, given a checkpoint manager,
// persists progress so an interrupted batch resumes where it stopped.
package ingest
