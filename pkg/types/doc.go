// Package types provides shared type definitions for whispernote.
//
// These records cross package boundaries: the indexer writes Metadata into a
// vector index, the query engine reads it back as ContextChunk values, and
// the HTTP, MCP and CLI surfaces render QueryResult.
//
// # Passage identity
//
// Every stored passage is keyed by the SHA-256 hash of its source file plus
// its position within that file:
//
//	id := types.PassageID(hash, 3) // "<hash>::chunk3"
//
// A changed file produces a new hash and therefore an entirely new set of
// IDs. Passages are never updated in place.
//
// # Time ranges
//
// TimeRange carries optional bounds. A range with both bounds nil means the
// question was not time scoped:
//
//	if !tr.IsScoped() {
//	    // search the whole index
//	}
//
// # Errors
//
// ValidationError and DecodeError are typed errors checked with errors.As.
// ErrUpstream wraps transport failures from embedding and language model
// providers and is checked with errors.Is.
package types
