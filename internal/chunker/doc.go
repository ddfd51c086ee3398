// Package chunker splits note text into passages for embedding.
//
// Text is first split at every match of a regular expression (blank lines by
// default, so paragraphs stay together), then each part is cut with a fixed
// size sliding window measured in characters:
//
//	c, _ := chunker.NewWithConfig(chunker.Config{ChunkSize: 5, Overlap: 2, NoSplit: true})
//	c.Chunk("abcdefghij", nil) // ["abcde", "defgh", "ghij", "j"]
//
// The window advances by ChunkSize-Overlap characters. When Overlap is not
// smaller than ChunkSize the window advances by ChunkSize instead, so the
// chunker always terminates. Chunks that are empty or only whitespace are
// dropped.
//
// When file provenance is supplied each chunk is prefixed with a line such as
//
//	File: standup.md | Created: Friday, May 02, 2025 | Modified: Friday, May 02, 2025
//
// giving the embedding model and the language model the dates a note was
// written, which is what date-scoped questions are about.
package chunker
