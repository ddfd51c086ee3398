// Package indexer keeps a vector index in sync with a directory of notes.
//
// # Basic Usage
//
//	idx := indexer.New(chunker.New(), emb, index, logger, indexer.Config{})
//
//	metrics, err := idx.IndexDirectory(ctx, "/path/to/notes", []string{".md", ".txt"})
//	fmt.Printf("Indexed %d files (%d chunks), skipped %d\n",
//	    metrics.FileCount, metrics.ChunkCount, metrics.FilesSkipped)
//
// # Incremental Indexing
//
// Each file is identified by the SHA-256 of its bytes. A file whose hash is
// already stored is skipped. Otherwise every passage stored for its path is
// deleted and the file is chunked, embedded and written again, with passage
// IDs of the form "<hash>::chunk<n>". At most one generation of passages
// exists per path.
//
// # Failure Isolation
//
// Read, decode, embedding and storage errors are recorded per file in
// Metrics.FailedFiles and the run continues with the next file.
//
// # Concurrent Processing
//
// Files are indexed by up to Config.Workers goroutines (default NumCPU).
// Writers of the same path are serialized, and per-file Metrics are folded
// with Metrics.Merge. Only one IndexDirectory run may be active at a time;
// a second caller gets ErrIndexingInProgress.
package indexer
