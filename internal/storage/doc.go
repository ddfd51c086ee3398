// Package storage defines the VectorIndex contract and its SQLite implementation.
//
// A VectorIndex stores one row per passage, keyed by "<file_hash>::chunk<n>",
// with the passage text, a float32 vector and fixed metadata:
//
//   - file: absolute path of the source note
//   - file_hash: SHA-256 of the file bytes (hex)
//   - chunk_index: position of the passage within the file
//   - text: passage text
//   - created_at, modified_at: file timestamps used for time filtering
//
// # Basic Usage
//
//	index, err := storage.NewSQLiteIndex("~/.whispernote/notes.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer index.Close()
//
//	err = index.Add(ctx, ids, vectors, texts, metas)
//	results, err := index.Query(ctx, queryVector, storage.QueryOptions{
//	    MaxResults: 10,
//	    Start:      &start,
//	    End:        &end,
//	})
//
// # Validation
//
// Add rejects empty batches, slices of different lengths, empty vectors,
// NaN or infinite elements and mixed dimensions with a *types.ValidationError.
// Passages are keyed on ID and file path. Adding a passage that already
// exists for the same file is silently ignored, so repeated writes never
// produce duplicate query hits. Byte-identical files share IDs and keep
// their own rows.
//
// # Distance
//
// Query ranks by cosine distance (1 - cosine similarity), ascending. Vectors
// do not need to be normalized. Passages whose dimension differs from the
// query are not candidates. Time bounds are inclusive and apply to
// created_at unless QueryOptions.TimeField selects modified_at.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and ranks candidates in Go. Building
// with -tags sqlite_vec switches to github.com/mattn/go-sqlite3, registers the
// sqlite-vec extension on every connection and computes distances in SQL with
// vec_distance_cosine.
//
// Schema changes are versioned with semantic versions and applied on open.
package storage
