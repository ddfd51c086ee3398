// Package embedder turns passage and question text into vectors.
//
// Every provider implements Embedder:
//
//	emb, err := embedder.New(embedder.Config{Provider: "ollama", Model: "nomic-embed-text"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vectors, err := emb.Embed(ctx, []string{"shipped the importer", "fixed CI"})
//
// Embed returns one vector per input text in the same order, and an empty
// slice for empty input. Large inputs are split into provider-sized batches
// behind the single call.
//
// # Providers
//
//   - openai: OpenAI /v1/embeddings, or any compatible server via BaseURL
//   - jina: Jina AI, same wire format as OpenAI
//   - ollama: a local Ollama server's /api/embed
//   - local: offline feature hashing, no network
//
// When Config.Provider is empty the provider is detected from JINA_API_KEY
// and OPENAI_API_KEY, falling back to local.
//
// # Failure Handling
//
// HTTP providers wait on a token-bucket limiter (Config.RequestsPerSecond)
// before each request and retry 5xx and 429 responses with exponential
// backoff. Other 4xx responses fail immediately. Final failures wrap
// types.ErrUpstream.
//
// # Caching
//
// With Config.CacheSize > 0, vectors are cached in an LRU keyed by the
// SHA-256 of the text, so re-embedding an unchanged passage or a repeated
// question costs nothing.
package embedder
