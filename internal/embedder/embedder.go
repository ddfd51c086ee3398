package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedder turns texts into vectors
type Embedder interface {
	// Embed returns one vector per text, in input order. An empty input
	// returns an empty result.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension, or 0 if not known until the
	// first response
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache provides in-memory LRU caching of vectors by text hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000 // Default: cache 10k embeddings
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate the cache
func (c *Cache) Get(hash string) ([]float32, bool) {
	vector, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vector))
	copy(out, vector)
	return out, true
}

// Set stores a copy of vector
func (c *Cache) Set(hash string, vector []float32) {
	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.cache.Add(hash, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateTexts rejects empty strings in a batch
func ValidateTexts(texts []string) error {
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d: %w", ErrInvalidInput, i, ErrEmptyText)
		}
	}
	return nil
}

// batchFunc embeds one provider-sized batch
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedBatched serves cached texts from cache, sends the rest to call in
// batches of at most batchSize, and stores the results back in cache
func embedBatched(ctx context.Context, cache *Cache, texts []string, batchSize int, call batchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if cache != nil {
			if v, ok := cache.Get(ComputeHash(text)); ok {
				vectors[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += batchSize {
		end := min(start+batchSize, len(missing))
		batch := make([]string, 0, end-start)
		for _, i := range missing[start:end] {
			batch = append(batch, texts[i])
		}

		got, err := call(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(got) != len(batch) {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", ErrInvalidInput, len(got), len(batch))
		}

		for n, i := range missing[start:end] {
			vectors[i] = got[n]
			if cache != nil {
				cache.Set(ComputeHash(texts[i]), got[n])
			}
		}
	}

	return vectors, nil
}
