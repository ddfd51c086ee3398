// Package qdrant implements storage.VectorIndex on a Qdrant server.
//
// Passage IDs are arbitrary strings while Qdrant requires UUID or integer
// point IDs, so each point ID is a name-based (SHA-1) UUID derived from the
// file path and the passage ID. The same passage of the same file always
// maps to the same point, which makes repeated adds overwrite rather than
// duplicate, while byte-identical files keep separate points. The passage ID
// itself is kept in the payload.
//
// The collection uses cosine distance. Qdrant reports cosine similarity as
// the score; Query converts it to distance as 1 - score so results match the
// SQLite index.
package qdrant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/dshills/whispernote/internal/storage"
	"github.com/dshills/whispernote/pkg/types"
)

const (
	// DefaultCollection is the collection name used when none is configured
	DefaultCollection = "notes"

	// DefaultPort is Qdrant's gRPC port
	DefaultPort = 6334

	// scrollPageSize bounds each page read by GetAllMetadata
	scrollPageSize = 256
)

// Payload keys
const (
	keyID         = "id"
	keyFile       = "file"
	keyFileHash   = "file_hash"
	keyChunkIndex = "chunk_index"
	keyText       = "text"
	keyDocument   = "document"
	keyModifiedAt = "modified_at"
	keyCreatedAt  = "created_at"
)

// passageNamespace seeds point IDs derived from passage IDs
var passageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("whispernote/passages"))

// pointsAPI is the subset of *qdrant.Client used by Index
type pointsAPI interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Close() error
}

// Config locates the Qdrant server
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// Index is a storage.VectorIndex backed by one Qdrant collection
type Index struct {
	client     pointsAPI
	collection string

	mu     sync.Mutex
	exists bool
}

var _ storage.VectorIndex = (*Index)(nil)

// New connects to Qdrant. The collection is created on the first Add, once
// the vector dimension is known.
func New(cfg Config) (*Index, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return newIndex(client, cfg.Collection), nil
}

func newIndex(client pointsAPI, collection string) *Index {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Index{client: client, collection: collection}
}

// Close closes the client connection
func (i *Index) Close() error {
	return i.client.Close()
}

// Add upserts passages as points
func (i *Index) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []types.Metadata) error {
	if err := storage.ValidateBatch(ids, embeddings, documents, metadatas); err != nil {
		return err
	}
	if err := i.ensureCollection(ctx, uint64(len(embeddings[0]))); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for n, id := range ids {
		points[n] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(metadatas[n].File, id)),
			Vectors: qdrant.NewVectors(embeddings[n]...),
			Payload: qdrant.NewValueMap(payloadFor(id, documents[n], metadatas[n])),
		}
	}

	wait := true
	if _, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Query returns the nearest passages, converting scores to cosine distance
func (i *Index) Query(ctx context.Context, embedding []float32, opts storage.QueryOptions) ([]types.ContextChunk, error) {
	if err := storage.ValidateVector(embedding); err != nil {
		return nil, err
	}
	if opts.MaxResults <= 0 {
		return []types.ContextChunk{}, nil
	}
	ok, err := i.collectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.ContextChunk{}, nil
	}

	limit := uint64(opts.MaxResults)
	hits, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		Filter:         timeFilter(opts),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	results := make([]types.ContextChunk, 0, len(hits))
	for _, hit := range hits {
		chunk := chunkFromPayload(hit.GetPayload())
		distance := 1 - float64(hit.GetScore())
		chunk.Distance = &distance
		results = append(results, chunk)
	}
	return results, nil
}

// IsFileHashIndexed counts points for the file generation
func (i *Index) IsFileHashIndexed(ctx context.Context, filePath, fileHash string) (bool, error) {
	ok, err := i.collectionExists(ctx)
	if err != nil || !ok {
		return false, err
	}

	exact := true
	n, err := i.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: i.collection,
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch(keyFile, filePath),
			qdrant.NewMatch(keyFileHash, fileHash),
		}},
		Exact: &exact,
	})
	if err != nil {
		return false, fmt.Errorf("failed to count points: %w", err)
	}
	return n > 0, nil
}

// DeleteByFilePath deletes every point whose file payload matches
func (i *Index) DeleteByFilePath(ctx context.Context, filePath string) error {
	ok, err := i.collectionExists(ctx)
	if err != nil || !ok {
		return err
	}

	wait := true
	_, err = i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(keyFile, filePath)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for %s: %w", filePath, err)
	}
	return nil
}

// GetAllMetadata scrolls the whole collection
func (i *Index) GetAllMetadata(ctx context.Context) ([]types.Metadata, error) {
	metas := make([]types.Metadata, 0)
	ok, err := i.collectionExists(ctx)
	if err != nil || !ok {
		return metas, err
	}

	// Scroll offsets are inclusive: ask for one extra point and use it as
	// the start of the next page.
	limit := uint32(scrollPageSize + 1)
	var offset *qdrant.PointId
	for {
		points, err := i.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: i.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		page := points
		if len(points) > scrollPageSize {
			page = points[:scrollPageSize]
		}
		for _, p := range page {
			chunk := chunkFromPayload(p.GetPayload())
			metas = append(metas, *chunk.Metadata)
		}

		if len(points) <= scrollPageSize {
			return metas, nil
		}
		offset = points[scrollPageSize].GetId()
	}
}

// ensureCollection creates the collection with cosine distance if missing
func (i *Index) ensureCollection(ctx context.Context, dimension uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.exists {
		return nil
	}

	names, err := i.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range names {
		if name == i.collection {
			i.exists = true
			return nil
		}
	}

	if err := i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", i.collection, err)
	}
	i.exists = true
	return nil
}

// collectionExists reports whether the collection has been created
func (i *Index) collectionExists(ctx context.Context) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.exists {
		return true, nil
	}

	names, err := i.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range names {
		if name == i.collection {
			i.exists = true
			return true, nil
		}
	}
	return false, nil
}

// PointID maps a passage of filePath to its deterministic point UUID
func PointID(filePath, passageID string) string {
	return uuid.NewSHA1(passageNamespace, []byte(filePath+"\x00"+passageID)).String()
}

// timeFilter builds the inclusive range condition, or nil when unbounded
func timeFilter(opts storage.QueryOptions) *qdrant.Filter {
	if opts.Start == nil && opts.End == nil {
		return nil
	}
	r := &qdrant.Range{}
	if opts.Start != nil {
		gte := unixSeconds(*opts.Start)
		r.Gte = &gte
	}
	if opts.End != nil {
		lte := unixSeconds(*opts.End)
		r.Lte = &lte
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewRange(string(opts.Field()), r)}}
}

func payloadFor(id, document string, meta types.Metadata) map[string]any {
	return map[string]any{
		keyID:         id,
		keyFile:       meta.File,
		keyFileHash:   meta.FileHash,
		keyChunkIndex: int64(meta.ChunkIndex),
		keyText:       meta.Text,
		keyDocument:   document,
		keyModifiedAt: unixSeconds(meta.ModifiedAt),
		keyCreatedAt:  unixSeconds(meta.CreatedAt),
	}
}

func chunkFromPayload(payload map[string]*qdrant.Value) types.ContextChunk {
	meta := &types.Metadata{
		File:       stringValue(payload[keyFile]),
		FileHash:   stringValue(payload[keyFileHash]),
		ChunkIndex: int(intValue(payload[keyChunkIndex])),
		Text:       stringValue(payload[keyText]),
		ModifiedAt: fromUnixSeconds(floatValue(payload[keyModifiedAt])),
		CreatedAt:  fromUnixSeconds(floatValue(payload[keyCreatedAt])),
	}
	return types.ContextChunk{
		ID:       stringValue(payload[keyID]),
		Text:     stringValue(payload[keyDocument]),
		Metadata: meta,
	}
}

func stringValue(v *qdrant.Value) string {
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

func intValue(v *qdrant.Value) int64 {
	if v == nil {
		return 0
	}
	if n := v.GetIntegerValue(); n != 0 {
		return n
	}
	return int64(v.GetDoubleValue())
}

func floatValue(v *qdrant.Value) float64 {
	if v == nil {
		return 0
	}
	if f := v.GetDoubleValue(); f != 0 {
		return f
	}
	return float64(v.GetIntegerValue())
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	sec := int64(s)
	nsec := int64((s - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).Round(time.Microsecond)
}
