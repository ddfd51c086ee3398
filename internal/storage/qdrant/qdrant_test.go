package qdrant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/whispernote/internal/storage"
	"github.com/dshills/whispernote/pkg/types"
)

// fakeClient records requests and returns canned responses
type fakeClient struct {
	collections []string
	created     []*qdrant.CreateCollection
	upserts     []*qdrant.UpsertPoints
	queries     []*qdrant.QueryPoints
	counts      []*qdrant.CountPoints
	deletes     []*qdrant.DeletePoints
	scrolls     []*qdrant.ScrollPoints

	hits      []*qdrant.ScoredPoint
	count     uint64
	pages     [][]*qdrant.RetrievedPoint
	upsertErr error
	closed    bool
}

func (f *fakeClient) ListCollections(ctx context.Context) ([]string, error) {
	return f.collections, nil
}

func (f *fakeClient) CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error {
	f.created = append(f.created, request)
	f.collections = append(f.collections, request.CollectionName)
	return nil
}

func (f *fakeClient) Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, request)
	return &qdrant.UpdateResult{}, f.upsertErr
}

func (f *fakeClient) Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries = append(f.queries, request)
	return f.hits, nil
}

func (f *fakeClient) Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error) {
	f.counts = append(f.counts, request)
	return f.count, nil
}

func (f *fakeClient) Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.deletes = append(f.deletes, request)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	f.scrolls = append(f.scrolls, request)
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func testMeta() types.Metadata {
	return types.Metadata{
		File:       "/notes/a.txt",
		FileHash:   "h1",
		ChunkIndex: 2,
		Text:       "alpha",
		CreatedAt:  time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		ModifiedAt: time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("/notes/a.txt", "h1::chunk0")
	assert.Equal(t, a, PointID("/notes/a.txt", "h1::chunk0"))
	assert.NotEqual(t, a, PointID("/notes/a.txt", "h1::chunk1"))
	assert.NotEqual(t, a, PointID("/notes/b.txt", "h1::chunk0"))
	assert.Len(t, a, 36)
}

func TestAdd_IdenticalFilesKeepSeparatePoints(t *testing.T) {
	fake := &fakeClient{}
	index := newIndex(fake, "notes")
	ctx := context.Background()

	a, b := testMeta(), testMeta()
	b.File = "/notes/b.txt"
	ids := []string{"h1::chunk2"}
	vectors := [][]float32{{1, 0, 0}}
	require.NoError(t, index.Add(ctx, ids, vectors, []string{"alpha"}, []types.Metadata{a}))
	require.NoError(t, index.Add(ctx, ids, vectors, []string{"alpha"}, []types.Metadata{b}))

	require.Len(t, fake.upserts, 2)
	first := fake.upserts[0].Points[0].GetId().GetUuid()
	second := fake.upserts[1].Points[0].GetId().GetUuid()
	assert.NotEqual(t, first, second)
	assert.Equal(t, PointID("/notes/b.txt", "h1::chunk2"), second)
}

func TestAdd_CreatesCollectionOnce(t *testing.T) {
	fake := &fakeClient{}
	index := newIndex(fake, "")
	ctx := context.Background()

	ids := []string{"h1::chunk2"}
	vectors := [][]float32{{1, 0, 0}}
	require.NoError(t, index.Add(ctx, ids, vectors, []string{"alpha"}, []types.Metadata{testMeta()}))
	require.NoError(t, index.Add(ctx, ids, vectors, []string{"alpha"}, []types.Metadata{testMeta()}))

	require.Len(t, fake.created, 1)
	assert.Equal(t, DefaultCollection, fake.created[0].CollectionName)
	params := fake.created[0].GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(3), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())

	require.Len(t, fake.upserts, 2)
	point := fake.upserts[0].Points[0]
	assert.Equal(t, PointID("/notes/a.txt", "h1::chunk2"), point.GetId().GetUuid())
	assert.Equal(t, point.GetId().GetUuid(), fake.upserts[1].Points[0].GetId().GetUuid())

	chunk := chunkFromPayload(point.GetPayload())
	assert.Equal(t, "h1::chunk2", chunk.ID)
	assert.Equal(t, "alpha", chunk.Text)
	assert.Equal(t, "/notes/a.txt", chunk.Metadata.File)
	assert.Equal(t, 2, chunk.Metadata.ChunkIndex)
	assert.True(t, chunk.Metadata.CreatedAt.Equal(testMeta().CreatedAt))
	assert.True(t, chunk.Metadata.ModifiedAt.Equal(testMeta().ModifiedAt))
}

func TestAdd_Validation(t *testing.T) {
	fake := &fakeClient{}
	index := newIndex(fake, "notes")

	err := index.Add(context.Background(), nil, nil, nil, nil)
	assert.True(t, types.IsValidation(err))
	assert.Empty(t, fake.upserts)
}

func TestAdd_UpstreamError(t *testing.T) {
	fake := &fakeClient{collections: []string{"notes"}, upsertErr: errors.New("unavailable")}
	index := newIndex(fake, "notes")

	err := index.Add(context.Background(), []string{"h1::chunk2"}, [][]float32{{1}}, []string{"alpha"}, []types.Metadata{testMeta()})
	assert.ErrorContains(t, err, "unavailable")
	assert.Empty(t, fake.created)
}

func TestQuery_MissingCollection(t *testing.T) {
	fake := &fakeClient{}
	index := newIndex(fake, "notes")

	results, err := index.Query(context.Background(), []float32{1, 0}, storage.QueryOptions{MaxResults: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, fake.queries)
}

func TestQuery_ConvertsScoreAndFilters(t *testing.T) {
	payload := qdrant.NewValueMap(payloadFor("h1::chunk2", "alpha", testMeta()))
	fake := &fakeClient{
		collections: []string{"notes"},
		hits:        []*qdrant.ScoredPoint{{Payload: payload, Score: 0.75}},
	}
	index := newIndex(fake, "notes")

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 1, 23, 59, 59, 0, time.UTC)
	results, err := index.Query(context.Background(), []float32{1, 0}, storage.QueryOptions{
		MaxResults: 4, Start: &start, End: &end, TimeField: types.TimeFieldModified,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "h1::chunk2", results[0].ID)
	assert.InDelta(t, 0.25, *results[0].Distance, 1e-6)

	req := fake.queries[0]
	assert.Equal(t, uint64(4), req.GetLimit())
	cond := req.GetFilter().GetMust()[0].GetField()
	assert.Equal(t, "modified_at", cond.GetKey())
	assert.InDelta(t, float64(start.Unix()), cond.GetRange().GetGte(), 1e-3)
	assert.InDelta(t, float64(end.Unix()), cond.GetRange().GetLte(), 1e-3)
}

func TestQuery_ZeroLimitAndNoFilter(t *testing.T) {
	fake := &fakeClient{collections: []string{"notes"}}
	index := newIndex(fake, "notes")
	ctx := context.Background()

	results, err := index.Query(ctx, []float32{1}, storage.QueryOptions{MaxResults: 0})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, fake.queries)

	_, err = index.Query(ctx, []float32{1}, storage.QueryOptions{MaxResults: 3})
	require.NoError(t, err)
	assert.Nil(t, fake.queries[0].GetFilter())
}

func TestIsFileHashIndexed(t *testing.T) {
	fake := &fakeClient{collections: []string{"notes"}, count: 2}
	index := newIndex(fake, "notes")

	ok, err := index.IsFileHashIndexed(context.Background(), "/notes/a.txt", "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	must := fake.counts[0].GetFilter().GetMust()
	require.Len(t, must, 2)
	assert.Equal(t, "file", must[0].GetField().GetKey())
	assert.Equal(t, "/notes/a.txt", must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, "h1", must[1].GetField().GetMatch().GetKeyword())

	fake.count = 0
	ok, err = index.IsFileHashIndexed(context.Background(), "/notes/a.txt", "h2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteByFilePath(t *testing.T) {
	fake := &fakeClient{collections: []string{"notes"}}
	index := newIndex(fake, "notes")

	require.NoError(t, index.DeleteByFilePath(context.Background(), "/notes/a.txt"))
	require.Len(t, fake.deletes, 1)
	must := fake.deletes[0].GetPoints().GetFilter().GetMust()
	assert.Equal(t, "/notes/a.txt", must[0].GetField().GetMatch().GetKeyword())
}

func TestDeleteByFilePath_MissingCollection(t *testing.T) {
	fake := &fakeClient{}
	index := newIndex(fake, "notes")
	require.NoError(t, index.DeleteByFilePath(context.Background(), "/notes/a.txt"))
	assert.Empty(t, fake.deletes)
}

func TestGetAllMetadata_Pages(t *testing.T) {
	point := func(n int) *qdrant.RetrievedPoint {
		meta := testMeta()
		meta.ChunkIndex = n
		id := types.PassageID("h1", n)
		return &qdrant.RetrievedPoint{
			Id:      qdrant.NewID(PointID(meta.File, id)),
			Payload: qdrant.NewValueMap(payloadFor(id, "doc", meta)),
		}
	}

	first := make([]*qdrant.RetrievedPoint, 0, scrollPageSize+1)
	for n := 0; n <= scrollPageSize; n++ {
		first = append(first, point(n))
	}
	second := []*qdrant.RetrievedPoint{point(scrollPageSize), point(scrollPageSize + 1)}

	fake := &fakeClient{collections: []string{"notes"}, pages: [][]*qdrant.RetrievedPoint{first, second}}
	index := newIndex(fake, "notes")

	metas, err := index.GetAllMetadata(context.Background())
	require.NoError(t, err)
	assert.Len(t, metas, scrollPageSize+2)
	assert.Equal(t, scrollPageSize+1, metas[len(metas)-1].ChunkIndex)

	require.Len(t, fake.scrolls, 2)
	assert.Nil(t, fake.scrolls[0].GetOffset())
	assert.Equal(t, PointID("/notes/a.txt", types.PassageID("h1", scrollPageSize)), fake.scrolls[1].GetOffset().GetUuid())
}

func TestClose(t *testing.T) {
	fake := &fakeClient{}
	require.NoError(t, newIndex(fake, "notes").Close())
	assert.True(t, fake.closed)
}
