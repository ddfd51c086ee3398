package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/whispernote/internal/storage"
	"github.com/dshills/whispernote/pkg/types"
)

// scriptedModel answers the time range prompt first, then the question
type scriptedModel struct {
	timeRange string
	answer    string
	answerErr error
	prompts   []string
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if strings.Contains(prompt, "time-sensitive component") {
		return m.timeRange, nil
	}
	return m.answer, m.answerErr
}

type fakeEmbedder struct {
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int   { return 2 }
func (f *fakeEmbedder) Provider() string { return "fake" }
func (f *fakeEmbedder) Model() string    { return "fake" }
func (f *fakeEmbedder) Close() error     { return nil }

type fakeIndex struct {
	storage.VectorIndex
	chunks []types.ContextChunk
	err    error
	opts   []storage.QueryOptions
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, opts storage.QueryOptions) ([]types.ContextChunk, error) {
	f.opts = append(f.opts, opts)
	return f.chunks, f.err
}

var fixedNow = time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)

func newTestEngine(model *scriptedModel, emb *fakeEmbedder, index *fakeIndex, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(emb, index, model, nil, opts...)
}

func distance(d float64) *float64 {
	return &d
}

func TestQuery(t *testing.T) {
	chunks := []types.ContextChunk{
		{ID: "h1::chunk0", Text: "Shipped the importer", Metadata: &types.Metadata{File: "/notes/a.md"}, Distance: distance(0.1)},
		{ID: "h2::chunk0", Text: ""},
		{ID: "h3::chunk1", Text: "Reviewed budget"},
	}
	model := &scriptedModel{timeRange: `{"start":"2025-05-01","end":"2025-05-01"}`, answer: "On Thursday, you shipped things."}
	emb := &fakeEmbedder{}
	index := &fakeIndex{chunks: chunks}

	result, err := newTestEngine(model, emb, index, WithTimeField(types.TimeFieldModified)).
		Query(context.Background(), "What did I do yesterday?", 5)
	require.NoError(t, err)

	assert.Equal(t, "On Thursday, you shipped things.", result.Answer)
	assert.Equal(t, chunks, result.Context, "context includes chunks without text")
	assert.Equal(t, []string{"What did I do yesterday?"}, emb.texts)

	require.Len(t, index.opts, 1)
	opts := index.opts[0]
	assert.Equal(t, 5, opts.MaxResults)
	assert.Equal(t, types.TimeFieldModified, opts.TimeField)
	require.NotNil(t, opts.Start)
	require.NotNil(t, opts.End)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), *opts.Start)
	assert.Equal(t, time.Date(2025, 5, 1, 23, 59, 59, 0, time.UTC), *opts.End)

	require.Len(t, model.prompts, 2)
	prompt := model.prompts[1]
	assert.Contains(t, prompt, "Context:\nShipped the importer\n\nReviewed budget\n\nQuestion: What did I do yesterday?\nAnswer:")
	assert.Contains(t, prompt, "- Today's date is Friday, May 02, 2025.")
}

func TestQuery_NoTimeRange(t *testing.T) {
	model := &scriptedModel{timeRange: "I cannot tell", answer: "ok"}
	index := &fakeIndex{}

	_, err := newTestEngine(model, &fakeEmbedder{}, index).Query(context.Background(), "What is my favorite editor?", 0)
	require.NoError(t, err)

	require.Len(t, index.opts, 1)
	assert.Nil(t, index.opts[0].Start)
	assert.Nil(t, index.opts[0].End)
	assert.Equal(t, storage.DefaultMaxResults, index.opts[0].MaxResults)
	assert.Equal(t, types.TimeFieldCreated, index.opts[0].TimeField)
}

func TestQuery_EmptyContextStillAsksModel(t *testing.T) {
	model := &scriptedModel{timeRange: `{"start":null,"end":null}`, answer: "I don't know."}

	result, err := newTestEngine(model, &fakeEmbedder{}, &fakeIndex{}).Query(context.Background(), "anything?", 3)
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", result.Answer)
	assert.NotNil(t, result.Context)
	assert.Empty(t, result.Context)
	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], "Context:\n\n\nQuestion: anything?")
}

func TestQuery_Failures(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		model := &scriptedModel{timeRange: "{}"}
		emb := &fakeEmbedder{err: types.ErrUpstream}
		_, err := newTestEngine(model, emb, &fakeIndex{}).Query(context.Background(), "q", 1)
		assert.ErrorIs(t, err, types.ErrUpstream)
		assert.Len(t, model.prompts, 1, "answer is not generated")
	})

	t.Run("index", func(t *testing.T) {
		boom := errors.New("disk full")
		_, err := newTestEngine(&scriptedModel{timeRange: "{}"}, &fakeEmbedder{}, &fakeIndex{err: boom}).
			Query(context.Background(), "q", 1)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("language model", func(t *testing.T) {
		model := &scriptedModel{timeRange: "{}", answerErr: types.ErrUpstream}
		_, err := newTestEngine(model, &fakeEmbedder{}, &fakeIndex{}).Query(context.Background(), "q", 1)
		assert.ErrorIs(t, err, types.ErrUpstream)
	})
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Q?", []types.ContextChunk{{Text: "one"}, {Text: "two"}}, fixedNow)
	assert.True(t, strings.HasPrefix(prompt, "Given the following context and question"))
	assert.True(t, strings.HasSuffix(prompt, "Context:\none\n\ntwo\n\nQuestion: Q?\nAnswer:"))
}

func TestFormatLogMessage(t *testing.T) {
	assert.Equal(t, "a b c", formatLogMessage("a\nb\rc", 10))
	assert.Equal(t, "abc...", formatLogMessage("abcdef", 3))
	assert.Equal(t, "héé...", formatLogMessage("hééllo", 3))
	assert.Equal(t, "abc", formatLogMessage("abc", 3))
}
