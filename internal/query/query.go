// Package query answers questions about indexed notes: it scopes the
// question in time, retrieves the closest passages and asks the language
// model to summarize them.
package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/whispernote/internal/embedder"
	"github.com/dshills/whispernote/internal/llm"
	"github.com/dshills/whispernote/internal/storage"
	"github.com/dshills/whispernote/internal/timerange"
	"github.com/dshills/whispernote/pkg/types"
)

const (
	todayLayout = "Monday, January 02, 2006"

	// maxLoggedPrompt bounds the debug log of the assembled prompt
	maxLoggedPrompt = 2000
)

const promptTemplate = "Given the following context and question, generate a helpful response to the user's question.\n" +
	"\n" +
	"Instructions:\n" +
	"- Only include work that the user personally completed, led, or contributed to.\n" +
	"- Ignore information about other people unless it directly relates to the user's own work or deliverables.\n" +
	"- Ignore notes that are procedural, instructional, or reference material (e.g., how-to guides, meeting agendas, copied documentation, or class notes). Do not include these as completed tasks.\n" +
	"- If unsure whether an item is a completed task, omit it.\n" +
	"- Begin your answer with a single, concise sentence that states the time period the summary covers (e.g., 'On Friday, May 1st, you...').\n" +
	"- Include all relevant information as a concise, high-level bulleted list. **Do not include any additional paragraphs, commentary, or summaries outside of the bulleted list and the opening sentence.**\n" +
	"- Each bullet should represent a completed task or high-level accomplishment. If you attended a class or training, summarize it as a single bullet (e.g., 'Attended Workspaces 101 class').\n" +
	"- Be brief and avoid unnecessary details or repetition.\n" +
	"- Do not reference the context or say things like 'Based on the information provided...'.\n" +
	"- Today's date is %s.\n" +
	"\n" +
	"Context:\n%s\n\nQuestion: %s\nAnswer:"

// Engine answers questions using retrieved passages as grounding context
type Engine struct {
	embedder  embedder.Embedder
	index     storage.VectorIndex
	model     llm.LanguageModel
	extractor *timerange.Extractor
	timeField types.TimeField
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithTimeField selects the metadata timestamp that time ranges filter on
func WithTimeField(field types.TimeField) Option {
	return func(e *Engine) {
		e.timeField = field
	}
}

// WithClock replaces the wall clock used for today's date
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithExtractor replaces the time range extractor built from the model
func WithExtractor(extractor *timerange.Extractor) Option {
	return func(e *Engine) {
		e.extractor = extractor
	}
}

// New creates an Engine. Unless WithExtractor is given, time ranges are
// extracted with the same model that writes answers.
func New(emb embedder.Embedder, index storage.VectorIndex, model llm.LanguageModel, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		embedder:  emb,
		index:     index,
		model:     model,
		timeField: types.TimeFieldCreated,
		logger:    logger.With("component", "query"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extractor == nil {
		e.extractor = timerange.New(model, logger, timerange.WithClock(e.now))
	}
	return e
}

// Query answers question from at most maxResults passages. A maxResults of
// zero or less uses storage.DefaultMaxResults. The language model is always
// called, even when nothing was retrieved, and the retrieved passages are
// returned alongside the answer.
func (e *Engine) Query(ctx context.Context, question string, maxResults int) (*types.QueryResult, error) {
	if maxResults <= 0 {
		maxResults = storage.DefaultMaxResults
	}

	tr := e.extractor.Extract(ctx, question)

	chunks, err := e.findSimilarContext(ctx, question, maxResults, tr)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(question, chunks, e.now())
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.Debug("built prompt", "prompt", formatLogMessage(prompt, maxLoggedPrompt))
	}

	answer, err := e.model.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &types.QueryResult{Answer: answer, Context: chunks}, nil
}

func (e *Engine) findSimilarContext(ctx context.Context, question string, maxResults int, tr types.TimeRange) ([]types.ContextChunk, error) {
	e.logger.Debug("finding similar context",
		"question", question,
		"range", tr.String(),
		"max_results", maxResults)

	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors for 1 text", len(vectors))
	}

	chunks, err := e.index.Query(ctx, vectors[0], storage.QueryOptions{
		MaxResults: maxResults,
		Start:      tr.Start,
		End:        tr.End,
		TimeField:  e.timeField,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if chunks == nil {
		chunks = []types.ContextChunk{}
	}

	e.logger.Debug("found similar context", "count", len(chunks))
	return chunks, nil
}

// BuildPrompt joins the non-empty chunk texts and fills the answer template
func BuildPrompt(question string, chunks []types.ContextChunk, now time.Time) string {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Text != "" {
			texts = append(texts, chunk.Text)
		}
	}
	return fmt.Sprintf(promptTemplate, now.Format(todayLayout), strings.Join(texts, "\n\n"), question)
}

// formatLogMessage flattens msg to one line and truncates it to maxLen runes
func formatLogMessage(msg string, maxLen int) string {
	single := strings.NewReplacer("\n", " ", "\r", " ").Replace(msg)
	runes := []rune(single)
	if len(runes) <= maxLen {
		return single
	}
	return string(runes[:maxLen]) + "..."
}
