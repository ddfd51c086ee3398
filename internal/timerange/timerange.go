// Package timerange asks a language model whether a question refers to a
// period of time and turns its answer into an inclusive date range.
package timerange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/whispernote/internal/llm"
	"github.com/dshills/whispernote/pkg/types"
)

const dateLayout = time.DateOnly

const promptTemplate = `Given the following user question, determine whether it has a time-sensitive component. If it does, return the start
and end date that the question refers to in ISO 8601 format (YYYY-MM-DD). If the question is not time-sensitive,
return null for both.

IMPORTANT:
- Output ONLY a single line of valid JSON.
- Do NOT include any explanation, markdown, or extra text before or after the JSON.
- Do NOT include phrases like 'Here's the output:' or code blocks.
- Your response will be parsed by a computer. If you include anything other than the JSON object, it will cause an error.
- Assume today's date is %s.

Output strictly in this JSON format:
{
    "start": "YYYY-MM-DD" or null,
    "end": "YYYY-MM-DD" or null
}

For example, if the user's question is "What did I do yesterday?", return { "start": "%s", "end": "%s" }.
User question: "%s"
`

// ExtractionParseError reports a model response that is not the expected
// JSON object. Extract absorbs it and returns an open range.
type ExtractionParseError struct {
	Response string
	Err      error
}

func (e *ExtractionParseError) Error() string {
	return fmt.Sprintf("unparseable time range response %q: %v", e.Response, e.Err)
}

func (e *ExtractionParseError) Unwrap() error {
	return e.Err
}

// Extractor resolves time-scoped questions to a TimeRange
type Extractor struct {
	model  llm.LanguageModel
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithClock replaces the wall clock used to anchor "today"
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// New creates an Extractor backed by model
func New(model llm.LanguageModel, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Extractor{
		model:  model,
		logger: logger.With("component", "timerange"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prompt builds the extraction prompt for question anchored at now
func Prompt(question string, now time.Time) string {
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	return fmt.Sprintf(promptTemplate, today, yesterday, yesterday, question)
}

// Extract asks the model for the date range question refers to. It never
// fails: a model error or unparseable response yields an open range.
func (e *Extractor) Extract(ctx context.Context, question string) types.TimeRange {
	now := e.now()
	response, err := e.model.Generate(ctx, Prompt(question, now))
	if err != nil {
		e.logger.Warn("time range extraction failed", "question", question, "error", err)
		return types.TimeRange{}
	}

	tr, err := e.Parse(response, now.Location())
	if err != nil {
		e.logger.Error("failed to extract time range", "question", question, "error", err)
		return types.TimeRange{}
	}

	e.logger.Debug("extracted time range", "question", question, "range", tr.String())
	return tr
}

// Parse decodes a model response in loc. The start date becomes 00:00:00 and
// the end date 23:59:59 of its day. Each field that is null, missing or not a
// YYYY-MM-DD date is left open without affecting the other.
func (e *Extractor) Parse(response string, loc *time.Location) (types.TimeRange, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &data); err != nil {
		return types.TimeRange{}, &ExtractionParseError{Response: response, Err: err}
	}
	if data == nil {
		return types.TimeRange{}, &ExtractionParseError{Response: response, Err: fmt.Errorf("expected a JSON object")}
	}

	var tr types.TimeRange
	if day, ok := e.parseDate(data, "start", loc); ok {
		tr.Start = &day
	}
	if day, ok := e.parseDate(data, "end", loc); ok {
		end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, loc)
		tr.End = &end
	}
	return tr, nil
}

func (e *Extractor) parseDate(data map[string]any, key string, loc *time.Location) (time.Time, bool) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return time.Time{}, false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		e.logger.Error("invalid date value", "field", key, "value", raw)
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		e.logger.Error("invalid date string", "field", key, "value", s, "error", err)
		return time.Time{}, false
	}
	return day, true
}
