package timerange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	response string
	err      error
	prompts  []string
}

func (s *stubModel) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

var fixedNow = time.Date(2025, time.May, 4, 15, 30, 0, 0, time.UTC)

func newTestExtractor(model *stubModel) *Extractor {
	return New(model, nil, WithClock(func() time.Time { return fixedNow }))
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantStart *time.Time
		wantEnd   *time.Time
	}{
		{
			name:      "closed range",
			response:  `{"start":"2025-05-01","end":"2025-05-03"}`,
			wantStart: ptr(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
			wantEnd:   ptr(time.Date(2025, 5, 3, 23, 59, 59, 0, time.UTC)),
		},
		{
			name:      "single day",
			response:  ` {"start": "2025-05-03", "end": "2025-05-03"}` + "\n",
			wantStart: ptr(time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)),
			wantEnd:   ptr(time.Date(2025, 5, 3, 23, 59, 59, 0, time.UTC)),
		},
		{
			name:     "not time sensitive",
			response: `{"start": null, "end": null}`,
		},
		{
			name:      "open end",
			response:  `{"start":"2025-04-01","end":null}`,
			wantStart: ptr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "missing start",
			response: `{"end":"2025-04-30"}`,
			wantEnd:  ptr(time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC)),
		},
		{
			name:     "bad start keeps good end",
			response: `{"start":"last tuesday","end":"2025-04-30"}`,
			wantEnd:  ptr(time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC)),
		},
		{
			name:      "non-string end",
			response:  `{"start":"2025-04-01","end":20250430}`,
			wantStart: ptr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "malformed json",
			response: `Here's the output: {"start": "2025-05-01"`,
		},
		{
			name:     "json array",
			response: `["2025-05-01"]`,
		},
		{
			name:     "json null",
			response: `null`,
		},
		{
			name:     "empty response",
			response: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestExtractor(&stubModel{response: tt.response}).Extract(context.Background(), "what did I do?")
			assert.Equal(t, tt.wantStart, tr.Start)
			assert.Equal(t, tt.wantEnd, tr.End)
		})
	}
}

func TestExtract_ModelErrorFailsOpen(t *testing.T) {
	model := &stubModel{err: errors.New("connection refused")}
	tr := newTestExtractor(model).Extract(context.Background(), "what happened yesterday?")
	assert.False(t, tr.IsScoped())
}

func TestExtract_Prompt(t *testing.T) {
	model := &stubModel{response: `{"start":null,"end":null}`}
	newTestExtractor(model).Extract(context.Background(), "What did I do yesterday?")

	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	assert.Contains(t, prompt, "Assume today's date is 2025-05-04.")
	assert.Contains(t, prompt, `return { "start": "2025-05-03", "end": "2025-05-03" }`)
	assert.Contains(t, prompt, `User question: "What did I do yesterday?"`)
	assert.Contains(t, prompt, "Output ONLY a single line of valid JSON.")
}

func TestParse_ReportsExtractionError(t *testing.T) {
	e := newTestExtractor(&stubModel{})
	_, err := e.Parse("nope", time.UTC)
	var pe *ExtractionParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "nope", pe.Response)
}

func TestParse_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-7", -7*60*60)
	e := newTestExtractor(&stubModel{})
	tr, err := e.Parse(`{"start":"2025-05-01","end":"2025-05-01"}`, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, loc), *tr.Start)
	assert.Equal(t, time.Date(2025, 5, 1, 23, 59, 59, 0, loc), *tr.End)
}

func ptr(t time.Time) *time.Time {
	return &t
}
