package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/CEUCrawler/internal/llm"
)

const nerSystem = `Extract named entities from the continuing-education course page the user sends.

Return a JSON object of the form:
{"entities": [{"text": "<exact text from the page>", "label": "DATE|MONEY|PERSON|ORG"}]}

Rules:
- "text" must be copied verbatim from the page.
- PERSON: presenters, instructors and faculty only.
- ORG: accrediting or approving bodies only.
- DATE: calendar dates of the course, its end or its registration deadline.
- MONEY: prices.`

const (
	maxNERInput   = 6000
	llmConfidence = 0.75
)

// LLMRecognizer asks a chat model for entities and falls back to another
// Recognizer when the model is unavailable or answers badly.
type LLMRecognizer struct {
	provider  llm.Provider
	fallback  Recognizer
	maxTokens int
	logger    *slog.Logger
}

// NewLLMRecognizer returns a recognizer backed by provider. A nil provider
// makes every call use the fallback.
func NewLLMRecognizer(provider llm.Provider, maxTokens int, logger *slog.Logger) *LLMRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &LLMRecognizer{
		provider:  provider,
		fallback:  NewRuleRecognizer(),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (r *LLMRecognizer) Recognize(ctx context.Context, text string) ([]Span, error) {
	if r.provider == nil {
		return r.fallback.Recognize(ctx, text)
	}
	spans, err := r.ask(ctx, text)
	if err != nil {
		r.logger.Warn("llm entity recognition failed, using rules", "provider", r.provider.Name(), "error", err)
		return r.fallback.Recognize(ctx, text)
	}
	return spans, nil
}

func (r *LLMRecognizer) ask(ctx context.Context, text string) ([]Span, error) {
	input := truncate(text, maxNERInput)
	out, err := r.provider.Complete(ctx, llm.Request{System: nerSystem, Prompt: input, MaxTokens: r.maxTokens})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Entities []struct {
			Text  string `json:"text"`
			Label string `json:"label"`
		} `json:"entities"`
	}
	if err := llm.DecodeObject(out, &resp); err != nil {
		return nil, err
	}

	var spans []Span
	used := map[string]int{}
	for _, e := range resp.Entities {
		label := Label(strings.ToUpper(strings.TrimSpace(e.Label)))
		switch label {
		case LabelDate, LabelMoney, LabelPerson, LabelOrg:
		default:
			continue
		}
		needle := strings.TrimSpace(e.Text)
		if needle == "" {
			continue
		}
		// Only keep entities that occur in the page; repeated mentions map
		// to successive occurrences.
		from := used[needle]
		idx := strings.Index(text[from:], needle)
		if idx < 0 {
			continue
		}
		start := from + idx
		used[needle] = start + len(needle)
		spans = append(spans, Span{
			Text:       needle,
			Label:      label,
			Start:      start,
			End:        start + len(needle),
			Confidence: llmConfidence,
		})
	}
	sortSpans(spans)
	return spans, nil
}
