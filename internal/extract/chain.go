package extract

import (
	"context"
	"errors"
	"strings"
)

// ErrNoTitle is returned when a page yields no course title.
var ErrNoTitle = errors.New("no title found")

// Result carries every stage's output for one page.
type Result struct {
	Text     TextResult
	Patterns []ExtractedField
	Entities []ExtractedField
	Course   ReconciledCourse
}

// Chain runs the text, pattern and entity extractors and reconciles them.
type Chain struct {
	patterns   *PatternExtractor
	entities   *EntityExtractor
	reconciler Reconciler
}

// NewChain builds a chain. Nil extractors use the built-in rules and a
// non-positive minConfidence uses DefaultMinConfidence.
func NewChain(patterns *PatternExtractor, entities *EntityExtractor, minConfidence float64) *Chain {
	if patterns == nil {
		patterns = NewPatternExtractor(nil)
	}
	if entities == nil {
		entities = NewEntityExtractor(nil, nil)
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Chain{patterns: patterns, entities: entities, reconciler: Reconciler{MinConfidence: minConfidence}}
}

// Run extracts a course from raw HTML. The partial Result is returned with
// ErrNoTitle when the page has no usable title.
func (c *Chain) Run(ctx context.Context, rawHTML, pageURL string) (*Result, error) {
	res := &Result{Text: ExtractText(rawHTML, pageURL)}
	res.Patterns = c.patterns.Extract(res.Text.FullText)
	res.Entities = c.entities.Extract(ctx, res.Text.FullText)
	res.Course = c.reconciler.Reconcile(res.Text, res.Patterns, res.Entities)
	if strings.TrimSpace(res.Course.Title) == "" {
		return res, ErrNoTitle
	}
	return res, nil
}
