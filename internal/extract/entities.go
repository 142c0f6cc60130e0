package extract

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// Label is a named-entity class.
type Label string

const (
	LabelDate   Label = "DATE"
	LabelMoney  Label = "MONEY"
	LabelPerson Label = "PERSON"
	LabelOrg    Label = "ORG"
)

// Span is one recognized entity in a text.
type Span struct {
	Text       string
	Label      Label
	Start, End int // byte offsets into the recognized text
	Confidence float64
}

// Recognizer finds entity spans in plain text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Span, error)
}

type entityRule struct {
	label Label
	re    *regexp.Regexp
	conf  float64
}

// organizations that commonly approve CE courses.
var organizations = []string{
	"National Board for Certified Counselors",
	"American Psychological Association",
	"National Association of Social Workers",
	"Association of Social Work Boards",
	"American Nurses Credentialing Center",
	"Board of Registered Nursing",
	"Board of Behavioral Sciences",
	"NBCC", "NASW", "ASWB", "ANCC", "APA",
}

// RuleRecognizer is a deterministic Recognizer built from regular
// expressions and a small gazetteer of accrediting bodies.
type RuleRecognizer struct {
	rules []entityRule
}

// NewRuleRecognizer returns the built-in rule recognizer.
func NewRuleRecognizer() *RuleRecognizer {
	quoted := make([]string, len(organizations))
	for i, o := range organizations {
		quoted[i] = regexp.QuoteMeta(o)
	}
	return &RuleRecognizer{rules: []entityRule{
		{LabelDate, regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`), 0.8},
		{LabelDate, regexp.MustCompile(`\b(?:\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2})\b`), 0.7},
		{LabelMoney, regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{2})?`), 0.8},
		{LabelMoney, regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d{2})?\s?(?:USD|dollars)\b`), 0.75},
		{LabelPerson, regexp.MustCompile(`\b(?:Dr|Prof|Mr|Mrs|Ms)\.?\s+([A-Z][a-z]+(?:\s+[A-Z]\.)?(?:\s+[A-Z][a-z'\-]+)+)`), 0.8},
		{LabelPerson, regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z]\.)?(?:\s+[A-Z][a-z'\-]+)+),?\s+(?:PhD|PsyD|MD|LCSW|LMFT|LPC|LMHC|RN|MSN|DNP|EdD|MSW|NCC)\b`), 0.75},
		{LabelOrg, regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`), 0.8},
		{LabelOrg, regexp.MustCompile(`\b((?:[A-Z][A-Za-z&]+\s+){1,5}(?:Board|Association|Council|Commission))\b`), 0.7},
	}}
}

// Recognize returns non-overlapping spans ordered by position. When two
// matches overlap the earlier rule wins.
func (r *RuleRecognizer) Recognize(_ context.Context, text string) ([]Span, error) {
	var spans []Span
	for _, rule := range r.rules {
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			s := Span{Text: text[start:end], Label: rule.label, Start: start, End: end, Confidence: rule.conf}
			if !overlaps(spans, s) {
				spans = append(spans, s)
			}
		}
	}
	sortSpans(spans)
	return spans, nil
}

func sortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
}

func overlaps(spans []Span, s Span) bool {
	for _, o := range spans {
		if s.Start < o.End && o.Start < s.End {
			return true
		}
	}
	return false
}

// EntityExtractor maps recognized entities to course field candidates.
// DATE spans become start, end or registration dates by the words that
// precede them. MONEY spans are reported under FieldMoney and never feed
// the price.
type EntityExtractor struct {
	rec    Recognizer
	logger *slog.Logger
}

// NewEntityExtractor wraps rec, defaulting to a RuleRecognizer.
func NewEntityExtractor(rec Recognizer, logger *slog.Logger) *EntityExtractor {
	if rec == nil {
		rec = NewRuleRecognizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityExtractor{rec: rec, logger: logger}
}

const contextWindow = 40

var (
	deadlineContext = regexp.MustCompile(`(?i)regist|deadline|enrol`)
	endContext      = regexp.MustCompile(`(?i)\b(?:through|thru|until|ends?|end\s+date)\b`)
	amount          = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// Extract recognizes entities in text. A recognizer error is logged and
// yields no candidates; entity evidence is never required.
func (e *EntityExtractor) Extract(ctx context.Context, text string) []ExtractedField {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	spans, err := e.rec.Recognize(ctx, text)
	if err != nil {
		e.logger.Warn("entity recognition failed", "error", err)
		return nil
	}

	var out []ExtractedField
	seen := map[string]bool{}
	persons, prevEnd := 0, 0
	for _, s := range spans {
		lo := min(s.Start, max(0, s.Start-contextWindow, prevEnd))
		prevEnd = s.End
		f := ExtractedField{
			Value:      strings.TrimSpace(s.Text),
			Confidence: s.Confidence,
			Source:     SourceNER,
			Offset:     s.Start,
			Detail:     string(s.Label),
		}
		switch s.Label {
		case LabelDate:
			iso := parseDate(s.Text)
			if iso == "" {
				continue
			}
			f.Field = dateField(text[lo:s.Start])
			f.Value = iso
		case LabelPerson:
			if persons == maxNames {
				continue
			}
			f.Field = FieldInstructors
		case LabelOrg:
			f.Field = FieldAccreditations
		case LabelMoney:
			f.Field = FieldMoney
			f.Number = parseNumber(amount.FindString(f.Value))
		default:
			continue
		}
		key := f.Field + "\x00" + strings.ToLower(f.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		if f.Field == FieldInstructors {
			persons++
		}
		out = append(out, f)
	}
	return out
}

func dateField(before string) string {
	switch {
	case deadlineContext.MatchString(before):
		return FieldRegistrationDeadline
	case endContext.MatchString(before):
		return FieldEndDate
	default:
		return FieldStartDate
	}
}
