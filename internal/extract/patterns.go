package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

// Rule is one regular expression with the confidence of a match. The first
// capture group, when present, holds the value.
type Rule struct {
	Pattern     *regexp.Regexp
	Confidence  float64
	Label       string // credit type, course type, duration unit or accreditation kind
	Placeholder bool   // a match records the text but never a number
}

type vocabulary struct {
	field    database.Field
	keywords []*regexp.Regexp
}

// PatternTable holds the domain rules keyed by field name. It is built once
// and never modified.
type PatternTable struct {
	rules map[string][]Rule
	vocab []vocabulary
}

// Rules returns a copy of the rules for a field.
func (t *PatternTable) Rules(field string) []Rule {
	return append([]Rule(nil), t.rules[field]...)
}

func rule(pattern string, conf float64, label string) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Confidence: conf, Label: label}
}

func placeholder(pattern string, conf float64) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Confidence: conf, Label: "placeholder", Placeholder: true}
}

const datePattern = `(?:(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*,?\s+)?` +
	`((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
	`|\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{2}-\d{2})`

var ordinalSuffix = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)

var defaultTable = newPatternTable()

// DefaultPatternTable returns the built-in CE course rules.
func DefaultPatternTable() *PatternTable { return defaultTable }

func newPatternTable() *PatternTable {
	r := map[string][]Rule{
		FieldCredits: {
			rule(`(?i)(?:earn|receive|get)\s+(?:up\s+to\s+)?(\d+\.?\d*)\s*(?:CE|CEU|clock|contact)\s*hours?`, 0.95, "CE hours"),
			rule(`(?i)(\d+\.?\d*)\s*(?:CE|CEU)\s*(?:credit|hour)s?`, 0.9, "CE credits"),
			rule(`(?i)(\d+\.?\d*)\s*continuing\s*education\s*(?:credit|hour|unit)s?`, 0.9, "CE"),
			rule(`(?i)(?:CE|CEU)\s*(?:credit|hour)s?[:\s]+(\d+\.?\d*)`, 0.85, "CE"),
			rule(`(?i)(\d+\.?\d*)\s*clock\s*hours?`, 0.8, "clock hours"),
			rule(`(?i)(\d+\.?\d*)\s*contact\s*hours?`, 0.8, "contact hours"),
			rule(`(?i)credit\s*hours?[:\s]+(\d+\.?\d*)`, 0.75, "credit hours"),
			rule(`(?i)(\d+\.?\d*)\s*professional\s*development\s*(?:hour|unit)s?`, 0.75, "PD"),
			rule(`(?i)(?:approved\s+for|offers?)\s+(\d+\.?\d*)\s*(?:CE|credit)`, 0.7, "CE"),
			rule(`(?i)(\d+\.?\d*)\s*(?:CE|credit)s?\b`, 0.6, "CE"),
			placeholder(`(?i)\b(?:TBD|TBA|pending|N/?A)\s+(?:CE\s+|CEU\s+)?(?:credit|hour)s?`, 0.7),
		},
		FieldPrice: {
			rule(`(?i)(?:price|cost|fee)[:\s]*\$?(\d[\d,]*\.?\d*)`, 0.9, ""),
			rule(`\$(\d[\d,]*\.?\d*)`, 0.85, ""),
			rule(`(?i)(\d[\d,]*\.?\d*)\s*(?:USD|dollars?)`, 0.85, ""),
			rule(`(?i)(?:sale|special|discount)\s*(?:price)?[:\s]*\$?(\d[\d,]*\.?\d*)`, 0.9, "sale"),
			rule(`(?i)(?:now|only|just)\s*\$?(\d[\d,]*\.?\d*)`, 0.8, "sale"),
			rule(`(?i)(?:regular|original|was)\s*(?:price)?[:\s]*\$?(\d[\d,]*\.?\d*)`, 0.9, "regular"),
			placeholder(`(?i)(?:contact|call|email)(?:\s+us)?\s+for\s+(?:pricing|price|a\s+quote)`, 0.7),
		},
		FieldCourseType: {
			rule(`(?i)live\s+(?:webinar|online|virtual)`, 0.95, string(database.TypeLiveWebinar)),
			rule(`(?i)(?:join|attend)\s+(?:us\s+)?live`, 0.9, string(database.TypeLiveWebinar)),
			rule(`(?i)live\s+(?:event|training|seminar|workshop)`, 0.9, string(database.TypeLiveWebinar)),
			rule(`(?i)real[- ]?time\s+(?:webinar|training)`, 0.85, string(database.TypeLiveWebinar)),
			rule(`(?i)interactive\s+(?:webinar|session)`, 0.8, string(database.TypeLiveWebinar)),
			rule(`(?i)in[- ]?person\s+(?:event|training|seminar|workshop)`, 0.95, string(database.TypeInPerson)),
			rule(`(?i)on[- ]?site|face[- ]?to[- ]?face`, 0.9, string(database.TypeInPerson)),
			rule(`(?i)(?:attend|join)\s+(?:us\s+)?in\s+person`, 0.9, string(database.TypeInPerson)),
			rule(`(?i)venue|conference\s+center`, 0.7, string(database.TypeInPerson)),
			rule(`(?i)on[- ]?demand`, 0.95, string(database.TypeOnDemand)),
			rule(`(?i)(?:watch|access|view)\s+(?:anytime|24/7)`, 0.9, string(database.TypeOnDemand)),
			rule(`(?i)(?:recorded|pre[- ]?recorded)\s+(?:webinar|training)`, 0.9, string(database.TypeOnDemand)),
			rule(`(?i)instant\s+access`, 0.85, string(database.TypeOnDemand)),
			rule(`(?i)start\s+(?:immediately|anytime|now)`, 0.8, string(database.TypeOnDemand)),
			rule(`(?i)self[- ]?paced`, 0.95, string(database.TypeSelfPaced)),
			rule(`(?i)self[- ]?study`, 0.9, string(database.TypeSelfPaced)),
			rule(`(?i)(?:learn|study|complete)\s+at\s+your\s+own\s+pace`, 0.9, string(database.TypeSelfPaced)),
			rule(`(?i)home\s+study`, 0.85, string(database.TypeSelfPaced)),
			rule(`(?i)independent\s+study`, 0.8, string(database.TypeSelfPaced)),
		},
		FieldDuration: {
			rule(`(?i)(\d+)\s*(?:hours?|hrs?)\s*(?:and\s*)?(\d+)\s*(?:minutes?|mins?)`, 0.8, "hours_minutes"),
			rule(`(?i)(\d+\.?\d*)\s*(?:hours?|hrs?)\b`, 0.8, "hours"),
			rule(`(?i)(\d+)\s*(?:minutes?|mins?)\b`, 0.8, "minutes"),
			rule(`(?i)(\d+)\s*days?\b`, 0.8, "days"),
		},
		FieldRegistrationDeadline: {
			rule(`(?i)(?:register\s+by|registration\s+(?:deadline|closes)|deadline(?:\s+to\s+register)?)[:\s]+`+datePattern, 0.9, ""),
		},
		FieldStartDate: {
			rule(`(?i)(?:start\s+date|starts(?:\s+on)?|begins(?:\s+on)?|event\s+date|live\s+on|held\s+on)[:\s]+`+datePattern, 0.9, ""),
		},
		FieldEndDate: {
			rule(`(?i)(?:end\s+date|ends(?:\s+on)?|through|until)[:\s]+`+datePattern, 0.9, ""),
		},
		FieldInstructors: {
			rule(`(?:(?i:presented\s+by|instructor|faculty|speaker|taught\s+by))[:\s]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`, 0.85, "presenter"),
			rule(`(?:Dr\.|PhD|LCSW|LMFT|LPC|MD)[,\s]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`, 0.7, "credential"),
		},
		FieldAccreditations: {
			rule(`(?i:approved|accredited)\s+(?i:by|through)\s+(?:(?i:the)\s+)?([A-Z][A-Za-z&]*(?:\s+(?:of|for|and|[A-Z&][A-Za-z&]*))*?\s+(?:Board|Association|Council)(?:\s+(?:of|for)(?:\s+[A-Z][A-Za-z&]*)+)?)`, 0.85, "approval"),
			rule(`\b(NASW|NBCC|APA|ASWB|BBS|BRN)\b`, 0.9, "organization"),
			rule(`(?i)(National Board for Certified Counselors|American Psychological Association|Board of Registered Nursing|Association of Social Work Boards|National Association of Social Workers)`, 0.9, "organization"),
			rule(`\b([A-Z]{2,})\s+(?i:approved|accredited|certified)`, 0.7, "acronym"),
			rule(`(?:(?i:approved\s+(?:in|for)|meets\s+requirements\s+(?:in|for)))\s+([A-Z]{2}(?:,\s*[A-Z]{2})*)\b`, 0.75, "states"),
		},
	}

	vocab := []struct {
		field    database.Field
		keywords []string
	}{
		{database.FieldMentalHealth, []string{
			"mental health", "therapy", "therapist", "psychotherapy", "counseling",
			"depression", "anxiety", "ptsd", "trauma", "addiction", "substance abuse",
			"behavioral health", "mental illness", "psychiatric", "adhd", "autism",
			"clinical mental health", "psychopathology", "dbt", "cbt", "emdr",
		}},
		{database.FieldPsychology, []string{
			"psychology", "psychologist", "cognitive", "neuropsychology",
			"psychological assessment", "psychological testing", "behavioral psychology",
			"clinical psychology", "forensic psychology",
		}},
		{database.FieldCounseling, []string{
			"counselor", "counseling", "lmft", "lpc", "lmhc", "family therapy",
			"marriage counseling", "couples therapy", "school counselor",
			"career counseling", "rehabilitation counseling",
		}},
		{database.FieldNursing, []string{
			"nursing", "nurse", "rn", "bsn", "lpn", "aprn", "nurse practitioner",
			"clinical nursing", "nursing ce", "nursing continuing education",
			"registered nurse", "nursing practice",
		}},
		{database.FieldSocialWork, []string{
			"social work", "social worker", "lsw", "lcsw", "licsw", "msw",
			"clinical social work", "child welfare", "case management",
		}},
	}

	t := &PatternTable{rules: r}
	for _, v := range vocab {
		voc := vocabulary{field: v.field}
		for _, kw := range v.keywords {
			voc.keywords = append(voc.keywords, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		t.vocab = append(t.vocab, voc)
	}
	return t
}

const (
	minCredits = 0.5
	maxCredits = 100
	maxPrice   = 10000
	maxNames   = 5
)

// PatternExtractor applies a PatternTable to page text.
type PatternExtractor struct {
	table *PatternTable
}

// NewPatternExtractor returns an extractor over table, or the default table
// when table is nil.
func NewPatternExtractor(table *PatternTable) *PatternExtractor {
	if table == nil {
		table = DefaultPatternTable()
	}
	return &PatternExtractor{table: table}
}

// Extract returns every candidate the rules find in text. An empty text
// yields no candidates.
func (p *PatternExtractor) Extract(text string) []ExtractedField {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []ExtractedField
	out = append(out, p.numeric(text, FieldCredits, minCredits, maxCredits)...)
	out = append(out, p.numeric(text, FieldPrice, 0, maxPrice)...)
	out = append(out, p.courseTypes(text)...)
	out = append(out, p.fields(text)...)
	out = append(out, p.duration(text)...)
	for _, f := range []string{FieldStartDate, FieldEndDate, FieldRegistrationDeadline} {
		out = append(out, p.dates(text, f)...)
	}
	out = append(out, p.names(text, FieldInstructors, maxNames)...)
	out = append(out, p.names(text, FieldAccreditations, 0)...)
	return out
}

func (p *PatternExtractor) numeric(text, field string, lo, hi float64) []ExtractedField {
	var out []ExtractedField
	for _, r := range p.table.rules[field] {
		for _, m := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
			c := ExtractedField{
				Field:      field,
				Value:      strings.TrimSpace(text[m[0]:m[1]]),
				Confidence: r.Confidence,
				Source:     SourcePattern,
				Offset:     m[0],
				Detail:     r.Label,
			}
			if !r.Placeholder && len(m) >= 4 && m[2] >= 0 {
				c.Number = parseNumber(text[m[2]:m[3]])
				if c.Number != nil && (*c.Number < lo || *c.Number > hi) {
					continue
				}
			}
			out = append(out, c)
		}
	}
	return out
}

// courseTypes emits one candidate per type, at the confidence of its
// strongest matching rule.
func (p *PatternExtractor) courseTypes(text string) []ExtractedField {
	best := map[string]ExtractedField{}
	var order []string
	for _, r := range p.table.rules[FieldCourseType] {
		loc := r.Pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		prev, seen := best[r.Label]
		if !seen {
			order = append(order, r.Label)
		}
		if !seen || r.Confidence > prev.Confidence {
			best[r.Label] = ExtractedField{
				Field:      FieldCourseType,
				Value:      r.Label,
				Confidence: r.Confidence,
				Source:     SourcePattern,
				Offset:     loc[0],
				Detail:     text[loc[0]:loc[1]],
			}
		}
	}
	out := make([]ExtractedField, 0, len(order))
	for _, label := range order {
		out = append(out, best[label])
	}
	return out
}

// fields scores each professional field by the share of its keywords that
// appear in text.
func (p *PatternExtractor) fields(text string) []ExtractedField {
	var out []ExtractedField
	for _, v := range p.table.vocab {
		matches, first := 0, -1
		for _, kw := range v.keywords {
			loc := kw.FindStringIndex(text)
			if loc == nil {
				continue
			}
			matches++
			if first < 0 || loc[0] < first {
				first = loc[0]
			}
		}
		if matches == 0 {
			continue
		}
		conf := math.Min(0.95, 0.5+float64(matches)/float64(len(v.keywords))*0.5)
		out = append(out, ExtractedField{
			Field:      FieldProfessional,
			Value:      string(v.field),
			Confidence: conf,
			Source:     SourcePattern,
			Offset:     first,
			Detail:     strconv.Itoa(matches),
		})
	}
	return out
}

// duration uses the first rule that matches, in table order.
func (p *PatternExtractor) duration(text string) []ExtractedField {
	for _, r := range p.table.rules[FieldDuration] {
		m := r.Pattern.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		first := parseNumber(text[m[2]:m[3]])
		if first == nil {
			continue
		}
		var minutes float64
		switch r.Label {
		case "hours_minutes":
			rest := parseNumber(text[m[4]:m[5]])
			if rest == nil {
				continue
			}
			minutes = *first*60 + *rest
		case "hours":
			minutes = math.Trunc(*first * 60)
		case "minutes":
			minutes = *first
		case "days":
			minutes = *first * 8 * 60
		}
		return []ExtractedField{{
			Field:      FieldDuration,
			Value:      strings.TrimSpace(text[m[0]:m[1]]),
			Number:     &minutes,
			Confidence: r.Confidence,
			Source:     SourcePattern,
			Offset:     m[0],
			Detail:     r.Label,
		}}
	}
	return nil
}

func (p *PatternExtractor) dates(text, field string) []ExtractedField {
	var out []ExtractedField
	for _, r := range p.table.rules[field] {
		for _, m := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
			iso := parseDate(text[m[2]:m[3]])
			if iso == "" {
				continue
			}
			out = append(out, ExtractedField{
				Field:      field,
				Value:      iso,
				Confidence: r.Confidence,
				Source:     SourcePattern,
				Offset:     m[2],
				Detail:     strings.TrimSpace(text[m[0]:m[1]]),
			})
		}
	}
	return out
}

// names collects distinct first-group matches; limit 0 means unbounded.
func (p *PatternExtractor) names(text, field string, limit int) []ExtractedField {
	var out []ExtractedField
	seen := map[string]bool{}
	for _, r := range p.table.rules[field] {
		for _, m := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
			name := strings.TrimSpace(text[m[2]:m[3]])
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ExtractedField{
				Field:      field,
				Value:      name,
				Confidence: r.Confidence,
				Source:     SourcePattern,
				Offset:     m[2],
				Detail:     r.Label,
			})
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}
