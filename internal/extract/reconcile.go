package extract

import (
	"strings"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

// DefaultMinConfidence is the lowest pattern confidence that beats entity
// and text evidence.
const DefaultMinConfidence = 0.7

// ReconciledCourse is the merged result of all extractors for one page.
type ReconciledCourse struct {
	Title                string
	Description          *string
	Category             *string
	Instructors          []string
	Price                *float64
	PriceString          *string
	OriginalPrice        *float64
	Credits              *float64
	CreditsString        *string
	CreditType           *string
	DurationMinutes      *int
	DurationString       *string
	Field                database.Field
	CourseType           database.CourseType
	StartDate            *time.Time
	EndDate              *time.Time
	RegistrationDeadline *time.Time
	Accreditations       []string

	// Sources records which extractor supplied each populated field.
	Sources map[string]Source
}

// Reconciler merges candidates field by field. For every field a pattern
// candidate at or above MinConfidence wins; otherwise the best entity
// candidate; otherwise the text value or structured-data candidate;
// otherwise the field stays empty.
type Reconciler struct {
	MinConfidence float64
}

// Reconcile merges candidates using DefaultMinConfidence.
func Reconcile(text TextResult, patterns, entities []ExtractedField) ReconciledCourse {
	return Reconciler{MinConfidence: DefaultMinConfidence}.Reconcile(text, patterns, entities)
}

func (r Reconciler) Reconcile(text TextResult, patterns, entities []ExtractedField) ReconciledCourse {
	out := ReconciledCourse{
		Title:      text.Title,
		Field:      database.FieldOther,
		CourseType: database.TypeUnknown,
		Sources:    map[string]Source{},
	}
	if text.Title != "" {
		out.Sources[FieldTitle] = SourceText
	}
	if text.Description != "" {
		out.Description = &text.Description
		out.Sources[FieldDescription] = SourceText
	}
	if text.Category != "" {
		out.Category = &text.Category
		out.Sources[FieldCategory] = SourceText
	}

	pick := func(field string, cands []ExtractedField) (ExtractedField, bool) {
		c, ok := r.choose(field, cands, entities, text.Candidates, text.TitleOffset)
		if ok {
			out.Sources[field] = c.Source
		}
		return c, ok
	}

	if c, ok := pick(FieldCredits, patterns); ok {
		out.Credits = c.Number
		out.CreditsString = strPtr(c.Value)
		if c.Number != nil && c.Detail != "" {
			out.CreditType = strPtr(c.Detail)
		}
	}

	if c, ok := pick(FieldPrice, currentPrices(byField(patterns, FieldPrice))); ok {
		out.Price = c.Number
		out.PriceString = strPtr(c.Value)
	}
	if out.Price != nil {
		for _, c := range rank(byField(patterns, FieldPrice), text.TitleOffset) {
			if c.Confidence >= r.MinConfidence && c.Number != nil && *c.Number > *out.Price {
				out.OriginalPrice = c.Number
				break
			}
		}
	}

	if c, ok := pick(FieldDuration, patterns); ok {
		out.DurationString = strPtr(c.Value)
		if c.Number != nil {
			m := int(*c.Number)
			out.DurationMinutes = &m
		}
	}

	if c, ok := pick(FieldCourseType, patterns); ok {
		if ct, valid := database.ParseCourseType(c.Value); valid {
			out.CourseType = ct
		}
	}

	// Keyword evidence is weak by nature, so the professional field takes
	// the best match at any confidence.
	if fields := rank(byField(patterns, FieldProfessional), text.TitleOffset); len(fields) > 0 {
		if f, valid := database.ParseField(fields[0].Value); valid {
			out.Field = f
			out.Sources[FieldProfessional] = SourcePattern
		}
	}

	for field, dst := range map[string]**time.Time{
		FieldStartDate:            &out.StartDate,
		FieldEndDate:              &out.EndDate,
		FieldRegistrationDeadline: &out.RegistrationDeadline,
	} {
		c, ok := pick(field, patterns)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.DateOnly, c.Value); err == nil {
			*dst = &t
		}
	}

	out.Instructors = r.collect(FieldInstructors, patterns, entities, maxNames, out.Sources)
	out.Accreditations = r.collect(FieldAccreditations, patterns, entities, 0, out.Sources)
	return out
}

// choose returns the winning single-valued candidate for field.
func (r Reconciler) choose(field string, patterns, entities, structured []ExtractedField, titleOffset int) (ExtractedField, bool) {
	if ranked := rank(byField(patterns, field), titleOffset); len(ranked) > 0 && ranked[0].Confidence >= r.MinConfidence {
		return ranked[0], true
	}
	if ranked := rank(byField(entities, field), titleOffset); len(ranked) > 0 {
		return ranked[0], true
	}
	if ranked := rank(byField(structured, field), titleOffset); len(ranked) > 0 {
		return ranked[0], true
	}
	return ExtractedField{}, false
}

// collect takes every value from the winning source of a multi-valued field,
// in page order and without duplicates. limit 0 means unbounded.
func (r Reconciler) collect(field string, patterns, entities []ExtractedField, limit int, sources map[string]Source) []string {
	var from []ExtractedField
	for _, c := range byField(patterns, field) {
		if c.Confidence >= r.MinConfidence {
			from = append(from, c)
		}
	}
	if len(from) == 0 {
		from = byField(entities, field)
	}
	if len(from) == 0 {
		return nil
	}
	sources[field] = from[0].Source

	var out []string
	seen := map[string]bool{}
	for _, c := range from {
		key := strings.ToLower(c.Value)
		if c.Value == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c.Value)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// currentPrices drops candidates that describe the original price: the
// "regular" matches themselves and any unlabelled match inside one, such as
// the "price $299" within "Regular price $299".
func currentPrices(prices []ExtractedField) []ExtractedField {
	var out []ExtractedField
	for _, c := range prices {
		if c.Detail == "regular" || (c.Detail == "" && withinRegular(c, prices)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func withinRegular(c ExtractedField, prices []ExtractedField) bool {
	for _, r := range prices {
		if r.Detail == "regular" && c.Offset >= r.Offset && c.Offset < r.Offset+len(r.Value) {
			return true
		}
	}
	return false
}

// Course converts the reconciled fields into a course record.
func (rc ReconciledCourse) Course(provider, pageURL string) *database.Course {
	return &database.Course{
		Provider:             provider,
		Title:                rc.Title,
		URL:                  pageURL,
		Description:          rc.Description,
		Instructors:          rc.Instructors,
		Price:                rc.Price,
		PriceString:          rc.PriceString,
		OriginalPrice:        rc.OriginalPrice,
		Credits:              rc.Credits,
		CreditsString:        rc.CreditsString,
		CreditType:           rc.CreditType,
		DurationMinutes:      rc.DurationMinutes,
		DurationString:       rc.DurationString,
		Category:             rc.Category,
		Field:                rc.Field,
		CourseType:           rc.CourseType,
		StartDate:            rc.StartDate,
		EndDate:              rc.EndDate,
		RegistrationDeadline: rc.RegistrationDeadline,
		Accreditations:       rc.Accreditations,
		Origin:               database.OriginCrawled,
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
