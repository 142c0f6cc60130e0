package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

func num(v float64) *float64 { return &v }

func runChain(t *testing.T, html string) *Result {
	t.Helper()
	res, err := NewChain(nil, nil, 0).Run(context.Background(), html, "https://example.com/store/detail/1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func TestChainBasicCoursePage(t *testing.T) {
	c := runChain(t, "<h1>Ethics 101</h1><p>6.0 CE Hours $199.99 On-Demand</p>").Course

	if c.Title != "Ethics 101" {
		t.Errorf("expected title 'Ethics 101', got %q", c.Title)
	}
	if c.Credits == nil || *c.Credits != 6.0 {
		t.Errorf("expected 6.0 credits, got %v", c.Credits)
	}
	if c.Price == nil || *c.Price != 199.99 {
		t.Errorf("expected price 199.99, got %v", c.Price)
	}
	if c.PriceString == nil || *c.PriceString != "$199.99" {
		t.Errorf("expected price string '$199.99', got %v", c.PriceString)
	}
	if c.CourseType != database.TypeOnDemand {
		t.Errorf("expected on_demand, got %s", c.CourseType)
	}
	if c.Field != database.FieldOther {
		t.Errorf("expected field other, got %s", c.Field)
	}
	if c.Sources[FieldCredits] != SourcePattern {
		t.Errorf("expected credits from patterns, got %s", c.Sources[FieldCredits])
	}
}

func TestChainContactForPricing(t *testing.T) {
	c := runChain(t, "<h1>Ethics 101</h1><p>6.0 CE Hours. Contact us for pricing. On-Demand</p>").Course

	if c.Price != nil {
		t.Errorf("expected no price, got %v", *c.Price)
	}
	if c.PriceString == nil || *c.PriceString != "Contact us for pricing" {
		t.Errorf("expected contact phrase preserved, got %v", c.PriceString)
	}
}

func TestChainPlaceholderCredits(t *testing.T) {
	c := runChain(t, "<h1>Ethics 101</h1><p>TBD credits. Self-paced</p>").Course

	if c.Credits != nil {
		t.Errorf("expected no credits, got %v", *c.Credits)
	}
	if c.CreditsString == nil || *c.CreditsString != "TBD credits" {
		t.Errorf("expected credits string preserved, got %v", c.CreditsString)
	}
	if c.CreditType != nil {
		t.Errorf("expected no credit type for a placeholder, got %q", *c.CreditType)
	}
	if c.CourseType != database.TypeSelfPaced {
		t.Errorf("expected self_paced, got %s", c.CourseType)
	}
}

func TestChainNoTitle(t *testing.T) {
	res, err := NewChain(nil, nil, 0).Run(context.Background(), "<div>6 CE hours</div>", "")
	if !errors.Is(err, ErrNoTitle) {
		t.Fatalf("expected ErrNoTitle, got %v", err)
	}
	if res == nil || len(res.Patterns) == 0 {
		t.Error("expected partial results alongside the error")
	}
}

func TestReconcilePatternBeatsEntity(t *testing.T) {
	text := TextResult{Title: "Course"}
	entities := []ExtractedField{{Field: FieldCredits, Value: "5", Number: num(5), Confidence: 0.75, Source: SourceNER}}

	got := Reconcile(text, []ExtractedField{
		{Field: FieldCredits, Value: "3 CE", Number: num(3), Confidence: 0.85, Source: SourcePattern},
	}, entities)
	if got.Credits == nil || *got.Credits != 3 {
		t.Errorf("expected pattern value 3, got %v", got.Credits)
	}

	got = Reconcile(text, []ExtractedField{
		{Field: FieldCredits, Value: "3 CE", Number: num(3), Confidence: 0.4, Source: SourcePattern},
	}, entities)
	if got.Credits == nil || *got.Credits != 5 {
		t.Errorf("expected entity value 5 when pattern is weak, got %v", got.Credits)
	}
	if got.Sources[FieldCredits] != SourceNER {
		t.Errorf("expected ner source, got %s", got.Sources[FieldCredits])
	}
}

func TestReconcileMinConfidenceConfigurable(t *testing.T) {
	patterns := []ExtractedField{{Field: FieldCredits, Value: "2 CE", Number: num(2), Confidence: 0.6, Source: SourcePattern}}

	if got := Reconcile(TextResult{Title: "x"}, patterns, nil); got.Credits != nil {
		t.Errorf("expected 0.6 to fall below the default threshold, got %v", *got.Credits)
	}
	got := Reconciler{MinConfidence: 0.5}.Reconcile(TextResult{Title: "x"}, patterns, nil)
	if got.Credits == nil || *got.Credits != 2 {
		t.Errorf("expected 2 with a lower threshold, got %v", got.Credits)
	}
}

func TestReconcileOriginalPrice(t *testing.T) {
	patterns := []ExtractedField{
		{Field: FieldPrice, Value: "Regular price: $249", Number: num(249), Confidence: 0.9, Source: SourcePattern, Detail: "regular"},
		{Field: FieldPrice, Value: "Sale $199", Number: num(199), Confidence: 0.9, Source: SourcePattern, Detail: "sale"},
	}
	got := Reconcile(TextResult{Title: "x"}, patterns, nil)
	if got.Price == nil || *got.Price != 199 {
		t.Errorf("expected sale price 199, got %v", got.Price)
	}
	if got.OriginalPrice == nil || *got.OriginalPrice != 249 {
		t.Errorf("expected original price 249, got %v", got.OriginalPrice)
	}

	// The generic price rule also matches inside "Regular price $299.00".
	c := runChain(t, "<h1>Ethics 101</h1><p>Regular price $299.00</p><p>Sale price $199.00</p><p>6 CE hours</p>").Course
	if c.Price == nil || *c.Price != 199 {
		t.Errorf("expected sale price 199 from page, got %v", c.Price)
	}
	if c.OriginalPrice == nil || *c.OriginalPrice != 299 {
		t.Errorf("expected original price 299 from page, got %v", c.OriginalPrice)
	}
	if c.PriceString == nil || strings.Contains(*c.PriceString, "299") {
		t.Errorf("expected the sale price string, got %v", c.PriceString)
	}
}

func TestReconcileMultiValuedFromWinningSource(t *testing.T) {
	patterns := []ExtractedField{
		{Field: FieldInstructors, Value: "Jane Smith", Confidence: 0.85, Source: SourcePattern},
	}
	entities := []ExtractedField{
		{Field: FieldInstructors, Value: "Robert Lee", Confidence: 0.8, Source: SourceNER},
		{Field: FieldAccreditations, Value: "NBCC", Confidence: 0.8, Source: SourceNER},
		{Field: FieldAccreditations, Value: "nbcc", Confidence: 0.8, Source: SourceNER},
	}
	got := Reconcile(TextResult{Title: "x"}, patterns, entities)

	if len(got.Instructors) != 1 || got.Instructors[0] != "Jane Smith" {
		t.Errorf("expected only pattern instructors, got %v", got.Instructors)
	}
	if len(got.Accreditations) != 1 || got.Accreditations[0] != "NBCC" {
		t.Errorf("expected deduplicated entity accreditations, got %v", got.Accreditations)
	}
}

func TestReconcileInstructorCap(t *testing.T) {
	var entities []ExtractedField
	for _, n := range []string{"A One", "B Two", "C Three", "D Four", "E Five", "F Six"} {
		entities = append(entities, ExtractedField{Field: FieldInstructors, Value: n, Confidence: 0.8, Source: SourceNER})
	}
	got := Reconcile(TextResult{Title: "x"}, nil, entities)
	if len(got.Instructors) != 5 {
		t.Errorf("expected at most 5 instructors, got %v", got.Instructors)
	}
}

func TestReconcileDatesAndText(t *testing.T) {
	text := TextResult{Title: "Grief", Description: "About grief.", Category: "Counseling"}
	entities := []ExtractedField{{Field: FieldStartDate, Value: "2026-03-03", Confidence: 0.8, Source: SourceNER}}
	got := Reconcile(text, nil, entities)

	if got.StartDate == nil || got.StartDate.Format("2006-01-02") != "2026-03-03" {
		t.Errorf("expected start date from entities, got %v", got.StartDate)
	}
	if got.Description == nil || *got.Description != "About grief." {
		t.Errorf("expected text description, got %v", got.Description)
	}
	if got.Category == nil || *got.Category != "Counseling" {
		t.Errorf("expected text category, got %v", got.Category)
	}
	if got.CourseType != database.TypeUnknown {
		t.Errorf("expected unknown course type without evidence, got %s", got.CourseType)
	}
	if got.Credits != nil || got.Price != nil {
		t.Error("expected null numbers without evidence")
	}
}

func TestReconciledCourseToRecord(t *testing.T) {
	rc := Reconcile(TextResult{Title: "Ethics"}, []ExtractedField{
		{Field: FieldCredits, Value: "3 CE", Number: num(3), Confidence: 0.9, Source: SourcePattern, Detail: "CE credits"},
	}, nil)
	c := rc.Course("pesi", "https://example.com/c")

	if c.Provider != "pesi" || c.URL != "https://example.com/c" || c.Origin != database.OriginCrawled {
		t.Errorf("unexpected record identity %+v", c)
	}
	if c.CreditType == nil || *c.CreditType != "CE credits" {
		t.Errorf("expected credit type carried over, got %v", c.CreditType)
	}
}
