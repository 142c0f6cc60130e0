package extract

import (
	"strings"
	"testing"
)

func TestExtractTextTitleFromH1(t *testing.T) {
	res := ExtractText(`<html><head><title>Ignored | PESI</title></head>
<body><nav>Home Courses</nav><h1>Ethics 101</h1><p>6.0 CE Hours</p></body></html>`, "https://example.com/c/1")

	if res.Title != "Ethics 101" {
		t.Errorf("expected title 'Ethics 101', got %q", res.Title)
	}
	if strings.Contains(res.FullText, "Home Courses") {
		t.Errorf("navigation should be removed from full text: %q", res.FullText)
	}
	if res.FullText != "Ethics 101 6.0 CE Hours" {
		t.Errorf("unexpected full text %q", res.FullText)
	}
	if res.TitleOffset != 0 {
		t.Errorf("expected title offset 0, got %d", res.TitleOffset)
	}
}

func TestExtractTextTitleFromTitleTag(t *testing.T) {
	res := ExtractText(`<html><head><title>Trauma Care | PESI</title></head><body><p>x</p></body></html>`, "")
	if res.Title != "Trauma Care" {
		t.Errorf("expected site suffix stripped, got %q", res.Title)
	}
}

func TestExtractTextTitleFromOpenGraph(t *testing.T) {
	res := ExtractText(`<html><head><meta property="og:title" content="Grief Work"></head><body></body></html>`, "")
	if res.Title != "Grief Work" {
		t.Errorf("expected og:title fallback, got %q", res.Title)
	}
}

func TestExtractTextDescriptionAsMarkdown(t *testing.T) {
	res := ExtractText(`<html><body><h1>Anxiety Skills</h1>
<div class="course-description"><p>Learn <strong>evidence-based</strong> techniques for treating anxiety.</p></div>
</body></html>`, "")

	if !strings.Contains(res.Description, "**evidence-based**") {
		t.Errorf("expected markdown emphasis in description, got %q", res.Description)
	}
}

func TestExtractTextDescriptionFromMeta(t *testing.T) {
	res := ExtractText(`<html><head><meta name="description" content="A short overview of grief counseling."></head>
<body><h1>Grief</h1></body></html>`, "")
	if res.Description != "A short overview of grief counseling." {
		t.Errorf("unexpected description %q", res.Description)
	}
	if res.MetaDescription != res.Description {
		t.Errorf("expected meta description to be recorded, got %q", res.MetaDescription)
	}
}

func TestExtractTextCategoryFromJSONLD(t *testing.T) {
	res := ExtractText(`<html><head><script type="application/ld+json">
{"@context": "https://schema.org", "@graph": [{"@type": "Course", "name": "DBT", "category": "Mental Health"}]}
</script></head><body><h1>DBT</h1></body></html>`, "")

	if res.Category != "Mental Health" {
		t.Errorf("expected JSON-LD category, got %q", res.Category)
	}
	if len(res.StructuredData["Course"]) != 1 {
		t.Errorf("expected one Course object, got %v", res.StructuredData)
	}
}

func TestExtractTextCategoryFromBreadcrumbs(t *testing.T) {
	res := ExtractText(`<html><body><ol class="breadcrumb"><a href="/">Home</a><a href="/c/nursing">Nursing</a><a href="#">Wound Care</a></ol>
<h1>Wound Care</h1></body></html>`, "")
	if res.Category != "Nursing" {
		t.Errorf("expected breadcrumb category, got %q", res.Category)
	}
}

func TestExtractTextHeadings(t *testing.T) {
	res := ExtractText(`<body><h1>Title</h1><h2>Objectives</h2><h3>ok</h3><h3>Agenda</h3></body>`, "")
	want := []string{"Title", "Objectives", "Agenda"}
	if len(res.Headings) != len(want) {
		t.Fatalf("expected headings %v, got %v", want, res.Headings)
	}
	for i := range want {
		if res.Headings[i] != want[i] {
			t.Errorf("heading %d: expected %q, got %q", i, want[i], res.Headings[i])
		}
	}
}

func TestExtractTextEmpty(t *testing.T) {
	res := ExtractText("", "")
	if res.Title != "" || res.FullText != "" {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("  ﬁve CE\t\thours\x00\n ")
	if got != "five CE hours" {
		t.Errorf("unexpected normalization %q", got)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	got := truncate("héllo", 2)
	if got != "h" {
		t.Errorf("expected cut before multibyte rune, got %q", got)
	}
	if truncate("short", 10) != "short" {
		t.Error("short strings should be unchanged")
	}
}

func TestExtractTextStructuredCandidates(t *testing.T) {
	res := ExtractText(`<html><head><script type="application/ld+json">
{"@type": "Course", "name": "Grief Work",
 "offers": {"@type": "Offer", "price": "149.00", "priceCurrency": "USD"},
 "hasCourseInstance": [{"@type": "CourseInstance", "startDate": "2026-05-12T09:00:00-04:00", "endDate": "2026-05-13"}]}
</script></head><body><h1>Grief Work</h1><p>A two-day workshop.</p></body></html>`, "")

	got := map[string]ExtractedField{}
	for _, c := range res.Candidates {
		got[c.Field] = c
	}
	if p := got[FieldPrice]; p.Number == nil || *p.Number != 149 || p.Value != "USD 149.00" {
		t.Errorf("expected JSON-LD price 149, got %+v", p)
	}
	if got[FieldStartDate].Value != "2026-05-12" || got[FieldEndDate].Value != "2026-05-13" {
		t.Errorf("expected JSON-LD dates, got %+v", res.Candidates)
	}
	for _, c := range res.Candidates {
		if c.Source != SourceText || c.Confidence >= DefaultMinConfidence {
			t.Errorf("expected a low-confidence text candidate, got %+v", c)
		}
	}

	c := NewChain(nil, nil, 0).reconciler.Reconcile(res, nil, nil)
	if c.Price == nil || *c.Price != 149 || c.Sources[FieldPrice] != SourceText {
		t.Errorf("expected the JSON-LD price as a fallback, got %v", c.Price)
	}
	if c.StartDate == nil || c.StartDate.Format("2006-01-02") != "2026-05-12" {
		t.Errorf("expected the JSON-LD start date as a fallback, got %v", c.StartDate)
	}

	patterns := []ExtractedField{{Field: FieldPrice, Value: "$99", Number: num(99), Confidence: 0.85, Source: SourcePattern}}
	if c := Reconcile(res, patterns, nil); c.Price == nil || *c.Price != 99 {
		t.Errorf("expected page evidence to beat JSON-LD, got %v", c.Price)
	}
}
