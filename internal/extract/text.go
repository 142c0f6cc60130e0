// Package extract turns captured course pages into structured course fields.
//
// Three extractors produce candidates: ExtractText (structural HTML),
// PatternExtractor (domain regexes) and EntityExtractor (named entities).
// Reconcile merges their candidates into one value per field.
package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// TextResult holds the structural candidates of one page.
type TextResult struct {
	Title           string
	Description     string
	MetaDescription string
	Category        string
	Headings        []string
	FullText        string
	TitleOffset     int
	StructuredData  map[string][]map[string]any // JSON-LD objects by @type

	// Candidates holds low-confidence price and date values read from
	// JSON-LD. They only win when no pattern or entity evidence exists.
	Candidates []ExtractedField
}

const maxDescriptionLen = 2000

var noiseSelectors = "script, style, nav, footer, header, aside, noscript, iframe, svg, form"

var descriptionSelectors = []string{
	".productDescription",
	".product-description",
	".description",
	".course-description",
	".overview",
	".summary",
	".about",
	"[itemprop=description]",
}

var titleSuffix = regexp.MustCompile(`\s*[|–-]\s*[^|–-]+$`)

var markdownConverter = md.NewConverter("", true, nil)

// ExtractText parses HTML structurally and returns title, description,
// headings and normalized full text. Malformed HTML yields whatever could be
// recovered; it never fails.
func ExtractText(rawHTML, pageURL string) TextResult {
	res := TextResult{StructuredData: make(map[string][]map[string]any)}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return res
	}

	collectJSONLD(doc, res.StructuredData)

	res.MetaDescription = normalizeText(attr(doc, `meta[name="description"]`, "content"))
	if res.MetaDescription == "" {
		res.MetaDescription = normalizeText(attr(doc, `meta[property="og:description"]`, "content"))
	}
	ogTitle := normalizeText(attr(doc, `meta[property="og:title"]`, "content"))
	pageTitle := normalizeText(doc.Find("title").First().Text())
	h1 := normalizeText(blockText(doc.Find("h1").First()))
	res.Category = findCategory(doc, res.StructuredData)

	doc.Find(noiseSelectors).Remove()

	switch {
	case h1 != "":
		res.Title = h1
	case pageTitle != "":
		res.Title = strings.TrimSpace(titleSuffix.ReplaceAllString(pageTitle, ""))
		if res.Title == "" {
			res.Title = pageTitle
		}
	default:
		res.Title = ogTitle
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if t := normalizeText(blockText(s)); len(t) > 2 {
			res.Headings = append(res.Headings, t)
		}
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	res.FullText = normalizeText(blockText(body))
	res.TitleOffset = max(0, strings.Index(res.FullText, res.Title))

	res.Description = findDescription(doc, res.MetaDescription, rawHTML, pageURL)
	res.Candidates = structuredCandidates(res.StructuredData, res.TitleOffset)
	return res
}

func findDescription(doc *goquery.Document, meta, rawHTML, pageURL string) string {
	for _, sel := range descriptionSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(normalizeText(blockText(s))) <= 20 {
				return true
			}
			found = toMarkdown(s)
			return found == ""
		})
		if found != "" {
			return truncate(found, maxDescriptionLen)
		}
	}

	var paras []string
	doc.Find(".content p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := normalizeText(blockText(s)); len(t) > 20 {
			paras = append(paras, t)
		}
		return len(paras) < 3
	})
	if len(paras) > 0 {
		return truncate(strings.Join(paras, "\n\n"), maxDescriptionLen)
	}

	if meta != "" {
		return truncate(meta, maxDescriptionLen)
	}

	var first string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := normalizeText(blockText(s)); len(t) > 100 {
			first = t
			return false
		}
		return true
	})
	if first != "" {
		return truncate(first, maxDescriptionLen)
	}

	return readabilityExcerpt(rawHTML, pageURL)
}

// readabilityExcerpt falls back to the main-content text readability finds.
func readabilityExcerpt(rawHTML, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u == nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return ""
	}
	text := normalizeText(article.TextContent)
	if len(text) < 100 {
		return ""
	}
	return truncate(text, 300)
}

func toMarkdown(s *goquery.Selection) string {
	outer, err := goquery.OuterHtml(s)
	if err != nil {
		return normalizeText(blockText(s))
	}
	out, err := markdownConverter.ConvertString(outer)
	if err != nil {
		return normalizeText(blockText(s))
	}
	return strings.TrimSpace(norm.NFKC.String(out))
}

func findCategory(doc *goquery.Document, ld map[string][]map[string]any) string {
	for _, typ := range []string{"Course", "Product", "Event"} {
		for _, obj := range ld[typ] {
			if c, ok := obj["category"].(string); ok && strings.TrimSpace(c) != "" {
				return normalizeText(c)
			}
		}
	}

	var crumbs []string
	doc.Find(".breadcrumb a, .breadcrumbs a, nav[aria-label=breadcrumb] a, [itemtype$=BreadcrumbList] a").
		Each(func(_ int, s *goquery.Selection) {
			if t := normalizeText(s.Text()); t != "" {
				crumbs = append(crumbs, t)
			}
		})
	// The last crumb is usually the page itself, the first is "Home".
	if len(crumbs) >= 3 {
		return crumbs[len(crumbs)-2]
	}
	if len(crumbs) == 2 && !strings.EqualFold(crumbs[0], "home") {
		return crumbs[0]
	}
	return ""
}

func collectJSONLD(doc *goquery.Document, out map[string][]map[string]any) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		addJSONLD(v, out)
	})
}

func addJSONLD(v any, out map[string][]map[string]any) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			addJSONLD(item, out)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			addJSONLD(graph, out)
		}
		switch typ := t["@type"].(type) {
		case string:
			out[typ] = append(out[typ], t)
		case []any:
			for _, name := range typ {
				if s, ok := name.(string); ok {
					out[s] = append(out[s], t)
				}
			}
		}
	}
}

const structuredConfidence = 0.6

var structuredTypes = []string{"Course", "CourseInstance", "Product", "Event", "EducationEvent"}

// structuredCandidates reads offers.price, startDate and endDate from
// course-like JSON-LD objects, including a Course's hasCourseInstance.
func structuredCandidates(data map[string][]map[string]any, offset int) []ExtractedField {
	var out []ExtractedField
	add := func(field, value string, number *float64) {
		out = append(out, ExtractedField{
			Field:      field,
			Value:      value,
			Number:     number,
			Confidence: structuredConfidence,
			Source:     SourceText,
			Offset:     offset,
			Detail:     "json-ld",
		})
	}
	var visit func(obj map[string]any)
	visit = func(obj map[string]any) {
		for _, offer := range objects(obj["offers"]) {
			raw := scalar(offer["price"])
			if n := parseNumber(raw); n != nil && *n >= 0 && *n <= maxPrice {
				value := raw
				if cur := scalar(offer["priceCurrency"]); cur != "" {
					value = cur + " " + raw
				}
				add(FieldPrice, value, n)
			}
		}
		for key, field := range map[string]string{"startDate": FieldStartDate, "endDate": FieldEndDate} {
			if iso := parseDate(scalar(obj[key])); iso != "" {
				add(field, iso, nil)
			}
		}
		for _, inst := range objects(obj["hasCourseInstance"]) {
			visit(inst)
		}
	}
	for _, typ := range structuredTypes {
		for _, obj := range data[typ] {
			visit(obj)
		}
	}
	return out
}

// objects returns v as a list of JSON objects, whether it holds one or many.
func objects(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return v
}

var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "figcaption": true, "figure": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "hr": true, "li": true,
	"main": true, "ol": true, "p": true, "pre": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// blockText returns the text of a selection with line breaks between block
// elements, so adjacent headings and paragraphs do not run together.
func blockText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

var whitespace = regexp.MustCompile(`\s+`)

// normalizeText applies NFKC, drops control characters and collapses
// whitespace to single spaces.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
