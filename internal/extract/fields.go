package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Source identifies which extractor produced a candidate.
type Source string

const (
	SourcePattern Source = "pattern"
	SourceNER     Source = "ner"
	SourceText    Source = "text"
)

// Field names used for candidates.
const (
	FieldTitle                = "title"
	FieldDescription          = "description"
	FieldCategory             = "category"
	FieldCredits              = "credits"
	FieldPrice                = "price"
	FieldCourseType           = "courseType"
	FieldProfessional         = "professionalField"
	FieldDuration             = "duration"
	FieldStartDate            = "startDate"
	FieldEndDate              = "endDate"
	FieldRegistrationDeadline = "registrationDeadline"
	FieldInstructors          = "instructors"
	FieldAccreditations       = "accreditations"
	FieldMoney                = "money"
)

// ExtractedField is one candidate value for a course field.
type ExtractedField struct {
	Field      string
	Value      string   // matched text, or the normalized value for enums and dates
	Number     *float64 // parsed numeric value; nil when absent or unparseable
	Confidence float64
	Source     Source
	Offset     int    // byte offset of the match in the page text
	Detail     string // rule label, e.g. the credit type
}

// rank orders candidates best first: highest confidence, then closest to the
// title, then lowest numeric value.
func rank(cands []ExtractedField, titleOffset int) []ExtractedField {
	out := append([]ExtractedField(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		da, db := distance(a.Offset, titleOffset), distance(b.Offset, titleOffset)
		if da != db {
			return da < db
		}
		if a.Number != nil && b.Number != nil {
			return *a.Number < *b.Number
		}
		return false
	})
	return out
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func byField(cands []ExtractedField, field string) []ExtractedField {
	var out []ExtractedField
	for _, c := range cands {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// parseNumber parses "1,299.00"-style numbers. It returns nil instead of an
// error so malformed page text simply yields no value.
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

var monthDayYear = regexp.MustCompile(`^([A-Za-z]{3})[A-Za-z]*\s+(\d{1,2}),?\s+(\d{4})$`)

// parseDate parses a human-written date, returning "" when it cannot.
func parseDate(s string) string {
	s = ordinalSuffix.ReplaceAllString(strings.TrimSpace(s), "$1")
	s = strings.Replace(s, ".", "", 1)
	s = monthDayYear.ReplaceAllString(s, "$1 $2, $3")
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
