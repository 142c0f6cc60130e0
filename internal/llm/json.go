package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when the model produced no JSON object.
var ErrEmptyResponse = errors.New("empty LLM response")

// DecodeObject decodes the JSON object in a completion into v. Models in
// JSON mode still sometimes wrap the object in a markdown fence or a line of
// prose, so decoding starts at the first "{" and ends at the last "}".
func DecodeObject(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		if blank(text) {
			return ErrEmptyResponse
		}
		return fmt.Errorf("no JSON object in LLM response: %.80q", text)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("parsing LLM response as JSON: %w", err)
	}
	return nil
}

// blank reports whether text is empty apart from whitespace and fences.
func blank(text string) bool {
	return strings.Trim(strings.ReplaceAll(text, "json", ""), " \t\r\n`") == ""
}
