package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const defaultOpenAIURL = "https://api.openai.com/v1"

// ErrNoAPIKey is returned by OpenAI.Complete when no key was configured.
var ErrNoAPIKey = errors.New("openai: API key not configured")

// OpenAI is any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates an OpenAI backend. An empty baseURL means the public API.
func NewOpenAI(model, apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAI{
		model:   model,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (o *OpenAI) Name() string { return "openai/" + o.model }

// Complete runs a chat completion with response_format json_object.
func (o *OpenAI) Complete(ctx context.Context, r Request) (string, error) {
	if o.apiKey == "" {
		return "", ErrNoAPIKey
	}
	body := map[string]any{
		"model":           o.model,
		"messages":        r.messages(),
		"max_tokens":      r.MaxTokens,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}
	var out struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	header := http.Header{"Authorization": {"Bearer " + o.apiKey}}
	if err := postJSON(ctx, o.client, "openai", o.baseURL+"/chat/completions", header, body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}
