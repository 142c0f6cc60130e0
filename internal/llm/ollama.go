package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Ollama is a local Ollama server.
type Ollama struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewOllama creates an Ollama backend. A nil client gets the default
// request timeout.
func NewOllama(model, baseURL string, client *http.Client) *Ollama {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Ollama{model: model, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (o *Ollama) Name() string { return "ollama/" + o.model }

// Available returns nil when the server answers and has pulled the model.
// Tags are compared without their ":size" suffix.
func (o *Ollama) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Backend: "ollama", Status: resp.StatusCode}
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("ollama: decoding tags: %w", err)
	}
	want, _, _ := strings.Cut(o.model, ":")
	for _, m := range tags.Models {
		have, _, _ := strings.Cut(m.Name, ":")
		if have == want {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q not pulled", o.model)
}

// Complete runs a chat request with format=json and temperature 0.
func (o *Ollama) Complete(ctx context.Context, r Request) (string, error) {
	body := map[string]any{
		"model":    o.model,
		"messages": r.messages(),
		"stream":   false,
		"format":   "json",
		"options": map[string]any{
			"num_predict": r.MaxTokens,
			"temperature": 0,
		},
	}
	var out struct {
		Message message `json:"message"`
	}
	if err := postJSON(ctx, o.client, "ollama", o.baseURL+"/api/chat", nil, body, &out); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}
