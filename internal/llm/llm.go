// Package llm talks to chat-completion backends in JSON mode. It is used by
// the extraction chain for model-based entity recognition.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
)

// Request is one JSON-mode completion. System carries the instructions and
// Prompt the page text.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Provider completes requests against one backend. Complete returns the raw
// completion text, which should hold a single JSON object.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// APIError is a non-200 answer from a backend.
type APIError struct {
	Backend string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API returned %d: %s", e.Backend, e.Status, e.Body)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

const (
	requestTimeout = 120 * time.Second
	probeTimeout   = 5 * time.Second
	maxErrorBody   = 4096
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r Request) messages() []message {
	var msgs []message
	if r.System != "" {
		msgs = append(msgs, message{Role: "system", Content: r.System})
	}
	return append(msgs, message{Role: "user", Content: r.Prompt})
}

func postJSON(ctx context.Context, client *http.Client, backend, url string, header http.Header, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", backend, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Backend: backend, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", backend, err)
	}
	return nil
}

// CreateProvider picks a backend from the config. Ollama is used when it is
// configured, reachable and has the model; otherwise OpenAI when its key is
// set. Returns nil when neither is usable, which callers treat as "use the
// rules".
func CreateProvider(cfg config.LLM, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm")

	if strings.EqualFold(cfg.Provider, "ollama") {
		o := NewOllama(cfg.Model, cfg.OllamaURL, nil)
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := o.Available(ctx)
		cancel()
		if err == nil {
			logger.Info("using ollama", "model", cfg.Model)
			return o
		}
		logger.Warn("ollama unavailable, trying openai", "error", err)
	}

	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		logger.Info("using openai", "model", cfg.OpenAIModel)
		return NewOpenAI(cfg.OpenAIModel, key, "")
	}

	logger.Warn("no LLM backend available, entity recognition falls back to rules",
		"hint", "start Ollama or set "+cfg.APIKeyEnv)
	return nil
}
