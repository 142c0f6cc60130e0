package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Providers) == 0 {
		t.Error("expected providers to be populated")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected driver 'sqlite', got %q", cfg.Database.Driver)
	}
	if cfg.Crawl.Delay != 5*time.Second {
		t.Errorf("expected crawl delay 5s, got %v", cfg.Crawl.Delay)
	}
	if cfg.LLM.Model != "qwen2.5:7b" {
		t.Errorf("expected model 'qwen2.5:7b', got %q", cfg.LLM.Model)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if problems := cfg.Validate(); len(problems) != 0 {
		t.Errorf("default config should validate, got %v", problems)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: openai
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.Crawl.MaxPages != 100 {
		t.Errorf("expected default max_pages 100, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Planner.CandidatePool != 50 {
		t.Errorf("expected candidate pool 50, got %d", cfg.Planner.CandidatePool)
	}
}

func TestEnvInterpolation(t *testing.T) {
	t.Setenv("CEU_TEST_PORT", "9100")
	data := []byte(`
server:
  port: ${CEU_TEST_PORT}
llm:
  ollama_url: ${CEU_TEST_UNSET_URL:-http://gpu-box:11434}
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port from env, got %d", cfg.Server.Port)
	}
	if cfg.LLM.OllamaURL != "http://gpu-box:11434" {
		t.Errorf("expected fallback URL, got %q", cfg.LLM.OllamaURL)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Providers) == 0 {
		t.Error("expected providers to be populated from file")
	}
}

func TestLoadMergesProviderDir(t *testing.T) {
	dir := t.TempDir()
	provDir := filepath.Join(dir, "providers")
	if err := os.Mkdir(provDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "config.yaml"), "providers_dir: providers\n")
	writeFile(t, filepath.Join(provDir, "netce.yaml"), `
start_urls:
  - https://www.netce.com/courses
detail_patterns:
  - "/course/"
delay: 2s
`)
	writeFile(t, filepath.Join(provDir, "_draft.yaml"), "start_urls: [https://draft.example]\n")
	writeFile(t, filepath.Join(provDir, "notes.txt"), "ignored")

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(cfg.Providers))
	}

	p, err := cfg.Provider("netce")
	if err != nil {
		t.Fatalf("provider lookup: %v", err)
	}
	if p.Delay != 2*time.Second {
		t.Errorf("expected delay 2s, got %v", p.Delay)
	}
	if p.MaxPages != 100 {
		t.Errorf("expected max_pages default 100, got %d", p.MaxPages)
	}
	if p.BaseURL != "https://www.netce.com" {
		t.Errorf("expected base URL derived from start URL, got %q", p.BaseURL)
	}
	if !p.ShouldObeyRobots() {
		t.Error("expected robots.txt to be obeyed by default")
	}
}

func TestActiveProviders(t *testing.T) {
	off := false
	cfg := &Config{Providers: []Provider{
		{Name: "a", StartURLs: []string{"https://a.example"}},
		{Name: "b", StartURLs: []string{"https://b.example"}, Active: &off},
	}}
	active := cfg.ActiveProviders()
	if len(active) != 1 || active[0].Name != "a" {
		t.Errorf("expected only provider a, got %+v", active)
	}
	if _, err := cfg.Provider("missing"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestValidateProviderYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", "name: pesi\nstart_urls: [https://www.pesi.com]\ndelay: 3s\n", ""},
		{"no urls", "name: pesi\n", "/"},
		{"bad url", "start_urls: [ftp://x.example]\n", "/start_urls/0"},
		{"unknown key", "start_urls: [https://x.example]\nselectors: {}\n", "selectors"},
		{"bad delay", "start_urls: [https://x.example]\ndelay: soon\n", "/delay"},
		{"bad max pages", "start_urls: [https://x.example]\nmax_pages: 0\n", "/max_pages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems, err := ValidateProviderYAML([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if tt.wantErr == "" {
				if len(problems) != 0 {
					t.Errorf("expected valid, got %v", problems)
				}
				return
			}
			if len(problems) == 0 {
				t.Fatal("expected problems, got none")
			}
			if !strings.Contains(strings.Join(problems, "\n"), tt.wantErr) {
				t.Errorf("expected a problem mentioning %q, got %v", tt.wantErr, problems)
			}
		})
	}
}

func TestValidateProviderRoundTrip(t *testing.T) {
	obey := true
	p := Provider{
		Name:           "pesi",
		StartURLs:      []string{"https://www.pesi.com/store"},
		DetailPatterns: []string{"/store/detail/"},
		Delay:          1500 * time.Millisecond,
		ObeyRobots:     &obey,
	}
	problems, err := ValidateProvider(p)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("expected valid provider, got %v", problems)
	}
}

func TestProviderSemanticValidation(t *testing.T) {
	p := Provider{
		Name:         "broken",
		StartURLs:    []string{"not a url"},
		SkipPatterns: []string{"("},
	}
	problems := p.Validate()
	if len(problems) != 2 {
		t.Errorf("expected 2 problems, got %v", problems)
	}

	cfg := &Config{
		Providers: []Provider{
			{Name: "x", StartURLs: []string{"https://x.example"}},
			{Name: "x", StartURLs: []string{"https://x.example"}},
		},
		Database: Database{Driver: "mysql"},
	}
	all := cfg.Validate()
	if len(all) != 2 {
		t.Errorf("expected duplicate and driver problems, got %v", all)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{Output: Output{DataDir: "/data"}}
	if got := cfg.DatabaseDSN(); got != filepath.Join("/data", "ceucrawler.db") {
		t.Errorf("expected sqlite path in data dir, got %q", got)
	}

	t.Setenv("CEU_TEST_DSN", "postgres://u@localhost/ceu")
	cfg.Database = Database{Driver: "postgres", DSNEnv: "CEU_TEST_DSN"}
	if got := cfg.DatabaseDSN(); got != "postgres://u@localhost/ceu" {
		t.Errorf("expected DSN from env, got %q", got)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
