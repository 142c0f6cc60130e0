package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Database     Database    `yaml:"database"`
	Crawl        CrawlConfig `yaml:"crawl"`
	Providers    []Provider  `yaml:"providers"`
	ProvidersDir string      `yaml:"providers_dir"`
	Extraction   Extraction  `yaml:"extraction"`
	LLM          LLM         `yaml:"llm"`
	Planner      Planner     `yaml:"planner"`
	Output       Output      `yaml:"output"`
	Server       Server      `yaml:"server"`
	Logging      Logging     `yaml:"logging"`
}

type Database struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
}

// CrawlConfig holds crawl defaults applied to providers that leave them unset.
type CrawlConfig struct {
	Delay      time.Duration `yaml:"delay"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxPages   int           `yaml:"max_pages"`
	UserAgent  string        `yaml:"user_agent"`
	ObeyRobots bool          `yaml:"obey_robots"`
}

type Extraction struct {
	Entities      string  `yaml:"entities"` // rules or llm
	MinConfidence float64 `yaml:"min_confidence"`
}

type LLM struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Planner struct {
	CandidatePool int `yaml:"candidate_pool"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for ceucrawler.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "ceucrawler")
}

// DataDir returns the XDG data directory for ceucrawler.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "ceucrawler")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/ceucrawler/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'ceucrawler init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file, then merges provider files from
// providers_dir (relative paths resolve against the config file's directory).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.ProvidersDir != "" {
		dir := cfg.ProvidersDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		fromDir, err := LoadProviderDir(dir)
		if err != nil {
			return nil, err
		}
		cfg.Providers = append(cfg.Providers, fromDir...)
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Database: Database{Driver: "sqlite"},
		Crawl: CrawlConfig{
			Delay:      5 * time.Second,
			Timeout:    30 * time.Second,
			MaxPages:   100,
			UserAgent:  "Mozilla/5.0 (compatible; CEUCrawler/2.0; Educational Research)",
			ObeyRobots: true,
		},
		Extraction: Extraction{
			Entities:      "rules",
			MinConfidence: 0.7,
		},
		LLM: LLM{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
		},
		Planner: Planner{CandidatePool: 50},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(interpolateEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabaseDSN returns the DSN for the configured driver. For SQLite an empty
// DSN means ceucrawler.db inside the data directory.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSNEnv != "" {
		if v := os.Getenv(c.Database.DSNEnv); v != "" {
			return v
		}
	}
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "" || c.Database.Driver == "sqlite" {
		return filepath.Join(c.GetDataDir(), "ceucrawler.db")
	}
	return ""
}

// Provider returns the named provider with crawl defaults applied.
func (c *Config) Provider(name string) (*Provider, error) {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			p := c.Providers[i].withDefaults(c.Crawl)
			return &p, nil
		}
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// ActiveProviders returns every active provider with crawl defaults applied.
func (c *Config) ActiveProviders() []Provider {
	var out []Provider
	for _, p := range c.Providers {
		if p.IsActive() {
			out = append(out, p.withDefaults(c.Crawl))
		}
	}
	return out
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} with environment values.
func interpolateEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envVarPattern.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok {
			return []byte(v)
		}
		return sub[2]
	})
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
