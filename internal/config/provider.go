package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed provider.schema.json
var providerSchemaJSON []byte

// Provider describes one CE course site to crawl.
type Provider struct {
	Name            string        `yaml:"name,omitempty"`
	DisplayName     string        `yaml:"display_name,omitempty"`
	Active          *bool         `yaml:"active,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	StartURLs       []string      `yaml:"start_urls,omitempty"`
	FeedURLs        []string      `yaml:"feed_urls,omitempty"`
	LinkSelectors   []string      `yaml:"link_selectors,omitempty"`
	ListingPatterns []string      `yaml:"listing_patterns,omitempty"`
	DetailPatterns  []string      `yaml:"detail_patterns,omitempty"`
	SkipPatterns    []string      `yaml:"skip_patterns,omitempty"`
	MaxPages        int           `yaml:"max_pages,omitempty"`
	Delay           time.Duration `yaml:"delay,omitempty"`
	ObeyRobots      *bool         `yaml:"obey_robots,omitempty"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
}

// IsActive reports whether the provider is crawled by "crawl all".
// Providers without an explicit active flag are active.
func (p Provider) IsActive() bool {
	return p.Active == nil || *p.Active
}

// ShouldObeyRobots reports whether robots.txt is honored for this provider.
func (p Provider) ShouldObeyRobots() bool {
	return p.ObeyRobots == nil || *p.ObeyRobots
}

// Label returns the display name, falling back to the provider key.
func (p Provider) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func (p Provider) withDefaults(d CrawlConfig) Provider {
	if p.MaxPages <= 0 {
		p.MaxPages = d.MaxPages
	}
	if p.Delay <= 0 {
		p.Delay = d.Delay
	}
	if p.UserAgent == "" {
		p.UserAgent = d.UserAgent
	}
	if p.ObeyRobots == nil {
		obey := d.ObeyRobots
		p.ObeyRobots = &obey
	}
	if p.BaseURL == "" && len(p.StartURLs) > 0 {
		if u, err := url.Parse(p.StartURLs[0]); err == nil && u.Host != "" {
			p.BaseURL = u.Scheme + "://" + u.Host
		}
	}
	return p
}

// LoadProviderDir loads one provider per *.yaml / *.yml file in dir, sorted
// by filename. Files whose names start with "_" are ignored. A provider
// without a name takes the file stem.
func LoadProviderDir(dir string) ([]Provider, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading providers dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading provider %s: %w", name, err)
		}
		var p Provider
		if err := yaml.Unmarshal(interpolateEnv(data), &p); err != nil {
			return nil, fmt.Errorf("parsing provider %s: %w", name, err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// ValidateProviderYAML checks raw provider YAML against the provider schema
// and returns one message per problem. An empty result means valid.
func ValidateProviderYAML(data []byte) ([]string, error) {
	schema, err := compileProviderSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := yaml.Unmarshal(interpolateEnv(data), &raw); err != nil {
		return []string{fmt.Sprintf("invalid YAML: %v", err)}, nil
	}
	doc, err := toJSONValue(raw)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return nil, fmt.Errorf("validating provider: %w", err)
		}
		return flattenValidationError(verr), nil
	}
	return nil, nil
}

// ValidateProvider checks an already-loaded provider against the schema.
func ValidateProvider(p Provider) ([]string, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding provider %s: %w", p.Name, err)
	}
	return ValidateProviderYAML(data)
}

// Validate performs semantic checks the schema cannot express: URL shapes,
// pattern compilation and duplicate names.
func (c *Config) Validate() []string {
	var problems []string
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if p.Name == "" {
			problems = append(problems, "provider without a name")
			continue
		}
		if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate provider name", p.Name))
		}
		seen[p.Name] = true
		for _, msg := range p.Validate() {
			problems = append(problems, p.Name+": "+msg)
		}
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("database: unsupported driver %q", c.Database.Driver))
	}
	switch c.Extraction.Entities {
	case "", "rules", "llm":
	default:
		problems = append(problems, fmt.Sprintf("extraction: unknown entities backend %q", c.Extraction.Entities))
	}
	return problems
}

// Validate checks a single provider definition.
func (p Provider) Validate() []string {
	var problems []string
	if len(p.StartURLs) == 0 && len(p.FeedURLs) == 0 {
		problems = append(problems, "needs at least one start_url or feed_url")
	}
	for _, raw := range append(append([]string{}, p.StartURLs...), p.FeedURLs...) {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("invalid URL %q", raw))
		}
	}
	for _, group := range [][]string{p.ListingPatterns, p.DetailPatterns, p.SkipPatterns} {
		for _, pat := range group {
			if _, err := regexp.Compile(pat); err != nil {
				problems = append(problems, fmt.Sprintf("bad pattern %q: %v", pat, err))
			}
		}
	}
	if p.MaxPages < 0 {
		problems = append(problems, "max_pages must not be negative")
	}
	return problems
}

func compileProviderSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("provider.schema.json", bytes.NewReader(providerSchemaJSON)); err != nil {
		return nil, fmt.Errorf("loading provider schema: %w", err)
	}
	schema, err := c.Compile("provider.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling provider schema: %w", err)
	}
	return schema, nil
}

// toJSONValue round-trips a YAML value through encoding/json so numbers and
// maps take the shapes the schema validator expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("converting provider YAML: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("converting provider YAML: %w", err)
	}
	return out, nil
}

func flattenValidationError(e *jsonschema.ValidationError) []string {
	if len(e.Causes) == 0 {
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + e.Message}
	}
	var out []string
	for _, cause := range e.Causes {
		out = append(out, flattenValidationError(cause)...)
	}
	return out
}
