// Package config provides YAML configuration for the ihtml CLI.
//
// Example configuration:
//
//	title: Shop preview
//	port: 8080
//	settle_timeout: 30s
//	reveal_all: true
//	headers:
//	  Authorization: "Bearer ${SHOP_TOKEN}"
//
//	pages:
//	  - name: home
//	    url: ${SHOP_URL:-http://localhost:3000}/
//	    overrides:
//	      "#cart":
//	        src: /fragments/cart?debug=1
//	        loading: eager
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/ihtml"
)

const (
	defaultPort          = 8080
	defaultSettleTimeout = 30 * time.Second
	defaultRefreshUnit   = time.Second
)

// overridable lists the element attributes an override may set.
var overridable = map[string]bool{
	ihtml.AttrSrc:         true,
	ihtml.AttrAccept:      true,
	ihtml.AttrTarget:      true,
	ihtml.AttrInsert:      true,
	ihtml.AttrLoading:     true,
	ihtml.AttrAllow:       true,
	ihtml.AttrCredentials: true,
}

// Config is the root configuration structure.
//
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the inspector title. Defaults to "ihtml preview".
	Title string `yaml:"title"`

	// Port is the preview server port. Defaults to 8080.
	Port int `yaml:"port"`

	// SettleTimeout bounds how long a page may take to finish loading its
	// includes. Defaults to 30s.
	SettleTimeout Duration `yaml:"settle_timeout"`

	// RevealAll makes lazy elements load without visibility reports.
	RevealAll bool `yaml:"reveal_all"`

	// RefreshUnit is the length of one refresh delay unit. Defaults to 1s.
	RefreshUnit Duration `yaml:"refresh_unit"`

	// MaxBodySize limits response bodies in bytes. Zero uses the library default.
	MaxBodySize int64 `yaml:"max_body_size"`

	// Headers are sent with every request of every page.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Pages lists the pages to render or preview.
	Pages []PageConfig `yaml:"pages"`
}

// PageConfig defines one page.
type PageConfig struct {
	// Name identifies the page in logs and on the command line.
	// Defaults to the URL.
	Name string `yaml:"name"`

	// URL is the page URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Headers are sent with this page's requests, on top of the global ones.
	Headers map[string]string `yaml:"headers"`

	// Overrides maps a CSS selector to attributes set on every matching
	// i-html element before it first loads.
	Overrides map[string]map[string]string `yaml:"overrides"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in page URLs, override values and
// header values. Defaults are applied for Port, SettleTimeout and RefreshUnit.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	if len(cfg.Pages) == 0 {
		return nil, errors.New("at least one page must be defined")
	}
	return &cfg, nil
}

// Default returns a configuration with defaults applied for the given page
// URLs, as used when the CLI runs without a config file.
func Default(urls ...string) (*Config, error) {
	cfg := &Config{}
	for _, u := range urls {
		cfg.Pages = append(cfg.Pages, PageConfig{URL: u})
	}
	cfg.applyDefaults()
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Page returns the page whose name (or URL) is name. An empty name selects
// the first page.
func (c *Config) Page(name string) (PageConfig, error) {
	if len(c.Pages) == 0 {
		return PageConfig{}, errors.New("no pages configured")
	}
	if name == "" {
		return c.Pages[0], nil
	}
	for _, p := range c.Pages {
		if p.Name == name || p.URL == name {
			return p, nil
		}
	}
	return PageConfig{}, fmt.Errorf("page %q not found", name)
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.SettleTimeout == 0 {
		c.SettleTimeout = Duration(defaultSettleTimeout)
	}
	if c.RefreshUnit == 0 {
		c.RefreshUnit = Duration(defaultRefreshUnit)
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.SettleTimeout.Duration() < 0 {
		return fmt.Errorf("settle_timeout cannot be negative, got %s", c.SettleTimeout.Duration())
	}
	if c.RefreshUnit.Duration() < time.Millisecond {
		return fmt.Errorf("refresh_unit must be at least 1ms, got %s", c.RefreshUnit.Duration())
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max_body_size cannot be negative, got %d", c.MaxBodySize)
	}
	if err := expandHeaders(c.Headers, "headers"); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Pages))
	for i := range c.Pages {
		p := &c.Pages[i]

		if p.URL == "" {
			return fmt.Errorf("pages[%d]: url is required", i)
		}
		expanded, err := expandEnvVars(p.URL)
		if err != nil {
			return fmt.Errorf("pages[%d]: url: %w", i, err)
		}
		p.URL = expanded
		if p.Name == "" {
			p.Name = p.URL
		}

		parsedURL, err := url.Parse(p.URL)
		if err != nil {
			return fmt.Errorf("pages[%d] (%s): invalid url: %w", i, p.Name, err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("pages[%d] (%s): url scheme must be http or https, got %q", i, p.Name, parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("pages[%d] (%s): url must have a host", i, p.Name)
		}

		if seen[p.Name] {
			return fmt.Errorf("pages[%d]: duplicate page name %q", i, p.Name)
		}
		seen[p.Name] = true

		if err := expandHeaders(p.Headers, fmt.Sprintf("pages[%d] (%s): headers", i, p.Name)); err != nil {
			return err
		}

		for selector, attrs := range p.Overrides {
			where := fmt.Sprintf("pages[%d] (%s): overrides[%s]", i, p.Name, selector)
			if _, err := cascadia.Compile(selector); err != nil {
				return fmt.Errorf("%s: invalid selector: %w", where, err)
			}
			if len(attrs) == 0 {
				return fmt.Errorf("%s: at least one attribute is required", where)
			}
			for name, value := range attrs {
				if !overridable[strings.ToLower(name)] {
					return fmt.Errorf("%s: unknown attribute %q", where, name)
				}
				expanded, err := expandEnvVars(value)
				if err != nil {
					return fmt.Errorf("%s: %s: %w", where, name, err)
				}
				attrs[name] = expanded
			}
		}
	}

	return nil
}

func expandHeaders(headers map[string]string, where string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s[%s]: %w", where, k, err)
		}
		headers[k] = expanded
	}
	return nil
}
