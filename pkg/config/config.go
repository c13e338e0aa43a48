// Package config loads the workspace configuration (crm-e2e.yaml) and the
// per-environment property files the suite runs against.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Workspace config file names, tried in order.
var configFileNames = []string{"crm-e2e.yaml", "crm-e2e.yml", "config.yaml", "config.yml"}

// Config represents the workspace configuration.
type Config struct {
	// Scenario selection
	Features    []string `yaml:"features"`    // Feature files or directories
	Tags        string   `yaml:"tags"`        // Tag expression, e.g. "@smoke && ~@wip"
	IncludeTags []string `yaml:"includeTags"` // Tags to include (OR)
	ExcludeTags []string `yaml:"excludeTags"` // Tags to exclude

	// Target environment
	Environment string            `yaml:"environment"` // QA, PreProd, Production
	ConfigDir   string            `yaml:"configDir"`   // Holds <environment>/*.properties
	Env         map[string]string `yaml:"env"`         // Variables for ${...} expansion
	AllowWrites bool              `yaml:"allowWrites"` // Permit data-changing steps on Production
	TestData    string            `yaml:"testData"`    // Default Excel workbook

	// UI session
	Platform     string                 `yaml:"platform"`    // web, android, ios
	Browser      string                 `yaml:"browser"`     // selenium, playwright
	BrowserName  string                 `yaml:"browserName"` // chrome, firefox
	SeleniumURL  string                 `yaml:"seleniumURL"`
	AppiumURL    string                 `yaml:"appiumURL"`
	Headless     bool                   `yaml:"headless"`
	Capabilities map[string]interface{} `yaml:"capabilities"`

	// Execution
	Concurrency  int      `yaml:"concurrency"`
	Artifacts    string   `yaml:"artifacts"` // on-failure, always, never
	FindTimeout  Duration `yaml:"findTimeout"`
	PollInterval Duration `yaml:"pollInterval"`
	PollTimeout  Duration `yaml:"pollTimeout"`
}

// Duration accepts Go duration strings ("10s") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs float64
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
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

// Or returns d, or def when d is zero.
func (d Duration) Or(def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return time.Duration(d)
}

// Defaults used when the workspace config leaves a field empty.
const (
	DefaultFindTimeout  = 10 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 2 * time.Minute
	DefaultConfigDir    = "config"
	DefaultSeleniumURL  = "http://localhost:4444/wd/hub"
	DefaultAppiumURL    = "http://127.0.0.1:4723"
)

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Relative config dir is resolved against the config file's directory.
	if cfg.ConfigDir != "" && !filepath.IsAbs(cfg.ConfigDir) {
		cfg.ConfigDir = filepath.Join(filepath.Dir(path), cfg.ConfigDir)
	}
	if cfg.TestData != "" && !filepath.IsAbs(cfg.TestData) {
		cfg.TestData = filepath.Join(filepath.Dir(path), cfg.TestData)
	}
	return &cfg, nil
}

// LoadFromDir looks for a workspace config file in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range configFileNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return empty config
	return &Config{}, nil
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Platform == "" {
		c.Platform = "web"
	}
	if c.Browser == "" {
		c.Browser = "selenium"
	}
	if c.BrowserName == "" {
		c.BrowserName = "chrome"
	}
	if c.SeleniumURL == "" {
		c.SeleniumURL = DefaultSeleniumURL
	}
	if c.AppiumURL == "" {
		c.AppiumURL = DefaultAppiumURL
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Env == nil {
		c.Env = map[string]string{}
	}
}
