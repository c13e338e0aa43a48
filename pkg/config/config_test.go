package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "crm-e2e.yaml")
	writeFile(t, configPath, `
features:
  - features
tags: "@smoke"
excludeTags:
  - wip
environment: preprod
configDir: env-config
env:
  REGION: north
platform: web
browser: playwright
headless: true
findTimeout: 15s
pollInterval: 2
capabilities:
  goog:chromeOptions:
    args: ["--headless=new"]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Features) != 1 || cfg.Features[0] != "features" {
		t.Errorf("Features = %v", cfg.Features)
	}
	if cfg.Tags != "@smoke" {
		t.Errorf("Tags = %q", cfg.Tags)
	}
	if cfg.Environment != "preprod" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.ConfigDir != filepath.Join(dir, "env-config") {
		t.Errorf("ConfigDir = %q, want it resolved against the config file", cfg.ConfigDir)
	}
	if cfg.Env["REGION"] != "north" {
		t.Errorf("Env = %v", cfg.Env)
	}
	if !cfg.Headless || cfg.Browser != "playwright" {
		t.Errorf("Browser = %q Headless = %v", cfg.Browser, cfg.Headless)
	}
	if cfg.FindTimeout.Or(0) != 15*time.Second {
		t.Errorf("FindTimeout = %v", time.Duration(cfg.FindTimeout))
	}
	if cfg.PollInterval.Or(0) != 2*time.Second {
		t.Errorf("PollInterval = %v", time.Duration(cfg.PollInterval))
	}
	if _, ok := cfg.Capabilities["goog:chromeOptions"]; !ok {
		t.Errorf("Capabilities = %v", cfg.Capabilities)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm-e2e.yaml")
	writeFile(t, path, "findTimeout: soon\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/crm-e2e.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFromDir(dir)
	if err != nil || cfg == nil {
		t.Fatalf("LoadFromDir(empty) = %v, %v", cfg, err)
	}

	writeFile(t, filepath.Join(dir, "config.yml"), "platform: android\n")
	cfg, err = LoadFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "android" {
		t.Errorf("Platform = %q, want android from config.yml", cfg.Platform)
	}

	writeFile(t, filepath.Join(dir, "crm-e2e.yaml"), "platform: ios\n")
	cfg, _ = LoadFromDir(dir)
	if cfg.Platform != "ios" {
		t.Errorf("Platform = %q, crm-e2e.yaml should win", cfg.Platform)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Platform != "web" || cfg.Browser != "selenium" || cfg.BrowserName != "chrome" {
		t.Errorf("session defaults = %q %q %q", cfg.Platform, cfg.Browser, cfg.BrowserName)
	}
	if cfg.SeleniumURL != DefaultSeleniumURL || cfg.AppiumURL != DefaultAppiumURL {
		t.Errorf("URL defaults = %q %q", cfg.SeleniumURL, cfg.AppiumURL)
	}
	if cfg.ConfigDir != DefaultConfigDir || cfg.Concurrency != 1 || cfg.Env == nil {
		t.Errorf("defaults = %+v", cfg)
	}
	if got := cfg.PollTimeout.Or(DefaultPollTimeout); got != DefaultPollTimeout {
		t.Errorf("PollTimeout.Or = %v", got)
	}
}
