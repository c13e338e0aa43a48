// Package cli provides the command-line interface for crm-e2e.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/crm-e2e/pkg/config"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the workspace config (default: ./crm-e2e.yaml when present)",
		EnvVars: []string{"CRM_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "environment",
		Usage: "Target environment (QA, PreProd, Production); falls back to $CRM_ENVIRONMENT, $environment, the config, then QA",
	},
	&cli.StringFlag{
		Name:    "platform",
		Aliases: []string{"p"},
		Usage:   "Platform to run on (web, android, ios)",
		EnvVars: []string{"CRM_PLATFORM"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"CRM_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the application with all commands.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "crm-e2e",
		Usage:   "End-to-end tests for the CRM web app, mobile app, REST API and database",
		Version: Version,
		Description: `crm-e2e runs Gherkin feature files against a CRM environment. UI steps
drive a browser (Selenium or Playwright) or the mobile app (Appium), API steps
call the REST services and database steps poll Postgres for the expected rows.

Examples:
  crm-e2e test features/
  crm-e2e --environment PreProd test features/ --tags "@smoke"
  crm-e2e validate features/
  crm-e2e report reports/2026-01-05_10-00-00 --allure`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			testCommand,
			validateCommand,
			reportCommand,
			locateCommand,
			stepsCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadWorkspace reads the workspace config named by --config, or the one
// in the working directory, and applies the global flag overrides.
func loadWorkspace(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("platform") {
		cfg.Platform = c.String("platform")
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// loadEnvironment resolves the target environment and reads its property
// files.
func loadEnvironment(c *cli.Context, cfg *config.Config) (*config.Properties, error) {
	env, err := config.ResolveEnvironment(c.String("environment"), cfg.Environment)
	if err != nil {
		return nil, err
	}
	props, err := config.LoadProperties(cfg.ConfigDir, env)
	if err != nil {
		return nil, fmt.Errorf("load %s properties: %w", env, err)
	}
	return props, nil
}
