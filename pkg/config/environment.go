package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment names a deployment of the product under test.
type Environment string

const (
	EnvQA         Environment = "QA"
	EnvPreProd    Environment = "PreProd"
	EnvProduction Environment = "Production"
)

// Environment variables consulted by ResolveEnvironment, in order.
const (
	EnvVarEnvironment       = "CRM_ENVIRONMENT"
	EnvVarEnvironmentLegacy = "environment"
)

// ParseEnvironment accepts any casing ("qa", "preprod", "PRODUCTION") and
// returns the canonical name.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qa":
		return EnvQA, nil
	case "preprod", "pre-prod", "pre_prod":
		return EnvPreProd, nil
	case "production", "prod":
		return EnvProduction, nil
	}
	return "", fmt.Errorf("unknown environment %q (want QA, PreProd or Production)", s)
}

// ResolveEnvironment picks the environment from, in order: the CLI flag,
// $CRM_ENVIRONMENT, $environment, the workspace config, then QA.
func ResolveEnvironment(flag, fromConfig string) (Environment, error) {
	for _, candidate := range []string{
		flag,
		os.Getenv(EnvVarEnvironment),
		os.Getenv(EnvVarEnvironmentLegacy),
		fromConfig,
	} {
		if strings.TrimSpace(candidate) != "" {
			return ParseEnvironment(candidate)
		}
	}
	return EnvQA, nil
}

// ReadOnly reports whether data-changing steps are refused by default.
func (e Environment) ReadOnly() bool {
	return e == EnvProduction
}

func (e Environment) String() string {
	return string(e)
}
